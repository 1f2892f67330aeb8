package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	rediscache "sim-sms-bridge/internal/adapters/cache/redis"
	"sim-sms-bridge/internal/adapters/db/postgres"
	"sim-sms-bridge/internal/adapters/permission"
	"sim-sms-bridge/internal/adapters/platform/atmodem"
	"sim-sms-bridge/internal/adapters/platform/hilink"
	"sim-sms-bridge/internal/adapters/platform/stub"
	"sim-sms-bridge/internal/adapters/queue/rabbitmq"
	"sim-sms-bridge/internal/app"
	"sim-sms-bridge/internal/completion"
	"sim-sms-bridge/internal/config"
	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/middleware"
	"sim-sms-bridge/internal/ports"
	"sim-sms-bridge/internal/transport"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := conf.Logger()
	if err := run(conf, log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(conf config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	platform, closePlatform, err := openPlatform(ctx, conf, log)
	if err != nil {
		return fmt.Errorf("open %s platform: %w", conf.Platform.Kind, err)
	}
	defer closePlatform()

	opts := []app.Option{app.WithSendTimeout(conf.SendTimeout)}

	if conf.ResultCodesFile != "" {
		data, err := os.ReadFile(conf.ResultCodesFile)
		if err != nil {
			return fmt.Errorf("read result codes: %w", err)
		}
		table, err := domain.LoadResultCodes(data)
		if err != nil {
			return fmt.Errorf("load result codes: %w", err)
		}
		opts = append(opts, app.WithResultCodes(table))
	}

	if conf.DatabaseURL != "" {
		journal, err := postgres.Open(conf.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer journal.Close()
		opts = append(opts, app.WithJournal(journal))
	}

	if conf.Redis.Addr != "" {
		rdb := rediscache.NewClient(conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		opts = append(opts, app.WithDeduper(rediscache.NewDeduper(rdb, conf.Redis.TTL)))
	}

	var consumer *rabbitmq.Consumer
	if conf.AMQP.URL != "" {
		publisher, err := rabbitmq.NewPublisher(conf.AMQP.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer publisher.Close()
		opts = append(opts, app.WithOutcomePublisher(publisher))

		consumer, err = rabbitmq.NewConsumer(conf.AMQP.URL, conf.AMQP.Prefetch, log)
		if err != nil {
			return fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		defer consumer.Close()
	}

	svc := app.NewTelephonyService(
		permission.NewPolicy(conf.Permissions),
		platform,
		completion.NewRegistry(),
		log,
		opts...,
	)
	svc.OnChange(func(value string) {
		log.Info("onChange", "value", value)
	})

	if consumer != nil {
		go consumeCompletions(ctx, consumer, svc, log)
	}

	sendLimiter := middleware.NewSendLimiter(conf.HTTP.RateLimit, time.Minute)
	defer sendLimiter.Stop()

	fiberApp := fiber.New(fiber.Config{
		AppName:               "simbridge-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		BodyLimit:             64 * 1024,
	})

	fiberApp.Use(recover.New(recover.Config{EnableStackTrace: true}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency} ${locals:request_id}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORS(conf.HTTP.CORSOrigin))
	fiberApp.Use(middleware.APILimiter(600, time.Minute))

	handler := transport.NewHandler(svc, log)
	fiberApp.Get("/health", handler.Health)
	handler.Register(fiberApp.Group("/api"), sendLimiter.Handler())

	errChan := make(chan error, 1)
	go func() {
		log.Info("simbridge-api started", "addr", conf.HTTP.Addr, "platform", conf.Platform.Kind, "api_level", platform.APILevel())
		if err := fiberApp.Listen(conf.HTTP.Addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown gracefully: %w", err)
	}

	log.Info("simbridge-api stopped gracefully", "pending", svc.PendingSends())
	return nil
}

func openPlatform(ctx context.Context, conf config.Config, log *slog.Logger) (ports.Platform, func(), error) {
	switch conf.Platform.Kind {
	case config.PlatformHiLink:
		a := hilink.NewAdapter(hilink.Config{
			BaseURL:        conf.HiLink.BaseURL,
			Username:       conf.HiLink.Username,
			Password:       conf.HiLink.Password,
			SubscriptionID: conf.HiLink.SubscriptionID,
			APILevel:       conf.Platform.APILevel,
			PollInterval:   conf.HiLink.PollInterval,
			StatusTimeout:  conf.HiLink.StatusTimeout,
		}, log.With("platform", "hilink"))
		if err := a.Connect(ctx); err != nil {
			return nil, nil, err
		}
		return a, func() {}, nil

	case config.PlatformATModem:
		p, err := atmodem.Open(atmodem.Config{
			Ports:              conf.ATModem.Ports,
			Baud:               conf.ATModem.Baud,
			BaseSubscriptionID: conf.ATModem.BaseSubscriptionID,
			CarrierName:        conf.ATModem.CarrierName,
			APILevel:           conf.Platform.APILevel,
			CommandTimeout:     conf.ATModem.CommandTimeout,
			SendTimeout:        conf.ATModem.SendTimeout,
			QueueSize:          conf.ATModem.QueueSize,
		}, log.With("platform", "atmodem"))
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil

	default:
		return stub.New(), func() {}, nil
	}
}

// consumeCompletions feeds completions from the queue into the service.
// Completions for sends this process does not know are acknowledged and
// dropped.
func consumeCompletions(ctx context.Context, consumer *rabbitmq.Consumer, svc *app.TelephonyService, log *slog.Logger) {
	err := consumer.Consume(ctx, func(ctx context.Context, c domain.Completion) error {
		err := svc.HandleCompletion(ctx, c)
		if errors.Is(err, completion.ErrUnknownToken) {
			log.Warn("completion for unknown send dropped", "token", c.Token)
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("completion consumer stopped", "err", err)
	}
}
