package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Platform kinds.
const (
	PlatformHiLink  = "hilink"
	PlatformATModem = "atmodem"
	PlatformStub    = "stub"
)

type Config struct {
	HTTP struct {
		Addr       string `env:"SIMBRIDGE_HTTP_ADDR" env-default:":8080"`
		RateLimit  int    `env:"SIMBRIDGE_SEND_RATE_LIMIT" env-default:"60"`
		CORSOrigin string `env:"SIMBRIDGE_CORS_ORIGINS" env-default:"http://localhost:3000,http://127.0.0.1:3000"`
	}

	Platform struct {
		Kind     string `env:"SIMBRIDGE_PLATFORM" env-default:"hilink"`
		APILevel int    `env:"SIMBRIDGE_API_LEVEL" env-default:"31"`
	}

	HiLink struct {
		BaseURL        string        `env:"SIMBRIDGE_HILINK_URL" env-default:"http://192.168.8.1"`
		Username       string        `env:"SIMBRIDGE_HILINK_USERNAME" env-default:"admin"`
		Password       string        `env:"SIMBRIDGE_HILINK_PASSWORD" env-default:"admin"`
		SubscriptionID int           `env:"SIMBRIDGE_HILINK_SUBSCRIPTION_ID" env-default:"1"`
		PollInterval   time.Duration `env:"SIMBRIDGE_HILINK_POLL_INTERVAL" env-default:"1s"`
		StatusTimeout  time.Duration `env:"SIMBRIDGE_HILINK_STATUS_TIMEOUT" env-default:"2m"`
	}

	ATModem struct {
		Ports              []string      `env:"SIMBRIDGE_MODEM_PORTS" env-default:"/dev/ttyUSB2"`
		Baud               int           `env:"SIMBRIDGE_MODEM_BAUD" env-default:"115200"`
		BaseSubscriptionID int           `env:"SIMBRIDGE_MODEM_BASE_SUBSCRIPTION_ID" env-default:"1"`
		CarrierName        string        `env:"SIMBRIDGE_MODEM_CARRIER_NAME" env-default:""`
		CommandTimeout     time.Duration `env:"SIMBRIDGE_MODEM_COMMAND_TIMEOUT" env-default:"5s"`
		SendTimeout        time.Duration `env:"SIMBRIDGE_MODEM_SEND_TIMEOUT" env-default:"60s"`
		QueueSize          int           `env:"SIMBRIDGE_MODEM_QUEUE_SIZE" env-default:"32"`
	}

	// Permissions lists what the embedding application has been granted.
	Permissions []string `env:"SIMBRIDGE_PERMISSIONS" env-default:"READ_PHONE_STATE,SEND_SMS"`

	// Optional backends stay disabled while their URL or address is empty.
	DatabaseURL string `env:"SIMBRIDGE_DATABASE_URL" env-default:""`

	Redis struct {
		Addr     string        `env:"SIMBRIDGE_REDIS_ADDR" env-default:""`
		Password string        `env:"SIMBRIDGE_REDIS_PASSWORD" env-default:""`
		DB       int           `env:"SIMBRIDGE_REDIS_DB" env-default:"0"`
		TTL      time.Duration `env:"SIMBRIDGE_REDIS_DEDUPE_TTL" env-default:"24h"`
	}

	AMQP struct {
		URL      string `env:"SIMBRIDGE_AMQP_URL" env-default:""`
		Prefetch int    `env:"SIMBRIDGE_AMQP_PREFETCH" env-default:"8"`
	}

	// ResultCodesFile replaces the built in result code table when set.
	ResultCodesFile string `env:"SIMBRIDGE_RESULT_CODES_FILE" env-default:""`

	// SendTimeout bounds the wait for a completion. Zero waits indefinitely.
	SendTimeout time.Duration `env:"SIMBRIDGE_SEND_TIMEOUT" env-default:"0"`

	Log struct {
		Level  string `env:"SIMBRIDGE_LOG_LEVEL" env-default:"info"`
		Format string `env:"SIMBRIDGE_LOG_FORMAT" env-default:"json"`
	}
}

// Load reads an optional .env file and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}
	cfg.HiLink.BaseURL = strings.TrimSuffix(cfg.HiLink.BaseURL, "/")
	cfg.Platform.Kind = strings.ToLower(strings.TrimSpace(cfg.Platform.Kind))

	switch cfg.Platform.Kind {
	case PlatformHiLink, PlatformATModem, PlatformStub:
	default:
		return cfg, fmt.Errorf("unknown platform %q", cfg.Platform.Kind)
	}
	if cfg.SendTimeout < 0 {
		return cfg, fmt.Errorf("negative send timeout %s", cfg.SendTimeout)
	}
	return cfg, nil
}

// Logger builds the process logger from the Log section.
func (c Config) Logger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level), AddSource: true}
	if strings.EqualFold(c.Log.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
