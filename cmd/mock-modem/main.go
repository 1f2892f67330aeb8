// Command mock-modem emulates the parts of a Huawei HiLink web API the
// bridge uses, so the hilink platform can run without hardware.
package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ilyakaznacheev/cleanenv"
)

type mockConfig struct {
	Addr         string        `env:"MOCK_MODEM_ADDR" env-default:":9090"`
	IMSI         string        `env:"MOCK_MODEM_IMSI" env-default:"001010123456789"`
	Operator     string        `env:"MOCK_MODEM_OPERATOR" env-default:"Test Network"`
	DeliveryTime time.Duration `env:"MOCK_MODEM_DELIVERY_TIME" env-default:"500ms"`
	// Numbers with this suffix are reported in FailPhone.
	FailSuffix string `env:"MOCK_MODEM_FAIL_SUFFIX" env-default:"0000"`
}

type sendSMSRequest struct {
	Phones  []string `xml:"Phones>Phone"`
	Content string   `xml:"Content"`
}

// modem tracks the status of the last submitted message, as the device does.
type modem struct {
	mu        sync.Mutex
	phone     string
	sucPhone  string
	failPhone string
}

func (m *modem) submit(phone string, succeed bool, after time.Duration) {
	m.mu.Lock()
	m.phone, m.sucPhone, m.failPhone = phone, "", ""
	m.mu.Unlock()

	time.AfterFunc(after, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.phone != phone {
			return
		}
		if succeed {
			m.sucPhone = phone
		} else {
			m.failPhone = phone
		}
	})
}

func (m *modem) status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf(`<response><Phone>%s</Phone><SucPhone>%s</SucPhone><FailPhone>%s</FailPhone><TotalCount>1</TotalCount><CurIndex>0</CurIndex></response>`,
		m.phone, m.sucPhone, m.failPhone)
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	var conf mockConfig
	if err := cleanenv.ReadEnv(&conf); err != nil {
		log.Error("read config", "err", err)
		os.Exit(1)
	}

	dev := &modem{}
	token := uuid.NewString()

	fiberApp := fiber.New(fiber.Config{AppName: "mock-modem", DisableStartupMessage: true})
	xmlOK := func(c *fiber.Ctx, body string) error {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
		return c.SendString(body)
	}

	fiberApp.Get("/api/webserver/SesTokInfo", func(c *fiber.Ctx) error {
		return xmlOK(c, fmt.Sprintf(`<response><SesInfo>SessionID=%s</SesInfo><TokInfo>%s</TokInfo></response>`, uuid.NewString(), token))
	})

	fiberApp.Post("/api/user/login", func(c *fiber.Ctx) error {
		c.Set("__RequestVerificationToken", token)
		return xmlOK(c, `<response>OK</response>`)
	})

	fiberApp.Get("/api/device/information", func(c *fiber.Ctx) error {
		return xmlOK(c, fmt.Sprintf(`<response><DeviceName>E3372h-mock</DeviceName><Imsi>%s</Imsi><Iccid>8900000000000000000</Iccid></response>`, conf.IMSI))
	})

	fiberApp.Get("/api/net/current-plmn", func(c *fiber.Ctx) error {
		return xmlOK(c, fmt.Sprintf(`<response><FullName>%s</FullName><ShortName>%s</ShortName></response>`, conf.Operator, conf.Operator))
	})

	fiberApp.Post("/api/sms/send-sms", func(c *fiber.Ctx) error {
		var req sendSMSRequest
		if err := xml.Unmarshal(c.Body(), &req); err != nil || len(req.Phones) == 0 {
			return xmlOK(c, `<error><code>100005</code><message></message></error>`)
		}
		phone := strings.TrimSpace(req.Phones[0])
		succeed := !strings.HasSuffix(phone, conf.FailSuffix)
		dev.submit(phone, succeed, conf.DeliveryTime)

		log.Info("mock modem accepted sms", "to", phone, "chars", len([]rune(req.Content)), "will_succeed", succeed)
		return xmlOK(c, `<response>OK</response>`)
	})

	fiberApp.Get("/api/sms/send-status", func(c *fiber.Ctx) error {
		return xmlOK(c, dev.status())
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock-modem listening", "addr", conf.Addr)
		if err := fiberApp.Listen(conf.Addr); err != nil {
			log.Error("fiber listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-modem")
	_ = fiberApp.Shutdown()
}
