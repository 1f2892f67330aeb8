// Package atmodem drives GSM modems attached to serial ports with AT
// commands. Each port holds one SIM and is reported as its own slot.
package atmodem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

var (
	ErrQueueFull   = errors.New("modem send queue is full")
	ErrModemClosed = errors.New("modem is closed")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]+$`)

type Config struct {
	Ports              []string
	Baud               int
	BaseSubscriptionID int
	CarrierName        string
	APILevel           int
	CommandTimeout     time.Duration
	SendTimeout        time.Duration
	QueueSize          int
}

func (c *Config) defaults() {
	if c.Baud <= 0 {
		c.Baud = 115200
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 5 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 60 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
}

// Platform implements ports.Platform over a set of modems.
type Platform struct {
	cfg    Config
	modems []*Modem
	log    *slog.Logger
}

// Open opens every configured serial port and initializes its modem.
func Open(cfg Config, log *slog.Logger) (*Platform, error) {
	cfg.defaults()

	var opened []io.ReadWriteCloser
	for _, name := range cfg.Ports {
		p, err := serial.OpenPort(&serial.Config{
			Name:        name,
			Baud:        cfg.Baud,
			ReadTimeout: 200 * time.Millisecond,
		})
		if err != nil {
			for _, o := range opened {
				o.Close()
			}
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		opened = append(opened, p)
	}
	return New(cfg, log, opened...)
}

// New builds a platform over already opened ports. Slot indexes follow the
// order of ports.
func New(cfg Config, log *slog.Logger, rws ...io.ReadWriteCloser) (*Platform, error) {
	cfg.defaults()
	p := &Platform{cfg: cfg, log: log}
	for slot, rw := range rws {
		m := newModem(rw, slot, cfg, log.With("slot", slot))
		if err := m.init(context.Background()); err != nil {
			p.Close()
			for _, rest := range rws[slot:] {
				rest.Close()
			}
			return nil, fmt.Errorf("init slot %d: %w", slot, err)
		}
		go m.run()
		p.modems = append(p.modems, m)
	}
	return p, nil
}

func (p *Platform) Close() {
	for _, m := range p.modems {
		m.Close()
	}
}

func (p *Platform) APILevel() int { return p.cfg.APILevel }

// ActiveSubscriptions lists the slots whose modem reports an IMSI.
func (p *Platform) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	for _, m := range p.modems {
		sub, ok, err := m.subscription(ctx)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", m.slot, err)
		}
		if ok {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (p *Platform) Default(context.Context) (ports.SmsManager, error) {
	if len(p.modems) == 0 {
		return nil, fmt.Errorf("no modems configured: %w", domain.ErrUnsupported)
	}
	return p.modems[0], nil
}

func (p *Platform) CreateForSubscriptionID(_ context.Context, id int) (ports.SmsManager, error) {
	return p.modemFor(id)
}

func (p *Platform) ForSubscriptionID(_ context.Context, id int) (ports.SmsManager, error) {
	return p.modemFor(id)
}

func (p *Platform) modemFor(id int) (*Modem, error) {
	for _, m := range p.modems {
		if m.subID == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no modem for subscription %d: %w", id, domain.ErrInvalidArgument)
}

type sendTask struct {
	destination string
	text        string
	sent        ports.SentIntent
}

// Modem is one serial attached modem. Commands and sends share the port
// under mu; sends run on a single worker goroutine in queue order.
type Modem struct {
	slot  int
	subID int
	cfg   Config
	log   *slog.Logger
	rw    io.ReadWriteCloser

	mu   sync.Mutex
	conn *conn

	queue     chan *sendTask
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newModem(rw io.ReadWriteCloser, slot int, cfg Config, log *slog.Logger) *Modem {
	return &Modem{
		slot:  slot,
		subID: cfg.BaseSubscriptionID + slot,
		cfg:   cfg,
		log:   log,
		rw:    rw,
		conn:  newConn(rw, 0),
		queue: make(chan *sendTask, cfg.QueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (m *Modem) init(ctx context.Context) error {
	_, err := m.command(ctx, "ATE0")
	return err
}

func (m *Modem) command(ctx context.Context, cmd string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn.command(ctx, cmd, m.cfg.CommandTimeout)
}

func (m *Modem) subscription(ctx context.Context) (domain.Subscription, bool, error) {
	lines, err := m.command(ctx, "AT+CIMI")
	if err != nil {
		if errors.Is(err, ErrCommandRejected) {
			return domain.Subscription{}, false, nil
		}
		var cms *CMSError
		if errors.As(err, &cms) {
			return domain.Subscription{}, false, nil
		}
		return domain.Subscription{}, false, err
	}
	imsi := firstLine(lines)
	if imsi == "" {
		return domain.Subscription{}, false, nil
	}

	if lines, err := m.command(ctx, "AT+CCID"); err == nil {
		m.log.Debug("sim present", "iccid", strings.TrimSpace(strings.TrimPrefix(firstLine(lines), "+CCID:")))
	}

	carrier := m.cfg.CarrierName
	if lines, err := m.command(ctx, "AT+COPS?"); err == nil {
		if name := parseOperator(lines); name != "" {
			carrier = name
		}
	}

	display := carrier
	if display == "" {
		display = fmt.Sprintf("SIM %d", m.slot+1)
	}
	return domain.Subscription{
		ID:           m.subID,
		DisplayName:  display,
		CarrierName:  carrier,
		SimSlotIndex: m.slot,
	}, true, nil
}

// SendTextMessage validates the request, switches the modem to text mode and
// queues the send. The intent fires once the modem has answered AT+CMGS.
func (m *Modem) SendTextMessage(ctx context.Context, destination, text string, sent ports.SentIntent) error {
	if !phonePattern.MatchString(destination) {
		return fmt.Errorf("destination %q: %w", destination, domain.ErrInvalidArgument)
	}
	if text == "" {
		return fmt.Errorf("empty text: %w", domain.ErrInvalidArgument)
	}

	if _, err := m.command(ctx, "AT+CMGF=1"); err != nil {
		if errors.Is(err, ErrCommandRejected) {
			return fmt.Errorf("text mode: %w", domain.ErrUnsupported)
		}
		return fmt.Errorf("text mode: %w", err)
	}

	select {
	case <-m.stop:
		return ErrModemClosed
	default:
	}

	select {
	case m.queue <- &sendTask{destination: destination, text: text, sent: sent}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (m *Modem) run() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			m.drain()
			return
		case t := <-m.queue:
			m.deliver(t)
		}
	}
}

func (m *Modem) deliver(t *sendTask) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SendTimeout)
	defer cancel()

	m.mu.Lock()
	ref, err := m.conn.sendText(ctx, t.destination, t.text, m.cfg.SendTimeout)
	m.mu.Unlock()

	code := resultCode(err)
	if err != nil {
		m.log.Warn("send failed", "token", t.sent.Token, "err", err, "result_code", code)
	} else {
		m.log.Info("sms sent", "token", t.sent.Token, "ref", ref)
	}
	m.fire(t, code)
}

// drain settles queued sends that will never reach the modem.
func (m *Modem) drain() {
	for {
		select {
		case t := <-m.queue:
			m.fire(t, domain.ResultErrorRadioOff)
		default:
			return
		}
	}
}

func (m *Modem) fire(t *sendTask, code int) {
	if err := t.sent.Fire(context.Background(), code); err != nil {
		m.log.Warn("deliver completion", "token", t.sent.Token, "err", err)
	}
}

// Close stops the worker, failing queued sends, and closes the port.
func (m *Modem) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
		m.rw.Close()
	})
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}

// parseOperator extracts the operator name from `+COPS: 0,0,"Name",7`.
func parseOperator(lines []string) string {
	for _, l := range lines {
		if !strings.HasPrefix(l, "+COPS:") {
			continue
		}
		start := strings.IndexByte(l, '"')
		if start < 0 {
			return ""
		}
		end := strings.IndexByte(l[start+1:], '"')
		if end < 0 {
			return ""
		}
		return l[start+1 : start+1+end]
	}
	return ""
}

var _ ports.Platform = (*Platform)(nil)
var _ ports.SmsManager = (*Modem)(nil)
