// Package hilink drives a Huawei HiLink modem through its XML over HTTP API.
// The modem holds a single SIM, reported as slot 0.
package hilink

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"sim-sms-bridge/internal/domain"
	"sim-sms-bridge/internal/ports"
)

var ErrNotConnected = errors.New("adapter not connected: call Connect first")

const defaultHTTPTimeout = 30 * time.Second

// Modem error codes the adapter reacts to.
const (
	errNotSupported   = "100002"
	errFormat         = "100005"
	errParameter      = "100006"
	errSessionInvalid = "125002"
	errTokenInvalid   = "125003"
)

// APIError is an <error> document returned by the modem.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("modem API error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("modem API error %s", e.Code)
}

type Config struct {
	BaseURL        string
	Username       string
	Password       string
	SubscriptionID int
	APILevel       int
	PollInterval   time.Duration
	StatusTimeout  time.Duration
}

// Adapter implements ports.Platform for one HiLink modem.
type Adapter struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger

	mu        sync.Mutex
	token     string
	sessionID string

	// The modem reports the status of one outgoing message at a time, so a
	// send holds this slot until its status has been resolved.
	sendSlot chan struct{}
}

func NewAdapter(cfg Config, log *slog.Logger) *Adapter {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StatusTimeout <= 0 {
		cfg.StatusTimeout = 2 * time.Minute
	}
	return &Adapter{
		cfg: cfg,
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		log:      log,
		sendSlot: make(chan struct{}, 1),
	}
}

// Connect obtains a session and, when credentials are configured, logs in.
func (a *Adapter) Connect(ctx context.Context) error {
	tok, sess, err := a.getSessionToken(ctx)
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}
	if a.cfg.Username != "" {
		tok, err = a.login(ctx, tok, sess)
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	a.mu.Lock()
	a.token, a.sessionID = tok, sess
	a.mu.Unlock()
	return nil
}

func (a *Adapter) APILevel() int { return a.cfg.APILevel }

// ActiveSubscriptions reports the inserted SIM, or nothing when the modem has
// no IMSI.
func (a *Adapter) ActiveSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	var info struct {
		DeviceName string `xml:"DeviceName"`
		Imsi       string `xml:"Imsi"`
		Iccid      string `xml:"Iccid"`
	}
	if err := a.get(ctx, "/api/device/information", &info); err != nil {
		return nil, fmt.Errorf("device information: %w", err)
	}
	if strings.TrimSpace(info.Imsi) == "" {
		return nil, nil
	}

	var plmn struct {
		FullName  string `xml:"FullName"`
		ShortName string `xml:"ShortName"`
	}
	if err := a.get(ctx, "/api/net/current-plmn", &plmn); err != nil {
		return nil, fmt.Errorf("current plmn: %w", err)
	}

	display := plmn.ShortName
	if display == "" {
		display = plmn.FullName
	}
	return []domain.Subscription{{
		ID:           a.cfg.SubscriptionID,
		DisplayName:  display,
		CarrierName:  plmn.FullName,
		SimSlotIndex: 0,
	}}, nil
}

func (a *Adapter) Default(context.Context) (ports.SmsManager, error) {
	return &manager{a: a}, nil
}

func (a *Adapter) CreateForSubscriptionID(_ context.Context, id int) (ports.SmsManager, error) {
	return a.managerFor(id)
}

func (a *Adapter) ForSubscriptionID(_ context.Context, id int) (ports.SmsManager, error) {
	return a.managerFor(id)
}

func (a *Adapter) managerFor(id int) (ports.SmsManager, error) {
	if id != a.cfg.SubscriptionID {
		return nil, fmt.Errorf("subscription %d not on this modem: %w", id, domain.ErrInvalidArgument)
	}
	return &manager{a: a}, nil
}

type manager struct{ a *Adapter }

// SendTextMessage submits the message and resolves its status in the
// background, firing sent once the modem reports the phone as done.
func (m *manager) SendTextMessage(ctx context.Context, destination, text string, sent ports.SentIntent) error {
	if strings.TrimSpace(destination) == "" || text == "" {
		return fmt.Errorf("destination and text are required: %w", domain.ErrInvalidArgument)
	}

	select {
	case m.a.sendSlot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := m.a.submit(ctx, destination, text); err != nil {
		<-m.a.sendSlot
		return classify(err)
	}

	go func() {
		defer func() { <-m.a.sendSlot }()
		m.a.awaitStatus(destination, sent)
	}()
	return nil
}

func (a *Adapter) submit(ctx context.Context, destination, text string) error {
	var content bytes.Buffer
	if err := xml.EscapeText(&content, []byte(text)); err != nil {
		return fmt.Errorf("escape content: %w", err)
	}

	body := fmt.Sprintf(`<request>
<Index>-1</Index>
<Phones><Phone>%s</Phone></Phones>
<Sca></Sca>
<Content>%s</Content>
<Length>%d</Length>
<Reserved>1</Reserved>
<Date>%s</Date>
</request>`, destination, content.String(), len([]rune(text)), time.Now().Format("2006-01-02 15:04:05"))

	data, err := a.post(ctx, "/api/sms/send-sms", body)
	if err != nil {
		return err
	}
	if !bytes.Contains(data, []byte("<response>OK</response>")) {
		return errors.New("send-sms not acknowledged")
	}
	return nil
}

type sendStatus struct {
	Phone      string `xml:"Phone"`
	SucPhone   string `xml:"SucPhone"`
	FailPhone  string `xml:"FailPhone"`
	TotalCount int    `xml:"TotalCount"`
	CurIndex   int    `xml:"CurIndex"`
}

func (a *Adapter) awaitStatus(destination string, sent ports.SentIntent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.StatusTimeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	code := domain.ResultErrorNoService
	for done := false; !done; {
		select {
		case <-ctx.Done():
			a.log.Warn("send status timed out", "token", sent.Token)
			done = true
		case <-ticker.C:
			var st sendStatus
			if err := a.get(ctx, "/api/sms/send-status", &st); err != nil {
				a.log.Warn("poll send status", "token", sent.Token, "err", err)
				continue
			}
			switch {
			case strings.Contains(st.SucPhone, destination):
				code, done = domain.ResultOK, true
			case strings.Contains(st.FailPhone, destination):
				code, done = domain.ResultErrorGenericFailure, true
			}
		}
	}

	if err := sent.Fire(context.Background(), code); err != nil {
		a.log.Warn("deliver completion", "token", sent.Token, "err", err)
	}
}

func classify(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case errNotSupported:
		return fmt.Errorf("%w: %w", domain.ErrUnsupported, err)
	case errFormat, errParameter:
		return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
	}
	return err
}

func (a *Adapter) get(ctx context.Context, path string, out any) error {
	data, err := a.do(ctx, http.MethodGet, path, "", true)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (a *Adapter) post(ctx context.Context, path, body string) ([]byte, error) {
	return a.do(ctx, http.MethodPost, path, body, true)
}

// do performs an authenticated request. An expired session is renewed once.
func (a *Adapter) do(ctx context.Context, method, path, body string, retry bool) ([]byte, error) {
	a.mu.Lock()
	token, session := a.token, a.sessionID
	a.mu.Unlock()
	if token == "" || session == "" {
		return nil, ErrNotConnected
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("__RequestVerificationToken", token)
	req.Header.Set("Cookie", session)
	if body != "" {
		req.Header.Set("Content-Type", "application/xml")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if next := resp.Header.Get("__RequestVerificationToken"); next != "" {
		a.mu.Lock()
		a.token = next
		a.mu.Unlock()
	}

	if err := checkError(data); err != nil {
		var apiErr *APIError
		if retry && errors.As(err, &apiErr) && (apiErr.Code == errSessionInvalid || apiErr.Code == errTokenInvalid) {
			if cerr := a.Connect(ctx); cerr != nil {
				return nil, fmt.Errorf("renew session: %w", cerr)
			}
			return a.do(ctx, method, path, body, false)
		}
		return nil, err
	}
	return data, nil
}

func (a *Adapter) getSessionToken(ctx context.Context) (token, session string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/webserver/SesTokInfo", nil)
	if err != nil {
		return "", "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	var info struct {
		TokInfo string `xml:"TokInfo"`
		SesInfo string `xml:"SesInfo"`
	}
	if err := xml.Unmarshal(data, &info); err != nil {
		return "", "", err
	}
	if info.TokInfo == "" || info.SesInfo == "" {
		return "", "", errors.New("failed to obtain session/token")
	}
	return info.TokInfo, info.SesInfo, nil
}

func (a *Adapter) login(ctx context.Context, token, sessionID string) (string, error) {
	body := fmt.Sprintf(`<request>
<Username>%s</Username>
<Password>%s</Password>
<password_type>4</password_type>
</request>`, a.cfg.Username, a.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/user/login", strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("__RequestVerificationToken", token)
	req.Header.Set("Cookie", sessionID)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if err := checkError(data); err != nil {
		return "", err
	}
	if !bytes.Contains(data, []byte("<response>OK</response>")) {
		return "", errors.New("login failed")
	}
	loginToken := resp.Header.Get("__RequestVerificationToken")
	if loginToken == "" {
		return "", errors.New("no verification token returned after login")
	}
	return loginToken, nil
}

func checkError(data []byte) error {
	if !bytes.Contains(data, []byte("<error>")) {
		return nil
	}
	var errResp struct {
		Code    string `xml:"code"`
		Message string `xml:"message"`
	}
	if err := xml.Unmarshal(data, &errResp); err != nil {
		return &APIError{Code: "unknown"}
	}
	return &APIError{Code: errResp.Code, Message: errResp.Message}
}

var _ ports.Platform = (*Adapter)(nil)
