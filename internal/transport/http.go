package transport

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"sim-sms-bridge/internal/app"
	"sim-sms-bridge/internal/completion"
	"sim-sms-bridge/internal/domain"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Service is what the HTTP surface needs from the telephony service.
type Service interface {
	ListActiveSimCards(ctx context.Context) ([]domain.SimCard, error)
	SendSms(ctx context.Context, req app.SendRequest) error
	HandleCompletion(ctx context.Context, c domain.Completion) error
	RecentSends(ctx context.Context, limit int) ([]domain.SendRecord, error)
	PendingSends() int
	Hello() string
	SetValue(ctx context.Context, value string)
}

// Handler holds all HTTP handlers for the bridge.
type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

// Register mounts the API routes onto router. sendLimit, when non-nil, guards
// the send endpoint only.
func (h *Handler) Register(router fiber.Router, sendLimit fiber.Handler) {
	router.Get("/sims", h.ListSims)
	if sendLimit != nil {
		router.Post("/sms", sendLimit, h.SendSms)
	} else {
		router.Post("/sms", h.SendSms)
	}
	router.Post("/completions", h.Complete)
	router.Get("/sends", h.RecentSends)

	router.Get("/hello", h.Hello)
	router.Get("/pi", h.PI)
	router.Post("/value", h.SetValue)
}

// Health reports liveness and the number of sends awaiting completion.
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy", "pending": h.svc.PendingSends()})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ListSims returns the active SIM cards.
//
// GET /sims
func (h *Handler) ListSims(c *fiber.Ctx) error {
	cards, err := h.svc.ListActiveSimCards(c.Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(cards)
}

type sendRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Text        string `json:"text"`
	SimCardID   *int   `json:"simCardId"`
}

// SendSms sends one message and answers once the platform has reported.
//
// POST /sms
// Body: { "phoneNumber": "...", "text": "...", "simCardId": 1 }
func (h *Handler) SendSms(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{
			Code:    domain.CodeInvalidArguments,
			Message: "invalid request body",
		})
	}

	err := h.svc.SendSms(c.Context(), app.SendRequest{
		PhoneNumber: req.PhoneNumber,
		Text:        req.Text,
		SimCardID:   req.SimCardID,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type completionRequest struct {
	Token      string `json:"token"`
	ResultCode *int   `json:"resultCode"`
}

// Complete receives a completion reported by a remote gateway.
//
// POST /completions
// Body: { "token": "...", "resultCode": -1 }
func (h *Handler) Complete(c *fiber.Ctx) error {
	var req completionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Token == "" || req.ResultCode == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token and resultCode are required"})
	}

	err := h.svc.HandleCompletion(c.Context(), domain.Completion{Token: req.Token, ResultCode: *req.ResultCode})
	if errors.Is(err, completion.ErrUnknownToken) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown token"})
	}
	if err != nil {
		h.log.Error("handle completion", "token", req.Token, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type sendRecordResponse struct {
	ID           string `json:"id"`
	Token        string `json:"token"`
	PhoneNumber  string `json:"phoneNumber"`
	SimCardID    *int   `json:"simCardId,omitempty"`
	Status       string `json:"status"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt"`
	CompletedAt  string `json:"completedAt,omitempty"`
}

// RecentSends lists journaled sends, newest first.
//
// GET /sends?limit=50
func (h *Handler) RecentSends(c *fiber.Ctx) error {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a positive integer"})
		}
		limit = min(n, maxRecentLimit)
	}

	records, err := h.svc.RecentSends(c.Context(), limit)
	if err != nil {
		h.log.Error("recent sends", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	out := make([]sendRecordResponse, len(records))
	for i, r := range records {
		out[i] = sendRecordResponse{
			ID:           r.ID.String(),
			Token:        r.Token,
			PhoneNumber:  r.PhoneNumber,
			SimCardID:    r.SimCardID,
			Status:       string(r.Status),
			ErrorCode:    r.ErrorCode,
			ErrorMessage: r.ErrorMessage,
			CreatedAt:    r.CreatedAt.Format(timeLayout),
		}
		if r.CompletedAt != nil {
			out[i].CompletedAt = r.CompletedAt.Format(timeLayout)
		}
	}
	return c.JSON(out)
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func (h *Handler) Hello(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"greeting": h.svc.Hello()})
}

func (h *Handler) PI(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"pi": app.PI})
}

type valueRequest struct {
	Value string `json:"value"`
}

func (h *Handler) SetValue(c *fiber.Ctx) error {
	var req valueRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	h.svc.SetValue(c.Context(), req.Value)
	return c.SendStatus(fiber.StatusNoContent)
}

// fail renders a bridge error as {code, message}.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	bridgeErr, ok := domain.AsError(err)
	if !ok {
		h.log.Error("unclassified error", "path", c.Path(), "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse{
			Code:    domain.CodeGeneric,
			Message: "internal server error",
		})
	}
	return c.Status(statusFor(bridgeErr.Kind)).JSON(errorResponse{
		Code:    bridgeErr.Code,
		Message: bridgeErr.Message,
	})
}

func statusFor(k domain.Kind) int {
	switch k {
	case domain.KindPermission:
		return fiber.StatusForbidden
	case domain.KindInvalidArgument:
		return fiber.StatusBadRequest
	case domain.KindUnsupported:
		return fiber.StatusNotImplemented
	case domain.KindSend:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
