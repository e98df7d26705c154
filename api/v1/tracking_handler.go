package v1

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/metrics"
	"folio/internal/models"
	"folio/internal/sessions"
)

const (
	errInvalidRequest = "Invalid request"
	errValidation     = "Validation failed"
)

// VisitRequest opens a visit, creating the session on first use
type VisitRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Path      string `json:"path" validate:"required,max=2048"`
	Referrer  string `json:"referrer" validate:"omitempty,max=2048"`
	UserAgent string `json:"userAgent" validate:"omitempty,max=1024"`
}

// ScrollRequest reports a raw scroll depth between 0 and 100
type ScrollRequest struct {
	SessionID string   `json:"sessionId" validate:"required,max=128"`
	VisitID   string   `json:"visitId" validate:"omitempty,max=36"`
	Percent   *float64 `json:"percent" validate:"required"`
}

// SectionRequest reports dwell time on a page section
type SectionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	VisitID   string `json:"visitId" validate:"omitempty,max=36"`
	Section   string `json:"section" validate:"required,max=100"`
	DwellMs   *int64 `json:"dwellMs" validate:"required,min=0"`
}

// EndRequest reports the total duration of a visit
type EndRequest struct {
	SessionID  string `json:"sessionId" validate:"required,max=128"`
	VisitID    string `json:"visitId" validate:"omitempty,max=36"`
	DurationMs *int64 `json:"durationMs" validate:"required,min=0"`
}

// BasicRequest is the cookieless ping
type BasicRequest struct {
	Path   string `json:"path" validate:"required,max=2048"`
	Device string `json:"device" validate:"max=32"`
}

func trackingConfig(ctx *cartridge.Context) *config.Config {
	if cfg, ok := ctx.Config.(*config.Config); ok {
		return cfg
	}
	return config.GetConfig()
}

// parseBody decodes a JSON body regardless of content type, so text/plain
// beacons parse the same way as fetch requests.
func parseBody(ctx *cartridge.Context, dst interface{}) []FieldError {
	body := ctx.Body()
	if len(body) == 0 {
		return []FieldError{{Field: "body", Message: "body is required"}}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return []FieldError{{Field: "body", Message: "body must be a JSON object"}}
	}
	return validateStruct(dst)
}

func validationFailed(ctx *cartridge.Context, endpoint string, fields []FieldError) error {
	metrics.ObserveTracking(endpoint, "invalid")
	return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error":   errValidation,
		"code":    "VALIDATION_ERROR",
		"details": fields,
	})
}

// trackingError maps domain errors onto HTTP responses
func trackingError(ctx *cartridge.Context, endpoint string, err error) error {
	var status int
	var code string

	switch {
	case errors.Is(err, sessions.ErrInvalidSessionID), errors.Is(err, events.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, sessions.ErrSessionNotFound):
		status, code = http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, sessions.ErrSessionExpired):
		status, code = http.StatusGone, "SESSION_EXPIRED"
	case errors.Is(err, events.ErrVisitNotFound):
		status, code = http.StatusNotFound, "VISIT_NOT_FOUND"
	case models.IsDatabaseBusy(err):
		status, code = http.StatusServiceUnavailable, "DATABASE_BUSY"
	default:
		status, code = http.StatusInternalServerError, "COLLECTION_ERROR"
	}

	if status >= http.StatusInternalServerError {
		ctx.Logger.Error("Failed to track event", slog.String("endpoint", endpoint), slog.Any("error", err))
	} else {
		ctx.Logger.Debug("Rejected tracking request", slog.String("endpoint", endpoint), slog.Any("error", err))
	}

	metrics.ObserveTracking(endpoint, strings.ToLower(code))
	message := errInvalidRequest
	if status != http.StatusBadRequest {
		message = err.Error()
	}
	return ctx.Status(status).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}

func requestUserAgent(ctx *cartridge.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if forwarded := ctx.Get("X-Forwarded-User-Agent"); forwarded != "" {
		return forwarded
	}
	return ctx.Get("User-Agent")
}

// CreateVisitAction handles POST /analytics/visit
func CreateVisitAction(ctx *cartridge.Context) error {
	const endpoint = "visit"

	var req VisitRequest
	if fields := parseBody(ctx, &req); fields != nil {
		return validationFailed(ctx, endpoint, fields)
	}

	cfg := trackingConfig(ctx)
	input := &events.VisitInput{
		SessionID: req.SessionID,
		Path:      req.Path,
		Referrer:  req.Referrer,
		UserAgent: requestUserAgent(ctx, req.UserAgent),
		IPAddress: clientIP(ctx.Ctx),
		Timestamp: time.Now().UTC(),
	}

	visit, session, err := events.RecordVisit(ctx.Logger, ctx.DB(), input, cfg.SessionWindow())
	if errors.Is(err, events.ErrBotTraffic) || errors.Is(err, events.ErrExcludedIP) {
		metrics.ObserveTracking(endpoint, "ignored")
		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"tracked": false})
	}
	if err != nil {
		return trackingError(ctx, endpoint, err)
	}

	metrics.ObserveTracking(endpoint, "created")
	return ctx.Status(http.StatusCreated).JSON(fiber.Map{
		"visitId":   visit.PublicID,
		"sessionId": session.ID,
		"expiresAt": session.ExpiresAt,
	})
}

// CreateScrollAction handles POST /analytics/scroll
func CreateScrollAction(ctx *cartridge.Context) error {
	const endpoint = "scroll"

	var req ScrollRequest
	if fields := parseBody(ctx, &req); fields != nil {
		return validationFailed(ctx, endpoint, fields)
	}

	cfg := trackingConfig(ctx)
	_, err := events.RecordScroll(ctx.Logger, ctx.DB(), &events.ScrollInput{
		SessionID: req.SessionID,
		VisitID:   req.VisitID,
		Percent:   *req.Percent,
	}, cfg.SessionWindow())
	if err != nil {
		return trackingError(ctx, endpoint, err)
	}

	metrics.ObserveTracking(endpoint, "recorded")
	return ctx.SendStatus(http.StatusNoContent)
}

// CreateSectionAction handles POST /analytics/section
func CreateSectionAction(ctx *cartridge.Context) error {
	const endpoint = "section"

	var req SectionRequest
	if fields := parseBody(ctx, &req); fields != nil {
		return validationFailed(ctx, endpoint, fields)
	}

	cfg := trackingConfig(ctx)
	err := events.RecordSection(ctx.Logger, ctx.DB(), &events.SectionInput{
		SessionID: req.SessionID,
		VisitID:   req.VisitID,
		Section:   req.Section,
		DwellMs:   *req.DwellMs,
	}, cfg.SessionWindow())
	if err != nil {
		return trackingError(ctx, endpoint, err)
	}

	metrics.ObserveTracking(endpoint, "recorded")
	return ctx.SendStatus(http.StatusNoContent)
}

// CreateEndAction handles POST /analytics/end. Browsers send it with
// navigator.sendBeacon, usually as text/plain.
func CreateEndAction(ctx *cartridge.Context) error {
	const endpoint = "end"

	var req EndRequest
	if fields := parseBody(ctx, &req); fields != nil {
		return validationFailed(ctx, endpoint, fields)
	}

	_, err := events.EndVisit(ctx.Logger, ctx.DB(), &events.EndInput{
		SessionID:  req.SessionID,
		VisitID:    req.VisitID,
		DurationMs: *req.DurationMs,
	})
	if err != nil {
		return trackingError(ctx, endpoint, err)
	}

	metrics.ObserveTracking(endpoint, "recorded")
	return ctx.SendStatus(http.StatusNoContent)
}

// CreateBasicAction handles POST /analytics/basic. The response is always
// 204; failures are only logged.
func CreateBasicAction(ctx *cartridge.Context) error {
	const endpoint = "basic"

	var req BasicRequest
	if fields := parseBody(ctx, &req); fields != nil {
		ctx.Logger.Debug("Dropped invalid cookieless ping", slog.Any("fields", fields))
		metrics.ObserveTracking(endpoint, "invalid")
		return ctx.SendStatus(http.StatusNoContent)
	}

	if err := events.RecordBasicPageView(ctx.Logger, ctx.DB(), req.Path, req.Device, time.Now().UTC()); err != nil {
		ctx.Logger.Error("Failed to record cookieless ping", slog.Any("error", err))
		metrics.ObserveTracking(endpoint, "error")
		return ctx.SendStatus(http.StatusNoContent)
	}

	metrics.ObserveTracking(endpoint, "recorded")
	return ctx.SendStatus(http.StatusNoContent)
}

// SessionStatusAction handles GET /analytics/session. It reports whether the
// token is still inside its window without extending it.
func SessionStatusAction(ctx *cartridge.Context) error {
	id := ctx.Query("sessionId")
	if err := sessions.ValidateID(id); err != nil {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": errInvalidRequest,
			"code":  "INVALID_REQUEST",
		})
	}

	valid, err := sessions.Validate(ctx.DB(), id, time.Now().UTC())
	if err != nil {
		ctx.Logger.Error("Failed to validate session", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to validate session",
			"code":  "SESSION_ERROR",
		})
	}
	return ctx.JSON(fiber.Map{"valid": valid})
}
