package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/database"
	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
)

const (
	pendingWarnThreshold = 1000
	deadLetterThreshold  = 100
)

// Journal is the read side of the quote journal.
type Journal interface {
	Recent(ctx context.Context, model string, limit int) ([]*database.QuoteRecord, error)
	Backlog(ctx context.Context) (pending, dead int64, err error)
}

type Handlers struct {
	quoter   kream.Quoter
	defaults kream.Settings
	backend  string
	journal  Journal
	logger   *slog.Logger
}

// NewHandlers wires the HTTP surface. journal may be nil when journaling is
// disabled.
func NewHandlers(quoter kream.Quoter, defaults kream.Settings, backend string, journal Journal, logger *slog.Logger) *Handlers {
	return &Handlers{
		quoter:   quoter,
		defaults: defaults,
		backend:  backend,
		journal:  journal,
		logger:   logger.With("component", "api"),
	}
}

// SettingsOverride carries optional per-request settings. Absent fields keep
// the server defaults.
type SettingsOverride struct {
	Divisor        *float64 `json:"divisor,omitempty"`
	Factor1        *float64 `json:"factor1,omitempty"`
	Factor2        *float64 `json:"factor2,omitempty"`
	Factor3        *float64 `json:"factor3,omitempty"`
	RoundTo        *int64   `json:"round_to,omitempty"`
	TimeoutSeconds *int     `json:"timeout_seconds,omitempty"`
	Retries        *int     `json:"retries,omitempty"`
	WarmUp         *bool    `json:"warm_up,omitempty"`
	Debug          *bool    `json:"debug,omitempty"`
}

func (o *SettingsOverride) apply(s kream.Settings) kream.Settings {
	if o == nil {
		return s
	}
	if o.Divisor != nil {
		s.Divisor = *o.Divisor
	}
	if o.Factor1 != nil {
		s.Factor1 = *o.Factor1
	}
	if o.Factor2 != nil {
		s.Factor2 = *o.Factor2
	}
	if o.Factor3 != nil {
		s.Factor3 = *o.Factor3
	}
	if o.RoundTo != nil {
		s.RoundTo = *o.RoundTo
	}
	if o.TimeoutSeconds != nil {
		s.TimeoutSeconds = *o.TimeoutSeconds
	}
	if o.Retries != nil {
		s.Retries = *o.Retries
	}
	if o.WarmUp != nil {
		s.WarmUp = *o.WarmUp
	}
	if o.Debug != nil {
		s.Debug = *o.Debug
	}
	return s
}

type QuoteRequest struct {
	Model    string            `json:"model"`
	Settings *SettingsOverride `json:"settings,omitempty"`
}

type QuoteListResponse struct {
	Quotes []*database.QuoteRecord `json:"quotes"`
}

// CreateQuote fetches a quote. Fetch failures are still 200 responses with
// ok=false; only malformed input is a 4xx.
func (h *Handlers) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settings := req.Settings.apply(h.defaults)

	result, err := h.quoter.Quote(r.Context(), req.Model, settings)
	switch {
	case errors.Is(err, kream.ErrEmptyModel), errors.Is(err, kream.ErrInvalidSettings):
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn("quote request ended before the fetch finished", "model", req.Model, "error", err)
		h.respondError(w, http.StatusGatewayTimeout, "request ended before the quote was ready")
		return
	case err != nil:
		h.logger.Error("quote failed", "model", req.Model, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to fetch quote")
		return
	}

	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) ListQuotes(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		h.respondError(w, http.StatusNotFound, "quote journal is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	quotes, err := h.journal.Recent(r.Context(), r.URL.Query().Get("model"), limit)
	if err != nil {
		h.logger.Error("failed to list quotes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list quotes")
		return
	}
	if quotes == nil {
		quotes = []*database.QuoteRecord{}
	}

	h.respondJSON(w, http.StatusOK, QuoteListResponse{Quotes: quotes})
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.defaults)
}

// Health reports liveness and, with the journal enabled, the outbox backlog.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"cache":  h.backend,
	}
	status := http.StatusOK

	if h.journal != nil {
		pending, dead, err := h.journal.Backlog(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox backlog", "error", err)
			health["status"] = "warning"
			health["message"] = "outbox backlog unavailable"
		} else {
			health["outbox"] = map[string]interface{}{
				"pending":     pending,
				"dead_letter": dead,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if dead > deadLetterThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
