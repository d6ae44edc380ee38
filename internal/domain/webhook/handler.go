package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/peakheight-api/pkg/observability"
)

const (
	Path = "/api/revenuecat/webhook"

	maxBodyBytes = 1 << 20
)

// EventDispatcher applies a parsed event.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev Event) (bool, error)
}

// Handler serves the RevenueCat webhook endpoint.
type Handler struct {
	dispatcher EventDispatcher
	secret     string
	logger     *slog.Logger
}

// NewHandler builds the endpoint. An empty secret accepts every request.
func NewHandler(dispatcher EventDispatcher, secret string, logger *slog.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, secret: secret, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "RevenueCat webhook endpoint"})
	case http.MethodPost:
		h.handleEvent(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	}
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.authorized(r) {
		h.logger.WarnContext(ctx, "Unauthorized webhook request", slog.String("remote", r.RemoteAddr))
		observability.RecordWebhook("", observability.OutcomeUnauthorized)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to read webhook body", slog.Any("error", err))
		observability.RecordWebhook("", observability.OutcomeRejected)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unable to read body"})
		return
	}

	ev, err := Parse(body)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			h.logger.WarnContext(ctx, "Rejected webhook payload", slog.String("reason", perr.Reason))
		}
		observability.RecordWebhook("", observability.OutcomeRejected)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	eventType := string(ev.Meta().Type)
	applied, err := h.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		observability.RecordWebhook(eventType, observability.OutcomeFailed)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	outcome := observability.OutcomeApplied
	if !applied {
		outcome = observability.OutcomeIgnored
	}
	observability.RecordWebhook(eventType, outcome)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return true
	}
	expected := "Bearer " + h.secret
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(expected)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
