package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/imgbatch-api/internal/api/shared"
	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
)

// WebhookNotification is the body accepted by the webhook receiver.
type WebhookNotification struct {
	RequestID string `json:"request_id" validate:"required,uuid"`
	Status    string `json:"status"     validate:"required,oneof=PENDING PROCESSING COMPLETED FAILED"`
}

// WebhookHandler receives completion notifications and logs them. It lets a
// deployment point its notifier at itself.
type WebhookHandler struct {
	logger *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{logger: logger.With(slog.String("component", "webhook_handler"))}
}

// Receive handles POST /api/webhook.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var n WebhookNotification
	if err := shared.DecodeJSON(w, r, &n); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&n); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	log.Info("webhook received",
		slog.String("request_id", n.RequestID),
		slog.String("status", n.Status))
	w.WriteHeader(http.StatusOK)
}
