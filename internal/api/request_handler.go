package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/api/shared"
	"github.com/phrazzld/imgbatch-api/internal/platform/logger"
	"github.com/phrazzld/imgbatch-api/internal/service"
)

// UploadField is the multipart form field holding the CSV payload.
const UploadField = "file"

// multipartOverhead allows for form framing around a payload of the
// maximum size.
const multipartOverhead = 64 << 10

// SubmitResponse is returned by a successful submission.
type SubmitResponse struct {
	RequestID uuid.UUID `json:"request_id"`
}

// RequestHandler handles submission and status HTTP requests
type RequestHandler struct {
	service         service.RequestService
	maxPayloadBytes int64
	logger          *slog.Logger
}

// NewRequestHandler creates a new RequestHandler
func NewRequestHandler(svc service.RequestService, maxPayloadBytes int64, logger *slog.Logger) *RequestHandler {
	if svc == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("request service cannot be nil for RequestHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = service.DefaultMaxPayloadBytes
	}

	return &RequestHandler{
		service:         svc,
		maxPayloadBytes: maxPayloadBytes,
		logger:          logger.With(slog.String("component", "request_handler")),
	}
}

// Submit handles POST /api/requests. The payload is either the multipart
// field "file" or, for any other content type, the raw request body.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	payload, err := h.readPayload(w, r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	id, err := h.service.Submit(r.Context(), payload)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Debug("request accepted", slog.String("request_id", id.String()))
	w.Header().Set("Location", "/api/requests/"+id.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitResponse{RequestID: id})
}

// GetStatus handles GET /api/requests/{id}.
func (h *RequestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	view, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, view)
}

func (h *RequestHandler) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return readLimited(r.Body, h.maxPayloadBytes)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxPayloadBytes+multipartOverhead)
	file, _, err := r.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, service.ErrPayloadTooLarge
		case errors.Is(err, http.ErrMissingFile):
			return nil, fmt.Errorf("%w: missing %q field", service.ErrInvalidPayload, UploadField)
		default:
			return nil, fmt.Errorf("%w: malformed multipart body", service.ErrInvalidPayload)
		}
	}
	defer func() { _ = file.Close() }()

	return readLimited(file, h.maxPayloadBytes)
}

// readLimited reads at most limit bytes, reporting ErrPayloadTooLarge
// when more are available.
func readLimited(src io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, service.ErrPayloadTooLarge
	}
	return data, nil
}
