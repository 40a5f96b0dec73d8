package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phrazzld/imgbatch-api/internal/api/shared"
	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/service"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"empty payload", service.ErrInvalidPayload, http.StatusBadRequest, "Payload is empty"},
		{
			"wrapped empty payload",
			fmt.Errorf("%w: missing field", service.ErrInvalidPayload),
			http.StatusBadRequest,
			"Payload is empty",
		},
		{"payload too large", service.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge, "Payload too large"},
		{"service not found", service.ErrRequestNotFound, http.StatusNotFound, "Request not found"},
		{"store not found", store.ErrRequestNotFound, http.StatusNotFound, "Request not found"},
		{"invalid id", fmt.Errorf("%w: id", domain.ErrInvalidID), http.StatusBadRequest, "Invalid request ID"},
		{"validation", domain.ErrValidation, http.StatusBadRequest, "Validation error"},
		{
			"wrapped service failure",
			&service.ServiceError{Service: "request", Op: "submit", Err: errors.New("disk full")},
			http.StatusInternalServerError,
			"An unexpected error occurred",
		},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, MapErrorToStatusCode(tc.err))
			assert.Equal(t, tc.message, GetSafeErrorMessage(tc.err))
		})
	}

	assert.Equal(t, "An unexpected error occurred", GetSafeErrorMessage(nil))
}

func TestSanitizeValidationError(t *testing.T) {
	err := shared.ValidateRequest(&WebhookNotification{RequestID: "nope", Status: "COMPLETED"})
	assert.Equal(t, "Invalid request_id: invalid UUID format", SanitizeValidationError(err))

	err = shared.ValidateRequest(&WebhookNotification{
		RequestID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Status:    "DONE",
	})
	assert.Equal(t, "Invalid status: invalid value", SanitizeValidationError(err))

	err = shared.ValidateRequest(&WebhookNotification{})
	assert.Equal(t, "Invalid request_id: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("other")))
}
