package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/phrazzld/imgbatch-api/internal/api/shared"
	"github.com/phrazzld/imgbatch-api/internal/domain"
	"github.com/phrazzld/imgbatch-api/internal/service"
	"github.com/phrazzld/imgbatch-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, service.ErrRequestNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"
	case errors.Is(err, service.ErrInvalidPayload):
		return "Payload is empty"
	case errors.Is(err, service.ErrPayloadTooLarge):
		return "Payload too large"
	case errors.Is(err, service.ErrRequestNotFound),
		errors.Is(err, store.ErrNotFound):
		return "Request not found"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid request ID"
	case errors.Is(err, domain.ErrValidation):
		return "Validation error"
	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the sanitized response for err and logs the
// redacted details.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}

// SanitizeValidationError turns a validator error into a short message naming
// the first offending field.
func SanitizeValidationError(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
	}
	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid":
		return "invalid UUID format"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
