package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/imgbatch-api/internal/api/shared"
	"github.com/phrazzld/imgbatch-api/internal/domain"
)

// getPathUUID extracts and parses a UUID path parameter. A missing or
// malformed value yields an error wrapping domain.ErrInvalidID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if err := shared.ValidateVar(pathParam, "required,uuid"); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrInvalidID, paramName)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", domain.ErrInvalidID, paramName)
	}
	return id, nil
}
