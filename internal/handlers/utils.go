package handlers

import (
	"buildtrack-backend/internal/auth"
	"buildtrack-backend/internal/models"
	"buildtrack-backend/internal/services"
	"buildtrack-backend/pkg/httputil"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// principalFromRequest returns the principal set by the JWT middleware.
func principalFromRequest(r *http.Request) (auth.Principal, bool) {
	return auth.PrincipalFromContext(r.Context())
}

// uuidParam parses a UUID URL parameter.
func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

// decodeJSON reads a bounded JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func respondValidation(w http.ResponseWriter, message string) {
	httputil.RespondErrorKind(w, http.StatusBadRequest, string(services.KindValidation), message)
}

func respondUnauthenticated(w http.ResponseWriter) {
	httputil.RespondErrorKind(w, http.StatusUnauthorized, string(services.KindUnauthenticated), "Unauthorized")
}

// respondServiceError maps a service error onto an HTTP status and body.
func respondServiceError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	kind := services.KindOf(err)
	resp := models.ErrorResponse{
		Error: services.PublicMessage(err),
		Kind:  string(kind),
	}

	status := http.StatusInternalServerError
	switch kind {
	case services.KindValidation:
		status = http.StatusBadRequest
	case services.KindUnauthenticated:
		status = http.StatusUnauthorized
	case services.KindForbidden:
		status = http.StatusForbidden
		resp.RequiredRoles = services.RequiredRoles(err)
	case services.KindNotFound:
		status = http.StatusNotFound
	case services.KindTaskLinkFailed:
		status = http.StatusBadGateway
		var linkErr *services.TaskLinkError
		if errors.As(err, &linkErr) {
			resp.Message = linkErr.Message
		}
		logger.Error().Err(err).Msg("task update failed after message was saved")
	default:
		logger.Error().Err(err).Msg("request failed")
	}

	httputil.RespondJSON(w, status, resp)
}
