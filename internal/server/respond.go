package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/koustreak/tabula/internal/errs"
	"github.com/koustreak/tabula/internal/logger"
	"github.com/koustreak/tabula/internal/validation"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ValidationResponse is the body of a 422 answer.
type ValidationResponse struct {
	Errors validation.ErrorMap `json:"errors"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondError maps err's kind to a status code, logs it and writes an
// ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	reqID := middleware.GetReqID(r.Context())

	fields := map[string]any{
		"path":   r.URL.Path,
		"method": r.Method,
		"status": status,
		"code":   kind.String(),
	}
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.ErrorWith("request failed", err, fields)
	} else {
		log.DebugWith("request rejected: "+err.Error(), fields)
	}

	msg := err.Error()
	var e *errs.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	respondJSON(w, status, ErrorResponse{Error: msg, Code: kind.String(), RequestID: reqID})
}

func respondInvalid(w http.ResponseWriter, problems validation.ErrorMap) {
	respondJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Errors: problems})
}

func statusFor(kind errs.ErrKind) int {
	switch kind {
	case errs.ErrKindNotFound:
		return http.StatusNotFound
	case errs.ErrKindInvalidInput:
		return http.StatusBadRequest
	case errs.ErrKindConflict:
		return http.StatusConflict
	case errs.ErrKindPermissionDenied:
		return http.StatusForbidden
	case errs.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case errs.ErrKindConnectionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
