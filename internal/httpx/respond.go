package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/skolaris/be-school-fees/internal/apperrors"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code       string                `json:"code"`
	Message    string                `json:"message"`
	Violations []apperrors.Violation `json:"violations,omitempty"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// Error maps an error to its HTTP status and writes a structured error body.
// Validation errors carry their full violation list.
func Error(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	status := apperrors.HTTPStatus(err)
	detail := errorDetail{
		Code:    string(apperrors.CodeOf(err)),
		Message: err.Error(),
	}

	var verr *apperrors.ValidationError
	if errors.As(err, &verr) {
		detail.Violations = verr.Violations
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		detail.Message = "internal server error"
	}

	JSON(w, status, errorBody{Error: detail})
}
