package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/domainhooks/hooks/go/internal/apperrors"
)

// Problem is an RFC 7807 style error body.
type Problem struct {
	Title  string `json:"title"`
	Status int    `json:"status"`
	Code   string `json:"code,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

func WriteProblem(w http.ResponseWriter, status int, title string, code apperrors.Code, detail any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{
		Title:  title,
		Status: status,
		Code:   string(code),
		Detail: detail,
	})
}

// WriteError maps err onto a problem response. Errors without an app code are
// logged and reported as internal errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal("internal error", err)
	}

	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		WriteProblem(w, status, appErr.Message, appErr.Code, nil)
		return
	}
	WriteProblem(w, status, appErr.Message, appErr.Code, appErr.Details)
}
