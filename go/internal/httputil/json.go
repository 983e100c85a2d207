package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/domainhooks/hooks/go/internal/apperrors"
	"github.com/domainhooks/hooks/go/internal/models"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads the request body into v. Malformed bodies are validation errors.
func DecodeJSON(r *http.Request, v any) error {
	defer DrainBody(r)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return apperrors.Validation("request body is required", nil)
		}
		return apperrors.Validation("invalid json", err.Error())
	}
	return nil
}

// DrainBody fully reads and closes request bodies.
func DrainBody(r *http.Request) {
	if r.Body != nil {
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	}
}

// ParsePage reads page and per_page query parameters.
func ParsePage(r *http.Request) (models.Page, error) {
	q := r.URL.Query()
	page := models.Page{Page: 1, PerPage: models.DefaultPerPage}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, apperrors.Validation("invalid page", fmt.Sprintf("page must be a positive integer, got %q", v))
		}
		page.Page = n
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > models.MaxPerPage {
			return page, apperrors.Validation("invalid per_page",
				fmt.Sprintf("per_page must be between 1 and %d, got %q", models.MaxPerPage, v))
		}
		page.PerPage = n
	}
	return page, nil
}
