package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"kharcha/internal/core"
	"kharcha/internal/log"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// identity returns the authenticated user for the request. Identity is
// taken from the X-User-ID header, the gateway in front of this service
// is responsible for filling it in.
func identity(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

// parsePagination extracts page and limit query parameters with
// sane defaults and an upper bound on limit.
func parsePagination(r *http.Request) (page, limit int) {
	page = 1
	limit = defaultPageSize

	if v := strings.TrimSpace(r.URL.Query().Get("page")); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return page, limit
}

// parseMonthParam extracts a month query parameter, defaulting to the
// current month. A malformed value is reported, not silently replaced.
func parseMonthParam(r *http.Request) (core.MonthKey, error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.CurrentMonthKey(), nil
	}
	return core.ParseMonthKey(v)
}

// decimal is a money field that accepts either a JSON string ("810.50")
// or a bare JSON number (810.5).
type decimal string

func (d *decimal) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = decimal(s)
		return nil
	}
	*d = decimal(b)
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondServiceError maps domain errors onto HTTP status codes.
// Unrecognized errors are logged and hidden behind a generic 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrEmptyUserID):
		respondError(w, http.StatusUnauthorized, "missing user identity")
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidMonth),
		errors.Is(err, core.ErrInvalidBudget):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
