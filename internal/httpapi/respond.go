package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	goerrors "github.com/goliatone/go-errors"

	"github.com/sarathsp06/hookshot/internal/webhooks"
)

// maxBodyBytes caps management request bodies.
const maxBodyBytes = 1 << 20

// errorBody is the public error envelope. Source, location and stack never
// leave the process.
type errorBody struct {
	Category         goerrors.Category         `json:"category"`
	Code             int                       `json:"code"`
	TextCode         string                    `json:"text_code,omitempty"`
	Message          string                    `json:"message"`
	ValidationErrors goerrors.ValidationErrors `json:"validation_errors,omitempty"`
	RequestID        string                    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	gerr := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	status := statusFor(gerr)

	body := errorBody{
		Category:         gerr.Category,
		Code:             status,
		TextCode:         gerr.TextCode,
		Message:          gerr.Message,
		ValidationErrors: gerr.AllValidationErrors(),
		RequestID:        requestID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		body.Message = "internal server error"
		body.ValidationErrors = nil
		requestLogger(r.Context()).Errorw("Request failed", "error", err, "status", status)
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}

func statusFor(e *goerrors.Error) int {
	if e.Code >= 400 && e.Code < 600 {
		return e.Code
	}
	switch e.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a single JSON object and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return webhooks.BadInput("request body is required")
		case errors.As(err, &maxErr):
			return webhooks.BadInput("request body is too large")
		default:
			return webhooks.BadInput("invalid JSON body: " + err.Error())
		}
	}
	if dec.More() {
		return webhooks.BadInput("request body must contain a single JSON object")
	}
	return nil
}

// parsePage reads page and limit. Missing values take defaults; malformed
// values are rejected.
func parsePage(r *http.Request) (webhooks.PageRequest, error) {
	q := r.URL.Query()
	var p webhooks.PageRequest
	var fields []goerrors.FieldError

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields = append(fields, goerrors.FieldError{Field: "page", Message: "must be a positive integer", Value: v})
		}
		p.Page = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			fields = append(fields, goerrors.FieldError{Field: "limit", Message: "must be a positive integer", Value: v})
		}
		p.Limit = n
	}
	if len(fields) > 0 {
		return webhooks.PageRequest{}, webhooks.Validation(fields...)
	}
	return p.Normalize(), nil
}
