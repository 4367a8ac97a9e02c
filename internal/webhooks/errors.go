package webhooks

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes carried by service errors.
const (
	TextCodeValidation = "VALIDATION_FAILED"
	TextCodeBadInput   = "BAD_INPUT"
	TextCodeNotFound   = "NOT_FOUND"
	TextCodeInternal   = "INTERNAL_ERROR"
)

// NotFound is returned for missing subscriptions and for subscriptions owned
// by another tenant alike.
func NotFound(resource string) error {
	return goerrors.New(resource+" not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(TextCodeNotFound)
}

// Validation builds a field-level validation error.
func Validation(fields ...goerrors.FieldError) error {
	return goerrors.NewValidation("webhooks: validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeValidation).
		WithSeverity(goerrors.SeverityWarning)
}

// BadInput is returned for request bodies that cannot be interpreted at all.
func BadInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(TextCodeBadInput)
}

// Internal wraps an infrastructure failure. err must not be nil.
func Internal(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(TextCodeInternal)
}

// IsNotFound reports whether err is a not-found service error.
func IsNotFound(err error) bool {
	return goerrors.IsCategory(err, goerrors.CategoryNotFound)
}

// IsValidation reports whether err is a validation or bad input error.
func IsValidation(err error) bool {
	return goerrors.IsCategory(err, goerrors.CategoryValidation) ||
		goerrors.IsCategory(err, goerrors.CategoryBadInput)
}
