package tutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agritutor/agritutor/internal/tutor/driver"
)

var (
	// ErrEmptyRequest is returned when a request has neither text nor attachments.
	ErrEmptyRequest = errors.New("prompt or attachment is required")

	// ErrNotConfigured is returned when no provider registry is available.
	ErrNotConfigured = errors.New("tutor provider registry not configured")
)

// Provider error codes.
const (
	CodeProviderAuth        = "TUTOR_PROVIDER_AUTH"
	CodeProviderRateLimit   = "TUTOR_PROVIDER_RATE_LIMIT"
	CodeProviderUnavailable = "TUTOR_PROVIDER_UNAVAILABLE"
	CodeProviderBadRequest  = "TUTOR_PROVIDER_BAD_REQUEST"
	CodeProviderTimeout     = "TUTOR_PROVIDER_TIMEOUT"
	CodeProviderError       = "TUTOR_PROVIDER_ERROR"
)

// IncompleteError reports declared template variables that were left blank.
type IncompleteError struct {
	TemplateID string
	Missing    []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("template %s is missing values for %s", e.TemplateID, strings.Join(e.Missing, ", "))
}

// Error is a classified provider failure.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Provider string `json:"provider,omitempty"`
	Err      error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline.
func (e *Error) Timeout() bool {
	return e.Code == CodeProviderTimeout
}

// mapProviderError classifies a driver failure by status code.
func mapProviderError(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeProviderTimeout, Message: "provider request timed out", Provider: provider, Err: err}
	}

	var perr *driver.ProviderError
	if errors.As(err, &perr) && perr != nil {
		status := perr.StatusCode
		details := strings.TrimSpace(perr.Message)
		out := &Error{Provider: provider, Details: details, Err: err}
		switch {
		case status == 401 || status == 403:
			out.Code, out.Message = CodeProviderAuth, "provider authentication failed"
		case status == 429:
			out.Code, out.Message = CodeProviderRateLimit, "provider rate limited"
		case status >= 500 && status <= 599:
			out.Code, out.Message = CodeProviderUnavailable, "provider unavailable"
		case status >= 400 && status <= 499:
			out.Code, out.Message = CodeProviderBadRequest, "provider rejected request"
		default:
			out.Code, out.Message = CodeProviderError, "provider request failed"
		}
		return out
	}

	return &Error{Code: CodeProviderError, Message: "provider request failed", Details: err.Error(), Provider: provider, Err: err}
}
