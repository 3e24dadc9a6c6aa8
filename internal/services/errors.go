package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalService = errors.New("external service error")
	ErrValidation      = errors.New("validation error")
	ErrConfiguration   = errors.New("configuration error")
	ErrNotFound        = errors.New("not found")
	ErrTimeout         = errors.New("timeout")
	ErrTransient       = errors.New("transient failure")
	ErrEmptyResult     = errors.New("empty result")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorHint returns a short operator-facing next step for err.
func ErrorHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "check publisher and imagery settings in config.toml"
	case errors.Is(err, ErrValidation):
		return "inspect the candidate payload; the backend rejected it"
	case errors.Is(err, ErrEmptyResult):
		return "backend accepted the request but returned no reference"
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return "backend unavailable; the candidate will be retried after backoff"
	case errors.Is(err, ErrNotFound):
		return "referenced item no longer exists on the backend"
	default:
		return "check logs for details"
	}
}

// IsRetryable reports whether err looks like a temporary backend condition.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// MarkerForStatus maps an HTTP status from a backend to an error marker.
// It returns nil for 2xx and 3xx codes.
func MarkerForStatus(code int) error {
	switch {
	case code < 400:
		return nil
	case code == 401 || code == 403:
		return ErrConfiguration
	case code == 404 || code == 410:
		return ErrNotFound
	case code == 408 || code == 504:
		return ErrTimeout
	case code == 429 || code >= 500:
		return ErrTransient
	default:
		return ErrValidation
	}
}
