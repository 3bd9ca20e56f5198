package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrAuthentication        = errors.New("authentication failure")
	ErrRateLimited           = errors.New("rate limited")
	ErrBackendUnavailable    = errors.New("backend unavailable")
	ErrUnsupportedCapability = errors.New("unsupported capability")
)

// ProviderError carries one of the taxonomy kinds together with the backend cause.
type ProviderError struct {
	Provider   string
	Kind       error
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, ", retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindForStatus maps an HTTP status code onto the taxonomy.
func KindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrBackendUnavailable
	}
}

// StatusError builds a ProviderError for a non-2xx HTTP response.
func StatusError(provider string, status int, retryAfter time.Duration, body string) *ProviderError {
	var cause error
	if body = strings.TrimSpace(body); body != "" {
		cause = errors.New(body)
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       KindForStatus(status),
		StatusCode: status,
		RetryAfter: retryAfter,
		Err:        cause,
	}
}

// TransportError marks a network failure as BackendUnavailable.
func TransportError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ErrBackendUnavailable, Err: err}
}

// Unsupported reports a capability the backend does not have.
func Unsupported(provider, capability string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Kind:     ErrUnsupportedCapability,
		Err:      fmt.Errorf("%s is not supported", capability),
	}
}

// RetryAfter extracts the backend's suggested wait from err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) && pe.RetryAfter > 0 {
		return pe.RetryAfter, true
	}
	return 0, false
}

// ParseRetryAfter understands both delta-seconds and HTTP-date forms.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
