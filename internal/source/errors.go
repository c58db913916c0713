package source

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrDisallowedByRobots is returned when robots.txt forbids the request
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

	// ErrUnknownKind is returned for a source kind with no implementation
	ErrUnknownKind = errors.New("unknown source kind")

	// ErrBodyTooLarge is returned when a response exceeds the byte limit
	ErrBodyTooLarge = errors.New("response body exceeds limit")

	// ErrMalformedBody is returned when a response does not have the expected shape
	ErrMalformedBody = errors.New("malformed response body")
)

// UpstreamFetchError wraps every failure to obtain records from upstream:
// network errors, non-2xx statuses, robots refusals and malformed bodies.
// The core never retries past the fetcher's own attempts; callers decide
// whether to try again.
type UpstreamFetchError struct {
	Source     string // Configured source name, if known
	URL        string // Request URL
	StatusCode int    // HTTP status, 0 when no response was received
	Err        error
}

func (e *UpstreamFetchError) Error() string {
	prefix := "upstream fetch"
	if e.Source != "" {
		prefix = fmt.Sprintf("upstream fetch %s", e.Source)
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: status %d: %v", prefix, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.URL, e.Err)
}

func (e *UpstreamFetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed
func (e *UpstreamFetchError) Retryable() bool {
	if e.StatusCode != 0 {
		return retryableStatus(e.StatusCode)
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr)
}

// IsRetryable reports whether err is a transient upstream failure
func IsRetryable(err error) bool {
	var fe *UpstreamFetchError
	if errors.As(err, &fe) {
		return fe.Retryable()
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// withSource tags a fetch error with the source name
func withSource(err error, name string) error {
	var fe *UpstreamFetchError
	if errors.As(err, &fe) && fe.Source == "" {
		fe.Source = name
	}
	return err
}
