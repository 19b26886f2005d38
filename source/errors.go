package source

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBodyTooLarge is returned when a tracker list exceeds the
	// configured maximum size.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrNoURL is returned for a descriptor without a URL.
	ErrNoURL = errors.New("source has no url")
)

// StatusError is returned when a source answers with a non-2xx status.
type StatusError struct {
	// StatusCode is the HTTP status returned by the source.
	StatusCode int
}

// Error returns a human readable description of the status.
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.StatusCode,
		http.StatusText(e.StatusCode))
}

// Transient reports whether a later attempt could succeed: server errors,
// request timeouts and rate limiting are transient, other statuses are not.
func (e *StatusError) Transient() bool {
	switch {
	case e.StatusCode >= 500:
		return true

	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests:

		return true

	default:
		return false
	}
}

// FetchError is the source level failure returned once a source has been
// given up on. It never aborts the run; the aggregator records it and moves
// on.
type FetchError struct {
	// URL is the source that failed.
	URL string

	// Attempts is the number of requests that were made.
	Attempts int

	// Err is the error of the last attempt.
	Err error
}

// Error returns a human readable description of the failure.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL,
		e.Attempts, e.Err)
}

// Unwrap returns the error of the last attempt.
func (e *FetchError) Unwrap() error {
	return e.Err
}
