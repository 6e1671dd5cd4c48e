package apiclient

import (
	"errors"
	"fmt"
)

var ErrJobNotFound = errors.New("job not found")

// NetworkError means the transport layer never produced an HTTP response:
// unreachable host, DNS failure, timeout, or a browser-style CORS rejection
// when the client runs behind a restrictive proxy.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cannot reach %s: %v (check that the server is up and allows cross-origin requests)", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is any non-2xx HTTP response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// NotFoundError means the server does not know the referenced job id.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

func (e *NotFoundError) Unwrap() error { return ErrJobNotFound }

// ValidationError reports malformed user input before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
