package remote

import (
	"errors"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// NetworkError covers transport-level failure: DNS, connection refused,
// TLS, timeouts. The request may never have reached the remote.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RemoteError covers any non-2xx HTTP status, carrying the status code and
// body for caller inspection.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error during %s: HTTP %d: %s", e.Op, e.Status, e.Body)
}

// AsRemoteError is a convenience wrapper around errors.As.
func AsRemoteError(err error, target **RemoteError) bool {
	return errors.As(err, target)
}

// classify maps a go-github call failure into the error taxonomy.
func classify(op string, resp *github.Response, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return &RemoteError{
			Op:     op,
			Status: ghErr.Response.StatusCode,
			Body:   ghErr.Message,
		}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) && rateErr.Response != nil {
		return &RemoteError{
			Op:     op,
			Status: rateErr.Response.StatusCode,
			Body:   rateErr.Message,
		}
	}

	if resp != nil && resp.StatusCode >= 300 {
		return &RemoteError{Op: op, Status: resp.StatusCode, Body: err.Error()}
	}

	return &NetworkError{Op: op, Err: err}
}
