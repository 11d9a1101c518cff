package dining

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized means the server rejected the session; it has already
	// been torn down and the user must log in again.
	ErrUnauthorized = errors.New("session rejected by server")
	ErrMalformed    = errors.New("malformed response")
)

// APIError is a non-2xx response or a response whose success flag is false.
type APIError struct {
	Status  int
	Text    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Text
	if msg == "" {
		msg = e.Message
	}
	if msg == "" {
		return fmt.Sprintf("dining api error: status %d", e.Status)
	}
	return fmt.Sprintf("dining api error: status %d: %s", e.Status, msg)
}

// RequestError ties a failed call to the X-Request-ID it was sent with.
type RequestError struct {
	RequestID string
	Err       error
}

func (e *RequestError) Error() string { return e.Err.Error() }

func (e *RequestError) Unwrap() error { return e.Err }

// RequestID returns the request id carried by err, or "" when the call
// failed before a request was built.
func RequestID(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.RequestID
	}
	return ""
}

// Notice returns the text to show the user for a failed call: the server's
// text field, then its message field, then the error itself.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnauthorized) {
		return "Your session has ended. Please log in again."
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Text != "" {
			return apiErr.Text
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return err.Error()
}
