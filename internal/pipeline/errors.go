package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StatusNoConnection is the status reported when no HTTP response arrived.
const StatusNoConnection = 0

const maxErrorBody = 1 << 20

// Error is the structured failure of a request to the owning backend. It is
// returned to the caller after the pipeline has reacted to it.
type Error struct {
	Method  string
	URL     string
	Status  int
	Message string // server-provided message, if any
	Body    []byte
	Err     error // transport error when Status is StatusNoConnection
}

func (e *Error) Error() string {
	switch {
	case e.Status == StatusNoConnection && e.Err != nil:
		return fmt.Sprintf("%s %s: no connection: %v", e.Method, e.URL, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Message)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// StatusOf returns the status carried by a pipeline error, or -1.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return -1
}

// IsUnauthorized reports whether err is a 401 from the owning backend.
func IsUnauthorized(err error) bool { return StatusOf(err) == http.StatusUnauthorized }

// IsForbidden reports whether err is a 403 from the owning backend.
func IsForbidden(err error) bool { return StatusOf(err) == http.StatusForbidden }

// IsNoConnection reports whether err is a network-level failure.
func IsNoConnection(err error) bool { return StatusOf(err) == StatusNoConnection }

// ErrorFromResponse builds an Error from a failed exchange and closes the
// response body. resp may be nil when transportErr is set.
func ErrorFromResponse(req *http.Request, resp *http.Response, transportErr error) *Error {
	e := &Error{Method: req.Method, URL: req.URL.Redacted(), Err: transportErr}
	if resp == nil {
		e.Status = StatusNoConnection
		return e
	}
	e.Status = resp.StatusCode
	if resp.Body != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		e.Body = body
		e.Message = serverMessage(body)
	}
	return e
}

// serverMessage extracts the human message the backend put in an error body.
func serverMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, k := range []string{"message", "mensaje", "error"} {
		if s, ok := payload[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
