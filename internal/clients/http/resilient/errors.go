package resilient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrCircuitOpen indicates the upstream breaker rejected the call without touching the network.
var ErrCircuitOpen = errors.New("upstream unavailable: circuit open")

// StatusError is returned when an upstream answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	msg := fmt.Sprintf("%s %s: upstream responded %s", e.Method, e.Path, status)
	if body := strings.TrimSpace(string(e.Body)); body != "" {
		if len(body) > 256 {
			body = body[:256]
		}
		msg += ": " + body
	}
	return msg
}

// IsNotFound reports whether err carries an upstream 404 response.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// IsRetryable classifies transient failures: refused or reset connections,
// timeouts and 5xx responses. Everything else, 4xx included, is permanent.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
