package cluster

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Error categories used for logging and metrics labels.
const (
	categoryAuthentication = "authentication"
	categoryPermission     = "permission"
	categoryNotFound       = "not_found"
	categoryServer         = "server"
	categoryAPI            = "api"
	categoryTimeout        = "timeout"
	categoryNetwork        = "network"
)

// apiError is a non-2xx response from the raw HTTP transport.
type apiError struct {
	status int
	reason string
}

func (e *apiError) Error() string {
	if e.reason == "" {
		return fmt.Sprintf("api status %d", e.status)
	}

	return fmt.Sprintf("api status %d: %s", e.status, e.reason)
}

func (e *apiError) StatusCode() int {
	return e.status
}

// IsNotFound allows consumers to detect missing resources without
// importing this package.
func (e *apiError) IsNotFound() bool {
	return e.status == http.StatusNotFound
}

// classify maps a transport error to a metric/log category. It understands
// both raw HTTP status errors and typed client-go errors.
func classify(err error) string {
	var httpErr *apiError
	if errors.As(err, &httpErr) {
		return classifyStatus(httpErr.status)
	}

	var statusErr *apierrors.StatusError
	if errors.As(err, &statusErr) {
		return classifyStatus(int(statusErr.ErrStatus.Code))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return categoryTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return categoryTimeout
		}

		return categoryNetwork
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return categoryNetwork
	}

	return categoryAPI
}

func classifyStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return categoryAuthentication
	case status == http.StatusForbidden:
		return categoryPermission
	case status == http.StatusNotFound:
		return categoryNotFound
	case status >= http.StatusInternalServerError:
		return categoryServer
	default:
		return categoryAPI
	}
}
