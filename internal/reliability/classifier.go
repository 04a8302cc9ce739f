package reliability

import (
	"context"
	"errors"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusCode maps an upstream HTTP status to a low-cardinality label for
// provider error metrics. Zero means no response was received.
func StatusCode(code int) string {
	switch {
	case code == 0:
		return "transport"
	case code == 401 || code == 403:
		return "unauthorized"
	case code == 429:
		return "rate_limited"
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	default:
		return "unexpected_status"
	}
}

// IsContextError reports errors caused by the caller giving up rather than
// by the upstream.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
