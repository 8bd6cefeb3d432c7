package httputil

import (
	"net/http"
	"time"

	qerrors "github.com/matzehuels/quickmod/pkg/errors"
)

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 30 * time.Second

// NewClient creates an HTTP client with the given request timeout.
// A zero timeout uses [DefaultTimeout].
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// CheckStatus maps an HTTP status code to an error:
//   - 2xx: nil
//   - 404 and 410: NOT_FOUND
//   - 429 and 5xx: retryable FETCH_FAILED
//   - anything else: FETCH_FAILED
func CheckStatus(url string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound || code == http.StatusGone:
		return qerrors.New(qerrors.ErrCodeNotFound, "%s: status %d", url, code)
	case code == http.StatusTooManyRequests || code >= 500:
		return Retryable(qerrors.New(qerrors.ErrCodeFetchFailed, "%s: status %d", url, code))
	default:
		return qerrors.New(qerrors.ErrCodeFetchFailed, "%s: status %d", url, code)
	}
}
