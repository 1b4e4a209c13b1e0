package x402pay

import (
	"net/http"
	"time"

	"github.com/vitwit/x402pay/logger"
	"github.com/vitwit/x402pay/metrics"
)

type Option func(*Flow)

func WithLogger(l logger.Logger) Option {
	return func(f *Flow) {
		f.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Flow) {
		f.metrics = r
	}
}

// WithTimeout bounds a whole attempt, confirmation polling included.
func WithTimeout(t time.Duration) Option {
	return func(f *Flow) {
		f.timeout = t
	}
}

func WithStatusFunc(fn StatusFunc) Option {
	return func(f *Flow) {
		f.status = fn
	}
}

// WithProceedOnNetworkError lets Run pay on the wallet's current network when
// switching to the configured one fails.
func WithProceedOnNetworkError(proceed bool) Option {
	return func(f *Flow) {
		f.proceedOnNetworkError = proceed
	}
}

// WithHTTPClient sets the client used to fetch gated resources.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = c
	}
}
