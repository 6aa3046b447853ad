package rpc

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the HTTP client used for calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithHeader adds a header to every request, on top of the endpoint headers.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithTimeout bounds a whole call. It overrides the endpoint request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxResponseSize caps the response body. Larger bodies fail with a DecodeError wrapping
// wire.ErrResponseTooLarge.
func WithMaxResponseSize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithRateLimit spaces calls to at most rps per second with the given burst.
// Callers block in Call until a token is available or ctx is done.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCircuitBreaker makes calls fail fast after repeated transport or 5xx failures.
func WithCircuitBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		c.breakerCfg = &cfg
	}
}

// WithTracer records one span per call.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}
