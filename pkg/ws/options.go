package ws

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
)

const (
	defaultWriteTimeout      = 5 * time.Second
	defaultAckTimeout        = 5 * time.Second
	defaultQueueSize         = 256
	defaultReadLimit         = 1 << 20 // 1MB
	defaultReconnectDelayMin = 1 * time.Second
	defaultReconnectDelayMax = 30 * time.Second
)

// Options contains configuration values for NewClientWithOptions.
type Options struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	HTTPClient *http.Client

	WriteTimeout time.Duration
	ReadLimit    int64
	// PingInterval enables client pings; 0 disables them.
	PingInterval time.Duration

	AutoReconnect bool
	// ReconnectAttempts of 0 retries forever.
	ReconnectAttempts int
	ReconnectDelayMin time.Duration
	ReconnectDelayMax time.Duration

	AckTimeout time.Duration
	// QueueSize bounds the undelivered messages held per subscription.
	QueueSize int
	// AckIDs adds a correlation id to control frames that request an ack.
	AckIDs bool
}

// DefaultOptions returns an Options struct populated with library defaults.
func DefaultOptions() Options {
	return Options{
		Logger:            slog.Default(),
		HTTPClient:        http.DefaultClient,
		WriteTimeout:      defaultWriteTimeout,
		ReadLimit:         defaultReadLimit,
		ReconnectDelayMin: defaultReconnectDelayMin,
		ReconnectDelayMax: defaultReconnectDelayMax,
		AckTimeout:        defaultAckTimeout,
		QueueSize:         defaultQueueSize,
	}
}

// normalize replaces zero and inconsistent values with defaults.
func (o Options) normalize() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = defaultReadLimit
	}
	if o.PingInterval < 0 {
		o.PingInterval = 0
	}
	if o.ReconnectDelayMin <= 0 {
		o.ReconnectDelayMin = defaultReconnectDelayMin
	}
	if o.ReconnectDelayMax <= 0 {
		o.ReconnectDelayMax = defaultReconnectDelayMax
	}
	if o.ReconnectDelayMax < o.ReconnectDelayMin {
		o.ReconnectDelayMax = o.ReconnectDelayMin
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = defaultAckTimeout
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	return o
}

// Option configures the client.
type Option func(*Options)

// WithLogger sets a custom logging implementation.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithMetrics records connection, frame and subscription metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithHTTPClient sets the HTTP client used for the opening handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Options) {
		if hc != nil {
			o.HTTPClient = hc
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.WriteTimeout = timeout
		}
	}
}

// WithReadLimit sets the maximum inbound frame size in bytes.
func WithReadLimit(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.ReadLimit = n
		}
	}
}

// WithPingInterval sets the client-initiated ping interval.
// interval <= 0 disables client pings. A failed ping drops the connection.
func WithPingInterval(interval time.Duration) Option {
	return func(o *Options) {
		o.PingInterval = interval
	}
}

// WithAutoReconnect enables automatic reconnection after an unexpected drop.
// maxAttempts = 0 means infinite attempts.
func WithAutoReconnect(maxAttempts int, minDelay, maxDelay time.Duration) Option {
	return func(o *Options) {
		o.AutoReconnect = true
		o.ReconnectAttempts = maxAttempts
		if minDelay > 0 {
			o.ReconnectDelayMin = minDelay
		}
		if maxDelay > 0 && maxDelay >= minDelay {
			o.ReconnectDelayMax = maxDelay
		} else if maxDelay < minDelay {
			o.ReconnectDelayMax = minDelay
		}
	}
}

// WithAckTimeout bounds the wait for an acknowledgement.
func WithAckTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.AckTimeout = timeout
		}
	}
}

// WithQueueSize bounds the per-subscription delivery queue.
func WithQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.QueueSize = n
		}
	}
}

// WithAckIDs adds an "id" to control frames that request an ack, for nodes that echo it back.
func WithAckIDs(enabled bool) Option {
	return func(o *Options) {
		o.AckIDs = enabled
	}
}
