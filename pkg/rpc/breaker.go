package rpc

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// BreakerConfig configures the optional circuit breaker. Zero fields take defaults.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures" env:"MAX_FAILURES"`
	// Timeout is how long the circuit stays open before allowing a probe.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Interval clears failure counts while closed.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

func newBreaker(name string, cfg BreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[[]byte] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(fmt.Sprintf("Circuit breaker %s: %s -> %s", name, from, to))
		},
		IsSuccessful: countsAsSuccess,
	})
}

// countsAsSuccess reports success for everything except transport failures and 5xx answers.
// A node error or a bad payload means the node is reachable.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	var netErr *wire.NetworkError
	if errors.As(err, &netErr) {
		return false
	}
	var statusErr *wire.HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= http.StatusInternalServerError {
		return false
	}
	return true
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
