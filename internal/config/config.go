// Package config loads the nanorpc CLI configuration from a YAML file, the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
	"github.com/lightforgemedia/go-nanorpc/pkg/rpc"
	"github.com/lightforgemedia/go-nanorpc/pkg/ws"
)

// Config is the full CLI configuration. Environment variables override the file.
type Config struct {
	RPC           RPCConfig     `yaml:"rpc"`
	WS            WSConfig      `yaml:"ws"`
	Log           LogConfig     `yaml:"log"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Tracing       TracingConfig `yaml:"tracing"`
	NATS          NATSConfig    `yaml:"nats"`
	Subscriptions string        `yaml:"subscriptions" env:"NANORPC_SUBSCRIPTIONS"`
}

type RPCConfig struct {
	URL            string            `yaml:"url" env:"NANORPC_RPC_URL" env-default:"http://localhost:7076" validate:"required,url"`
	Timeout        time.Duration     `yaml:"timeout" env:"NANORPC_RPC_TIMEOUT" env-default:"30s" validate:"gt=0"`
	APIKey         string            `yaml:"api_key" env:"NANORPC_API_KEY"`
	Headers        map[string]string `yaml:"headers"`
	RateLimit      float64           `yaml:"rate_limit" env:"NANORPC_RPC_RATE_LIMIT" validate:"gte=0"`
	RateBurst      int               `yaml:"rate_burst" env:"NANORPC_RPC_RATE_BURST" env-default:"1" validate:"gte=0"`
	CircuitBreaker bool              `yaml:"circuit_breaker" env:"NANORPC_RPC_CIRCUIT_BREAKER"`
	Breaker        rpc.BreakerConfig `yaml:"breaker" env-prefix:"NANORPC_RPC_BREAKER_"`
}

type WSConfig struct {
	URL               string        `yaml:"url" env:"NANORPC_WS_URL" env-default:"ws://localhost:7078" validate:"required,url"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" env:"NANORPC_WS_HANDSHAKE_TIMEOUT" env-default:"10s" validate:"gt=0"`
	AckTimeout        time.Duration `yaml:"ack_timeout" env:"NANORPC_WS_ACK_TIMEOUT" env-default:"5s" validate:"gt=0"`
	PingInterval      time.Duration `yaml:"ping_interval" env:"NANORPC_WS_PING_INTERVAL" env-default:"30s" validate:"gte=0"`
	Reconnect         bool          `yaml:"reconnect" env:"NANORPC_WS_RECONNECT" env-default:"true"`
	ReconnectAttempts int           `yaml:"reconnect_attempts" env:"NANORPC_WS_RECONNECT_ATTEMPTS" validate:"gte=0"`
	QueueSize         int           `yaml:"queue_size" env:"NANORPC_WS_QUEUE_SIZE" env-default:"256" validate:"gt=0"`
	AckIDs            bool          `yaml:"ack_ids" env:"NANORPC_WS_ACK_IDS"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"NANORPC_LOG_LEVEL" env-default:"info" validate:"oneof=debug info warn error"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"NANORPC_METRICS_ADDR" validate:"omitempty,hostname_port"`
}

type TracingConfig struct {
	Exporter    string `yaml:"exporter" env:"NANORPC_TRACING_EXPORTER" env-default:"none" validate:"oneof=none stdout"`
	ServiceName string `yaml:"service_name" env:"NANORPC_TRACING_SERVICE_NAME" env-default:"nanorpc"`
}

type NATSConfig struct {
	URL           string `yaml:"url" env:"NANORPC_NATS_URL" validate:"omitempty,url"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NANORPC_NATS_SUBJECT_PREFIX" env-default:"nano"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads dotenvPath (if it exists) into the environment, then path (if not empty) and the
// environment into a Config, and validates it.
func Load(path, dotenvPath string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
			}
			logger.Debug(".env file not found", "path", dotenvPath)
		} else {
			logger.Debug("loaded .env file", "path", dotenvPath)
		}
	}

	var cfg Config
	var err error
	if path != "" {
		logger.Debug("loading config file", "path", path)
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Usage describes the environment variables Config understands.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}

// SlogLevel maps Log.Level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// RPCEndpoint builds the HTTP endpoint, adding the API key as a bearer token.
func (c *Config) RPCEndpoint() (endpoint.Endpoint, error) {
	opts := []endpoint.Option{
		endpoint.WithRequestTimeout(c.RPC.Timeout),
		endpoint.WithHeaders(c.RPC.Headers),
	}
	if c.RPC.APIKey != "" {
		opts = append(opts, endpoint.WithBearerToken(c.RPC.APIKey))
	}
	return endpoint.NewHTTP(c.RPC.URL, opts...)
}

// WSEndpoint builds the WebSocket endpoint. The API key is sent on the handshake.
func (c *Config) WSEndpoint() (endpoint.Endpoint, error) {
	opts := []endpoint.Option{
		endpoint.WithHandshakeTimeout(c.WS.HandshakeTimeout),
		endpoint.WithHeaders(c.RPC.Headers),
	}
	if c.RPC.APIKey != "" {
		opts = append(opts, endpoint.WithBearerToken(c.RPC.APIKey))
	}
	return endpoint.NewWebSocket(c.WS.URL, opts...)
}

// RPCOptions returns the rpc client options described by the config.
func (c *Config) RPCOptions() []rpc.Option {
	opts := []rpc.Option{rpc.WithTimeout(c.RPC.Timeout)}
	if c.RPC.RateLimit > 0 {
		opts = append(opts, rpc.WithRateLimit(c.RPC.RateLimit, c.RPC.RateBurst))
	}
	if c.RPC.CircuitBreaker {
		opts = append(opts, rpc.WithCircuitBreaker(c.RPC.Breaker))
	}
	return opts
}

// WSOptions returns the WebSocket client options described by the config.
func (c *Config) WSOptions() []ws.Option {
	opts := []ws.Option{
		ws.WithAckTimeout(c.WS.AckTimeout),
		ws.WithPingInterval(c.WS.PingInterval),
		ws.WithQueueSize(c.WS.QueueSize),
		ws.WithAckIDs(c.WS.AckIDs),
	}
	if c.WS.Reconnect {
		opts = append(opts, ws.WithAutoReconnect(c.WS.ReconnectAttempts, 0, 0))
	}
	return opts
}
