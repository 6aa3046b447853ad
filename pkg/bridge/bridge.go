// Package bridge forwards node push messages to NATS subjects.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"github.com/lightforgemedia/go-nanorpc/pkg/ws"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is prepended to the topic name to form the subject.
const DefaultSubjectPrefix = "nano"

// Publisher publishes one message to a subject. *nats.Conn implements it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Options contains configuration options for the bridge.
type Options struct {
	// URL is the NATS server URL, nats.DefaultURL when empty.
	URL string

	// SubjectPrefix defaults to DefaultSubjectPrefix. Subjects are "<prefix>.<topic>".
	SubjectPrefix string

	// ConnectionOptions are additional options for the NATS connection.
	ConnectionOptions []nats.Option

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Bridge publishes the raw push frame of every message it is handed.
type Bridge struct {
	pub     Publisher
	conn    *nats.Conn // nil when constructed with New
	prefix  string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	published map[string]uint64
}

// Dial connects to NATS and returns a bridge that owns the connection.
func Dial(opts Options) (*Bridge, error) {
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	connOpts := append([]nats.Option{nats.Name("nanorpc-bridge")}, opts.ConnectionOptions...)
	conn, err := nats.Connect(opts.URL, connOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	b := New(conn, opts)
	b.conn = conn
	return b, nil
}

// New creates a bridge on an existing publisher. URL and ConnectionOptions are ignored.
func New(pub Publisher, opts Options) *Bridge {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Bridge{
		pub:       pub,
		prefix:    strings.TrimSuffix(opts.SubjectPrefix, "."),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		published: make(map[string]uint64),
	}
}

// Subject returns the subject messages of topic are published to.
func (b *Bridge) Subject(topic string) string {
	return b.prefix + "." + topic
}

// Forward publishes msg.Raw, or msg.Body when the frame is unavailable.
func (b *Bridge) Forward(ctx context.Context, msg ws.Message) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if msg.Topic == "" {
		return errors.New("message has no topic")
	}

	data := []byte(msg.Raw)
	if len(data) == 0 {
		data = []byte(msg.Body)
	}
	subject := b.Subject(msg.Topic)
	err := b.pub.Publish(subject, data)
	b.metrics.Published(msg.Topic, err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	b.mu.Lock()
	b.published[msg.Topic]++
	b.mu.Unlock()
	b.logger.Debug(fmt.Sprintf("Bridge: published %d bytes to %s", len(data), subject))
	return nil
}

// Handler wraps next so every message is forwarded before next sees it. next may be nil.
// A publish failure is logged and does not stop next.
func (b *Bridge) Handler(next ws.Handler) ws.Handler {
	return func(ctx context.Context, msg ws.Message) error {
		if err := b.Forward(ctx, msg); err != nil {
			b.logger.Warn(fmt.Sprintf("Bridge: %v", err))
		}
		if next == nil {
			return nil
		}
		return next(ctx, msg)
	}
}

// Published returns the number of messages forwarded per topic.
func (b *Bridge) Published() map[string]uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]uint64, len(b.published))
	for k, v := range b.published {
		out[k] = v
	}
	return out
}

// Close drains and closes the NATS connection if the bridge owns one.
func (b *Bridge) Close() error {
	if b.conn == nil {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return err
	}
	return nil
}
