// Package ws is a WebSocket client for the node's topic subscriptions.
package ws

import (
	"context"

	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
)

// Client pairs a Connection with the Registry that routes its frames.
type Client struct {
	conn     *Connection
	registry *Registry
}

// NewClient creates a disconnected client for a ws:// or wss:// endpoint.
func NewClient(ep endpoint.Endpoint, opts ...Option) *Client {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return NewClientWithOptions(ep, o)
}

// NewClientWithOptions creates a client with the given options.
func NewClientWithOptions(ep endpoint.Endpoint, opts Options) *Client {
	opts = opts.normalize()
	conn := newConnection(ep, opts)
	registry := newRegistry(conn, opts)
	conn.SetRouter(registry)
	return &Client{conn: conn, registry: registry}
}

func (c *Client) ID() string { return c.conn.ID() }

// Connect opens the socket. See Connection.Connect.
func (c *Client) Connect(ctx context.Context) error { return c.conn.Connect(ctx) }

// Close closes the socket, fails pending acks and removes every subscription.
func (c *Client) Close() error { return c.conn.Close() }

// Shutdown closes the client for good. It cannot be connected again.
func (c *Client) Shutdown() error { return c.conn.Shutdown() }

func (c *Client) State() State { return c.conn.State() }

// StateChanges streams state transitions until stop is called.
func (c *Client) StateChanges() (<-chan State, func()) { return c.conn.StateChanges() }

// Send writes a raw frame.
func (c *Client) Send(ctx context.Context, frame any) error { return c.conn.Send(ctx, frame) }

// Subscribe registers handler for topic. See Registry.Subscribe.
func (c *Client) Subscribe(ctx context.Context, topic string, handler Handler, options map[string]any, ack bool) error {
	return c.registry.Subscribe(ctx, topic, handler, options, ack)
}

// Update changes the options of a subscribed topic.
func (c *Client) Update(ctx context.Context, topic string, options map[string]any, ack bool) error {
	return c.registry.Update(ctx, topic, options, ack)
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(ctx context.Context, topic string, ack bool) error {
	return c.registry.Unsubscribe(ctx, topic, ack)
}

// Topics returns the subscribed topics in lexical order.
func (c *Client) Topics() []string { return c.registry.Topics() }
