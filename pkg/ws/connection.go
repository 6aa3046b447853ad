package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
)

// Router receives inbound frames and connection loss events from a Connection.
type Router interface {
	// Route is called on the read loop for every well-formed frame, in arrival order.
	Route(in wire.Inbound)
	// Disconnected is called after the socket is gone. keep is true when the connection is
	// about to reconnect and subscriptions should survive.
	Disconnected(cause error, keep bool)
	// Reconnected is called after an automatic reconnect succeeded.
	Reconnected(ctx context.Context)
}

// Connection owns one WebSocket to the node at a time.
type Connection struct {
	id       string
	url      string
	endpoint endpoint.Endpoint
	opts     Options
	router   Router
	states   *stateHub

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	connCancel context.CancelFunc
	loops      sync.WaitGroup
	settle     chan struct{} // closed when leaving StateConnecting
	lastErr    error
	dialCancel context.CancelFunc
	gen        uint64 // bumped by Close; stale dials and reconnect loops compare against it
	reconnect  context.CancelFunc
	disposed   bool // set by Shutdown; Connect refuses afterwards
}

// NewConnection creates a disconnected Connection. Call SetRouter before Connect.
func NewConnection(ep endpoint.Endpoint, opts ...Option) *Connection {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newConnection(ep, o)
}

func newConnection(ep endpoint.Endpoint, o Options) *Connection {
	return &Connection{
		id:       wire.GenerateID(),
		url:      ep.URL(),
		endpoint: ep,
		opts:     o.normalize(),
		states:   newStateHub(),
		state:    StateDisconnected,
	}
}

// SetRouter installs the receiver of inbound frames.
func (c *Connection) SetRouter(r Router) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.router = r
}

func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateChanges streams state transitions until stop is called.
func (c *Connection) StateChanges() (<-chan State, func()) {
	return c.states.watch()
}

// setStateLocked must be called with c.mu held.
func (c *Connection) setStateLocked(s State) {
	if c.state == s {
		return
	}
	if s == StateConnecting && c.settle == nil {
		c.settle = make(chan struct{})
	}
	if c.state == StateConnecting && s != StateConnecting && c.settle != nil {
		close(c.settle)
		c.settle = nil
	}
	c.state = s
	c.opts.Metrics.SetConnected(s == StateConnected)
	c.states.publish(s)
}

// Connect opens the socket. It returns nil at once when already connected, and waits for the
// in-flight attempt while connecting. Failures are *wire.ConnectError.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return &wire.ConnectError{URL: c.url, Err: wire.ErrConnectionClosed}
	}
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosing:
		c.mu.Unlock()
		return &wire.ConnectError{URL: c.url, Err: wire.ErrConnectionClosed}
	case StateConnecting:
		settle := c.settle
		c.mu.Unlock()
		select {
		case <-settle:
		case <-ctx.Done():
			return &wire.ConnectError{URL: c.url, Err: ctx.Err()}
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateConnected {
			return nil
		}
		if c.lastErr != nil {
			return c.lastErr
		}
		return &wire.ConnectError{URL: c.url, Err: wire.ErrConnectionClosed}
	}

	gen := c.gen
	dialCtx, cancel := context.WithCancel(ctx)
	c.dialCancel = cancel
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()
	defer cancel()

	conn, err := c.dial(dialCtx)
	return c.finishDial(gen, conn, err, false)
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, dialCancel := context.WithTimeout(ctx, c.endpoint.HandshakeTimeout())
	defer dialCancel()

	c.opts.Logger.Debug(fmt.Sprintf("Connection %s: dialing %s", c.id, c.url))
	conn, httpResp, err := websocket.Dial(dialCtx, c.url, &websocket.DialOptions{
		HTTPClient: c.opts.HTTPClient,
		HTTPHeader: c.endpoint.HTTPHeader(),
	})
	c.opts.Metrics.ConnectAttempt(err == nil)
	if err != nil {
		connErr := &wire.ConnectError{URL: c.url, Err: err}
		if httpResp != nil {
			connErr.Status = httpResp.Status
		}
		return nil, connErr
	}
	conn.SetReadLimit(c.opts.ReadLimit)
	return conn, nil
}

// finishDial installs conn, or records err. A Close that ran during the dial wins.
func (c *Connection) finishDial(gen uint64, conn *websocket.Conn, err error, reconnecting bool) error {
	c.mu.Lock()
	c.dialCancel = nil
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close(websocket.StatusNormalClosure, "connection closed during dial")
		}
		return &wire.ConnectError{URL: c.url, Err: wire.ErrConnectionClosed}
	}
	if err != nil {
		c.lastErr = err
		if !reconnecting {
			c.setStateLocked(StateDisconnected)
		}
		c.mu.Unlock()
		c.opts.Logger.Info(fmt.Sprintf("Connection %s: connect to %s failed: %v", c.id, c.url, err))
		return err
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCancel = loopCancel
	c.lastErr = nil
	c.loops.Add(1)
	go c.readLoop(loopCtx, conn)
	if c.opts.PingInterval > 0 {
		c.loops.Add(1)
		go c.pingLoop(loopCtx, conn)
	}
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.opts.Logger.Info(fmt.Sprintf("Connection %s: connected to %s", c.id, c.url))
	return nil
}

// Send marshals frame and writes it as one text message. It does not wait for a reply.
func (c *Connection) Send(ctx context.Context, frame any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected || conn == nil {
		return &wire.SendError{Err: wire.ErrNotConnected}
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return &wire.SendError{Err: err}
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return &wire.SendError{Err: err}
	}
	c.opts.Metrics.FrameSent()
	c.opts.Logger.Debug(fmt.Sprintf("Connection %s: sent %s", c.id, wire.Compact(data)))
	return nil
}

func (c *Connection) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.loops.Done()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.connectionLost(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleFrame(data []byte) {
	in, err := wire.ParseInbound(data)
	if err != nil {
		c.opts.Metrics.FrameMalformed()
		c.opts.Logger.Warn(fmt.Sprintf("Connection %s: skipping malformed frame: %v", c.id, err))
		return
	}
	c.opts.Metrics.FrameReceived(in.Kind.String())
	c.opts.Logger.Debug(fmt.Sprintf("Connection %s: received %s frame %s", c.id, in.Kind, wire.Compact(data)))

	c.mu.Lock()
	router := c.router
	c.mu.Unlock()
	if router != nil {
		router.Route(in)
	}
}

func (c *Connection) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer c.loops.Done()
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.opts.PingInterval/2)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.opts.Logger.Info(fmt.Sprintf("Connection %s: ping failed: %v", c.id, err))
				conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

// connectionLost handles a read failure. It is a no-op when conn was already retired by Close.
func (c *Connection) connectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.connCancel != nil {
		c.connCancel()
		c.connCancel = nil
	}
	keep := c.opts.AutoReconnect
	if keep {
		c.setStateLocked(StateConnecting)
	} else {
		c.setStateLocked(StateDisconnected)
	}
	gen := c.gen
	router := c.router
	var reconnectCtx context.Context
	if keep {
		reconnectCtx, c.reconnect = context.WithCancel(context.Background())
	}
	c.mu.Unlock()

	status := websocket.CloseStatus(err)
	c.opts.Logger.Info(fmt.Sprintf("Connection %s: connection lost: %v (status: %d)", c.id, err, status))
	conn.Close(websocket.StatusGoingAway, "read failed")

	if router != nil {
		router.Disconnected(fmt.Errorf("%w: %v", wire.ErrConnectionClosed, err), keep)
	}
	if keep {
		go c.reconnectLoop(reconnectCtx, gen)
	}
}

func (c *Connection) reconnectLoop(ctx context.Context, gen uint64) {
	c.opts.Logger.Info(fmt.Sprintf("Connection %s: starting reconnect loop (max_attempts: %d, delay_min: %v, delay_max: %v)",
		c.id, c.opts.ReconnectAttempts, c.opts.ReconnectDelayMin, c.opts.ReconnectDelayMax))

	attempts := 0
	currentDelay := c.opts.ReconnectDelayMin
	for {
		if c.opts.ReconnectAttempts > 0 && attempts >= c.opts.ReconnectAttempts {
			c.opts.Logger.Info(fmt.Sprintf("Connection %s: max reconnect attempts (%d) reached", c.id, c.opts.ReconnectAttempts))
			c.giveUp(gen)
			return
		}

		jitterRange := int64(currentDelay / 4)
		if jitterRange <= 0 {
			jitterRange = 1
		}
		sleep := currentDelay + time.Duration(rand.Int63n(jitterRange))
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		attempts++
		c.opts.Logger.Info(fmt.Sprintf("Connection %s: reconnect attempt %d", c.id, attempts))
		conn, err := c.dial(ctx)
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		if err = c.finishDial(gen, conn, err, true); err == nil {
			c.mu.Lock()
			router := c.router
			c.mu.Unlock()
			if router != nil {
				router.Reconnected(ctx)
			}
			return
		}
		if errors.Is(err, wire.ErrConnectionClosed) {
			return
		}

		currentDelay *= 2
		if currentDelay > c.opts.ReconnectDelayMax {
			currentDelay = c.opts.ReconnectDelayMax
		}
	}
}

// giveUp ends a failed reconnect loop with a full teardown.
func (c *Connection) giveUp(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.reconnect = nil
	c.setStateLocked(StateDisconnected)
	router := c.router
	cause := c.lastErr
	c.mu.Unlock()

	if cause == nil {
		cause = wire.ErrConnectionClosed
	}
	if router != nil {
		router.Disconnected(cause, false)
	}
}

// Close closes the socket with a normal closure, stops reconnecting and fails every pending
// ack. It is idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateDisconnected || c.state == StateClosing {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	if c.state == StateConnecting {
		c.lastErr = &wire.ConnectError{URL: c.url, Err: wire.ErrConnectionClosed}
	}
	c.setStateLocked(StateClosing)
	conn, loopCancel := c.conn, c.connCancel
	c.conn, c.connCancel = nil, nil
	if c.dialCancel != nil {
		c.dialCancel()
		c.dialCancel = nil
	}
	if c.reconnect != nil {
		c.reconnect()
		c.reconnect = nil
	}
	router := c.router
	c.mu.Unlock()

	c.opts.Logger.Info(fmt.Sprintf("Connection %s: closing", c.id))
	var closeErr error
	if conn != nil {
		closeErr = conn.Close(websocket.StatusNormalClosure, "client closing")
	}
	if loopCancel != nil {
		loopCancel()
	}
	c.loops.Wait()

	c.mu.Lock()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if router != nil {
		router.Disconnected(wire.ErrConnectionClosed, false)
	}
	if closeErr != nil && !isNormalClose(closeErr) {
		c.opts.Logger.Debug(fmt.Sprintf("Connection %s: close handshake: %v", c.id, closeErr))
	}
	return nil
}

// Shutdown closes the connection for good and releases the state fan-out. Connect fails
// afterwards and every StateChanges channel is closed.
func (c *Connection) Shutdown() error {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()

	err := c.Close()
	c.states.shutdown()
	return err
}

func isNormalClose(err error) bool {
	status := websocket.CloseStatus(err)
	return status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway
}
