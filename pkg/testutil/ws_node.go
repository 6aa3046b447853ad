package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame is a decoded frame received by MockWSNode.
type Frame map[string]any

func (f Frame) Text(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f Frame) Bool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

// MockWSNode represents a mock node WebSocket endpoint for testing clients.
// Every frame the client sends is recorded; Handler may return replies for it.
type MockWSNode struct {
	T       *testing.T
	Server  *httptest.Server
	WsURL   string
	Handler func(frame Frame, node *MockWSNode) []any

	mu          sync.Mutex
	conn        *websocket.Conn
	connCancel  context.CancelFunc
	connections int
	lastHeader  http.Header
	frames      chan Frame
}

// NewMockWSNode creates a mock WebSocket node. handler may be nil.
func NewMockWSNode(t *testing.T, handler func(frame Frame, node *MockWSNode) []any) *MockWSNode {
	t.Helper()
	n := &MockWSNode{T: t, Handler: handler, frames: make(chan Frame, 1024)}

	n.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connCtx, connCancel := context.WithCancel(context.Background())

		wsconn, err := websocket.Accept(w, r, nil)
		if err != nil {
			n.T.Logf("MockWSNode: Accept error: %v", err)
			connCancel()
			return
		}

		n.mu.Lock()
		n.conn = wsconn
		n.connCancel = connCancel
		n.connections++
		n.lastHeader = r.Header.Clone()
		n.mu.Unlock()

		go func() {
			defer connCancel()
			n.readLoop(connCtx, wsconn)
		}()

		<-connCtx.Done()
	}))

	n.WsURL = "ws" + n.Server.URL[4:]

	t.Cleanup(n.Close)
	return n
}

func (n *MockWSNode) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			n.T.Logf("MockWSNode: non-JSON frame %q", data)
			continue
		}
		select {
		case n.frames <- frame:
		default:
			n.T.Logf("MockWSNode: frame buffer full, dropping %v", frame)
		}
		if n.Handler == nil {
			continue
		}
		for _, reply := range n.Handler(frame, n) {
			if err := n.Send(reply); err != nil {
				n.T.Logf("MockWSNode: reply failed: %v", err)
			}
		}
	}
}

// AckHandler acknowledges every control frame that asked for an ack, echoing topic and id.
func AckHandler(frame Frame, _ *MockWSNode) []any {
	if !frame.Bool("ack") {
		return nil
	}
	ack := map[string]any{
		"ack":   frame.Text("action"),
		"time":  "1700000000000",
		"topic": frame.Text("topic"),
	}
	if id, ok := frame["id"]; ok {
		ack["id"] = id
	}
	return []any{ack}
}

// Send writes v as a JSON text frame to the current connection.
func (n *MockWSNode) Send(v any) error {
	conn := n.current()
	if conn == nil {
		return errors.New("mock node: no connection")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

// SendRaw writes data verbatim as a text frame.
func (n *MockWSNode) SendRaw(data string) error {
	conn := n.current()
	if conn == nil {
		return errors.New("mock node: no connection")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, []byte(data))
}

// Push sends a push message for topic.
func (n *MockWSNode) Push(topic string, message any) error {
	return n.Send(map[string]any{
		"topic":   topic,
		"time":    "1700000000000",
		"message": message,
	})
}

// NextFrame returns the next frame received from the client.
func (n *MockWSNode) NextFrame(timeout time.Duration) (Frame, bool) {
	select {
	case f := <-n.frames:
		return f, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Connections returns how many connections were accepted so far.
func (n *MockWSNode) Connections() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connections
}

// LastHeader returns the handshake headers of the latest connection.
func (n *MockWSNode) LastHeader() http.Header {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastHeader.Clone()
}

func (n *MockWSNode) current() *websocket.Conn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conn
}

// CloseCurrentConnection closes the current WebSocket connection from the node side.
func (n *MockWSNode) CloseCurrentConnection() {
	n.mu.Lock()
	conn, cancel := n.conn, n.connCancel
	n.conn, n.connCancel = nil, nil
	n.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "mock node closing connection")
	}
	if cancel != nil {
		cancel()
	}
}

// Close closes the current connection and the server.
func (n *MockWSNode) Close() {
	n.CloseCurrentConnection()
	if n.Server != nil {
		n.Server.Close()
	}
}
