// pkg/wire/errors.go
package wire

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the HTTP and WebSocket transports.
var (
	ErrEmptyAction      = errors.New("nanorpc: action must not be empty")
	ErrEmptyTopic       = errors.New("nanorpc: topic must not be empty")
	ErrNilHandler       = errors.New("nanorpc: handler must not be nil")
	ErrNotConnected     = errors.New("nanorpc: not connected")
	ErrConnectionClosed = errors.New("nanorpc: connection closed")
	ErrNotSubscribed    = errors.New("nanorpc: topic is not subscribed")
	ErrResponseTooLarge = errors.New("nanorpc: response body too large")
)

// NetworkError is a transport-level failure: refused connection, DNS, timeout, broken body.
type NetworkError struct {
	Op  string // "post", "read", "dial", ...
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("nanorpc: network error during %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-2xx response that did not carry a node error message.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("nanorpc: unexpected HTTP status %s", e.Status)
}

// RPCError is an application-level error reported by the node in the "error" field.
// Message is kept verbatim.
type RPCError struct {
	Action  string
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("nanorpc: %s: %s", e.Action, e.Message)
}

// DecodeError means the response was malformed or did not match the expected shape.
type DecodeError struct {
	Action string
	Body   []byte
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("nanorpc: decoding %s response: %v", e.Action, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError means the request parameters could not be serialized. Nothing was sent.
type EncodeError struct {
	Action string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("nanorpc: encoding %s request: %v", e.Action, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ConnectError is returned when a WebSocket connection could not be established.
type ConnectError struct {
	URL    string
	Status string // handshake HTTP status, if the server answered
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("nanorpc: connect %s failed (status: %s): %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("nanorpc: connect %s failed: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError is returned when a frame could not be written to the socket.
// Err is ErrNotConnected when no connection was available.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("nanorpc: send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SubscribeError wraps any failure of a subscribe, update or unsubscribe request.
type SubscribeError struct {
	Topic  string
	Action string
	Err    error
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("nanorpc: %s %q: %v", e.Action, e.Topic, e.Err)
}

func (e *SubscribeError) Unwrap() error { return e.Err }

// TimeoutError is returned when an acknowledgement did not arrive in time.
type TimeoutError struct {
	Topic  string
	Action string
	Wait   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("nanorpc: no %s ack for topic %q within %v", e.Action, e.Topic, e.Wait)
}

// Timeout reports true so TimeoutError satisfies the net.Error style check.
func (e *TimeoutError) Timeout() bool { return true }
