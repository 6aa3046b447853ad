// Package nanorpc is a client for a Nano node: typed RPC calls over HTTP and topic
// subscriptions over WebSocket.
package nanorpc

import (
	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
	"github.com/lightforgemedia/go-nanorpc/pkg/rpc"
	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
	"github.com/lightforgemedia/go-nanorpc/pkg/ws"
)

// Re-export core types
type (
	Endpoint       = endpoint.Endpoint
	EndpointOption = endpoint.Option
	RPCClient      = rpc.Client
	RPCOption      = rpc.Option
	Params         = rpc.Params
	Raw            = rpc.Raw
	WSClient       = ws.Client
	WSOption       = ws.Option
	WSOptions      = ws.Options
	Handler        = ws.Handler
	Message        = ws.Message
	State          = ws.State
)

// Re-export error types
type (
	NetworkError    = wire.NetworkError
	HTTPStatusError = wire.HTTPStatusError
	RPCError        = wire.RPCError
	DecodeError     = wire.DecodeError
	EncodeError     = wire.EncodeError
	ConnectError    = wire.ConnectError
	SendError       = wire.SendError
	SubscribeError  = wire.SubscribeError
	TimeoutError    = wire.TimeoutError
)

// Re-export sentinel errors
var (
	ErrEmptyAction      = wire.ErrEmptyAction
	ErrEmptyTopic       = wire.ErrEmptyTopic
	ErrNilHandler       = wire.ErrNilHandler
	ErrNotConnected     = wire.ErrNotConnected
	ErrConnectionClosed = wire.ErrConnectionClosed
	ErrNotSubscribed    = wire.ErrNotSubscribed
	ErrResponseTooLarge = wire.ErrResponseTooLarge
	ErrWrongTransport   = endpoint.ErrWrongTransport
)

// NewRPCClient creates an HTTP RPC client for rawURL, http://localhost:7076 when empty.
func NewRPCClient(rawURL string, epOpts []EndpointOption, opts ...RPCOption) (*rpc.Client, error) {
	if rawURL == "" {
		rawURL = endpoint.DefaultRPCURL
	}
	ep, err := endpoint.NewHTTP(rawURL, epOpts...)
	if err != nil {
		return nil, err
	}
	return rpc.New(ep, opts...), nil
}

// NewWSClient creates a disconnected WebSocket client for rawURL, ws://localhost:7078 when
// empty. Call Connect before subscribing.
func NewWSClient(rawURL string, epOpts []EndpointOption, opts ...WSOption) (*ws.Client, error) {
	if rawURL == "" {
		rawURL = endpoint.DefaultWSURL
	}
	ep, err := endpoint.NewWebSocket(rawURL, epOpts...)
	if err != nil {
		return nil, err
	}
	return ws.NewClient(ep, opts...), nil
}

// DefaultWSOptions returns default options for the WebSocket client.
func DefaultWSOptions() ws.Options {
	return ws.DefaultOptions()
}
