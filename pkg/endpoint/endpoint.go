// Package endpoint holds the connection target of a node transport: URL, extra headers and
// timeouts. An Endpoint is immutable once built.
package endpoint

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultRPCURL = "http://localhost:7076"
	DefaultWSURL  = "ws://localhost:7078"

	defaultRequestTimeout   = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
)

// ErrWrongTransport is returned when a URL scheme does not belong to the transport asked for.
var ErrWrongTransport = errors.New("endpoint: url scheme does not match the transport")

// Endpoint is a transport target. Build it with New; the zero value is not usable.
type Endpoint struct {
	url              *url.URL
	headers          map[string]string
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
}

// Option configures an Endpoint under construction.
type Option func(*Endpoint)

// WithHeader adds a header sent with every HTTP request and on the WebSocket handshake.
func WithHeader(key, value string) Option {
	return func(e *Endpoint) {
		e.headers[http.CanonicalHeaderKey(key)] = value
	}
}

// WithHeaders adds every entry of headers.
func WithHeaders(headers map[string]string) Option {
	return func(e *Endpoint) {
		for k, v := range headers {
			e.headers[http.CanonicalHeaderKey(k)] = v
		}
	}
}

// WithBearerToken sets the Authorization header.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithRequestTimeout bounds a whole HTTP call.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Endpoint) {
		if d > 0 {
			e.requestTimeout = d
		}
	}
}

// WithHandshakeTimeout bounds the WebSocket opening handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(e *Endpoint) {
		if d > 0 {
			e.handshakeTimeout = d
		}
	}
}

// New parses rawURL and applies opts. The scheme must be http, https, ws or wss.
func New(rawURL string, opts ...Option) (Endpoint, error) {
	if rawURL == "" {
		return Endpoint{}, errors.New("endpoint: url must not be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: invalid url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return Endpoint{}, fmt.Errorf("endpoint: unsupported scheme %q in %q", u.Scheme, rawURL)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint: missing host in %q", rawURL)
	}

	e := Endpoint{
		url:              u,
		headers:          make(map[string]string),
		requestTimeout:   defaultRequestTimeout,
		handshakeTimeout: defaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// NewHTTP is New restricted to http and https URLs.
func NewHTTP(rawURL string, opts ...Option) (Endpoint, error) {
	e, err := New(rawURL, opts...)
	if err != nil {
		return Endpoint{}, err
	}
	if e.IsWebSocket() {
		return Endpoint{}, fmt.Errorf("%w: %q is not an http or https url", ErrWrongTransport, rawURL)
	}
	return e, nil
}

// NewWebSocket is New restricted to ws and wss URLs.
func NewWebSocket(rawURL string, opts ...Option) (Endpoint, error) {
	e, err := New(rawURL, opts...)
	if err != nil {
		return Endpoint{}, err
	}
	if !e.IsWebSocket() {
		return Endpoint{}, fmt.Errorf("%w: %q is not a ws or wss url", ErrWrongTransport, rawURL)
	}
	return e, nil
}

// MustNew is New for static configuration; it panics on error.
func MustNew(rawURL string, opts ...Option) Endpoint {
	e, err := New(rawURL, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// URL returns the endpoint URL as a string.
func (e Endpoint) URL() string {
	if e.url == nil {
		return ""
	}
	return e.url.String()
}

// IsWebSocket reports whether the scheme is ws or wss.
func (e Endpoint) IsWebSocket() bool {
	return e.url != nil && (e.url.Scheme == "ws" || e.url.Scheme == "wss")
}

// Headers returns a copy of the configured headers.
func (e Endpoint) Headers() map[string]string {
	out := make(map[string]string, len(e.headers))
	for k, v := range e.headers {
		out[k] = v
	}
	return out
}

// HTTPHeader returns the headers as a fresh http.Header.
func (e Endpoint) HTTPHeader() http.Header {
	h := make(http.Header, len(e.headers))
	for k, v := range e.headers {
		h.Set(k, v)
	}
	return h
}

func (e Endpoint) RequestTimeout() time.Duration   { return e.requestTimeout }
func (e Endpoint) HandshakeTimeout() time.Duration { return e.handshakeTimeout }

// String hides header values, which often carry credentials.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s (%d headers)", e.URL(), len(e.headers))
}
