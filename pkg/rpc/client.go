// Package rpc is the HTTP transport of the node client: a dispatcher that turns an action and
// its parameters into one JSON POST, and typed wrappers for the node's actions.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const defaultMaxResponseBytes = 64 << 20

// Client dispatches calls to one node endpoint. It keeps no per-call state and is safe for
// concurrent use.
type Client struct {
	url        string
	endpoint   endpoint.Endpoint
	httpClient *http.Client
	headers    http.Header
	timeout    time.Duration
	logger     *slog.Logger
	validate   *validator.Validate

	limiter    *rate.Limiter
	breakerCfg *BreakerConfig
	breaker    *gobreaker.CircuitBreaker[[]byte]
	tracer     trace.Tracer
	metrics    *metrics.Metrics
	maxBody    int64
}

// New creates a Client for ep.
func New(ep endpoint.Endpoint, opts ...Option) *Client {
	c := &Client{
		url:        ep.URL(),
		endpoint:   ep,
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
		timeout:    ep.RequestTimeout(),
		logger:     slog.Default(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		maxBody:    defaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breakerCfg != nil {
		c.breaker = newBreaker("rpc:"+c.url, *c.breakerCfg, c.logger)
	}
	return c
}

// Endpoint returns the endpoint the client was built with.
func (c *Client) Endpoint() endpoint.Endpoint { return c.endpoint }

// Call sends {"action": action, ...params} and decodes the success payload into out.
// out may be nil to discard the payload. Errors are one of the wire error types:
// NetworkError, RPCError, HTTPStatusError, DecodeError or EncodeError.
func (c *Client) Call(ctx context.Context, action string, params any, out any) error {
	body, err := wire.NewRequest(action, params)
	if err != nil {
		return err
	}

	start := time.Now()
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "rpc."+action,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("rpc.action", action)),
		)
		defer func() {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}()
	}

	err = c.call(ctx, action, body, out)
	c.metrics.ObserveCall(action, Outcome(err), time.Since(start))
	if err != nil {
		c.logger.Debug(fmt.Sprintf("RPC %s: call failed: %v", action, err))
	}
	return err
}

// Call is the generic form of Client.Call.
func Call[T any](ctx context.Context, c *Client, action string, params any) (T, error) {
	var out T
	err := c.Call(ctx, action, params, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, action string, body []byte, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &wire.NetworkError{Op: "rate limit", URL: c.url, Err: err}
		}
	}

	var (
		result []byte
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(func() ([]byte, error) {
			return c.roundTrip(ctx, action, body)
		})
		if isBreakerRejection(err) {
			return &wire.NetworkError{Op: "post", URL: c.url, Err: err}
		}
	} else {
		result, err = c.roundTrip(ctx, action, body)
	}
	if err != nil {
		return err
	}
	return c.decode(action, result, out)
}

// roundTrip performs the POST and classifies the answer. It returns the success payload.
func (c *Client) roundTrip(ctx context.Context, action string, body []byte) ([]byte, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, &wire.NetworkError{Op: "build request", URL: c.url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.endpoint.Headers() {
		req.Header.Set(k, v)
	}
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}

	c.logger.Debug(fmt.Sprintf("RPC %s: POST %s %s", action, c.url, wire.Compact(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &wire.NetworkError{Op: "post", URL: c.url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &wire.NetworkError{Op: "read", URL: c.url, Err: err}
	}
	if int64(len(data)) > c.maxBody {
		data = data[:c.maxBody]
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &wire.HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
		}
		return nil, &wire.DecodeError{Action: action, Body: data, Err: fmt.Errorf("%w (limit %d bytes)", wire.ErrResponseTooLarge, c.maxBody)}
	}

	c.logger.Debug(fmt.Sprintf("RPC %s: response (status: %d) %s", action, resp.StatusCode, wire.Compact(data)))

	parsed, perr := wire.ParseResponse(data)
	if perr == nil && parsed.HasError {
		return nil, &wire.RPCError{Action: action, Message: parsed.ErrorMessage}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &wire.HTTPStatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}
	if perr != nil {
		return nil, &wire.DecodeError{Action: action, Body: data, Err: perr}
	}
	return parsed.Result, nil
}

func (c *Client) decode(action string, result []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &wire.DecodeError{Action: action, Body: result, Err: err}
	}
	if err := c.check(out); err != nil {
		return &wire.DecodeError{Action: action, Body: result, Err: err}
	}
	return nil
}

// check runs struct validation on v, or on each element when v is a map or slice of structs.
func (c *Client) check(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		return c.validate.Struct(rv.Interface())
	case reflect.Map:
		if rv.Type().Elem().Kind() != reflect.Struct {
			return nil
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := c.validate.Struct(iter.Value().Interface()); err != nil {
				return fmt.Errorf("%v: %w", iter.Key().Interface(), err)
			}
		}
	case reflect.Slice:
		if rv.Type().Elem().Kind() != reflect.Struct {
			return nil
		}
		for i := 0; i < rv.Len(); i++ {
			if err := c.validate.Struct(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	return nil
}

// Outcome labels an error returned by Call for metrics and logs.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		netErr    *wire.NetworkError
		rpcErr    *wire.RPCError
		statusErr *wire.HTTPStatusError
		decodeErr *wire.DecodeError
		encodeErr *wire.EncodeError
	)
	switch {
	case errors.As(err, &netErr):
		return "network_error"
	case errors.As(err, &rpcErr):
		return "rpc_error"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &encodeErr):
		return "encode_error"
	default:
		return "other"
	}
}
