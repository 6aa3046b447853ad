package rpc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"github.com/lightforgemedia/go-nanorpc/pkg/rpc"
	"github.com/lightforgemedia/go-nanorpc/pkg/testutil"
	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newClient(t *testing.T, node *testutil.MockRPCNode, opts ...rpc.Option) *rpc.Client {
	t.Helper()
	ep, err := endpoint.New(node.URL, endpoint.WithHeader("X-Api-Key", "secret"))
	require.NoError(t, err)
	opts = append([]rpc.Option{rpc.WithLogger(testutil.DefaultLogger)}, opts...)
	return rpc.New(ep, opts...)
}

func TestCallSendsOneRequest(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("account_balance", http.StatusOK, `{"balance":"10","pending":"0","receivable":"0"}`)
	c := newClient(t, node, rpc.WithHeader("X-Trace", "abc"))

	var out map[string]string
	err := c.Call(context.Background(), "account_balance", map[string]any{"account": "nano_1abc"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "10", out["balance"])

	reqs := node.Requests()
	require.Len(t, reqs, 1)
	assert.JSONEq(t, `{"action":"account_balance","account":"nano_1abc"}`, string(reqs[0].Raw))
	assert.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	assert.Equal(t, "secret", reqs[0].Header.Get("X-Api-Key"))
	assert.Equal(t, "abc", reqs[0].Header.Get("X-Trace"))
}

func TestAvailableSupply(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("available_supply", http.StatusOK, `{"available":"1000"}`)
	c := newClient(t, node)

	supply, err := c.AvailableSupply(context.Background())
	require.NoError(t, err)
	assert.True(t, supply.Equal(rpc.NewRaw(1000)), "got %s", supply)

	req, ok := node.LastRequest()
	require.True(t, ok)
	assert.JSONEq(t, `{"action":"available_supply"}`, string(req.Raw))
}

func TestCallErrors(t *testing.T) {
	t.Run("Node error with status 200", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		node.Respond("account_balance", http.StatusOK, `{"error":"Bad account number"}`)
		c := newClient(t, node)

		_, err := c.AccountBalance(context.Background(), "nano_bad")
		var rpcErr *wire.RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, "Bad account number", rpcErr.Message)
		assert.Equal(t, "account_balance", rpcErr.Action)
	})

	t.Run("Node error wins over HTTP status", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		node.Respond("block_count", http.StatusInternalServerError, `{"error":"Internal"}`)
		c := newClient(t, node)

		_, err := c.BlockCount(context.Background())
		var rpcErr *wire.RPCError
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, "Internal", rpcErr.Message)
	})

	t.Run("Non-2xx without node error", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		node.Respond("block_count", http.StatusBadGateway, `upstream down`)
		c := newClient(t, node)

		_, err := c.BlockCount(context.Background())
		var statusErr *wire.HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
		assert.Equal(t, "upstream down", string(statusErr.Body))
	})

	t.Run("Malformed body", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		node.Respond("block_count", http.StatusOK, `{"count":`)
		c := newClient(t, node)

		_, err := c.BlockCount(context.Background())
		var decodeErr *wire.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("Shape mismatch", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		node.Respond("available_supply", http.StatusOK, `{"available":"lots"}`)
		c := newClient(t, node)

		_, err := c.AvailableSupply(context.Background())
		var decodeErr *wire.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("Missing required field", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		node.Respond("work_generate", http.StatusOK, `{"difficulty":"ffff","multiplier":"1.0","hash":"H"}`)
		c := newClient(t, node)

		_, err := c.WorkGenerate(context.Background(), "H")
		var decodeErr *wire.DecodeError
		assert.ErrorAs(t, err, &decodeErr)
	})

	t.Run("Unreachable node", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		url := node.URL
		node.Server.Close()
		c := rpc.New(endpoint.MustNew(url), rpc.WithTimeout(time.Second))

		err := c.Call(context.Background(), "version", nil, nil)
		var netErr *wire.NetworkError
		require.ErrorAs(t, err, &netErr)
		assert.Equal(t, "network_error", rpc.Outcome(err))
	})

	t.Run("Empty action sends nothing", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		c := newClient(t, node)

		err := c.Call(context.Background(), "", nil, nil)
		assert.ErrorIs(t, err, wire.ErrEmptyAction)
		assert.Empty(t, node.Requests())
	})

	t.Run("Unserializable params send nothing", func(t *testing.T) {
		node := testutil.NewMockRPCNode(t)
		c := newClient(t, node)

		err := c.Call(context.Background(), "version", map[string]any{"f": func() {}}, nil)
		var encodeErr *wire.EncodeError
		assert.ErrorAs(t, err, &encodeErr)
		assert.Empty(t, node.Requests())
	})
}

func TestGenericCall(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("version", http.StatusOK, `{"rpc_version":"1","store_version":"21","protocol_version":"19","node_vendor":"Nano V25.1","store_vendor":"LMDB 0.9.25","network":"live","network_identifier":"991C","build_info":"x"}`)
	c := newClient(t, node)

	v, err := rpc.Call[rpc.VersionInfo](context.Background(), c, "version", nil)
	require.NoError(t, err)
	assert.Equal(t, rpc.Int(21), v.StoreVersion)
	assert.Equal(t, "Nano V25.1", v.NodeVendor)

	raw, err := rpc.Call[json.RawMessage](context.Background(), c, "version", nil)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "network_identifier")
}

func TestCallHonoursContext(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Handle("block_count", func(testutil.RPCRequest) testutil.RPCResponse {
		time.Sleep(500 * time.Millisecond)
		return testutil.RPCResponse{Body: `{"count":"1","unchecked":"0"}`}
	})
	c := newClient(t, node)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.BlockCount(ctx)
	var netErr *wire.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCircuitBreaker(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("block_count", http.StatusServiceUnavailable, `busy`)
	node.Respond("account_balance", http.StatusOK, `{"error":"Bad account number"}`)
	c := newClient(t, node, rpc.WithCircuitBreaker(rpc.BreakerConfig{MaxFailures: 2, Timeout: time.Minute}))

	for i := 0; i < 3; i++ {
		_, err := c.AccountBalance(context.Background(), "nano_bad")
		var rpcErr *wire.RPCError
		require.ErrorAs(t, err, &rpcErr, "node errors never open the breaker")
	}

	for i := 0; i < 2; i++ {
		_, err := c.BlockCount(context.Background())
		var statusErr *wire.HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
	}
	sent := len(node.Requests())

	_, err := c.BlockCount(context.Background())
	var netErr *wire.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, node.Requests(), sent, "an open breaker fails without sending")
}

func TestRateLimit(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("uptime", http.StatusOK, `{"seconds":"6000"}`)
	c := newClient(t, node, rpc.WithRateLimit(1, 1))

	up, err := c.Uptime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rpc.Int(6000), up)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = c.Uptime(ctx)
	var netErr *wire.NetworkError
	assert.ErrorAs(t, err, &netErr)
	assert.Len(t, node.Requests(), 1)
}

func TestMetricsAndTracing(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("block_count", http.StatusOK, `{"count":"5","unchecked":"1","cemented":"5"}`)
	m := metrics.New(prometheus.NewRegistry())
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	c := newClient(t, node, rpc.WithMetrics(m), rpc.WithTracer(tp.Tracer("test")))

	count, err := c.BlockCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rpc.Int(5), count.Cemented)

	_, err = c.AccountKey(context.Background(), "nano_1")
	require.Error(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.RPCCalls.WithLabelValues("block_count", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RPCCalls.WithLabelValues("account_key", "rpc_error")))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "rpc.block_count", spans[0].Name())
	assert.Equal(t, "rpc.account_key", spans[1].Name())
}

func TestOversizedResponse(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("available_supply", http.StatusOK, `{"available":"`+strings.Repeat("9", 64)+`"}`)
	node.Respond("block_count", http.StatusBadGateway, strings.Repeat("x", 64))
	node.Respond("uptime", http.StatusOK, `{"seconds":"1"}`)
	c := newClient(t, node, rpc.WithMaxResponseSize(32))

	_, err := c.AvailableSupply(context.Background())
	var decErr *wire.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.ErrorIs(t, err, wire.ErrResponseTooLarge)
	assert.Len(t, decErr.Body, 32)

	_, err = c.BlockCount(context.Background())
	var statusErr *wire.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	_, err = c.Uptime(context.Background())
	assert.NoError(t, err)
}

func TestCallLogging(t *testing.T) {
	node := testutil.NewMockRPCNode(t)
	node.Respond("uptime", http.StatusOK, `{"seconds":"1"}`)
	node.Respond("block_count", http.StatusServiceUnavailable, `busy`)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newClient(t, node, rpc.WithLogger(logger), rpc.WithCircuitBreaker(rpc.BreakerConfig{MaxFailures: 1}))

	_, err := c.Uptime(context.Background())
	require.NoError(t, err)
	_, err = c.BlockCount(context.Background())
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, "RPC uptime: POST "+node.URL)
	assert.Contains(t, out, "RPC uptime: response (status: 200)")
	assert.Contains(t, out, "RPC block_count: call failed")
	assert.Contains(t, out, "closed -> open")
}
