package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/endpoint"
	"github.com/lightforgemedia/go-nanorpc/pkg/testutil"
	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
	"github.com/lightforgemedia/go-nanorpc/pkg/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, url string, opts ...ws.Option) *ws.Client {
	t.Helper()
	ep, err := endpoint.New(url, endpoint.WithHeader("X-Api-Key", "secret"), endpoint.WithHandshakeTimeout(2*time.Second))
	require.NoError(t, err)
	opts = append([]ws.Option{ws.WithLogger(testutil.DefaultLogger), ws.WithAckTimeout(time.Second)}, opts...)
	c := ws.NewClient(ep, opts...)
	t.Cleanup(func() { c.Shutdown() })
	return c
}

func connect(t *testing.T, c *ws.Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
}

// messages collects push bodies delivered to a handler.
type messages struct {
	mu   sync.Mutex
	list []ws.Message
}

func (m *messages) Handle(_ context.Context, msg ws.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = append(m.list, msg)
	return nil
}

func (m *messages) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.list)
}

func (m *messages) All() []ws.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ws.Message(nil), m.list...)
}

func TestConnect(t *testing.T) {
	t.Run("Sends endpoint headers on the handshake", func(t *testing.T) {
		node := testutil.NewMockWSNode(t, nil)
		c := newClient(t, node.WsURL)
		connect(t, c)

		assert.Equal(t, ws.StateConnected, c.State())
		assert.Equal(t, "secret", node.LastHeader().Get("X-Api-Key"))
	})

	t.Run("Is idempotent", func(t *testing.T) {
		node := testutil.NewMockWSNode(t, nil)
		c := newClient(t, node.WsURL)

		var wg sync.WaitGroup
		errs := make(chan error, 5)
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- c.Connect(context.Background())
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		require.NoError(t, c.Connect(context.Background()))
		assert.Equal(t, 1, node.Connections())
	})

	t.Run("Failure leaves the client disconnected", func(t *testing.T) {
		node := testutil.NewMockWSNode(t, nil)
		url := node.WsURL
		node.Close()

		c := newClient(t, url)
		err := c.Connect(context.Background())
		var connErr *wire.ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, url, connErr.URL)
		assert.Equal(t, ws.StateDisconnected, c.State())
	})

	t.Run("Reports the handshake status", func(t *testing.T) {
		rpcNode := testutil.NewMockRPCNode(t)
		c := newClient(t, "ws"+rpcNode.URL[4:])

		err := c.Connect(context.Background())
		var connErr *wire.ConnectError
		require.ErrorAs(t, err, &connErr)
		assert.NotEmpty(t, connErr.Status)
	})
}

func TestSendRequiresConnection(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL)

	err := c.Send(context.Background(), map[string]any{"action": "ping"})
	var sendErr *wire.SendError
	require.ErrorAs(t, err, &sendErr)
	assert.ErrorIs(t, err, wire.ErrNotConnected)

	err = c.Subscribe(context.Background(), ws.TopicVote, (&messages{}).Handle, nil, true)
	assert.ErrorIs(t, err, wire.ErrNotConnected)
	assert.Empty(t, c.Topics())
}

func TestSubscribeWithAck(t *testing.T) {
	node := testutil.NewMockWSNode(t, testutil.AckHandler)
	c := newClient(t, node.WsURL)
	connect(t, c)

	got := &messages{}
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicConfirmation, got.Handle, nil, true))

	frame, ok := node.NextFrame(time.Second)
	require.True(t, ok)
	assert.Equal(t, testutil.Frame{"action": "subscribe", "topic": "confirmation", "ack": true}, frame)

	require.NoError(t, node.Push(ws.TopicConfirmation, map[string]any{"hash": "H1", "account": "nano_1abc"}))
	require.NoError(t, testutil.WaitFor(t, "push delivered", time.Second, func() bool { return got.Len() == 1 }))

	msg := got.All()[0]
	assert.Equal(t, ws.TopicConfirmation, msg.Topic)
	assert.Equal(t, "1700000000000", msg.Time)
	assert.JSONEq(t, `{"hash":"H1","account":"nano_1abc"}`, string(msg.Body))
}

func TestSubscribeOptionsAndIDs(t *testing.T) {
	node := testutil.NewMockWSNode(t, testutil.AckHandler)
	c := newClient(t, node.WsURL, ws.WithAckIDs(true))
	connect(t, c)

	opts := ws.Filter(ws.ConfirmationFilter{Accounts: []string{"nano_1abc"}, IncludeElectionInfo: true})
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicConfirmation, (&messages{}).Handle, opts, true))

	frame, ok := node.NextFrame(time.Second)
	require.True(t, ok)
	assert.NotEmpty(t, frame.Text("id"))
	options, _ := frame["options"].(map[string]any)
	assert.Equal(t, []any{"nano_1abc"}, options["accounts"])
	assert.Equal(t, true, options["include_election_info"])
}

func TestAckTimeout(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL, ws.WithAckTimeout(100*time.Millisecond))
	connect(t, c)

	err := c.Subscribe(context.Background(), ws.TopicVote, (&messages{}).Handle, nil, true)
	var timeout *wire.TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 100*time.Millisecond, timeout.Wait)
	assert.Empty(t, c.Topics())
}

func TestCloseFailsPendingAck(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL, ws.WithAckTimeout(5*time.Second))
	connect(t, c)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Subscribe(context.Background(), ws.TopicVote, (&messages{}).Handle, nil, true)
	}()
	_, ok := node.NextFrame(time.Second)
	require.True(t, ok)

	require.NoError(t, c.Close())
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, wire.ErrConnectionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending subscribe was not failed by Close")
	}
	assert.Equal(t, ws.StateDisconnected, c.State())
	assert.Empty(t, c.Topics())
	assert.NoError(t, c.Close(), "Close is idempotent")
}

func TestUnsubscribe(t *testing.T) {
	node := testutil.NewMockWSNode(t, testutil.AckHandler)
	c := newClient(t, node.WsURL)
	connect(t, c)

	got := &messages{}
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicVote, got.Handle, nil, true))
	require.NoError(t, c.Unsubscribe(context.Background(), ws.TopicVote, true))

	node.NextFrame(time.Second)
	frame, ok := node.NextFrame(time.Second)
	require.True(t, ok)
	assert.Equal(t, testutil.Frame{"action": "unsubscribe", "topic": "vote", "ack": true}, frame)

	require.NoError(t, node.Push(ws.TopicVote, map[string]any{"account": "nano_1abc"}))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, got.Len())
}

func TestTopicsAreDispatchedIndependently(t *testing.T) {
	node := testutil.NewMockWSNode(t, testutil.AckHandler)
	c := newClient(t, node.WsURL)
	connect(t, c)

	votes, confirmations := &messages{}, &messages{}
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicVote, votes.Handle, nil, true))
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicConfirmation, confirmations.Handle, nil, false))
	assert.Equal(t, []string{ws.TopicConfirmation, ws.TopicVote}, c.Topics())

	require.NoError(t, node.Push(ws.TopicVote, map[string]any{"account": "A"}))
	require.NoError(t, node.Push(ws.TopicConfirmation, map[string]any{"hash": "B"}))
	require.NoError(t, node.Push("unknown_topic", map[string]any{}))

	require.NoError(t, testutil.WaitFor(t, "both topics delivered", time.Second, func() bool {
		return votes.Len() == 1 && confirmations.Len() == 1
	}))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, votes.Len())
	assert.Equal(t, 1, confirmations.Len())
}

func TestMalformedFramesAreSkipped(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL)
	connect(t, c)

	got := &messages{}
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicVote, got.Handle, nil, false))

	require.NoError(t, node.SendRaw("not json"))
	require.NoError(t, node.SendRaw(`["array"]`))
	require.NoError(t, node.SendRaw(`{"unrelated":true}`))
	require.NoError(t, node.Push(ws.TopicVote, map[string]any{"account": "A"}))

	require.NoError(t, testutil.WaitFor(t, "push after garbage", time.Second, func() bool { return got.Len() == 1 }))
	assert.Equal(t, ws.StateConnected, c.State())
}

func TestUnexpectedDrop(t *testing.T) {
	t.Run("Without reconnect tears down", func(t *testing.T) {
		node := testutil.NewMockWSNode(t, nil)
		c := newClient(t, node.WsURL)
		connect(t, c)
		require.NoError(t, c.Subscribe(context.Background(), ws.TopicVote, (&messages{}).Handle, nil, false))

		node.CloseCurrentConnection()
		require.NoError(t, testutil.WaitFor(t, "disconnected", 2*time.Second, func() bool {
			return c.State() == ws.StateDisconnected
		}))
		assert.Empty(t, c.Topics())

		connect(t, c)
		assert.Equal(t, 2, node.Connections())
	})

	t.Run("With reconnect resubscribes", func(t *testing.T) {
		node := testutil.NewMockWSNode(t, testutil.AckHandler)
		c := newClient(t, node.WsURL, ws.WithAutoReconnect(10, 10*time.Millisecond, 50*time.Millisecond))
		connect(t, c)

		got := &messages{}
		opts := ws.Filter(ws.VoteFilter{Representatives: []string{"nano_rep"}})
		require.NoError(t, c.Subscribe(context.Background(), ws.TopicVote, got.Handle, opts, true))
		_, ok := node.NextFrame(time.Second)
		require.True(t, ok)

		node.CloseCurrentConnection()

		frame, ok := node.NextFrame(3 * time.Second)
		require.True(t, ok, "subscription was not re-sent")
		assert.Equal(t, "subscribe", frame.Text("action"))
		assert.Equal(t, "vote", frame.Text("topic"))
		assert.False(t, frame.Bool("ack"))
		assert.NotNil(t, frame["options"])

		assert.Equal(t, ws.StateConnected, c.State())
		assert.Equal(t, 2, node.Connections())
		assert.Equal(t, []string{ws.TopicVote}, c.Topics())

		require.NoError(t, node.Push(ws.TopicVote, map[string]any{"account": "A"}))
		require.NoError(t, testutil.WaitFor(t, "delivery after reconnect", time.Second, func() bool { return got.Len() == 1 }))
	})

	t.Run("Close stops reconnecting", func(t *testing.T) {
		node := testutil.NewMockWSNode(t, nil)
		c := newClient(t, node.WsURL, ws.WithAutoReconnect(0, 200*time.Millisecond, time.Second))
		connect(t, c)

		node.CloseCurrentConnection()
		require.NoError(t, testutil.WaitFor(t, "connecting", 2*time.Second, func() bool {
			return c.State() == ws.StateConnecting
		}))
		require.NoError(t, c.Close())
		time.Sleep(400 * time.Millisecond)

		assert.Equal(t, ws.StateDisconnected, c.State())
		assert.Equal(t, 1, node.Connections())
	})
}

func TestStateChanges(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL)

	changes, stop := c.StateChanges()
	defer stop()

	connect(t, c)
	require.NoError(t, c.Close())

	var seen []ws.State
	timeout := time.After(2 * time.Second)
	for len(seen) < 4 {
		select {
		case s := <-changes:
			seen = append(seen, s)
		case <-timeout:
			t.Fatalf("saw only %v", seen)
		}
	}
	assert.Equal(t, []ws.State{ws.StateConnecting, ws.StateConnected, ws.StateClosing, ws.StateDisconnected}, seen)

	stop()
	require.NoError(t, testutil.WaitFor(t, "channel closed", time.Second, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}))
}

func TestTypedHandler(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL)
	connect(t, c)

	got := make(chan ws.Confirmation, 1)
	handler := ws.Typed(func(_ context.Context, conf ws.Confirmation) error {
		got <- conf
		return nil
	})
	require.NoError(t, c.Subscribe(context.Background(), ws.TopicConfirmation, handler, nil, false))

	// Missing hash fails validation and is only logged.
	require.NoError(t, node.Push(ws.TopicConfirmation, map[string]any{"account": "nano_1abc"}))
	require.NoError(t, node.Push(ws.TopicConfirmation, map[string]any{
		"account":           "nano_1abc",
		"amount":            "1000000000000000000000000000000",
		"hash":              "H1",
		"confirmation_type": "active_quorum",
	}))

	select {
	case conf := <-got:
		assert.Equal(t, "H1", conf.Hash)
		assert.Equal(t, "1000000000000000000000000000000", conf.Amount.String())
		assert.Nil(t, conf.Block)
	case <-time.After(time.Second):
		t.Fatal("typed handler not called")
	}
}

func TestTypedRejectsBadBody(t *testing.T) {
	h := ws.Typed(func(_ context.Context, v ws.StoppedElection) error { return nil })

	err := h(context.Background(), ws.Message{Topic: ws.TopicStoppedElection, Body: json.RawMessage(`[1]`)})
	assert.Error(t, err)

	err = h(context.Background(), ws.Message{Topic: ws.TopicStoppedElection, Body: json.RawMessage(`{}`)})
	assert.Error(t, err)

	sentinel := errors.New("handled")
	h = ws.Typed(func(_ context.Context, v ws.StoppedElection) error { return sentinel })
	err = h(context.Background(), ws.Message{Topic: ws.TopicStoppedElection, Body: json.RawMessage(`{"hash":"H"}`)})
	assert.ErrorIs(t, err, sentinel)
}

func TestShutdown(t *testing.T) {
	node := testutil.NewMockWSNode(t, nil)
	c := newClient(t, node.WsURL)
	connect(t, c)

	changes, stop := c.StateChanges()
	defer stop()

	require.NoError(t, c.Shutdown())
	assert.Equal(t, ws.StateDisconnected, c.State())
	require.NoError(t, testutil.WaitFor(t, "state channel closed", time.Second, func() bool {
		for {
			select {
			case _, ok := <-changes:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}))

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, wire.ErrConnectionClosed)

	late, stopLate := c.StateChanges()
	defer stopLate()
	_, ok := <-late
	assert.False(t, ok)
	assert.NoError(t, c.Shutdown(), "Shutdown is idempotent")
}
