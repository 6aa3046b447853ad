package ws

import (
	"sync"

	"github.com/cskr/pubsub"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	stateTopic       = "state"
	stateBufferSize  = 16
	watcherQueueSize = 16
)

// stateHub fans state transitions out to observers. Slow observers miss transitions
// rather than stall the connection.
type stateHub struct {
	mu     sync.Mutex
	bus    *pubsub.PubSub
	closed bool
}

func newStateHub() *stateHub {
	return &stateHub{bus: pubsub.New(stateBufferSize)}
}

func (h *stateHub) publish(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.bus.Pub(s, stateTopic)
}

// watch returns a channel of transitions and a function that stops the watch and closes it.
// After shutdown the channel is closed at once.
func (h *stateHub) watch() (<-chan State, func()) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		out := make(chan State)
		close(out)
		return out, func() {}
	}
	raw := h.bus.Sub(stateTopic)
	h.mu.Unlock()

	out := make(chan State, watcherQueueSize)
	go func() {
		defer close(out)
		for v := range raw {
			s, ok := v.(State)
			if !ok {
				continue
			}
			select {
			case out <- s:
			default:
			}
		}
	}()
	var once sync.Once
	return out, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if !h.closed {
				h.bus.Unsub(raw, stateTopic)
			}
		})
	}
}

// shutdown stops the fan-out goroutine and closes every watch channel. Later publishes are
// dropped.
func (h *stateHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.bus.Shutdown()
}
