package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lightforgemedia/go-nanorpc/pkg/metrics"
	"github.com/lightforgemedia/go-nanorpc/pkg/wire"
)

// Control frame actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUpdate      = "update"
	ActionUnsubscribe = "unsubscribe"
)

// Sender writes one outbound frame. *Connection implements it.
type Sender interface {
	Send(ctx context.Context, frame any) error
}

// Registry tracks topic subscriptions and correlates acknowledgements.
// It is the Router of a Connection.
type Registry struct {
	sender     Sender
	logger     *slog.Logger
	metrics    *metrics.Metrics
	ackTimeout time.Duration
	queueSize  int
	ackIDs     bool

	mu      sync.Mutex
	subs    map[string]*subscription
	pending []*pendingAck // oldest first
	locks   map[string]*topicLock
	seq     uint64
}

// NewRegistry creates a Registry that writes control frames through sender.
func NewRegistry(sender Sender, opts ...Option) *Registry {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newRegistry(sender, o.normalize())
}

func newRegistry(sender Sender, o Options) *Registry {
	return &Registry{
		sender:     sender,
		logger:     o.Logger,
		metrics:    o.Metrics,
		ackTimeout: o.AckTimeout,
		queueSize:  o.QueueSize,
		ackIDs:     o.AckIDs,
		subs:       make(map[string]*subscription),
		locks:      make(map[string]*topicLock),
	}
}

type pendingAck struct {
	topic  string
	action string
	id     string
	sub    *subscription // set for subscribe acks
	done   chan error    // buffered; receives exactly one result
}

type topicLock struct {
	mu   sync.Mutex
	refs int
}

// lockTopic serializes operations on one topic and returns the unlock function.
func (r *Registry) lockTopic(topic string) func() {
	r.mu.Lock()
	l, ok := r.locks[topic]
	if !ok {
		l = &topicLock{}
		r.locks[topic] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, topic)
		}
		r.mu.Unlock()
	}
}

// Subscribe registers handler for topic, replacing any existing subscription, and sends the
// subscribe frame. options are merged into the top level of the frame.
// With ack it waits for the node's acknowledgement; on any failure the previous
// subscription, if any, is restored.
func (r *Registry) Subscribe(ctx context.Context, topic string, handler Handler, options map[string]any, ack bool) error {
	if topic == "" {
		return &wire.SubscribeError{Topic: topic, Action: ActionSubscribe, Err: wire.ErrEmptyTopic}
	}
	if handler == nil {
		return &wire.SubscribeError{Topic: topic, Action: ActionSubscribe, Err: wire.ErrNilHandler}
	}

	unlock := r.lockTopic(topic)
	defer unlock()

	sub := newSubscription(topic, handler, options, ack, r.queueSize, r.logger)
	sub.active = !ack

	r.mu.Lock()
	prev := r.subs[topic]
	r.subs[topic] = sub
	var p *pendingAck
	if ack {
		p = r.addPendingLocked(topic, ActionSubscribe, sub)
	}
	r.metrics.SetSubscriptions(len(r.subs))
	r.mu.Unlock()

	if err := r.request(ctx, ActionSubscribe, topic, options, p); err != nil {
		r.mu.Lock()
		if r.subs[topic] == sub {
			if prev != nil {
				r.subs[topic] = prev
				prev = nil
			} else {
				delete(r.subs, topic)
			}
		}
		r.metrics.SetSubscriptions(len(r.subs))
		r.mu.Unlock()

		sub.stop()
		if prev != nil {
			prev.stop()
		}
		r.logger.Info(fmt.Sprintf("Registry: subscribe %q failed: %v", topic, err))
		return &wire.SubscribeError{Topic: topic, Action: ActionSubscribe, Err: err}
	}

	if prev != nil {
		prev.stop()
	}
	r.logger.Debug(fmt.Sprintf("Registry: subscribed to %q (ack: %t)", topic, ack))
	return nil
}

// Update changes the options of an existing subscription. The handler is kept.
func (r *Registry) Update(ctx context.Context, topic string, options map[string]any, ack bool) error {
	if topic == "" {
		return &wire.SubscribeError{Topic: topic, Action: ActionUpdate, Err: wire.ErrEmptyTopic}
	}

	unlock := r.lockTopic(topic)
	defer unlock()

	r.mu.Lock()
	sub, ok := r.subs[topic]
	if !ok {
		r.mu.Unlock()
		return &wire.SubscribeError{Topic: topic, Action: ActionUpdate, Err: wire.ErrNotSubscribed}
	}
	prevOptions := sub.options
	sub.options = options
	var p *pendingAck
	if ack {
		p = r.addPendingLocked(topic, ActionUpdate, nil)
	}
	r.mu.Unlock()

	if err := r.request(ctx, ActionUpdate, topic, options, p); err != nil {
		r.mu.Lock()
		if r.subs[topic] == sub {
			sub.options = prevOptions
		}
		r.mu.Unlock()
		return &wire.SubscribeError{Topic: topic, Action: ActionUpdate, Err: err}
	}
	return nil
}

// Unsubscribe removes the local subscription at once and sends the unsubscribe frame.
// No message that arrives after Unsubscribe returns is delivered to the removed handler. A
// handler call already in progress may still finish.
func (r *Registry) Unsubscribe(ctx context.Context, topic string, ack bool) error {
	if topic == "" {
		return &wire.SubscribeError{Topic: topic, Action: ActionUnsubscribe, Err: wire.ErrEmptyTopic}
	}

	unlock := r.lockTopic(topic)
	defer unlock()

	r.mu.Lock()
	sub := r.subs[topic]
	delete(r.subs, topic)
	var p *pendingAck
	if ack {
		p = r.addPendingLocked(topic, ActionUnsubscribe, nil)
	}
	r.metrics.SetSubscriptions(len(r.subs))
	r.mu.Unlock()

	if sub != nil {
		sub.stop()
	}
	if err := r.request(ctx, ActionUnsubscribe, topic, nil, p); err != nil {
		return &wire.SubscribeError{Topic: topic, Action: ActionUnsubscribe, Err: err}
	}
	return nil
}

// Topics returns the subscribed topics in lexical order.
func (r *Registry) Topics() []string {
	r.mu.Lock()
	topics := make([]string, 0, len(r.subs))
	for t := range r.subs {
		topics = append(topics, t)
	}
	r.mu.Unlock()
	sort.Strings(topics)
	return topics
}

// Active reports whether topic has a subscription that receives pushes.
func (r *Registry) Active(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[topic]
	return ok && sub.active
}

func (r *Registry) addPendingLocked(topic, action string, sub *subscription) *pendingAck {
	r.seq++
	p := &pendingAck{
		topic:  topic,
		action: action,
		sub:    sub,
		done:   make(chan error, 1),
	}
	if r.ackIDs {
		p.id = strconv.FormatUint(r.seq, 10)
	}
	r.pending = append(r.pending, p)
	return p
}

// removePending reports whether p was still outstanding.
func (r *Registry) removePending(p *pendingAck) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.pending, p)
	if i < 0 {
		return false
	}
	r.pending = slices.Delete(r.pending, i, i+1)
	return true
}

func (r *Registry) request(ctx context.Context, action, topic string, options map[string]any, p *pendingAck) error {
	frame := wire.ControlFrame{Action: action, Topic: topic, Ack: p != nil, Options: options}
	if p != nil {
		frame.ID = p.id
	}
	if err := r.sender.Send(ctx, frame); err != nil {
		if p != nil {
			r.removePending(p)
		}
		return err
	}
	if p == nil {
		return nil
	}
	return r.await(ctx, p)
}

func (r *Registry) await(ctx context.Context, p *pendingAck) error {
	timer := time.NewTimer(r.ackTimeout)
	defer timer.Stop()

	select {
	case err := <-p.done:
		return err
	case <-timer.C:
		if !r.removePending(p) {
			return <-p.done
		}
		r.metrics.AckOutcome(p.action, "timeout")
		return &wire.TimeoutError{Topic: p.topic, Action: p.action, Wait: r.ackTimeout}
	case <-ctx.Done():
		if !r.removePending(p) {
			return <-p.done
		}
		r.metrics.AckOutcome(p.action, "cancelled")
		return ctx.Err()
	}
}

// Route dispatches one inbound frame. It never blocks on a handler.
func (r *Registry) Route(in wire.Inbound) {
	switch in.Kind {
	case wire.FrameAck:
		r.routeAck(in)
	case wire.FramePush:
		r.routePush(in)
	default:
		r.logger.Debug(fmt.Sprintf("Registry: ignoring frame without topic or ack: %s", wire.Compact(in.Raw)))
	}
}

func (r *Registry) routeAck(in wire.Inbound) {
	r.mu.Lock()
	p := r.matchAckLocked(in)
	if p != nil && p.sub != nil && r.subs[p.topic] == p.sub {
		p.sub.active = true
	}
	r.mu.Unlock()

	if p == nil {
		r.logger.Debug(fmt.Sprintf("Registry: unmatched %s ack for %q", in.Ack, in.Topic))
		return
	}
	r.metrics.AckOutcome(p.action, "ok")
	p.done <- nil
}

// matchAckLocked removes and returns the pending ack that in acknowledges: by id, then by
// topic and action, then the oldest of that action when the frame carries no topic.
func (r *Registry) matchAckLocked(in wire.Inbound) *pendingAck {
	i := -1
	if in.ID != "" {
		i = slices.IndexFunc(r.pending, func(p *pendingAck) bool { return p.id == in.ID })
	}
	if i < 0 && in.Topic != "" {
		i = slices.IndexFunc(r.pending, func(p *pendingAck) bool {
			return p.topic == in.Topic && p.action == in.Ack
		})
	}
	if i < 0 && in.Topic == "" {
		i = slices.IndexFunc(r.pending, func(p *pendingAck) bool { return p.action == in.Ack })
	}
	if i < 0 {
		return nil
	}
	p := r.pending[i]
	r.pending = slices.Delete(r.pending, i, i+1)
	return p
}

func (r *Registry) routePush(in wire.Inbound) {
	msg := Message{Topic: in.Topic, Time: in.Time, Body: in.Message, Raw: in.Raw}

	reason := ""
	r.mu.Lock()
	sub, ok := r.subs[in.Topic]
	switch {
	case !ok:
		reason = "unknown_topic"
	case !sub.active:
		reason = "inactive"
	default:
		select {
		case sub.queue <- msg:
		default:
			reason = "queue_full"
		}
	}
	r.mu.Unlock()

	if reason == "" {
		return
	}
	r.metrics.PushDropped(reason)
	if reason == "queue_full" {
		r.logger.Warn(fmt.Sprintf("Registry: queue for %q is full, dropping message", in.Topic))
		return
	}
	r.logger.Debug(fmt.Sprintf("Registry: dropping %q message (%s)", in.Topic, reason))
}

// Disconnected fails every pending ack. Unless keep is set it also removes every subscription.
func (r *Registry) Disconnected(cause error, keep bool) {
	switch {
	case cause == nil:
		cause = wire.ErrConnectionClosed
	case !errors.Is(cause, wire.ErrConnectionClosed):
		cause = fmt.Errorf("%w: %v", wire.ErrConnectionClosed, cause)
	}

	r.mu.Lock()
	pending := r.pending
	r.pending = nil
	var stopped []*subscription
	if !keep {
		for _, sub := range r.subs {
			stopped = append(stopped, sub)
		}
		clear(r.subs)
		r.metrics.SetSubscriptions(0)
	}
	r.mu.Unlock()

	for _, p := range pending {
		r.metrics.AckOutcome(p.action, "closed")
		p.done <- cause
	}
	for _, sub := range stopped {
		sub.stop()
	}
	if len(pending) > 0 || len(stopped) > 0 {
		r.logger.Info(fmt.Sprintf("Registry: teardown failed %d pending acks and removed %d subscriptions", len(pending), len(stopped)))
	}
}

// Reconnected re-sends every subscription without requesting acks. Each topic is resent
// under its topic lock, so a concurrent Subscribe, Update or Unsubscribe is never overwritten
// on the wire by a stale frame.
func (r *Registry) Reconnected(ctx context.Context) {
	r.mu.Lock()
	snapshot := make(map[string]*subscription, len(r.subs))
	for topic, sub := range r.subs {
		snapshot[topic] = sub
	}
	r.mu.Unlock()

	topics := make([]string, 0, len(snapshot))
	for topic := range snapshot {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	for _, topic := range topics {
		r.resubscribe(ctx, topic, snapshot[topic])
	}
}

// resubscribe sends the current options of sub if it is still the entry for topic.
func (r *Registry) resubscribe(ctx context.Context, topic string, sub *subscription) {
	unlock := r.lockTopic(topic)
	defer unlock()

	r.mu.Lock()
	if r.subs[topic] != sub {
		r.mu.Unlock()
		r.logger.Debug(fmt.Sprintf("Registry: %q changed during reconnect, not resubscribing", topic))
		return
	}
	sub.active = true
	options := sub.options
	r.mu.Unlock()

	frame := wire.ControlFrame{Action: ActionSubscribe, Topic: topic, Options: options}
	if err := r.sender.Send(ctx, frame); err != nil {
		r.logger.Warn(fmt.Sprintf("Registry: resubscribe %q failed: %v", topic, err))
		return
	}
	r.logger.Debug(fmt.Sprintf("Registry: resubscribed to %q", topic))
}

// subscription is one topic's handler and the worker draining its queue.
type subscription struct {
	topic   string
	handler Handler
	options map[string]any // guarded by Registry.mu
	ack     bool
	active  bool // guarded by Registry.mu
	queue   chan Message
	logger  *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func newSubscription(topic string, handler Handler, options map[string]any, ack bool, queueSize int, logger *slog.Logger) *subscription {
	ctx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		topic:   topic,
		handler: handler,
		options: options,
		ack:     ack,
		queue:   make(chan Message, queueSize),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queue:
			if s.ctx.Err() != nil {
				return
			}
			s.deliver(msg)
		}
	}
}

func (s *subscription) deliver(msg Message) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error(fmt.Sprintf("Subscription %q: handler panic: %v", s.topic, rec))
		}
	}()
	if err := s.handler(s.ctx, msg); err != nil {
		s.logger.Warn(fmt.Sprintf("Subscription %q: handler error: %v", s.topic, err))
	}
}

// stop ends the worker. It does not wait, so a handler may unsubscribe its own topic.
func (s *subscription) stop() {
	s.stopOnce.Do(s.cancel)
}
