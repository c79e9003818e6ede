package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hermes/internal/events"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// MemoryBus is the in-process backend. Publish delivers to every matching
// subscription sequentially, in registration order, and only returns once
// all handlers have run. It gives no ordering guarantee across concurrent
// publishes from different goroutines.
type MemoryBus struct {
	log *logger.Logger

	connected atomic.Bool

	mu       sync.RWMutex
	subs     []*memorySub
	subsByID map[string]*memorySub

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	published uint64
	delivered uint64
	failed    uint64

	errMu   sync.Mutex
	lastErr string
}

type memorySub struct {
	id      string
	pattern string
	handler Handler
}

type pendingRequest struct {
	requestID string
	ch        chan *events.Envelope
}

// NewMemoryBus creates an in-process bus
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	return &MemoryBus{
		log:      log.With("component", "memory_bus"),
		subsByID: make(map[string]*memorySub),
		pending:  make(map[string]*pendingRequest),
	}
}

// Connect marks the bus ready for traffic
func (b *MemoryBus) Connect(ctx context.Context) error {
	b.connected.Store(true)
	b.log.Info("In-process bus connected")
	return nil
}

// Disconnect stops accepting traffic. Subscriptions are kept so a
// reconnect resumes delivery.
func (b *MemoryBus) Disconnect(ctx context.Context) error {
	b.connected.Store(false)
	b.log.Info("In-process bus disconnected")
	return nil
}

// IsConnected reports whether the bus accepts traffic
func (b *MemoryBus) IsConnected() bool {
	return b.connected.Load()
}

// Publish delivers the event to all matching handlers before returning.
// A handler error does not abort delivery to the remaining handlers; it
// is counted and retained in stats, and the event is not retried.
func (b *MemoryBus) Publish(ctx context.Context, ev *events.Envelope) error {
	if !b.connected.Load() {
		return errors.ErrNotConnected
	}
	if ev.Topic == "" {
		return errors.Wrap(errors.ErrInvalidTopic, "empty topic")
	}

	atomic.AddUint64(&b.published, 1)
	metrics.BusEventsPublished.WithLabelValues(string(ev.Domain), "memory").Inc()

	b.mu.RLock()
	matched := make([]*memorySub, 0, len(b.subs))
	for _, sub := range b.subs {
		if MatchTopic(sub.pattern, ev.Topic) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		if err := sub.handler(ctx, ev); err != nil {
			atomic.AddUint64(&b.failed, 1)
			metrics.BusHandlerErrors.WithLabelValues(ev.Topic).Inc()
			b.setLastError(err)
			b.log.Warnw("Handler failed",
				"topic", ev.Topic,
				"subscription", sub.id,
				"error", err,
			)
			continue
		}
		atomic.AddUint64(&b.delivered, 1)
		metrics.BusEventsDelivered.WithLabelValues(ev.Topic).Inc()
	}

	b.resolvePending(ev)
	return nil
}

// resolvePending completes a waiting request when a published event
// carries its correlation id, independent of topic. The request's own
// publish is skipped so it cannot answer itself.
func (b *MemoryBus) resolvePending(ev *events.Envelope) {
	if ev.CorrelationID == "" {
		return
	}

	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	pr, ok := b.pending[ev.CorrelationID]
	if !ok || pr.requestID == ev.ID {
		return
	}

	delete(b.pending, ev.CorrelationID)
	pr.ch <- ev
}

// Subscribe registers a handler for a topic pattern. Options are accepted
// for signature parity with the durable backend but are not used here.
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, handler Handler, opts *SubscribeOptions) (string, error) {
	if !b.connected.Load() {
		return "", errors.ErrNotConnected
	}
	if err := ValidatePattern(pattern); err != nil {
		return "", err
	}

	sub := &memorySub{
		id:      uuid.NewString(),
		pattern: pattern,
		handler: handler,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.subsByID[sub.id] = sub
	b.mu.Unlock()

	b.log.Debugw("Subscribed", "pattern", pattern, "subscription", sub.id)
	return sub.id, nil
}

// Unsubscribe removes a subscription by id
func (b *MemoryBus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subsByID[id]; !ok {
		return errors.Wrapf(errors.ErrSubscriptionNotFound, "%s", id)
	}
	delete(b.subsByID, id)

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			break
		}
	}
	return nil
}

// Request publishes the event with a fresh correlation id and waits for a
// correlated reply. On timeout the pending waiter is removed so a late
// reply is silently dropped.
func (b *MemoryBus) Request(ctx context.Context, ev *events.Envelope, timeout time.Duration) (*events.Envelope, error) {
	if !b.connected.Load() {
		return nil, errors.ErrNotConnected
	}
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	corrID := uuid.NewString()
	ev.CorrelationID = corrID
	if ev.Metadata == nil {
		ev.Metadata = make(map[string]string)
	}
	ev.Metadata[metaReplyTo] = ev.Topic + ".reply"

	pr := &pendingRequest{requestID: ev.ID, ch: make(chan *events.Envelope, 1)}
	b.pendingMu.Lock()
	b.pending[corrID] = pr
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, corrID)
		b.pendingMu.Unlock()
	}()

	if err := b.Publish(ctx, ev); err != nil {
		return nil, err
	}

	// In-process replies are usually produced during Publish itself, so
	// the channel is often already resolved by the time we get here.
	select {
	case resp := <-pr.ch:
		return resp, nil
	case <-time.After(timeout):
		metrics.BusRequestTimeouts.WithLabelValues(ev.Topic).Inc()
		return nil, errors.Wrapf(errors.ErrRequestTimeout, "topic %s after %s", ev.Topic, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply registers a responder: each correlated event matching the pattern
// is answered on its derived reply topic with the same correlation id.
func (b *MemoryBus) Reply(ctx context.Context, pattern string, handler RequestHandler) (string, error) {
	return b.Subscribe(ctx, pattern, func(ctx context.Context, req *events.Envelope) error {
		if req.CorrelationID == "" {
			return nil
		}

		resp, err := handler(ctx, req)
		if err != nil {
			return err
		}
		if resp == nil {
			return nil
		}

		resp.Topic = replyTopic(req)
		resp.CorrelationID = req.CorrelationID
		resp.CausationID = req.ID
		return b.Publish(ctx, resp)
	}, nil)
}

// Stats returns a snapshot of bus counters
func (b *MemoryBus) Stats() Stats {
	b.mu.RLock()
	subCount := len(b.subs)
	b.mu.RUnlock()

	b.errMu.Lock()
	lastErr := b.lastErr
	b.errMu.Unlock()

	return Stats{
		Published:     atomic.LoadUint64(&b.published),
		Delivered:     atomic.LoadUint64(&b.delivered),
		Failed:        atomic.LoadUint64(&b.failed),
		Subscriptions: subCount,
		LastError:     lastErr,
	}
}

func (b *MemoryBus) setLastError(err error) {
	b.errMu.Lock()
	b.lastErr = err.Error()
	b.errMu.Unlock()
}

var _ Bus = (*MemoryBus)(nil)
