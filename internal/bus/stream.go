package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"hermes/internal/adapters/config"
	redisadapter "hermes/internal/adapters/redis"
	"hermes/internal/events"
	"hermes/internal/metrics"
	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// busDomains enumerates the streams the durable backend shards topics
// into, one stream per topic domain.
var busDomains = []string{
	"trading", "market", "risk", "execution", "analytics", "system", "notification",
}

// StreamBus is the durable backend bound to Redis Streams. Each
// subscription runs its own consumer-group reader so a slow subscriber
// never blocks another. A handler failure leaves the message pending;
// it is claimed for redelivery once AckWait has elapsed and dropped after
// MaxDeliver attempts.
type StreamBus struct {
	client *redisadapter.Client
	rdb    *redis.Client
	cfg    config.BusConfig
	log    *logger.Logger

	// consumer name for this process within consumer groups
	consumer string

	mu        sync.RWMutex
	subs      map[string]*streamSub
	connected bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	published uint64
	delivered uint64
	failed    uint64

	errMu   sync.Mutex
	lastErr string
}

type streamSub struct {
	id         string
	pattern    string
	handler    Handler
	group      string
	ephemeral  bool
	streams    []string
	maxDeliver int
	ackWait    time.Duration
	cancel     context.CancelFunc
}

// NewStreamBus creates a durable bus backed by Redis Streams
func NewStreamBus(client *redisadapter.Client, cfg config.BusConfig, log *logger.Logger) *StreamBus {
	return &StreamBus{
		client:   client,
		rdb:      client.Client(),
		cfg:      cfg,
		log:      log.With("component", "stream_bus"),
		consumer: "hermes-" + uuid.NewString()[:8],
		subs:     make(map[string]*streamSub),
		pending:  make(map[string]*pendingRequest),
	}
}

// Connect verifies broker reachability and starts accepting traffic
func (b *StreamBus) Connect(ctx context.Context) error {
	if err := b.client.Health(ctx); err != nil {
		return errors.Wrap(err, "redis ping")
	}

	b.mu.Lock()
	b.runCtx, b.cancel = context.WithCancel(context.Background())
	b.connected = true
	b.mu.Unlock()

	b.log.Infow("Stream bus connected", "consumer", b.consumer)
	return nil
}

// Disconnect stops all consumption loops and waits for them to exit
func (b *StreamBus) Disconnect(ctx context.Context) error {
	b.mu.Lock()
	if !b.connected {
		b.mu.Unlock()
		return nil
	}
	b.connected = false
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.wg.Wait()

	b.log.Info("Stream bus disconnected")
	return nil
}

// IsConnected reports whether the bus accepts traffic
func (b *StreamBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// streamFor maps a topic to its backing stream by domain segment
func (b *StreamBus) streamFor(topic string) string {
	domain := topic
	if i := strings.IndexByte(topic, '.'); i > 0 {
		domain = topic[:i]
	}
	return b.cfg.StreamPrefix + ":" + domain
}

// streamsFor returns the streams a pattern can match. A literal first
// segment pins a single domain stream; a wildcard fans out to all.
func (b *StreamBus) streamsFor(pattern string) []string {
	first := pattern
	if i := strings.IndexByte(pattern, '.'); i > 0 {
		first = pattern[:i]
	}
	if first == "*" || first == ">" {
		streams := make([]string, 0, len(busDomains))
		for _, d := range busDomains {
			streams = append(streams, b.cfg.StreamPrefix+":"+d)
		}
		return streams
	}
	return []string{b.cfg.StreamPrefix + ":" + first}
}

// Publish appends the event to its domain stream
func (b *StreamBus) Publish(ctx context.Context, ev *events.Envelope) error {
	if !b.IsConnected() {
		return errors.ErrNotConnected
	}
	if ev.Topic == "" {
		return errors.Wrap(errors.ErrInvalidTopic, "empty topic")
	}

	data, err := events.Marshal(ev)
	if err != nil {
		return err
	}

	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamFor(ev.Topic),
		Values: map[string]interface{}{
			"topic": ev.Topic,
			"event": string(data),
		},
	}).Err()
	if err != nil {
		b.setLastError(err)
		return errors.Wrapf(err, "xadd %s", ev.Topic)
	}

	atomic.AddUint64(&b.published, 1)
	metrics.BusEventsPublished.WithLabelValues(string(ev.Domain), "stream").Inc()
	return nil
}

// Subscribe registers a handler behind a consumer group and starts one
// reader goroutine per backing stream
func (b *StreamBus) Subscribe(ctx context.Context, pattern string, handler Handler, opts *SubscribeOptions) (string, error) {
	if !b.IsConnected() {
		return "", errors.ErrNotConnected
	}
	if err := ValidatePattern(pattern); err != nil {
		return "", err
	}
	if opts == nil {
		opts = &SubscribeOptions{}
	}

	sub := &streamSub{
		id:         uuid.NewString(),
		pattern:    pattern,
		handler:    handler,
		streams:    b.streamsFor(pattern),
		maxDeliver: opts.MaxDeliver,
		ackWait:    opts.AckWait,
	}
	if sub.maxDeliver <= 0 {
		sub.maxDeliver = b.cfg.MaxDeliver
	}
	if sub.ackWait <= 0 {
		sub.ackWait = b.cfg.AckWait
	}

	switch {
	case opts.Queue != "":
		sub.group = opts.Queue
	case opts.Durable != "":
		sub.group = opts.Durable
	default:
		sub.group = "sub-" + sub.id[:8]
		sub.ephemeral = true
	}

	start := "$"
	if opts.FromStart {
		start = "0"
	}

	for _, stream := range sub.streams {
		err := b.rdb.XGroupCreateMkStream(ctx, stream, sub.group, start).Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return "", errors.Wrapf(err, "create group %s on %s", sub.group, stream)
		}
	}

	b.mu.Lock()
	subCtx, subCancel := context.WithCancel(b.runCtx)
	sub.cancel = subCancel
	b.subs[sub.id] = sub
	b.mu.Unlock()

	for _, stream := range sub.streams {
		b.wg.Add(2)
		go b.consumeLoop(subCtx, sub, stream)
		go b.reclaimLoop(subCtx, sub, stream)
	}

	b.log.Infow("Subscribed",
		"pattern", pattern,
		"group", sub.group,
		"streams", len(sub.streams),
	)
	return sub.id, nil
}

// consumeLoop reads new messages for one subscription from one stream
func (b *StreamBus) consumeLoop(ctx context.Context, sub *streamSub, stream string) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    sub.group,
			Consumer: b.consumer,
			Streams:  []string{stream, ">"},
			Count:    64,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if err == redis.Nil || errors.Is(err, context.Canceled) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			b.log.Warnw("Read failed", "stream", stream, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, str := range res {
			for _, msg := range str.Messages {
				b.handleMessage(ctx, sub, stream, msg)
			}
		}
	}
}

// handleMessage decodes and dispatches a single stream entry. Success
// acknowledges the message; failure leaves it pending for redelivery.
func (b *StreamBus) handleMessage(ctx context.Context, sub *streamSub, stream string, msg redis.XMessage) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		// Malformed entry, nothing to retry
		b.rdb.XAck(ctx, stream, sub.group, msg.ID)
		return
	}

	ev, err := events.Unmarshal([]byte(raw))
	if err != nil {
		b.setLastError(err)
		b.log.Warnw("Undecodable message dropped", "stream", stream, "id", msg.ID, "error", err)
		b.rdb.XAck(ctx, stream, sub.group, msg.ID)
		return
	}

	if !MatchTopic(sub.pattern, ev.Topic) {
		// Domain stream carries topics outside this pattern
		b.rdb.XAck(ctx, stream, sub.group, msg.ID)
		return
	}

	if err := sub.handler(ctx, ev); err != nil {
		atomic.AddUint64(&b.failed, 1)
		metrics.BusHandlerErrors.WithLabelValues(ev.Topic).Inc()
		b.setLastError(err)
		b.log.Warnw("Handler failed, message left pending",
			"topic", ev.Topic,
			"group", sub.group,
			"id", msg.ID,
			"error", err,
		)
		return
	}

	b.rdb.XAck(ctx, stream, sub.group, msg.ID)
	atomic.AddUint64(&b.delivered, 1)
	metrics.BusEventsDelivered.WithLabelValues(ev.Topic).Inc()
	b.resolvePending(ev)
}

// reclaimLoop redelivers messages whose ack wait has elapsed and drops
// those past the delivery cap
func (b *StreamBus) reclaimLoop(ctx context.Context, sub *streamSub, stream string) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.ReclaimEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pend, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  sub.group,
			Idle:   sub.ackWait,
			Start:  "-",
			End:    "+",
			Count:  100,
		}).Result()
		if err != nil || len(pend) == 0 {
			continue
		}

		var retry, drop []string
		for _, p := range pend {
			if int(p.RetryCount) >= sub.maxDeliver {
				drop = append(drop, p.ID)
			} else {
				retry = append(retry, p.ID)
			}
		}

		if len(drop) > 0 {
			b.rdb.XAck(ctx, stream, sub.group, drop...)
			metrics.BusDropped.WithLabelValues(stream).Add(float64(len(drop)))
			b.log.Warnw("Messages dropped after max deliveries",
				"stream", stream,
				"group", sub.group,
				"count", len(drop),
			)
		}

		if len(retry) > 0 {
			msgs, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
				Stream:   stream,
				Group:    sub.group,
				Consumer: b.consumer,
				MinIdle:  sub.ackWait,
				Messages: retry,
			}).Result()
			if err != nil {
				continue
			}
			metrics.BusRedeliveries.WithLabelValues(stream).Add(float64(len(msgs)))
			for _, msg := range msgs {
				b.handleMessage(ctx, sub, stream, msg)
			}
		}
	}
}

// Unsubscribe stops the subscription's readers. Ephemeral consumer
// groups are destroyed; durable and queue groups are kept so consumption
// can resume later.
func (b *StreamBus) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if !ok {
		b.mu.Unlock()
		return errors.Wrapf(errors.ErrSubscriptionNotFound, "%s", id)
	}
	delete(b.subs, id)
	b.mu.Unlock()

	sub.cancel()

	if sub.ephemeral {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, stream := range sub.streams {
			b.rdb.XGroupDestroy(ctx, stream, sub.group)
		}
	}
	return nil
}

// resolvePending completes a waiting request when a consumed event
// carries its correlation id
func (b *StreamBus) resolvePending(ev *events.Envelope) {
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

// Request publishes the event with a fresh correlation id and waits on an
// ephemeral reply subscription until a correlated reply or the timeout
func (b *StreamBus) Request(ctx context.Context, ev *events.Envelope, timeout time.Duration) (*events.Envelope, error) {
	if !b.IsConnected() {
		return nil, errors.ErrNotConnected
	}
	if timeout <= 0 {
		timeout = b.cfg.RequestTimeout
		if timeout <= 0 {
			timeout = DefaultRequestTimeout
		}
	}

	corrID := uuid.NewString()
	ev.CorrelationID = corrID
	if ev.Metadata == nil {
		ev.Metadata = make(map[string]string)
	}
	replyTo := ev.Topic + ".reply"
	ev.Metadata[metaReplyTo] = replyTo

	pr := &pendingRequest{requestID: ev.ID, ch: make(chan *events.Envelope, 1)}
	b.pendingMu.Lock()
	b.pending[corrID] = pr
	b.pendingMu.Unlock()

	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, corrID)
		b.pendingMu.Unlock()
	}()

	subID, err := b.Subscribe(ctx, replyTo, func(ctx context.Context, resp *events.Envelope) error {
		// resolvePending matches the correlation id after ack
		return nil
	}, nil)
	if err != nil {
		return nil, err
	}
	defer b.Unsubscribe(subID)

	if err := b.Publish(ctx, ev); err != nil {
		return nil, err
	}

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
// is answered on its derived reply topic with the same correlation id
func (b *StreamBus) Reply(ctx context.Context, pattern string, handler RequestHandler) (string, error) {
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
func (b *StreamBus) Stats() Stats {
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

func (b *StreamBus) setLastError(err error) {
	b.errMu.Lock()
	b.lastErr = err.Error()
	b.errMu.Unlock()
}

var _ Bus = (*StreamBus)(nil)
