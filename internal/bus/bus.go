package bus

import (
	"context"
	"time"

	"hermes/internal/events"
)

// Handler processes a delivered event. A non-nil error marks the delivery
// as failed: the in-process backend counts it and moves on, the durable
// backend leaves the message pending for redelivery.
type Handler func(ctx context.Context, ev *events.Envelope) error

// RequestHandler answers a request event. The returned envelope is
// published on the derived reply topic with the request's correlation id.
type RequestHandler func(ctx context.Context, req *events.Envelope) (*events.Envelope, error)

// SubscribeOptions tune a subscription. The in-process backend only uses
// the zero value; the durable backend maps them onto consumer groups.
type SubscribeOptions struct {
	// Queue names a consumer group. Subscribers sharing a queue split
	// messages between them instead of each receiving a copy.
	Queue string

	// Durable names a consumer group that survives unsubscribe, so a
	// reconnecting subscriber resumes where it left off.
	Durable string

	// FromStart replays the stream from the beginning instead of only
	// delivering new messages.
	FromStart bool

	// MaxDeliver caps redelivery attempts for a failed message.
	// Zero means the backend default.
	MaxDeliver int

	// AckWait is how long a delivery may stay unacknowledged before it
	// is claimed for redelivery. Zero means the backend default.
	AckWait time.Duration
}

// Stats is a point-in-time snapshot of bus activity
type Stats struct {
	Published     uint64
	Delivered     uint64
	Failed        uint64
	Subscriptions int
	LastError     string
}

// Bus routes typed events between publishers and subscribers by topic.
// Two implementations exist: the in-process MemoryBus and the durable
// StreamBus bound to Redis Streams. Callers are backend-agnostic.
type Bus interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Publish routes the event to all matching subscriptions
	Publish(ctx context.Context, ev *events.Envelope) error

	// Subscribe registers a handler for a topic pattern and returns a
	// subscription id. A nil opts means defaults.
	Subscribe(ctx context.Context, pattern string, handler Handler, opts *SubscribeOptions) (string, error)

	// Unsubscribe removes a subscription by id
	Unsubscribe(id string) error

	// Request publishes the event with a fresh correlation id and waits
	// for a correlated reply or the timeout. A non-positive timeout
	// means the backend default (DefaultRequestTimeout, or the
	// configured request timeout on the durable backend).
	Request(ctx context.Context, ev *events.Envelope, timeout time.Duration) (*events.Envelope, error)

	// Reply registers a responder for a topic pattern
	Reply(ctx context.Context, pattern string, handler RequestHandler) (string, error)

	// Stats returns a snapshot of bus counters
	Stats() Stats
}

// DefaultRequestTimeout applies when Request is called with a
// non-positive timeout and no configured override.
const DefaultRequestTimeout = 5 * time.Second

// metadata key carrying the derived reply topic of a request
const metaReplyTo = "replyTo"

// replyTopic derives the reply topic for a request event
func replyTopic(ev *events.Envelope) string {
	if ev.Metadata != nil {
		if rt, ok := ev.Metadata[metaReplyTo]; ok && rt != "" {
			return rt
		}
	}
	return ev.Topic + ".reply"
}
