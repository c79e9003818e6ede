package archiver

import (
	"context"

	"hermes/internal/adapters/kafka"
	"hermes/internal/bus"
	"hermes/internal/events"
	"hermes/internal/metrics"
	"hermes/pkg/logger"
)

const topicPrefix = "hermes.events."

// Archiver mirrors every bus event to Kafka, one topic per event
// domain, for the out-of-process analytics pipeline. It is a plain bus
// subscriber: a mirror failure is logged and counted but never affects
// delivery to the other subscribers.
type Archiver struct {
	bus      bus.Bus
	producer *kafka.Producer
	log      *logger.Logger
	subID    string
}

// New creates an archiver mirroring the given bus to Kafka
func New(b bus.Bus, producer *kafka.Producer, log *logger.Logger) *Archiver {
	return &Archiver{
		bus:      b,
		producer: producer,
		log:      log.With("component", "archiver"),
	}
}

// Start subscribes to every topic on the bus
func (a *Archiver) Start(ctx context.Context) error {
	id, err := a.bus.Subscribe(ctx, ">", a.mirror, &bus.SubscribeOptions{
		Queue: "archiver",
	})
	if err != nil {
		return err
	}
	a.subID = id
	a.log.Info("Archiver started")
	return nil
}

// Stop unsubscribes and closes the producer
func (a *Archiver) Stop() error {
	if a.subID != "" {
		if err := a.bus.Unsubscribe(a.subID); err != nil {
			a.log.Warnw("Unsubscribe failed", "error", err)
		}
	}
	return a.producer.Close()
}

func (a *Archiver) mirror(ctx context.Context, ev *events.Envelope) error {
	topic := topicPrefix + string(ev.Domain)
	if err := a.producer.Publish(ctx, topic, ev.Topic, ev); err != nil {
		metrics.KafkaMessages.WithLabelValues(topic, "error").Inc()
		a.log.Warnw("Mirror failed", "topic", ev.Topic, "error", err)
		return err
	}
	metrics.KafkaMessages.WithLabelValues(topic, "success").Inc()
	return nil
}
