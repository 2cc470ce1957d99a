package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/jenna-jordan/Boston-CityScore-App/internal/protocol"
)

// EventPublisher publishes snapshot events and quality alerts to their
// topics. Both are keyed by resource id so that one resource's events stay
// ordered.
type EventPublisher struct {
	snapshots *Producer
	alerts    *Producer
}

func NewEventPublisher(brokers []string, snapshotTopic, alertTopic string) *EventPublisher {
	return &EventPublisher{
		snapshots: NewProducer(brokers, snapshotTopic),
		alerts:    NewProducer(brokers, alertTopic),
	}
}

func (p *EventPublisher) PublishSnapshot(ctx context.Context, ev *protocol.SnapshotEvent) error {
	data, err := protocol.EncodeSnapshotEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot event: %w", err)
	}
	return p.snapshots.Publish(ctx, ev.ResourceID, data)
}

// PublishAlerts writes all alerts in one batch.
func (p *EventPublisher) PublishAlerts(ctx context.Context, alerts []*protocol.QualityAlert) error {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		data, err := protocol.EncodeQualityAlert(a)
		if err != nil {
			return fmt.Errorf("failed to encode quality alert: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(a.Key()), Value: data})
	}
	return p.alerts.PublishBatch(ctx, msgs)
}

func (p *EventPublisher) Close() error {
	return errors.Join(p.snapshots.Close(), p.alerts.Close())
}
