package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/voltflow/voltflow/pkg/events"
)

// WatermillQueue implements Queue on a watermill publisher/subscriber
// pair. With the kafka channel this gives a durable, consumer-grouped,
// at-least-once channel: unacked messages are redelivered, acked
// offsets are committed.
type WatermillQueue struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

func NewWatermillQueue(pub message.Publisher, sub message.Subscriber) *WatermillQueue {
	return &WatermillQueue{
		publisher:  pub,
		subscriber: sub,
	}
}

func (q *WatermillQueue) Enqueue(_ context.Context, job *events.RunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job for run %s: %w", job.RunID, err)
	}

	msg := message.NewMessage("job-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, job.RunID)

	return q.publisher.Publish(events.ExecutionTopic, msg)
}

func (q *WatermillQueue) Consume(ctx context.Context, handler JobHandler) error {
	messages, err := q.subscriber.Subscribe(ctx, events.ExecutionTopic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to execution topic: %w", err)
	}

	for msg := range messages {
		job := &events.RunJob{}

		err := json.Unmarshal(msg.Payload, job)
		if err != nil {
			// Poison payload: acking would lose it silently, nacking
			// would loop forever. Ack and let the run row surface the
			// stall.
			msg.Ack()

			continue
		}

		err = handler(ctx, job)
		if err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}

	return nil
}

// PublishEvent publishes a run lifecycle notification on the
// lifecycle topic.
func (q *WatermillQueue) PublishEvent(_ context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("evt-"+watermill.NewULID(), payload)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return q.publisher.Publish(events.LifecycleTopic, msg)
}

func (q *WatermillQueue) Close() error {
	err := q.publisher.Close()
	if err != nil {
		return err
	}

	return q.subscriber.Close()
}
