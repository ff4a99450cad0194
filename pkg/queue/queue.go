// Package queue provides the durable flow-execution work channel that
// decouples run triggering from run processing.
package queue

import (
	"context"

	"github.com/voltflow/voltflow/pkg/events"
)

// JobHandler processes one dequeued job. A returned error causes the
// delivery to be negatively acknowledged so the backend's own
// retry/backoff policy can redeliver it.
type JobHandler func(ctx context.Context, job *events.RunJob) error

// Queue is the at-least-once flow-execution channel. Implementations
// must survive consumer restarts without losing undelivered jobs and
// must block consumers without polling while the channel is empty.
type Queue interface {
	// Enqueue publishes a job. It returns once the backend has
	// accepted the job durably.
	Enqueue(ctx context.Context, job *events.RunJob) error

	// Consume delivers jobs to the handler until ctx is cancelled.
	// Each consumer receives one job at a time.
	Consume(ctx context.Context, handler JobHandler) error

	Close() error
}

// Publisher is the producer-side subset used by the API and scheduler.
type Publisher interface {
	Enqueue(ctx context.Context, job *events.RunJob) error
	Close() error
}

// EventSink publishes run lifecycle notifications for observers. A
// nil-safe no-op implementation is acceptable where observers are not
// wired.
type EventSink interface {
	PublishEvent(ctx context.Context, key string, event Event) error
}

// Event is a publishable lifecycle notification.
type Event interface {
	GetType() events.EventType
}
