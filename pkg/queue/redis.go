package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/voltflow/voltflow/pkg/events"
)

const redisQueueKey = "voltflow:flow-execution"

// RedisQueue implements Queue on a Redis list. Enqueue is RPUSH,
// Consume is a blocking BLPOP loop. Failed jobs are pushed back to
// the tail after a short delay, which gives redelivery without a
// broker-side retry counter.
type RedisQueue struct {
	client     redis.UniversalClient
	logger     *slog.Logger
	retryDelay time.Duration
}

func NewRedisQueue(ctx context.Context, addr, password string, db int, logger *slog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis queue", "addr", addr, "db", db)

	return &RedisQueue{
		client:     client,
		logger:     logger.With("module", "redis_queue"),
		retryDelay: time.Second,
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job *events.RunJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job for run %s: %w", job.RunID, err)
	}

	return q.client.RPush(ctx, redisQueueKey, payload).Err()
}

func (q *RedisQueue) Consume(ctx context.Context, handler JobHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			err := q.processNext(ctx, handler)
			if err != nil {
				q.logger.ErrorContext(ctx, "Error processing job", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (q *RedisQueue) processNext(ctx context.Context, handler JobHandler) error {
	result, err := q.client.BLPop(ctx, time.Second, redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop job from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	payload := result[1]
	job := &events.RunJob{}

	err = json.Unmarshal([]byte(payload), job)
	if err != nil {
		q.logger.ErrorContext(ctx, "Discarding unparseable job payload", "payload", payload)

		return nil
	}

	err = handler(ctx, job)
	if err != nil {
		q.logger.ErrorContext(ctx, "Job failed, requeueing", "run_id", job.RunID, "error", err)
		time.Sleep(q.retryDelay)

		return q.client.RPush(ctx, redisQueueKey, payload).Err()
	}

	return nil
}

// PublishEvent publishes a lifecycle notification on a Redis pub/sub
// channel keyed by event type.
func (q *RedisQueue) PublishEvent(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	return q.client.Publish(ctx, string(events.LifecycleTopic), payload).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
