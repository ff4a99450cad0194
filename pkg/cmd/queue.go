package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/voltflow/voltflow/pkg/channels/gochannel"
	"github.com/voltflow/voltflow/pkg/channels/kafka"
	"github.com/voltflow/voltflow/pkg/queue"
)

// NewQueue builds the work queue for the named provider. kafka is the
// production channel, redis covers single-broker setups, gochannel is
// in-process and meant for development.
func NewQueue(ctx context.Context, provider, serviceName string, logger *slog.Logger) (queue.Queue, error) {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka channel: %w", err)
		}

		return queue.NewWatermillQueue(pub, sub), nil
	case "redis":
		db := 0
		if raw := os.Getenv("REDIS_DB"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_DB value %q: %w", raw, err)
			}

			db = parsed
		}

		return queue.NewRedisQueue(ctx, os.Getenv("REDIS_ADDR"), os.Getenv("REDIS_PASSWORD"), db, logger)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create gochannel channel: %w", err)
		}

		return queue.NewWatermillQueue(pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported queue provider %q", provider)
	}
}
