// Package main provides the voltflow worker process, which consumes
// queued runs and executes them.
package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"

	"github.com/voltflow/voltflow/pkg/cmd"
	"github.com/voltflow/voltflow/pkg/log"
	"github.com/voltflow/voltflow/pkg/otelhelper"
)

func main() {
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  "voltflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to execute queued flow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-provider",
				Usage:   "Work queue provider (kafka, redis, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("QUEUE_PROVIDER"),
			},
			&cli.StringFlag{
				Name:     "vault-key",
				Usage:    "Hex-encoded 256-bit master key for the credential vault",
				Required: true,
				Sources:  cli.EnvVars("VAULT_KEY"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("voltflow-worker").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing voltflow worker")

			if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
				shutdown, err := otelhelper.Setup(ctx, "voltflow-worker")
				if err != nil {
					return err
				}

				defer func() {
					if err := shutdown(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to shut down tracing", "error", err)
					}
				}()
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			workQueue, err := cmd.NewQueue(ctx, command.String("queue-provider"), "voltflow-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := workQueue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			secrets, err := cmd.NewVault(persistence.Credentials(), command.String("vault-key"), logger)
			if err != nil {
				return err
			}

			worker := NewWorker(workerID, persistence, workQueue, secrets, logger)

			return worker.Start(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
