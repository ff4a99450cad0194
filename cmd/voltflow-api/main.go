// Package main provides the voltflow API server.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"

	"github.com/voltflow/voltflow/pkg/cmd"
	"github.com/voltflow/voltflow/pkg/log"
)

func main() {
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  "voltflow-api",
		EnableShellCompletion: true,
		Usage:                 "Start the flow execution API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   8080,
				Sources: cli.EnvVars("PORT"),
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("voltflow-api")
			logger.InfoContext(ctx, "Initializing voltflow API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			workQueue, err := cmd.NewQueue(ctx, command.String("queue-provider"), "voltflow-api", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := workQueue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, workQueue)

			return api.Start(int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
