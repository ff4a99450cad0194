// Package main provides the voltflow scheduler process, which
// enqueues runs for flows whose schedule is due.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"

	"github.com/voltflow/voltflow/pkg/cmd"
	"github.com/voltflow/voltflow/pkg/log"
	"github.com/voltflow/voltflow/pkg/scheduler"
)

func main() {
	_ = godotenv.Load()

	command := &cli.Command{
		Name:                  "voltflow-scheduler",
		EnableShellCompletion: true,
		Usage:                 "Start the flow schedule orchestrator",
		Flags: []cli.Flag{
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

			logger := log.WithModule("voltflow-scheduler")
			logger.InfoContext(ctx, "Initializing voltflow scheduler")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			workQueue, err := cmd.NewQueue(ctx, command.String("queue-provider"), "voltflow-scheduler", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := workQueue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close queue", "error", err)
				}
			}()

			sched := scheduler.NewScheduler(persistence, workQueue, logger)

			if err := sched.Start(ctx); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			<-sigChan
			logger.InfoContext(ctx, "Shutting down scheduler")

			return sched.Stop(ctx)
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
