package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voltflow/voltflow/pkg/cmd"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/queue"
	"github.com/voltflow/voltflow/pkg/runner"
	"github.com/voltflow/voltflow/pkg/vault"
)

// Worker consumes run jobs from the queue and executes them until a
// shutdown signal arrives.
type Worker struct {
	id          string
	persistence persistence.Persistence
	queue       queue.Queue
	secrets     *vault.Vault
	logger      *slog.Logger
}

// NewWorker creates a worker.
func NewWorker(id string, p persistence.Persistence, q queue.Queue, secrets *vault.Vault, logger *slog.Logger) *Worker {
	return &Worker{
		id:          id,
		persistence: p,
		queue:       q,
		secrets:     secrets,
		logger:      logger,
	}
}

// Start runs the consume loop and blocks until SIGINT or SIGTERM.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conns := vault.NewConnManager(w.logger)
	defer conns.Shutdown()

	registry := cmd.NewRegistry(w.logger, w.persistence.AgentMemories())

	// Lifecycle events are best effort: only queues that can publish
	// them get a sink.
	sink, _ := w.queue.(queue.EventSink)

	executor := runner.NewExecutor(w.persistence, registry, sink, w.secrets, conns, w.logger, w.id)

	errCh := make(chan error, 1)

	go func() {
		errCh <- w.queue.Consume(ctx, executor.Execute)
	}()

	w.logger.InfoContext(ctx, "Worker started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		w.logger.InfoContext(ctx, "Shutting down worker", "signal", sig.String())
		cancel()

		return nil
	case err := <-errCh:
		if err != nil {
			w.logger.ErrorContext(ctx, "Queue consumer stopped", "error", err)
		}

		return err
	}
}
