package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltflow/voltflow/pkg/events"
	"github.com/voltflow/voltflow/pkg/handlers/logmsg"
	"github.com/voltflow/voltflow/pkg/models"
	"github.com/voltflow/voltflow/pkg/persistence"
	"github.com/voltflow/voltflow/pkg/persistence/file"
	"github.com/voltflow/voltflow/pkg/protocol"
	"github.com/voltflow/voltflow/pkg/registry"
)

var errBoom = errors.New("boom")

type boomHandler struct{}

func (boomHandler) Execute(context.Context, models.ExecutionContext, map[string]any) (map[string]any, error) {
	return nil, errBoom
}

type boomFactory struct{}

func (boomFactory) Create(context.Context, map[string]any) (protocol.Handler, error) {
	return boomHandler{}, nil
}

func (boomFactory) ID() string          { return "boom" }
func (boomFactory) Name() string        { return "Boom" }
func (boomFactory) Description() string { return "Always fails" }
func (boomFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testRegistry() *registry.Registry {
	reg := registry.NewRegistry(testLogger())
	reg.Register(logmsg.NewHandlerFactory())
	reg.Register(boomFactory{})

	return reg
}

func seedFlow(t *testing.T, p *file.Persistence, nodes []*models.Node) *models.Flow {
	t.Helper()

	flow := &models.Flow{
		ID:        "flow-1",
		Name:      "Test Flow",
		Status:    models.FlowStatusActive,
		UserID:    "user-1",
		Nodes:     nodes,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.Flows().Save(context.Background(), flow))

	return flow
}

func seedRun(t *testing.T, p *file.Persistence, status models.RunStatus) *models.Run {
	t.Helper()

	run := &models.Run{
		ID:        "run-1",
		FlowID:    "flow-1",
		UserID:    "user-1",
		Status:    status,
		Input:     map[string]any{"trigger": "manual"},
		CreatedAt: time.Now().UTC(),
	}

	require.NoError(t, p.Runs().Create(context.Background(), run))

	return run
}

func TestExecutorCompletesRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "log", Name: "First", Data: map[string]any{"message": "hello"}, Enabled: true},
		{ID: "n2", Type: "log", Name: "Second", Data: map[string]any{"message": "world"}, Enabled: true},
	})
	seedRun(t, p, models.RunStatusQueued)

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	err := executor.Execute(ctx, &events.RunJob{RunID: "run-1", TriggeredAt: time.Now()})
	require.NoError(t, err)

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, true, run.Output["completed"])
	assert.InDelta(t, 2, run.Output["node_count"], 0)

	outputs, err := p.NodeOutputs().ByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, outputs, 2)
}

func TestExecutorSkipsDisabledNodes(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "log", Data: map[string]any{"message": "on"}, Enabled: true},
		{ID: "n2", Type: "log", Data: map[string]any{"message": "off"}, Enabled: false},
	})
	seedRun(t, p, models.RunStatusQueued)

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	require.NoError(t, executor.Execute(ctx, &events.RunJob{RunID: "run-1"}))

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.InDelta(t, 1, run.Output["node_count"], 0)

	outputs, err := p.NodeOutputs().ByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, outputs, 1)
}

func TestExecutorFailsRunOnNodeError(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "log", Data: map[string]any{"message": "ok"}, Enabled: true},
		{ID: "n2", Type: "boom", Data: map[string]any{}, Enabled: true},
		{ID: "n3", Type: "log", Data: map[string]any{"message": "never"}, Enabled: true},
	})
	seedRun(t, p, models.RunStatusQueued)

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	err := executor.Execute(ctx, &events.RunJob{RunID: "run-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "n2")

	// The failing node's output record carries the error; n3 never ran.
	outputs, err := p.NodeOutputs().ByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, outputs, 2)
	assert.Equal(t, "boom", outputs[1].Error)
}

func TestExecutorFailsRunOnUnknownNodeType(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "does-not-exist", Data: map[string]any{}, Enabled: true},
	})
	seedRun(t, p, models.RunStatusQueued)

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	err := executor.Execute(ctx, &events.RunJob{RunID: "run-1"})
	require.Error(t, err)

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestExecutorDropsMissingRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	// Missing run is a permanent condition: ack, no retry.
	assert.NoError(t, executor.Execute(ctx, &events.RunJob{RunID: "ghost"}))
}

func TestExecutorDropsAlreadyClaimedRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "log", Data: map[string]any{"message": "hi"}, Enabled: true},
	})
	seedRun(t, p, models.RunStatusQueued)

	_, err := p.Runs().Transition(ctx, "run-1", models.RunStatusRunning)
	require.NoError(t, err)

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	// Redelivered job for a claimed run must not re-execute anything.
	require.NoError(t, executor.Execute(ctx, &events.RunJob{RunID: "run-1"}))

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	outputs, err := p.NodeOutputs().ByRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

// outputLossPersistence drops every node output append, simulating a
// storage outage on the audit trail.
type outputLossPersistence struct {
	persistence.Persistence
}

func (p outputLossPersistence) NodeOutputs() persistence.NodeOutputRepository {
	return failingOutputs{p.Persistence.NodeOutputs()}
}

type failingOutputs struct {
	persistence.NodeOutputRepository
}

func (failingOutputs) Append(context.Context, *models.NodeOutput) error {
	return errors.New("disk full")
}

func TestExecutorFailsRunWhenOutputPersistFails(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "log", Data: map[string]any{"message": "hello"}, Enabled: true},
	})
	seedRun(t, p, models.RunStatusQueued)

	executor := NewExecutor(outputLossPersistence{p}, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	// A run whose outputs cannot be recorded must not report success.
	err := executor.Execute(ctx, &events.RunJob{RunID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestExecutorDropsCancelledRun(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	seedFlow(t, p, []*models.Node{
		{ID: "n1", Type: "log", Data: map[string]any{"message": "hi"}, Enabled: true},
	})
	seedRun(t, p, models.RunStatusQueued)

	_, err := p.Runs().Transition(ctx, "run-1", models.RunStatusCancelled)
	require.NoError(t, err)

	executor := NewExecutor(p, testRegistry(), nil, nil, nil, testLogger(), "worker-test")

	require.NoError(t, executor.Execute(ctx, &events.RunJob{RunID: "run-1"}))

	run, err := p.Runs().ByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
}
