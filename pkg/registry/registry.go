// Package registry maps node-type strings to their handler factories.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/voltflow/voltflow/pkg/protocol"
)

// Registry is the static node-type → factory table. It is populated at
// process start and read-only afterwards, so lookups need no locking.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.HandlerFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[string]protocol.HandlerFactory),
	}
}

// Register adds a factory under its own ID. Later registrations win,
// which lets tests shadow a native handler.
func (r *Registry) Register(factory protocol.HandlerFactory) {
	r.factories[factory.ID()] = factory
}

// CreateHandler resolves the factory for nodeType, validates the
// configuration against the factory's schema, and builds the handler.
func (r *Registry) CreateHandler(ctx context.Context, nodeType string, config map[string]any) (protocol.Handler, error) {
	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	err := r.validateConfig(factory, config)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration for node type '%s': %w", nodeType, err)
	}

	return factory.Create(ctx, config)
}

// Factory returns the raw factory for a node type, used by the agent
// loop to synthesize tool definitions.
func (r *Registry) Factory(nodeType string) (protocol.HandlerFactory, bool) {
	factory, ok := r.factories[nodeType]

	return factory, ok
}

// HandlerTypes returns the registered node-type strings.
func (r *Registry) HandlerTypes() []string {
	types := make([]string, 0, len(r.factories))
	for nodeType := range r.factories {
		types = append(types, nodeType)
	}

	return types
}

func (r *Registry) validateConfig(factory protocol.HandlerFactory, config map[string]any) error {
	schema := factory.Schema()
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	if config == nil {
		config = map[string]any{}
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(configJSON),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("config does not match schema: %s", errs[0].String())
		}
	}

	return nil
}
