// Package file provides a file-backed persistence implementation for
// local development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/voltflow/voltflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of JSON files.
type Persistence struct {
	root        string
	mu          sync.RWMutex
	flows       *FlowRepository
	runs        *RunRepository
	nodeOutputs *NodeOutputRepository
	credentials *CredentialRepository
	memories    *AgentMemoryRepository
}

// NewPersistence creates a file persistence rooted at the given
// directory. A "file://" prefix is stripped if present.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.flows = &FlowRepository{p: p}
	p.runs = &RunRepository{p: p}
	p.nodeOutputs = &NodeOutputRepository{p: p}
	p.credentials = &CredentialRepository{p: p}
	p.memories = &AgentMemoryRepository{p: p}

	return p
}

func (p *Persistence) Flows() persistence.FlowRepository { return p.flows }

func (p *Persistence) Runs() persistence.RunRepository { return p.runs }

func (p *Persistence) NodeOutputs() persistence.NodeOutputRepository { return p.nodeOutputs }

func (p *Persistence) Credentials() persistence.CredentialRepository { return p.credentials }

func (p *Persistence) AgentMemories() persistence.AgentMemoryRepository { return p.memories }

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// read unmarshals the JSON file at the given relative path into out.
// Returns os.ErrNotExist when the file is missing.
func (p *Persistence) read(rel string, out any) error {
	data, err := os.ReadFile(filepath.Join(p.root, rel))
	if err != nil {
		return err
	}

	return json.Unmarshal(data, out)
}

// write marshals in to the JSON file at the given relative path,
// creating parent directories as needed.
func (p *Persistence) write(rel string, in any) error {
	path := filepath.Join(p.root, rel)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", rel, err)
	}

	return os.WriteFile(path, data, 0o644)
}

func (p *Persistence) remove(rel string) error {
	err := os.Remove(filepath.Join(p.root, rel))
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	return nil
}

// list returns the relative paths of all JSON files under rel.
func (p *Persistence) list(rel string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, rel))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		files = append(files, filepath.Join(rel, entry.Name()))
	}

	return files, nil
}
