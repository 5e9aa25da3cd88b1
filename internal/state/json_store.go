// Package state persists orchestrator checkpoints as JSON files so a
// restarted daemon can resume its queue and retry bookkeeping.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

const checkpointFile = "checkpoint.json"

// JSONStore implements orchestrator.CheckpointStore using a single JSON file
// with atomic replace-on-write semantics.
type JSONStore struct {
	dataDir   string
	mu        sync.Mutex
	lastSaved *time.Time
}

// NewJSONStore creates the data directory if needed and returns the store.
func NewJSONStore(dataDir string) (*JSONStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dataDir, err)
	}
	return &JSONStore{dataDir: dataDir}, nil
}

// Save writes the checkpoint atomically via a temporary file.
func (js *JSONStore) Save(_ context.Context, cp orchestrator.Checkpoint) error {
	js.mu.Lock()
	defer js.mu.Unlock()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	statePath := filepath.Join(js.dataDir, checkpointFile)
	tempPath := statePath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary checkpoint file: %w", err)
	}
	if err := os.Rename(tempPath, statePath); err != nil {
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	now := time.Now()
	js.lastSaved = &now
	return nil
}

// Load reads the latest checkpoint. A missing file yields (nil, nil).
func (js *JSONStore) Load(_ context.Context) (*orchestrator.Checkpoint, error) {
	js.mu.Lock()
	defer js.mu.Unlock()

	statePath := filepath.Join(js.dataDir, checkpointFile)
	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp orchestrator.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// LastSaved reports when the store last wrote a checkpoint, if ever.
func (js *JSONStore) LastSaved() *time.Time {
	js.mu.Lock()
	defer js.mu.Unlock()
	return js.lastSaved
}
