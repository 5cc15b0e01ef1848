// Package storage persists batch run state. A Manifest is a single JSON
// file, guarded by an advisory file lock against concurrent processes and
// written atomically so a crash never leaves it half-updated.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	schemaVersion = "1.0"
	lockTimeout   = 5 * time.Second
)

// RunStatus is the lifecycle state of a batch run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// VideoResult is the outcome of downloading one video's comments.
type VideoResult struct {
	VideoID    string    `json:"video_id"`
	Output     string    `json:"output,omitempty"`
	Comments   int       `json:"comments"`
	Skipped    bool      `json:"skipped,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Run records one batch invocation and its per-video outcomes.
type Run struct {
	ID         string                  `json:"id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Status     RunStatus               `json:"status"`
	Videos     map[string]*VideoResult `json:"videos"`
}

// manifestData is the top-level JSON structure.
type manifestData struct {
	Version   string          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	Runs      map[string]*Run `json:"runs"`
}

// Manifest is a file-backed record of batch runs. It holds an exclusive
// file lock for its lifetime; Close releases it.
type Manifest struct {
	path string
	lock *FileLock
	data *manifestData
	mu   sync.Mutex
}

// OpenManifest opens the manifest at path, creating it if absent.
func OpenManifest(path string) (*Manifest, error) {
	m := &Manifest{
		path: path,
		lock: NewFileLock(path),
	}

	if err := m.lock.Lock(lockTimeout); err != nil {
		return nil, err
	}

	if err := m.load(); err != nil {
		m.lock.Unlock()
		return nil, err
	}
	return m, nil
}

func (m *Manifest) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.data = &manifestData{
				Version: schemaVersion,
				Runs:    map[string]*Run{},
			}
			// Save immediately to catch permission errors early
			return m.save()
		}
		return &StorageError{Op: "read", Entity: "manifest", Err: err}
	}

	m.data = &manifestData{}
	if err := json.Unmarshal(data, m.data); err != nil {
		return &StorageError{Op: "read", Entity: "manifest", Err: ErrManifestCorrupt}
	}
	if m.data.Runs == nil {
		m.data.Runs = map[string]*Run{}
	}
	return nil
}

func (m *Manifest) save() error {
	m.data.UpdatedAt = time.Now()

	writer, err := NewAtomicWriter(m.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "manifest", Err: err}
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m.data); err != nil {
		writer.Abort()
		return &StorageError{Op: "write", Entity: "manifest", Err: err}
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "manifest", Err: err}
	}
	return nil
}

// StartRun registers a new run and returns its identifier.
func (m *Manifest) StartRun() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.data.Runs[id] = &Run{
		ID:        id,
		StartedAt: time.Now(),
		Status:    RunRunning,
		Videos:    map[string]*VideoResult{},
	}
	if err := m.save(); err != nil {
		return "", err
	}
	return id, nil
}

// RecordVideo stores the outcome of one video within a run.
func (m *Manifest) RecordVideo(runID string, result VideoResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.data.Runs[runID]
	if !ok {
		return &StorageError{Op: "write", Entity: "manifest", ID: runID, Err: fmt.Errorf("unknown run")}
	}
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now()
	}
	run.Videos[result.VideoID] = &result
	return m.save()
}

// FinishRun marks a run as completed or failed.
func (m *Manifest) FinishRun(runID string, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.data.Runs[runID]
	if !ok {
		return &StorageError{Op: "write", Entity: "manifest", ID: runID, Err: fmt.Errorf("unknown run")}
	}
	run.Status = status
	run.FinishedAt = time.Now()
	return m.save()
}

// Run returns a copy of the run with the given identifier.
func (m *Manifest) Run(runID string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.data.Runs[runID]
	if !ok {
		return Run{}, false
	}
	out := *run
	out.Videos = make(map[string]*VideoResult, len(run.Videos))
	for k, v := range run.Videos {
		vc := *v
		out.Videos[k] = &vc
	}
	return out, true
}

// Close releases the manifest's file lock.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lock.Unlock()
}
