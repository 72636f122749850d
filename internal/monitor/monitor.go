// Package monitor persists per-worker state to disk so an external text or
// GUI monitor has something to read without needing a private protocol to
// the supervisor.
//
// The atomic temp-file-then-rename save pattern is adapted from a
// container runtime's state-file persistence: same mechanism, repurposed
// from "OCI container state" to "one compile worker's current job".
package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// WorkerState is what gets written to <dir>/<pid>.json; pool.Worker saves
// one snapshot after each connection it serves.
type WorkerState struct {
	PID       int       `json:"pid"`
	State     string    `json:"state"`
	Peer      string    `json:"peer,omitempty"`
	Compiler  string    `json:"compiler,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Requests  int       `json:"requestsServed"`
}

// Writer persists WorkerState snapshots for one worker process.
type Writer struct {
	path string
}

// NewWriter returns a Writer that saves state to <dir>/<pid>.json.
func NewWriter(dir string, pid int) *Writer {
	return &Writer{path: filepath.Join(dir, strconv.Itoa(pid)+".json")}
}

// Save atomically writes state, replacing any previous snapshot.
func (w *Writer) Save(state WorkerState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".monitor-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return err
	}
	success = true
	return nil
}

// Remove deletes the persisted snapshot, called when a worker exits.
func (w *Writer) Remove() error {
	err := os.Remove(w.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
