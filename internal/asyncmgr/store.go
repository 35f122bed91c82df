// Package asyncmgr implements the per-output-directory async task handle
// store and polling loop.
package asyncmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sanix-darker/librarium/internal/config"
	"github.com/sanix-darker/librarium/internal/provider"
)

// FileName is the handle-store file written into each run's output
// directory.
const FileName = "async-tasks.json"

// Load reads the handle file in dir, returning an empty slice if it does
// not exist yet.
func Load(dir string) ([]provider.Handle, error) {
	path := filepath.Join(dir, FileName)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []provider.Handle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("asyncmgr: failed to read %s: %w", path, err)
	}
	var handles []provider.Handle
	if err := json.Unmarshal(raw, &handles); err != nil {
		return nil, fmt.Errorf("asyncmgr: failed to parse %s: %w", path, err)
	}
	return handles, nil
}

// Save overwrites the handle file in dir with handles, atomically.
func Save(dir string, handles []provider.Handle) error {
	if handles == nil {
		handles = []provider.Handle{}
	}
	raw, err := json.MarshalIndent(handles, "", "  ")
	if err != nil {
		return fmt.Errorf("asyncmgr: failed to marshal handles: %w", err)
	}
	return config.AtomicWriteFile(filepath.Join(dir, FileName), raw, 0o644)
}

// UpdateOne loads the handle file, finds the entry matching taskID, applies
// mutate to it, and saves the result. It is a no-op (returns nil) if no
// handle with that task id exists.
func UpdateOne(dir, taskID string, mutate func(*provider.Handle)) error {
	handles, err := Load(dir)
	if err != nil {
		return err
	}
	found := false
	for i := range handles {
		if handles[i].TaskID == taskID {
			mutate(&handles[i])
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	return Save(dir, handles)
}

// RemoveOne loads the handle file, drops the entry matching taskID, and
// saves the result.
func RemoveOne(dir, taskID string) error {
	handles, err := Load(dir)
	if err != nil {
		return err
	}
	out := handles[:0]
	for _, h := range handles {
		if h.TaskID != taskID {
			out = append(out, h)
		}
	}
	return Save(dir, out)
}

// QueryEntry pairs a loaded handle with the run directory it came from, so
// callers can write retrieved artifacts back into the right place.
type QueryEntry struct {
	Dir    string          `json:"dir"`
	Handle provider.Handle `json:"handle"`
}

// Query walks baseDir's immediate child directories, loads each one's
// handle file (if any), and returns every handle whose status is one of
// the given statuses. An empty statuses list matches every handle.
func Query(baseDir string, statuses ...provider.HandleStatus) ([]QueryEntry, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("asyncmgr: failed to list %s: %w", baseDir, err)
	}

	match := func(s provider.HandleStatus) bool {
		if len(statuses) == 0 {
			return true
		}
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}

	var out []QueryEntry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(baseDir, e.Name())
		handles, err := Load(dir)
		if err != nil {
			return nil, err
		}
		for _, h := range handles {
			if match(h.Status) {
				out = append(out, QueryEntry{Dir: dir, Handle: h})
			}
		}
	}
	return out, nil
}
