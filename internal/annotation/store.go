// Package annotation persists per-segment detection outcomes next to the live
// stream so players can highlight segments with a sighting.
package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Annotation is the stored outcome for one segment.
type Annotation struct {
	BirdDetected bool `json:"bird_detected"`
}

// Annotations maps segment filename to its outcome.
type Annotations map[string]Annotation

// Store is the persistence contract used by the pipeline and status server.
type Store interface {
	// Annotate records the outcome for name and persists the whole map.
	Annotate(name string, detected bool) error
	// Prune drops every entry whose name is not in live. It reports whether
	// anything was removed; nothing is written otherwise.
	Prune(live []string) (bool, error)
	// All returns a copy of the current map.
	All() Annotations
}

// FileStore keeps the map in a single JSON file, rewritten on every change.
// The live window is a handful of segments, so a full rewrite stays cheap.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

// NewFileStore returns a store backed by path. The file need not exist.
func NewFileStore(path string, log *slog.Logger) *FileStore {
	if log == nil {
		log = slog.Default()
	}
	return &FileStore{path: path, log: log}
}

// Annotate implements Store.Annotate.
func (s *FileStore) Annotate(name string, detected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	anns := s.load()
	anns[name] = Annotation{BirdDetected: detected}
	return s.write(anns)
}

// Prune implements Store.Prune.
func (s *FileStore) Prune(live []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]struct{}, len(live))
	for _, name := range live {
		keep[name] = struct{}{}
	}

	anns := s.load()
	removed := false
	for name := range anns {
		if _, ok := keep[name]; !ok {
			delete(anns, name)
			removed = true
		}
	}
	if !removed {
		return false, nil
	}
	return true, s.write(anns)
}

// All implements Store.All.
func (s *FileStore) All() Annotations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load never fails: a missing or unreadable file reads as empty and is
// recreated by the next write.
func (s *FileStore) load() Annotations {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("annotations file missing; recreating", slog.String("path", s.path))
		} else {
			s.log.Warn("annotations file unreadable; resetting", slog.String("path", s.path), slog.String("error", err.Error()))
		}
		return Annotations{}
	}

	var anns Annotations
	if err := json.Unmarshal(b, &anns); err != nil || anns == nil {
		s.log.Warn("annotations file corrupt; resetting", slog.String("path", s.path))
		return Annotations{}
	}
	return anns
}

func (s *FileStore) write(anns Annotations) error {
	b, err := json.Marshal(anns)
	if err != nil {
		return fmt.Errorf("encode annotations: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create annotations dir: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write annotations: %w", err)
	}
	// WriteFile only applies the mode on create; the web server needs read access.
	if err := os.Chmod(s.path, 0o644); err != nil {
		return fmt.Errorf("chmod annotations: %w", err)
	}
	return nil
}
