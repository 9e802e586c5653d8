// Package journal stores agent runs as JSON files, one per run. It is the
// trace store used when no database is configured.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"atlas-api/pkg/agent"
)

const (
	defaultDir       = "journal"
	defaultListLimit = 50
	filePrefix       = "run_"
	fileSuffix       = ".json"
)

var (
	ErrNotFound = agent.ErrRunNotFound
	ErrExists   = errors.New("journal: run already recorded")
)

// Store persists runs under a directory. Each run is written exactly once.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory runs are written to.
func (s *Store) Dir() string { return s.dir }

// RecordRun writes run to run_<id>.json. It implements agent.Recorder.
func (s *Store) RecordRun(_ context.Context, run *agent.Run) error {
	if run == nil {
		return fmt.Errorf("journal: nil run")
	}
	path, err := s.path(run.RunID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("journal: encode run %s: %w", run.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, run.RunID)
		}
		return fmt.Errorf("journal: create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("journal: write %s: %w", path, err)
	}
	return f.Close()
}

// FindByRunID reads one run back.
func (s *Store) FindByRunID(_ context.Context, runID string) (*agent.Run, error) {
	path, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	run, err := readRun(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return run, err
}

// ListByUser returns the user's runs, newest first. limit <= 0 means 50.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*agent.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	runs, err := s.all()
	if err != nil {
		return nil, err
	}
	out := make([]*agent.Run, 0, limit)
	for _, r := range runs {
		if r.UserID != userID {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// LatestByUser returns the user's most recent run.
func (s *Store) LatestByUser(ctx context.Context, userID string) (*agent.Run, error) {
	runs, err := s.ListByUser(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// Stats summarises the runs stored at or after since; zero means all.
func (s *Store) Stats(_ context.Context, since time.Time) (agent.Stats, error) {
	runs, err := s.all()
	if err != nil {
		return agent.Stats{}, err
	}
	return agent.Summarize(runs, since), nil
}

// all loads every run, newest first.
func (s *Store) all() ([]*agent.Run, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: read dir %s: %w", s.dir, err)
	}
	runs := make([]*agent.Run, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		run, err := readRun(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].Timestamp.After(runs[j].Timestamp) })
	return runs, nil
}

func (s *Store) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", fmt.Errorf("journal: invalid run id %q", runID)
	}
	return filepath.Join(s.dir, filePrefix+runID+fileSuffix), nil
}

func readRun(path string) (*agent.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var run agent.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("journal: decode %s: %w", path, err)
	}
	return &run, nil
}
