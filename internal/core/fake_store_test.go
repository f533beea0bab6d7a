package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	dir    string
	runs   map[string]*Run
	order  []string
	pruned []string

	failInserts int
}

func newMemStore(dir string) *memStore {
	return &memStore{dir: dir, runs: make(map[string]*Run)}
}

func (m *memStore) InsertRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInserts > 0 {
		m.failInserts--
		return errors.New("database is locked")
	}
	cp := *run
	m.runs[run.ID] = &cp
	m.order = append(m.order, run.ID)
	return nil
}

func (m *memStore) MarkRunStarted(_ context.Context, id string, startedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id].Status = RunStatusRunning
	m.runs[id].StartedAt = &startedAt
	return nil
}

func (m *memStore) MarkRunCompleted(_ context.Context, id string, status RunStatus, endedAt time.Time, exitCode *int, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.runs[id]
	r.Status = status
	r.EndedAt = &endedAt
	r.ExitCode = exitCode
	r.Error = errMsg
	return nil
}

func (m *memStore) EnsureRunLogDir(string) error { return os.MkdirAll(m.dir, 0o755) }

func (m *memStore) RunLogPath(runID string) string { return filepath.Join(m.dir, runID+".log") }

func (m *memStore) PruneOldRunLogs(_ context.Context, target string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned = append(m.pruned, target)
	return nil
}

func (m *memStore) get(id string) Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.runs[id]
}

func (m *memStore) byStatus(status RunStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.runs {
		if r.Status == status {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
