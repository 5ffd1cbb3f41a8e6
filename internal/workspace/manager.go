package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager maps visitor keys (cookie tokens, chat IDs) to workspaces.
type Manager struct {
	backend  Backend
	recorder Recorder
	logger   *slog.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewManager creates a manager whose workspaces share b and rec.
func NewManager(b Backend, rec Recorder, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:    b,
		recorder:   rec,
		logger:     logger,
		workspaces: make(map[string]*Workspace),
	}
}

// Get returns the workspace for key, or nil if there is none.
func (m *Manager) Get(key string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workspaces[key]
}

// GetOrCreate returns the workspace for key, creating an empty one if needed.
func (m *Manager) GetOrCreate(key string) *Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[key]
	if !ok {
		ws = New(m.backend, m.recorder, m.logger.With("visitor", shortKey(key)))
		m.workspaces[key] = ws
	}
	return ws
}

// Drop forgets the workspace for key.
func (m *Manager) Drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.workspaces, key)
}

// Len returns the number of live workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

// Sweep drops workspaces idle for longer than maxIdle and returns how many
// were removed.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, ws := range m.workspaces {
		if ws.LastUsed().Before(cutoff) {
			delete(m.workspaces, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				m.logger.Info("dropped idle workspaces", "count", n, "remaining", m.Len())
			}
		}
	}
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
