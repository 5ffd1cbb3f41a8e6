package workspace

import (
	"context"
	"testing"
	"time"
)

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(&fakeBackend{}, nil, nil)

	if m.Get("v1") != nil {
		t.Fatal("expected no workspace before creation")
	}
	a := m.GetOrCreate("v1")
	b := m.GetOrCreate("v1")
	if a != b {
		t.Error("GetOrCreate should return the same workspace for a key")
	}
	if m.GetOrCreate("v2") == a {
		t.Error("different keys must get different workspaces")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}

	m.Drop("v1")
	if m.Get("v1") != nil {
		t.Error("workspace should be dropped")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestManagerSweep(t *testing.T) {
	m := NewManager(&fakeBackend{}, nil, nil)
	old := m.GetOrCreate("old")
	m.GetOrCreate("fresh")

	old.mu.Lock()
	old.lastUsed = time.Now().Add(-2 * time.Hour)
	old.mu.Unlock()

	if n := m.Sweep(time.Hour); n != 1 {
		t.Fatalf("Sweep removed %d, want 1", n)
	}
	if m.Get("old") != nil {
		t.Error("idle workspace should be removed")
	}
	if m.Get("fresh") == nil {
		t.Error("recent workspace should be kept")
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	m := NewManager(&fakeBackend{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.RunSweeper(ctx, time.Millisecond, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
