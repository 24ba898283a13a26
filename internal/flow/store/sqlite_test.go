package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore_Conformance(t *testing.T) {
	s, err := NewSQLiteStore[jobState](":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()

	runStoreConformance(t, s)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore[jobState](path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s1.SaveStep(ctx, "run-1", 4, "report", jobState{Stage: "report"}); err != nil {
		t.Fatalf("SaveStep: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewSQLiteStore[jobState](path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	state, step, err := s2.LoadLatest(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadLatest after reopen: %v", err)
	}
	if step != 4 || state.Stage != "report" {
		t.Errorf("state lost across reopen: step=%d stage=%q", step, state.Stage)
	}
}

func TestSQLiteStore_ClosedRejectsWrites(t *testing.T) {
	s, err := NewSQLiteStore[jobState](":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.SaveStep(context.Background(), "run", 1, "n", jobState{}); err == nil {
		t.Error("SaveStep on closed store should fail")
	}
}
