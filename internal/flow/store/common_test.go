package store

import (
	"context"
	"errors"
	"testing"
)

type jobState struct {
	Stage   string         `json:"stage"`
	Results map[int]string `json:"results"`
	Count   int            `json:"count"`
}

// runStoreConformance exercises the Store contract shared by all backends.
func runStoreConformance(t *testing.T, s Store[jobState]) {
	t.Helper()
	ctx := context.Background()

	t.Run("load latest of unknown run", func(t *testing.T) {
		_, _, err := s.LoadLatest(ctx, "no-such-run")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("save and load latest", func(t *testing.T) {
		if err := s.SaveStep(ctx, "run-1", 1, "analyze-structure", jobState{Stage: "structure"}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}
		if err := s.SaveStep(ctx, "run-1", 2, "plan-tasks", jobState{Stage: "plan", Count: 3}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}

		state, step, err := s.LoadLatest(ctx, "run-1")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if step != 2 || state.Stage != "plan" || state.Count != 3 {
			t.Errorf("got step=%d state=%+v", step, state)
		}
	})

	t.Run("latest wins regardless of save order", func(t *testing.T) {
		if err := s.SaveStep(ctx, "run-2", 5, "report", jobState{Stage: "late"}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}
		if err := s.SaveStep(ctx, "run-2", 3, "dispatch", jobState{Stage: "early"}); err != nil {
			t.Fatalf("SaveStep: %v", err)
		}

		state, step, err := s.LoadLatest(ctx, "run-2")
		if err != nil {
			t.Fatalf("LoadLatest: %v", err)
		}
		if step != 5 || state.Stage != "late" {
			t.Errorf("got step=%d stage=%q, want step=5 stage=late", step, state.Stage)
		}
	})

	t.Run("checkpoint round trip", func(t *testing.T) {
		saved := jobState{Stage: "done", Results: map[int]string{1: "ok", 2: "failed"}}
		if err := s.SaveCheckpoint(ctx, "job-complete", saved, 9); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}

		state, step, err := s.LoadCheckpoint(ctx, "job-complete")
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if step != 9 || state.Stage != "done" {
			t.Errorf("got step=%d state=%+v", step, state)
		}
		if state.Results[1] != "ok" || state.Results[2] != "failed" {
			t.Errorf("results map lost: %+v", state.Results)
		}
	})

	t.Run("checkpoint overwrite", func(t *testing.T) {
		if err := s.SaveCheckpoint(ctx, "cp", jobState{Stage: "v1"}, 1); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}
		if err := s.SaveCheckpoint(ctx, "cp", jobState{Stage: "v2"}, 2); err != nil {
			t.Fatalf("SaveCheckpoint: %v", err)
		}

		state, step, err := s.LoadCheckpoint(ctx, "cp")
		if err != nil {
			t.Fatalf("LoadCheckpoint: %v", err)
		}
		if state.Stage != "v2" || step != 2 {
			t.Errorf("overwrite lost: stage=%q step=%d", state.Stage, step)
		}
	})

	t.Run("load unknown checkpoint", func(t *testing.T) {
		_, _, err := s.LoadCheckpoint(ctx, "no-such-checkpoint")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})
}
