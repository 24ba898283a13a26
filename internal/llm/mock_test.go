package llm

import (
	"context"
	"testing"
)

func TestMockProvider_ReplaysResponses(t *testing.T) {
	mock := NewMockProvider("first", "second")
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		got, err := mock.Complete(ctx, Request{Prompt: "p"})
		if err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}

	calls := mock.Calls()
	if len(calls) != 3 {
		t.Fatalf("recorded %d calls, want 3", len(calls))
	}
	if calls[0].Prompt != "p" {
		t.Errorf("recorded prompt = %q", calls[0].Prompt)
	}
}

func TestMockProvider_FailuresDoNotConsumeResponses(t *testing.T) {
	mock := NewMockProvider("only").FailFirst(1, errTransient)
	ctx := context.Background()

	if _, err := mock.Complete(ctx, Request{}); err == nil {
		t.Fatal("first call should fail")
	}
	got, err := mock.Complete(ctx, Request{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if got != "only" {
		t.Errorf("got %q, want %q", got, "only")
	}
}

func TestMockProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := NewMockProvider("x")
	if _, err := mock.Complete(ctx, Request{}); err == nil {
		t.Error("want context error")
	}
	if mock.CallCount() != 0 {
		t.Errorf("cancelled call recorded: count=%d", mock.CallCount())
	}
}
