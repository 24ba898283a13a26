package perf

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/reviewflow/internal/flow/emit"
	"github.com/dshills/reviewflow/internal/llm"
)

const leakyProgram = `int process(int *data, int n) {
    char *buf = malloc(64);
    for (int i = 0; i < n; i++) {
        for (int j = 0; j < n; j++) {
            data[i] += j;
        }
    }
    return data[0];
}
`

func TestRun_StaticEndToEnd(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"main.c": leakyProgram})
	buf := emit.NewBufferedEmitter()

	final, err := Run(context.Background(), Config{
		RunID:     "perf-e2e",
		Language:  "c",
		Scanner:   sc,
		Completer: llm.NewMockProvider("Tighten the nested loops in process."),
		Emitter:   buf,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(final.CodeUnits) != 1 || final.CodeUnits[0].Name != "process" {
		t.Fatalf("CodeUnits = %+v", final.CodeUnits)
	}
	if final.CodeUnits[0].Loops != 2 {
		t.Errorf("Loops = %d, want 2", final.CodeUnits[0].Loops)
	}

	kinds := map[string]bool{}
	for _, r := range final.MemoryRisks {
		kinds[r.Kind] = true
	}
	if !kinds["potential_leak"] || !kinds["missing_null_check"] {
		t.Errorf("MemoryRisks = %+v", final.MemoryRisks)
	}

	if len(final.Hotspots) != 1 || final.Hotspots[0].Rank != 1 || final.Hotspots[0].Name != "process" {
		t.Errorf("Hotspots = %+v", final.Hotspots)
	}
	if final.Dynamic != nil {
		t.Errorf("Dynamic = %+v without profiling", final.Dynamic)
	}

	if len(final.Optimizations) != 3 {
		t.Errorf("Optimizations = %+v", final.Optimizations)
	}
	if final.Optimizations[0].Priority != "high" {
		t.Errorf("opts[0] = %+v", final.Optimizations[0])
	}
	if final.Advice != "Tighten the nested loops in process." {
		t.Errorf("Advice = %q", final.Advice)
	}
	if len(final.Warnings) != 0 {
		t.Errorf("Warnings = %v", final.Warnings)
	}
	if final.FailureNotice != "" {
		t.Errorf("FailureNotice = %q", final.FailureNotice)
	}

	msgs := map[string]int{}
	for _, ev := range buf.History("perf-e2e") {
		msgs[ev.Msg]++
	}
	if msgs["run_start"] != 1 || msgs["run_end"] != 1 {
		t.Errorf("run events = %v", msgs)
	}
	if msgs["node_end"] != 4 {
		t.Errorf("node_end = %d, want one per stage", msgs["node_end"])
	}
}

func TestRun_ExtractionFailureIsTyped(t *testing.T) {
	sc := newTestScanner(t, map[string]string{
		"decls.c": "#include <stdio.h>\n\ntypedef struct point point_t;\n#define MAX 128\n",
	})

	_, err := Run(context.Background(), Config{
		RunID:    "perf-empty",
		Language: "c",
		Scanner:  sc,
		Emitter:  emit.NewNullEmitter(),
	})
	var xerr *ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("err = %v, want ExtractionError", err)
	}
	if !strings.Contains(xerr.Error(), "no functions found") {
		t.Errorf("err = %v", xerr)
	}
}

func TestRun_ProfilerFailureDegrades(t *testing.T) {
	sc := newTestScanner(t, map[string]string{"main.c": leakyProgram})

	final, err := Run(context.Background(), Config{
		RunID:       "perf-noexec",
		ProjectPath: t.TempDir(),
		Language:    "c",
		Scanner:     sc,
		Completer:   llm.NewMockProvider("advice"),
		Emitter:     emit.NewNullEmitter(),
		Profile:     true,
		Exec:        ExecSpec{Path: "missing-binary"},
	})
	if err != nil {
		t.Fatalf("profiler failure must not abort the pipeline: %v", err)
	}

	if final.Dynamic != nil {
		t.Errorf("Dynamic = %+v", final.Dynamic)
	}
	if len(final.Warnings) != 1 || !strings.Contains(final.Warnings[0], "dynamic profiling skipped") {
		t.Errorf("Warnings = %v", final.Warnings)
	}
	if len(final.MemoryRisks) == 0 {
		t.Error("static analysis lost alongside the profiler failure")
	}
	if len(final.Hotspots) == 0 || final.Advice == "" {
		t.Errorf("later stages skipped: hotspots %d, advice %q", len(final.Hotspots), final.Advice)
	}
}
