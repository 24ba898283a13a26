package report

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dshills/reviewflow/internal/flow/emit"
)

func newReportDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header
}

func TestServerIndex(t *testing.T) {
	dir := newReportDir(t, map[string]string{
		"style_report.md":      "# Review\n",
		"project_structure.md": "# Structure\n",
		"notes.txt":            "not a report",
	})
	ts := httptest.NewServer((&Server{Dir: dir}).Handler())
	defer ts.Close()

	status, body, _ := get(t, ts.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	for _, want := range []string{
		`href="/reports/style_report.md"`,
		`href="/raw/style_report.md"`,
		"Code Review Report",
		"Project Structure",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "notes.txt") {
		t.Error("non-Markdown file listed")
	}

	if status, _, _ := get(t, ts.URL+"/favicon.ico"); status != http.StatusNotFound {
		t.Errorf("unknown path status = %d", status)
	}
}

func TestServerIndexEmpty(t *testing.T) {
	ts := httptest.NewServer((&Server{Dir: t.TempDir()}).Handler())
	defer ts.Close()

	status, body, _ := get(t, ts.URL+"/")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "No reports found.") {
		t.Errorf("empty index:\n%s", body)
	}
}

func TestServerRendersMarkdown(t *testing.T) {
	dir := newReportDir(t, map[string]string{
		"style_report.md":      "# Review\n\n| Task | Status |\n|---|---|\n| 1 | ok |\n",
		"project_structure.md": "# Structure\n",
	})
	ts := httptest.NewServer((&Server{Dir: dir}).Handler())
	defer ts.Close()

	status, body, header := get(t, ts.URL+"/reports/style_report.md")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if ct := header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	for _, want := range []string{
		"<h1>Review</h1>",
		"<table>",
		`href="/reports/project_structure.md"`,
		"<title>Code Review Report - reviewflow</title>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q:\n%s", want, body)
		}
	}
}

func TestServerRaw(t *testing.T) {
	const content = "# Review\n\nplain markdown\n"
	dir := newReportDir(t, map[string]string{"style_report.md": content})
	ts := httptest.NewServer((&Server{Dir: dir}).Handler())
	defer ts.Close()

	status, body, header := get(t, ts.URL+"/raw/style_report.md")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if ct := header.Get("Content-Type"); ct != "text/markdown; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if body != content {
		t.Errorf("body = %q", body)
	}
}

func TestServerRejectsBadReportNames(t *testing.T) {
	dir := newReportDir(t, map[string]string{
		"style_report.md": "# Review\n",
		"notes.txt":       "not a report",
	})
	ts := httptest.NewServer((&Server{Dir: dir}).Handler())
	defer ts.Close()

	for _, path := range []string{"/reports/missing.md", "/reports/notes.txt", "/raw/notes.txt"} {
		if status, _, _ := get(t, ts.URL+path); status != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, status)
		}
	}

	s := &Server{Dir: dir}
	for _, raw := range []string{"", "sub/style_report.md", `..\style_report.md`, "style_report.txt"} {
		if _, ok := s.reportName(raw); ok {
			t.Errorf("reportName(%q) accepted", raw)
		}
	}
	if name, ok := s.reportName("style_report.md"); !ok || name != "style_report.md" {
		t.Errorf("reportName rejected a real report: %q %v", name, ok)
	}
}

func TestServerEvents(t *testing.T) {
	buf := emit.NewBufferedEmitter()
	buf.Emit(emit.Event{RunID: "r1", Step: 1, NodeID: "analyze-structure", Msg: "node_start"})
	buf.Emit(emit.Event{RunID: "r1", Step: 1, NodeID: "analyze-structure", Msg: "node_end"})
	buf.Emit(emit.Event{RunID: "r2", Step: 1, NodeID: "plan-tasks", Msg: "node_start"})

	ts := httptest.NewServer((&Server{Dir: t.TempDir(), Events: buf}).Handler())
	defer ts.Close()

	status, body, header := get(t, ts.URL+"/events?run=r1")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if ct := header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var events []emit.Event
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(events), events)
	}
	for _, ev := range events {
		if ev.RunID != "r1" {
			t.Errorf("event from wrong run: %+v", ev)
		}
	}

	_, body, _ = get(t, ts.URL+"/events")
	events = nil
	if err := json.Unmarshal([]byte(body), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want all runs", len(events))
	}
}

func TestServerEventsNotEnabled(t *testing.T) {
	ts := httptest.NewServer((&Server{Dir: t.TempDir()}).Handler())
	defer ts.Close()

	if status, _, _ := get(t, ts.URL+"/events"); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reviewflow_test_requests_total",
		Help: "Test counter.",
	})
	reg.MustRegister(counter)
	counter.Inc()

	ts := httptest.NewServer((&Server{Dir: t.TempDir(), Registry: reg}).Handler())
	defer ts.Close()

	status, body, _ := get(t, ts.URL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "reviewflow_test_requests_total 1") {
		t.Errorf("metrics output missing counter:\n%s", body)
	}

	bare := httptest.NewServer((&Server{Dir: t.TempDir()}).Handler())
	defer bare.Close()
	if status, _, _ := get(t, bare.URL+"/metrics"); status != http.StatusNotFound {
		t.Errorf("status without registry = %d, want 404", status)
	}
}
