package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dshills/reviewflow/internal/flow/emit"
)

// Titles for the documents a run produces; other .md files fall back to
// their file name.
var documentTitles = map[string]string{
	"project_structure.md":    "Project Structure",
	"style_report.md":         "Code Review Report",
	"performance_analysis.md": "Performance Analysis",
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}} - reviewflow</title>
<style>
body { max-width: 56rem; margin: 2rem auto; padding: 0 1rem;
       font: 16px/1.6 system-ui, sans-serif; color: #1f2328; }
nav { border-bottom: 1px solid #d1d9e0; padding-bottom: .75rem; margin-bottom: 1.5rem; }
nav a { margin-right: 1rem; text-decoration: none; color: #0969da; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; border-radius: 6px; }
code { background: #f6f8fa; padding: .1em .3em; border-radius: 4px; font-size: .95em; }
pre code { padding: 0; }
table { border-collapse: collapse; }
th, td { border: 1px solid #d1d9e0; padding: .3em .6em; }
blockquote { color: #59636e; border-left: 4px solid #d1d9e0; margin-left: 0; padding-left: 1em; }
</style>
</head>
<body>
<nav><a href="/">Index</a>{{range .Nav}}<a href="/reports/{{.Name}}">{{.Title}}</a>{{end}}</nav>
{{.Body}}
</body>
</html>
`

var pageTmpl = template.Must(template.New("page").Parse(pageTemplate))

// Server renders the run's Markdown reports over HTTP and exposes the run
// event history and Prometheus metrics alongside them.
type Server struct {
	// Dir is the report directory to serve.
	Dir string

	// Events, when set, backs the /events endpoint.
	Events *emit.BufferedEmitter

	// Registry, when set, backs the /metrics endpoint.
	Registry *prometheus.Registry
}

type navEntry struct {
	Name  string
	Title string
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		s.serveIndex(w)
	})
	mux.HandleFunc("/reports/", func(w http.ResponseWriter, r *http.Request) {
		name, ok := s.reportName(strings.TrimPrefix(r.URL.Path, "/reports/"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		var body bytes.Buffer
		if err := md.Convert(data, &body); err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		s.renderPage(w, documentTitle(name), body.String())
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		name, ok := s.reportName(strings.TrimPrefix(r.URL.Path, "/raw/"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		data, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write(data)
	})
	mux.HandleFunc("/events", s.serveEvents)
	if s.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) serveIndex(w http.ResponseWriter) {
	names := s.listReports()
	var body strings.Builder
	body.WriteString("<h1>Review Reports</h1>\n<ul>\n")
	for _, name := range names {
		fmt.Fprintf(&body, `<li><a href="/reports/%s">%s</a> (<a href="/raw/%s">raw</a>)</li>`+"\n",
			name, documentTitle(name), name)
	}
	body.WriteString("</ul>\n")
	if len(names) == 0 {
		body.WriteString("<p>No reports found.</p>\n")
	}
	s.renderPage(w, "Review Reports", body.String())
}

func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		http.Error(w, "event history not enabled", http.StatusNotFound)
		return
	}

	var events []emit.Event
	if runID := r.URL.Query().Get("run"); runID != "" {
		events = s.Events.History(runID)
	} else {
		for _, runID := range s.Events.RunIDs() {
			events = append(events, s.Events.History(runID)...)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}

func (s *Server) renderPage(w http.ResponseWriter, title, body string) {
	var nav []navEntry
	for _, name := range s.listReports() {
		nav = append(nav, navEntry{Name: name, Title: documentTitle(name)})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	pageTmpl.Execute(w, struct {
		Title string
		Nav   []navEntry
		Body  template.HTML
	}{Title: title, Nav: nav, Body: template.HTML(body)})
}

// reportName validates a requested document name: a bare .md file name that
// actually exists in the report directory. Anything else, in particular
// anything with a path separator, is rejected.
func (s *Server) reportName(raw string) (string, bool) {
	if raw == "" || strings.ContainsAny(raw, "/\\") || !strings.HasSuffix(raw, ".md") {
		return "", false
	}
	for _, name := range s.listReports() {
		if name == raw {
			return name, true
		}
	}
	return "", false
}

func (s *Server) listReports() []string {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".md") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

func documentTitle(name string) string {
	if title, ok := documentTitles[name]; ok {
		return title
	}
	return name
}
