// Package perf implements the performance analysis sub-pipeline: code unit
// extraction, static memory risk analysis, optional dynamic profiling of
// the project binary, hotspot scoring, and optimization advice. The stages
// run on their own flow.Engine over a State merged by Reduce; Run drives
// the whole pipeline and returns the final State.
package perf

// Node IDs of the performance pipeline, in transition order.
const (
	NodeExtract  = "perf-extract"
	NodeAnalyze  = "perf-analyze"
	NodeHotspots = "perf-hotspots"
	NodeAdvise   = "perf-advise"
)

// ExecSpec names the binary the profiler runs. An empty Path means probe
// conventional build output locations under the project root.
type ExecSpec struct {
	Path string   `json:"path,omitempty"`
	Args []string `json:"args,omitempty"`
	Dir  string   `json:"dir,omitempty"`
}

// CodeUnit is one extracted function with the static features the hotspot
// scorer consumes.
type CodeUnit struct {
	Name      string   `json:"name"`
	File      string   `json:"file"`
	StartLine int      `json:"start_line"`
	EndLine   int      `json:"end_line"`
	Language  string   `json:"language"`
	Params    []string `json:"params,omitempty"`
	Loops     int      `json:"loops"`
	Calls     int      `json:"calls"`
	Recursive bool     `json:"recursive,omitempty"`
	Snippet   string   `json:"snippet,omitempty"`
}

// MemoryRisk is one statically detected memory hazard.
type MemoryRisk struct {
	Kind        string `json:"kind"`
	File        string `json:"file"`
	Line        int    `json:"line"`
	Severity    string `json:"severity"`
	Function    string `json:"function,omitempty"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion,omitempty"`
}

// DynamicMetrics holds what the profiler could parse from one measured run.
// Fields the tool did not report stay zero.
type DynamicMetrics struct {
	Tool           string  `json:"tool"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
	UserSeconds    float64 `json:"user_seconds,omitempty"`
	SystemSeconds  float64 `json:"system_seconds,omitempty"`
	CPUPercent     int     `json:"cpu_percent,omitempty"`
	MaxRSSKB       int64   `json:"max_rss_kb,omitempty"`
	CacheMissRate  float64 `json:"cache_miss_rate,omitempty"`
	Instructions   int64   `json:"instructions,omitempty"`

	VoluntaryCtxSwitches   int64 `json:"voluntary_ctx_switches,omitempty"`
	InvoluntaryCtxSwitches int64 `json:"involuntary_ctx_switches,omitempty"`
	MajorPageFaults        int64 `json:"major_page_faults,omitempty"`
	MinorPageFaults        int64 `json:"minor_page_faults,omitempty"`
	FSInputs               int64 `json:"fs_inputs,omitempty"`
	FSOutputs              int64 `json:"fs_outputs,omitempty"`

	ExitCode int    `json:"exit_code,omitempty"`
	Raw      string `json:"raw,omitempty"`
}

// Hotspot is one scored code unit.
type Hotspot struct {
	Rank         int      `json:"rank"`
	Name         string   `json:"name"`
	File         string   `json:"file"`
	StartLine    int      `json:"start_line"`
	EndLine      int      `json:"end_line"`
	Score        float64  `json:"score"`
	StaticScore  float64  `json:"static_score"`
	DynamicScore float64  `json:"dynamic_score,omitempty"`
	Severity     string   `json:"severity"`
	Reasons      []string `json:"reasons,omitempty"`
}

// Optimization is one concrete improvement suggestion.
type Optimization struct {
	Target   string `json:"target"`
	File     string `json:"file,omitempty"`
	Category string `json:"category"`
	Priority string `json:"priority"`
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
	Expected string `json:"expected,omitempty"`
}

// State is the shared state of the performance pipeline.
type State struct {
	ProjectPath string   `json:"project_path"`
	Language    string   `json:"language,omitempty"`
	Profile     bool     `json:"profile,omitempty"`
	Exec        ExecSpec `json:"exec,omitempty"`

	CodeUnits     []CodeUnit      `json:"code_units,omitempty"`
	MemoryRisks   []MemoryRisk    `json:"memory_risks,omitempty"`
	Dynamic       *DynamicMetrics `json:"dynamic,omitempty"`
	Hotspots      []Hotspot       `json:"hotspots,omitempty"`
	Optimizations []Optimization  `json:"optimizations,omitempty"`
	Advice        string          `json:"advice,omitempty"`

	// FailureNotice is set instead of results when the whole pipeline
	// failed; the report renders it and the review job continues.
	FailureNotice string   `json:"failure_notice,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// Reduce merges a node delta into the accumulated state. Result fields are
// write-once (each stage owns its own field); Warnings accumulate.
func Reduce(prev, delta State) State {
	if delta.ProjectPath != "" {
		prev.ProjectPath = delta.ProjectPath
		prev.Language = delta.Language
		prev.Profile = delta.Profile
		prev.Exec = delta.Exec
	}
	if len(delta.CodeUnits) > 0 {
		prev.CodeUnits = delta.CodeUnits
	}
	if len(delta.MemoryRisks) > 0 {
		prev.MemoryRisks = delta.MemoryRisks
	}
	if delta.Dynamic != nil {
		prev.Dynamic = delta.Dynamic
	}
	if len(delta.Hotspots) > 0 {
		prev.Hotspots = delta.Hotspots
	}
	if len(delta.Optimizations) > 0 {
		prev.Optimizations = delta.Optimizations
	}
	if delta.Advice != "" {
		prev.Advice = delta.Advice
	}
	if delta.FailureNotice != "" {
		prev.FailureNotice = delta.FailureNotice
	}
	prev.Warnings = append(prev.Warnings, delta.Warnings...)
	return prev
}
