package emit

// Emitter receives observability events from workflow execution.
//
// Implementations must be safe for concurrent use: the dispatch stage emits
// from every worker goroutine. Emit must never panic and must never block
// workflow progress; slow backends should buffer or drop.
type Emitter interface {
	Emit(event Event)
}

// Multi fans a single event stream out to several emitters in order.
//
// The CLI uses it to feed the console renderer, the run log, and the
// buffered history that backs the report server at the same time.
type Multi struct {
	emitters []Emitter
}

// NewMulti builds a fan-out emitter. Nil members are skipped.
func NewMulti(emitters ...Emitter) *Multi {
	kept := make([]Emitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			kept = append(kept, e)
		}
	}
	return &Multi{emitters: kept}
}

// Emit forwards the event to every registered emitter.
func (m *Multi) Emit(event Event) {
	for _, e := range m.emitters {
		e.Emit(event)
	}
}
