package emit

// NullEmitter discards every event. Used when --quiet disables the progress
// renderer and no run log is configured, and as a placeholder in tests.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops all events. Zero overhead,
// safe for concurrent use.
func NewNullEmitter() *NullEmitter {
	return &NullEmitter{}
}

// Emit discards the event.
func (n *NullEmitter) Emit(_ Event) {}
