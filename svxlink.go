package svxlink

import (
	"github.com/rs/xid"
)

// Sink is a consumer of sample blocks.
type Sink interface {
	// WriteSamples offers a block of samples to the sink and returns how
	// many of them were accepted. A short count applies backpressure: the
	// producer must not write again before the sink signals ResumeOutput.
	// The block is only valid for the duration of the call, the sink must
	// copy anything it retains.
	WriteSamples(samples []float64) int

	// FlushSamples asks the sink to emit everything it has buffered. The
	// sink confirms by calling AllSamplesFlushed on its registered source
	// once it has no more data to emit.
	FlushSamples()

	// SetSource registers the upstream source that receives this sink's
	// flow-control notifications. Passing nil disconnects the sink.
	SetSource(Source)
}

// Source is the notification surface of a producer. A sink calls back into
// its registered source to drive flow control.
type Source interface {
	// ResumeOutput signals that the sink can accept more samples after a
	// previous WriteSamples call returned less than offered.
	ResumeOutput()

	// AllSamplesFlushed signals that the sink has emitted all buffered
	// samples after a flush request.
	AllSamplesFlushed()
}

// SourceHolder is an embeddable SetSource implementation. Components that
// act as sinks embed it and use the notify helpers to signal upstream.
type SourceHolder struct {
	source Source
}

// SetSource registers the upstream source.
func (h *SourceHolder) SetSource(s Source) {
	h.source = s
}

// NotifyResume calls ResumeOutput on the registered source, if any.
func (h *SourceHolder) NotifyResume() {
	if h.source != nil {
		h.source.ResumeOutput()
	}
}

// NotifyFlushed calls AllSamplesFlushed on the registered source, if any.
func (h *SourceHolder) NotifyFlushed() {
	if h.source != nil {
		h.source.AllSamplesFlushed()
	}
}

// UID is a unique identifier of a pipeline component.
type UID string

// NewUID returns a new unique id value.
func NewUID() UID {
	return UID(xid.New().String())
}
