package split

import (
	"github.com/dj1an/svxlink"
)

// branch adapts one attached sink. It implements svxlink.Source so the
// wrapped sink's flow-control notifications land on the owning Splitter.
type branch struct {
	sp   *Splitter
	sink svxlink.Sink

	// enabled excludes the branch from writes and flush accounting when
	// false, without detaching it.
	enabled bool
	// managed means the Splitter owns the sink and closes it on removal.
	managed bool
	// counted marks participation in the current flush cycle. A branch
	// added while a flush is in flight stays uncounted for that cycle.
	counted bool

	// accepted is the live accept count of the current write cycle.
	accepted int
	// offset is the cursor into the shared stream buffer. Only meaningful
	// while busy.
	offset int
	// busy means the last write was short and backlog replay is pending.
	busy bool

	flushRequested bool
	flushDone      bool
	pendingRemoval bool
}

// writeLive offers a freshly arrived block directly to the sink and records
// how much of it was accepted.
func (b *branch) writeLive(samples []float64) int {
	b.accepted = b.sink.WriteSamples(samples)
	return b.accepted
}

// requestFlush forwards the flush request to the sink. While the branch has
// outstanding backlog the forward is held back; the Splitter retries once
// the branch catches up.
func (b *branch) requestFlush() {
	if !b.enabled || b.flushRequested || b.busy {
		return
	}
	b.flushRequested = true
	b.sink.FlushSamples()
}

// ResumeOutput implements svxlink.Source for the wrapped sink.
func (b *branch) ResumeOutput() {
	if b.pendingRemoval {
		return
	}
	b.sp.branchResumeOutput(b)
}

// AllSamplesFlushed implements svxlink.Source for the wrapped sink.
func (b *branch) AllSamplesFlushed() {
	if b.pendingRemoval {
		return
	}
	b.sp.branchAllSamplesFlushed(b)
}
