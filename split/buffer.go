package split

import "fmt"

// streamBuffer holds the undelivered tail of the most recent input block.
// There is exactly one instance per Splitter and every lagging branch reads
// from it at its own offset, so the backlog is never duplicated per branch.
type streamBuffer struct {
	samples  []float64
	capacity int
}

func newStreamBuffer(capacity int) *streamBuffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("split: invalid buffer capacity %d", capacity))
	}
	return &streamBuffer{
		samples:  make([]float64, 0, capacity),
		capacity: capacity,
	}
}

// store replaces the retained backlog. It must only be called when the
// buffer is empty and never with more samples than the capacity.
func (b *streamBuffer) store(samples []float64) {
	if len(samples) > b.capacity {
		panic(fmt.Sprintf("split: block of %d samples exceeds buffer capacity %d", len(samples), b.capacity))
	}
	b.samples = append(b.samples[:0], samples...)
}

// deliver pushes the backlog from the branch offset onwards into the branch
// sink, advances the offset by the accepted count and reports whether the
// branch is now fully caught up.
func (b *streamBuffer) deliver(br *branch) bool {
	if br.offset < len(b.samples) {
		br.offset += br.sink.WriteSamples(b.samples[br.offset:])
	}
	return br.offset == len(b.samples)
}

func (b *streamBuffer) length() int {
	return len(b.samples)
}

// clear drops the backlog. Only valid once every branch is caught up.
func (b *streamBuffer) clear() {
	b.samples = b.samples[:0]
}
