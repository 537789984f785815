// Package mock provides pipeline component doubles with scriptable pacing
// and flush behaviour for tests.
package mock

import (
	"github.com/dj1an/svxlink"
)

// Sink mocks a svxlink.Sink. By default it accepts and stores everything
// and confirms a flush synchronously. Accept limits make it apply
// backpressure; ManualFlush holds the drain confirmation until the test
// releases it with ConfirmFlush.
type Sink struct {
	svxlink.SourceHolder
	counter
	buffer  []float64
	limits  []int
	Discard bool

	// ManualFlush suppresses the synchronous drain confirmation.
	ManualFlush bool
	// Flushed reports whether a flush request was received.
	Flushed bool
	// Closed counts Close calls.
	Closed int

	// OnWrite, when set, runs after each write is accounted. Tests use it
	// to mutate the pipeline from inside a delivery callback chain.
	OnWrite func(accepted int)
	// OnClose, when set, runs on every Close call.
	OnClose func()
}

// Accept queues per-call accept limits. Once the queue is exhausted the
// sink accepts full blocks again.
func (m *Sink) Accept(limits ...int) {
	m.limits = append(m.limits, limits...)
}

// WriteSamples implements svxlink.Sink.
func (m *Sink) WriteSamples(samples []float64) int {
	n := len(samples)
	if len(m.limits) > 0 {
		if l := m.limits[0]; l < n {
			n = l
		}
		m.limits = m.limits[1:]
	}
	if !m.Discard {
		m.buffer = append(m.buffer, samples[:n]...)
	}
	m.advance(n)
	if m.OnWrite != nil {
		m.OnWrite(n)
	}
	return n
}

// FlushSamples implements svxlink.Sink.
func (m *Sink) FlushSamples() {
	m.Flushed = true
	if !m.ManualFlush {
		m.NotifyFlushed()
	}
}

// ConfirmFlush emits the held-back drain confirmation.
func (m *Sink) ConfirmFlush() {
	m.NotifyFlushed()
}

// Resume signals the registered source that the sink accepts more samples.
func (m *Sink) Resume() {
	m.NotifyResume()
}

// Close implements io.Closer so the sink can be attached as managed.
func (m *Sink) Close() error {
	m.Closed++
	if m.OnClose != nil {
		m.OnClose()
	}
	return nil
}

// Buffer returns the samples stored so far.
func (m *Sink) Buffer() []float64 {
	return m.buffer
}

// Source mocks an upstream producer and records the notifications it
// receives.
type Source struct {
	// Resumed counts ResumeOutput notifications.
	Resumed int
	// Flushes counts AllSamplesFlushed notifications.
	Flushes int
}

// ResumeOutput implements svxlink.Source.
func (m *Source) ResumeOutput() {
	m.Resumed++
}

// AllSamplesFlushed implements svxlink.Source.
func (m *Source) AllSamplesFlushed() {
	m.Flushes++
}

// Deferrer is a manual async.Deferrer. Deferred tasks run only when the
// test calls RunPending, which makes deferral observable.
type Deferrer struct {
	tasks []func()
}

// Defer implements async.Deferrer.
func (d *Deferrer) Defer(fn func()) {
	d.tasks = append(d.tasks, fn)
}

// Pending returns the number of queued tasks.
func (d *Deferrer) Pending() int {
	return len(d.tasks)
}

// RunPending executes the tasks queued before the call and returns their
// number. Tasks deferred during execution stay queued.
func (d *Deferrer) RunPending() int {
	pending := d.tasks
	d.tasks = nil
	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

// counter counts messages and samples.
type counter struct {
	messages int
	samples  int
}

func (c *counter) advance(size int) {
	c.messages++
	c.samples += size
}

// Count returns messages and samples metrics.
func (c *counter) Count() (int, int) {
	return c.messages, c.samples
}
