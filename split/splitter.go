// Package split implements the fan-out stage of the audio pipe: one
// incoming sample stream replicated to a dynamically changing set of
// independently paced sinks, with a single shared backlog buffer,
// per-branch flow control and multi-party flush completion.
package split

import (
	"errors"
	"fmt"
	"io"

	"github.com/dj1an/svxlink"
	"github.com/dj1an/svxlink/async"
	"github.com/dj1an/svxlink/log"
)

// DefaultCapacity is the default shared buffer capacity in samples. It
// bounds the maximum block size a producer may offer in one write.
const DefaultCapacity = 8192

var (
	// ErrSinkAdded is returned if the sink is already attached.
	ErrSinkAdded = errors.New("sink already added")
	// ErrSinkNotFound is returned if the sink is not attached.
	ErrSinkNotFound = errors.New("sink not found")
)

// Splitter replicates one incoming stream to all attached sinks. It is a
// svxlink.Sink towards its producer and registers itself as the source of
// every attached sink. All calls and notifications happen on the single
// pipeline thread.
//
// Backpressure is bounded: the splitter retains at most one outstanding
// block. While any branch still drains that block, new writes are rejected
// with a zero accept count and the producer is resumed once the last
// lagging branch catches up.
type Splitter struct {
	svxlink.SourceHolder
	uid      svxlink.UID
	log      *log.Logger
	deferrer async.Deferrer

	buf      *streamBuffer
	branches []*branch

	// flushing is set from the upstream flush request until every counted
	// branch confirmed drain.
	flushing bool
	// inputStopped is set once the producer was given a short accept
	// count and a ResumeOutput is owed.
	inputStopped bool
	cleanupArmed bool
}

// Option provides a way to set functional parameters to the splitter.
type Option func(*Splitter)

// WithCapacity overrides the shared buffer capacity. The capacity is a
// hard upper bound on the block size offered to WriteSamples.
func WithCapacity(samples int) Option {
	return func(s *Splitter) {
		s.buf = newStreamBuffer(samples)
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Splitter) {
		s.log = l
	}
}

// New creates a new splitter. The deferrer runs the deferred branch
// cleanup and must execute its callbacks on the pipeline thread.
func New(d async.Deferrer, options ...Option) *Splitter {
	if d == nil {
		panic("split: nil deferrer")
	}
	s := &Splitter{
		uid:      svxlink.NewUID(),
		log:      log.GetLogger(),
		deferrer: d,
		buf:      newStreamBuffer(DefaultCapacity),
	}
	for _, option := range options {
		option(s)
	}
	s.log = s.log.WithField("splitter", s.uid)
	return s
}

// AddSink attaches a sink. If managed is true the splitter owns the sink
// and closes it (if it implements io.Closer) when it is removed. Adding a
// sink twice is a caller error.
//
// A sink added while a flush is in flight is not part of that cycle's
// completion accounting, but it is told about the end of stream right away
// so it can drain on its own pace.
func (s *Splitter) AddSink(sink svxlink.Sink, managed bool) error {
	if s.findBranch(sink) != nil {
		return ErrSinkAdded
	}
	br := &branch{
		sp:      s,
		sink:    sink,
		enabled: true,
		managed: managed,
	}
	s.branches = append(s.branches, br)
	sink.SetSource(br)
	s.log.WithField("attached", len(s.branches)).Debugf("sink added")
	if s.flushing {
		br.requestFlush()
	}
	return nil
}

// RemoveSink detaches a sink. The wiring is disconnected immediately, no
// further notifications pass in either direction, but the branch itself is
// destroyed by a deferred cleanup task. A sink may remove itself from
// within its own notification callback.
func (s *Splitter) RemoveSink(sink svxlink.Sink) error {
	br := s.findBranch(sink)
	if br == nil {
		return ErrSinkNotFound
	}
	s.detachBranch(br)
	return nil
}

// RemoveAllSinks detaches every attached sink.
func (s *Splitter) RemoveAllSinks() {
	for _, br := range s.branches {
		if !br.pendingRemoval {
			s.detachBranch(br)
		}
	}
}

// EnableSink includes or excludes a sink from data delivery and flush
// accounting without detaching it. A re-enabled sink starts caught up:
// samples that streamed past while it was disabled are not replayed.
func (s *Splitter) EnableSink(sink svxlink.Sink, enable bool) error {
	br := s.findBranch(sink)
	if br == nil {
		return ErrSinkNotFound
	}
	if br.enabled == enable {
		return nil
	}
	br.enabled = enable
	br.busy = false
	br.offset = 0
	if enable {
		if s.flushing {
			br.requestFlush()
			s.checkFlushDone()
		}
	} else {
		// The branch can no longer hold up the stream.
		s.reevaluateBacklog()
		s.checkFlushDone()
	}
	return nil
}

// WriteSamples offers a block of samples to every enabled sink and returns
// the count all of them accepted. The unaccepted remainder is retained in
// the shared buffer and replayed to the lagging sinks by the splitter
// itself, so a short return only signals backpressure: the producer drops
// the block and continues with fresh samples after ResumeOutput.
//
// While the previous block is still draining the call is rejected with 0.
// With no enabled sinks attached the splitter acts as a null sink: the
// whole block is accepted and discarded.
//
// Blocks larger than the buffer capacity are a programming error.
func (s *Splitter) WriteSamples(samples []float64) int {
	count := len(samples)
	if count > s.buf.capacity {
		panic(fmt.Sprintf("split: block of %d samples exceeds buffer capacity %d", count, s.buf.capacity))
	}
	if s.buf.length() > 0 {
		s.inputStopped = true
		return 0
	}
	// Sinks may mutate the branch collection from inside their write
	// callback. The cursor pass below must cover exactly the branches the
	// block was offered to; a branch added mid-write starts caught up.
	offered := make([]*branch, 0, len(s.branches))
	for _, br := range s.branches {
		if br.enabled && !br.pendingRemoval {
			offered = append(offered, br)
		}
	}
	minAccepted := count
	for _, br := range offered {
		if accepted := br.writeLive(samples); accepted < minAccepted {
			minAccepted = accepted
		}
	}
	if minAccepted < count {
		s.buf.store(samples[minAccepted:])
		for _, br := range offered {
			if !br.enabled || br.pendingRemoval {
				continue
			}
			if br.offset = br.accepted - minAccepted; br.offset < 0 {
				br.offset = 0
			}
			br.busy = br.offset < s.buf.length()
		}
		s.inputStopped = true
		s.log.WithFields(log.Fields{"accepted": minAccepted, "offered": count}).Debugf("backpressure")
	}
	return minAccepted
}

// FlushSamples starts the end-of-stream handshake. Every enabled sink is
// asked to flush, branches with outstanding backlog once they caught up.
// AllSamplesFlushed is emitted upstream when all of them confirmed. With
// no enabled sinks attached the flush completes synchronously.
func (s *Splitter) FlushSamples() {
	s.flushing = true
	counted := 0
	for _, br := range s.branches {
		br.counted = br.enabled && !br.pendingRemoval
		br.flushRequested = false
		br.flushDone = false
		if br.counted {
			counted++
		}
	}
	if counted == 0 {
		s.flushing = false
		s.NotifyFlushed()
		return
	}
	s.log.WithField("sinks", counted).Debugf("flushing")
	for _, br := range s.branches {
		if br.counted {
			br.requestFlush()
		}
	}
}

func (s *Splitter) findBranch(sink svxlink.Sink) *branch {
	for _, br := range s.branches {
		if br.sink == sink && !br.pendingRemoval {
			return br
		}
	}
	return nil
}

func (s *Splitter) detachBranch(br *branch) {
	br.sink.SetSource(nil)
	br.pendingRemoval = true
	br.busy = false
	s.scheduleCleanup()
	// A removed branch can never resume or confirm drain, so both
	// aggregates must be re-evaluated right away.
	s.reevaluateBacklog()
	s.checkFlushDone()
}

// branchResumeOutput handles a sink signalling it can accept more samples.
func (s *Splitter) branchResumeOutput(br *branch) {
	if br.busy {
		if s.buf.deliver(br) {
			br.busy = false
			if s.flushing && !br.flushRequested {
				br.requestFlush()
			}
		}
	}
	s.reevaluateBacklog()
}

// branchAllSamplesFlushed handles a sink confirming it is drained.
func (s *Splitter) branchAllSamplesFlushed(br *branch) {
	br.flushDone = true
	s.checkFlushDone()
}

// reevaluateBacklog clears the shared buffer once no branch lags and emits
// the owed ResumeOutput upstream.
func (s *Splitter) reevaluateBacklog() {
	if s.buf.length() == 0 {
		return
	}
	for _, br := range s.branches {
		if br.busy {
			return
		}
	}
	s.buf.clear()
	if s.inputStopped {
		s.inputStopped = false
		s.NotifyResume()
	}
}

// checkFlushDone completes the flush cycle once no counted branch is left
// that still owes a drain confirmation.
func (s *Splitter) checkFlushDone() {
	if !s.flushing {
		return
	}
	for _, br := range s.branches {
		if br.counted && br.enabled && !br.pendingRemoval && !br.flushDone {
			return
		}
	}
	s.flushing = false
	s.log.Debugf("all sinks flushed")
	s.NotifyFlushed()
}

func (s *Splitter) scheduleCleanup() {
	if s.cleanupArmed {
		return
	}
	s.cleanupArmed = true
	s.deferrer.Defer(s.cleanupBranches)
}

// cleanupBranches runs on the deferred task, strictly after the call chain
// that requested a removal has unwound. Removals requested during its own
// execution arm a new task.
func (s *Splitter) cleanupBranches() {
	s.cleanupArmed = false
	kept := s.branches[:0:0]
	var doomed []*branch
	for _, br := range s.branches {
		if br.pendingRemoval {
			doomed = append(doomed, br)
		} else {
			kept = append(kept, br)
		}
	}
	s.branches = kept
	for _, br := range doomed {
		if !br.managed {
			continue
		}
		if c, ok := br.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.log.WithField("error", err).Infof("failed to close managed sink")
			}
		}
	}
}
