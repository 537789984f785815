package split_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj1an/svxlink/internal/mock"
	"github.com/dj1an/svxlink/split"
)

func block(size int, start float64) []float64 {
	b := make([]float64, size)
	for i := range b {
		b[i] = start + float64(i)
	}
	return b
}

func TestNullSink(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	in := block(10, 0)

	assert.Equal(t, 10, sp.WriteSamples(in))

	upstream := &mock.Source{}
	sp.SetSource(upstream)
	sp.FlushSamples()
	assert.Equal(t, 1, upstream.Flushes)
}

func TestWriteSamples(t *testing.T) {
	tests := []struct {
		description string
		limits      [][]int
		count       int
		expected    int
	}{
		{
			description: "all accept in full",
			limits:      [][]int{nil, nil, nil},
			count:       10,
			expected:    10,
		},
		{
			description: "one short sink",
			limits:      [][]int{nil, {5}, nil},
			count:       10,
			expected:    5,
		},
		{
			description: "two short sinks",
			limits:      [][]int{{7}, {5}, nil},
			count:       10,
			expected:    5,
		},
		{
			description: "one sink accepts nothing",
			limits:      [][]int{nil, {0}, nil},
			count:       10,
			expected:    0,
		},
	}

	for _, test := range tests {
		t.Log(test.description)
		d := &mock.Deferrer{}
		sp := split.New(d)
		upstream := &mock.Source{}
		sp.SetSource(upstream)

		sinks := make([]*mock.Sink, len(test.limits))
		for i, limits := range test.limits {
			sinks[i] = &mock.Sink{}
			sinks[i].Accept(limits...)
			require.NoError(t, sp.AddSink(sinks[i], false))
		}

		in := block(test.count, 0)
		assert.Equal(t, test.expected, sp.WriteSamples(in))

		// Every lagging sink resumes until the whole block has arrived
		// everywhere, in order, without duplication.
		for i, sink := range sinks {
			_, got := sink.Count()
			for got < test.count {
				sink.Resume()
				_, got = sink.Count()
			}
			assert.Equal(t, in, sink.Buffer(), "sink %d", i)
		}
		if test.expected < test.count {
			assert.Equal(t, 1, upstream.Resumed)
		} else {
			assert.Equal(t, 0, upstream.Resumed)
		}
	}
}

// The reference scenario: three sinks, B accepts only 5 of 10 samples.
func TestBackpressureScenario(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a, b, c := &mock.Sink{}, &mock.Sink{}, &mock.Sink{}
	b.Accept(5)
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))
	require.NoError(t, sp.AddSink(c, false))

	in := block(10, 0)
	assert.Equal(t, 5, sp.WriteSamples(in))
	assert.Equal(t, in, a.Buffer())
	assert.Equal(t, in[:5], b.Buffer())
	assert.Equal(t, in, c.Buffer())

	// New input is rejected while the backlog is outstanding.
	assert.Equal(t, 0, sp.WriteSamples(block(4, 100)))
	assert.Equal(t, 0, upstream.Resumed)

	// B resumes, replays samples 5..9 and the producer is resumed once.
	b.Resume()
	assert.Equal(t, in, b.Buffer())
	assert.Equal(t, 1, upstream.Resumed)

	// A and C never saw duplicated data.
	assert.Equal(t, in, a.Buffer())
	assert.Equal(t, in, c.Buffer())

	// The stream accepts new input again.
	assert.Equal(t, 4, sp.WriteSamples(block(4, 100)))
}

// Backlog replay may itself be accepted piecemeal.
func TestPartialCatchUp(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	b := &mock.Sink{}
	b.Accept(2, 3)
	require.NoError(t, sp.AddSink(b, false))

	in := block(10, 0)
	assert.Equal(t, 2, sp.WriteSamples(in))

	b.Resume()
	assert.Equal(t, in[:5], b.Buffer())
	assert.Equal(t, 0, upstream.Resumed)

	b.Resume()
	assert.Equal(t, in, b.Buffer())
	assert.Equal(t, 1, upstream.Resumed)
}

func TestFlushDeferredUntilCaughtUp(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a := &mock.Sink{ManualFlush: true}
	b := &mock.Sink{ManualFlush: true}
	c := &mock.Sink{ManualFlush: true}
	b.Accept(5)
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))
	require.NoError(t, sp.AddSink(c, false))

	in := block(10, 0)
	assert.Equal(t, 5, sp.WriteSamples(in))

	sp.FlushSamples()
	// Caught-up sinks are asked to flush immediately, the lagging one is
	// not until its backlog has been delivered.
	assert.True(t, a.Flushed)
	assert.False(t, b.Flushed)
	assert.True(t, c.Flushed)

	b.Resume()
	assert.True(t, b.Flushed)
	assert.Equal(t, in, b.Buffer())
	assert.Equal(t, 0, upstream.Flushes)

	a.ConfirmFlush()
	b.ConfirmFlush()
	assert.Equal(t, 0, upstream.Flushes)
	c.ConfirmFlush()
	assert.Equal(t, 1, upstream.Flushes)
}

func TestFlushSynchronousConfirm(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a, b := &mock.Sink{}, &mock.Sink{}
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))

	sp.WriteSamples(block(4, 0))
	sp.FlushSamples()
	assert.Equal(t, 1, upstream.Flushes)
}

func TestRemoveLastOutstandingCompletesFlush(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a := &mock.Sink{ManualFlush: true}
	b := &mock.Sink{ManualFlush: true}
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))

	sp.FlushSamples()
	a.ConfirmFlush()
	assert.Equal(t, 0, upstream.Flushes)

	// The removed sink can never confirm, the flush must complete now.
	require.NoError(t, sp.RemoveSink(b))
	assert.Equal(t, 1, upstream.Flushes)
	assert.Equal(t, 1, d.Pending())
	d.RunPending()
}

func TestEnableSink(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	a, b := &mock.Sink{}, &mock.Sink{}
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))

	first := block(5, 0)
	second := block(5, 100)

	require.NoError(t, sp.EnableSink(b, false))
	assert.Equal(t, 5, sp.WriteSamples(first))

	// Re-enabling does not replay what was missed.
	require.NoError(t, sp.EnableSink(b, true))
	assert.Equal(t, 5, sp.WriteSamples(second))

	assert.Equal(t, append(append([]float64{}, first...), second...), a.Buffer())
	assert.Equal(t, second, b.Buffer())
}

func TestDisableExcludesFromFlushAccounting(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a := &mock.Sink{ManualFlush: true}
	b := &mock.Sink{ManualFlush: true}
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))

	sp.FlushSamples()
	a.ConfirmFlush()
	assert.Equal(t, 0, upstream.Flushes)

	// Disabling the only branch still owing a confirmation completes the
	// flush.
	require.NoError(t, sp.EnableSink(b, false))
	assert.Equal(t, 1, upstream.Flushes)
}

func TestDisableLaggingBranchReleasesBacklog(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a, b := &mock.Sink{}, &mock.Sink{}
	b.Accept(2)
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))

	assert.Equal(t, 2, sp.WriteSamples(block(10, 0)))
	require.NoError(t, sp.EnableSink(b, false))
	assert.Equal(t, 1, upstream.Resumed)
	assert.Equal(t, 10, sp.WriteSamples(block(10, 100)))
}

func TestAddSinkDuringFlush(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a := &mock.Sink{ManualFlush: true}
	require.NoError(t, sp.AddSink(a, false))
	sp.FlushSamples()

	// The late sink is told about the end of stream but its confirmation
	// is not awaited.
	late := &mock.Sink{ManualFlush: true}
	require.NoError(t, sp.AddSink(late, false))
	assert.True(t, late.Flushed)

	a.ConfirmFlush()
	assert.Equal(t, 1, upstream.Flushes)
}

// A sink attached from inside another sink's write callback must not be
// drawn into the backlog accounting of the write it did not take part in.
func TestAddSinkDuringWrite(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	late := &mock.Sink{}
	first := &mock.Sink{}
	added := false
	first.OnWrite = func(int) {
		if !added {
			added = true
			require.NoError(t, sp.AddSink(late, false))
		}
	}
	paced := &mock.Sink{}
	paced.Accept(5)
	require.NoError(t, sp.AddSink(first, false))
	require.NoError(t, sp.AddSink(paced, false))

	in := block(10, 0)
	assert.Equal(t, 5, sp.WriteSamples(in))
	assert.Empty(t, late.Buffer())

	// The late sink starts caught up: it cannot hold the backlog open and
	// it is not replayed data it was never offered.
	paced.Resume()
	assert.Equal(t, in, paced.Buffer())
	assert.Equal(t, 1, upstream.Resumed)

	next := block(10, 100)
	assert.Equal(t, 10, sp.WriteSamples(next))
	assert.Equal(t, next, late.Buffer())
}

func TestAddSinkTwice(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	sink := &mock.Sink{}
	require.NoError(t, sp.AddSink(sink, false))
	assert.Equal(t, split.ErrSinkAdded, sp.AddSink(sink, false))
	assert.Equal(t, split.ErrSinkNotFound, sp.RemoveSink(&mock.Sink{}))
	assert.Equal(t, split.ErrSinkNotFound, sp.EnableSink(&mock.Sink{}, false))
}

func TestRemoveSink(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	a, b := &mock.Sink{}, &mock.Sink{}
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, true))

	require.NoError(t, sp.RemoveSink(b))
	// Disconnected immediately, destroyed deferred.
	assert.Equal(t, 0, b.Closed)
	sp.WriteSamples(block(4, 0))
	assert.Empty(t, b.Buffer())

	assert.Equal(t, 1, d.RunPending())
	assert.Equal(t, 1, b.Closed)
	// Unmanaged sinks are never closed.
	sp.RemoveAllSinks()
	d.RunPending()
	assert.Equal(t, 0, a.Closed)
}

func TestRemoveLaggingBranchReleasesBacklog(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a, b := &mock.Sink{}, &mock.Sink{}
	b.Accept(3)
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, false))

	assert.Equal(t, 3, sp.WriteSamples(block(10, 0)))
	require.NoError(t, sp.RemoveSink(b))
	assert.Equal(t, 1, upstream.Resumed)
	d.RunPending()
	assert.Equal(t, 10, sp.WriteSamples(block(10, 100)))
}

// A sink that removes itself from inside its own delivery callback chain
// must not corrupt the branch collection, and a managed sink must be
// closed exactly once, strictly after the chain has unwound.
func TestRemoveSelfWithinCallback(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	a := &mock.Sink{}
	b := &mock.Sink{}
	b.Accept(5)
	require.NoError(t, sp.AddSink(a, false))
	require.NoError(t, sp.AddSink(b, true))

	in := block(10, 0)
	assert.Equal(t, 5, sp.WriteSamples(in))

	b.OnWrite = func(int) {
		// Removing from inside the replay triggered by b's own resume.
		require.NoError(t, sp.RemoveSink(b))
		assert.Equal(t, 0, b.Closed)
	}
	b.Resume()

	assert.Equal(t, in, b.Buffer())
	assert.Equal(t, 1, upstream.Resumed)
	assert.Equal(t, 0, b.Closed)
	assert.Equal(t, 1, d.RunPending())
	assert.Equal(t, 1, b.Closed)

	// b is gone, a still receives data.
	assert.Equal(t, 4, sp.WriteSamples(block(4, 100)))
	assert.Equal(t, 1, b.Closed)
}

// Removal requested during the cleanup pass itself re-arms the cleanup.
func TestCleanupRearm(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)

	a := &mock.Sink{}
	b := &mock.Sink{}
	a.OnClose = func() {
		require.NoError(t, sp.RemoveSink(b))
	}
	require.NoError(t, sp.AddSink(a, true))
	require.NoError(t, sp.AddSink(b, true))

	require.NoError(t, sp.RemoveSink(a))
	assert.Equal(t, 1, d.RunPending())
	assert.Equal(t, 1, a.Closed)
	assert.Equal(t, 0, b.Closed)

	assert.Equal(t, 1, d.RunPending())
	assert.Equal(t, 1, b.Closed)
}

func TestRemoveAllSinks(t *testing.T) {
	d := &mock.Deferrer{}
	sp := split.New(d)
	upstream := &mock.Source{}
	sp.SetSource(upstream)

	sinks := make([]*mock.Sink, 3)
	for i := range sinks {
		sinks[i] = &mock.Sink{}
		require.NoError(t, sp.AddSink(sinks[i], true))
	}
	sp.RemoveAllSinks()
	d.RunPending()
	for i, sink := range sinks {
		assert.Equal(t, 1, sink.Closed, "sink %d", i)
	}
	// Back to null sink behaviour.
	assert.Equal(t, 7, sp.WriteSamples(block(7, 0)))
}

func TestDeterministicWriteOrder(t *testing.T) {
	sp := split.New(&mock.Deferrer{})
	var order []int
	sinks := make([]*mock.Sink, 4)
	for i := range sinks {
		i := i
		sinks[i] = &mock.Sink{}
		sinks[i].OnWrite = func(int) {
			order = append(order, i)
		}
		require.NoError(t, sp.AddSink(sinks[i], false))
	}
	sp.WriteSamples(block(4, 0))
	sp.WriteSamples(block(4, 10))
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, order)
}

func TestOversizedBlockPanics(t *testing.T) {
	sp := split.New(&mock.Deferrer{}, split.WithCapacity(8))
	assert.Equal(t, 8, sp.WriteSamples(block(8, 0)))
	assert.Panics(t, func() {
		sp.WriteSamples(block(9, 0))
	})
}
