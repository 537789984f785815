// Package tone implements a Goertzel filter based tone detector. The
// detector is an ordinary pipeline sink: it consumes sample blocks, never
// applies backpressure and reports tone activity through callbacks.
package tone

import (
	"math"

	"github.com/dj1an/svxlink"
)

// DefaultSampleRate is the pipeline sample rate the detector assumes
// unless configured otherwise.
const DefaultSampleRate = 8000

// defaultThreshold is the squared magnitude above which the tone counts as
// present.
const defaultThreshold = 5000000.0

// hangBlocks is the number of consecutive below-threshold blocks before
// the tone is reported gone.
const hangBlocks = 3

// Detector detects a single tone frequency in the sample stream.
type Detector struct {
	svxlink.SourceHolder

	freq       int
	blockLen   int
	sampleRate int
	threshold  float64

	coeff    float64
	q1, q2   float64
	blockPos int
	// hang counts down below-threshold blocks while the tone is active.
	hang int

	onActivity func(bool)
	onValue    func(float64)
}

// Option provides a way to set functional parameters to the detector.
type Option func(*Detector)

// WithSampleRate overrides the sample rate of the incoming stream.
func WithSampleRate(rate int) Option {
	return func(d *Detector) {
		d.sampleRate = rate
	}
}

// WithThreshold overrides the squared magnitude detection threshold.
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		d.threshold = threshold
	}
}

// OnActivity registers a callback invoked when the tone appears or
// disappears.
func OnActivity(fn func(active bool)) Option {
	return func(d *Detector) {
		d.onActivity = fn
	}
}

// OnValue registers a callback invoked with the squared magnitude of every
// processed block.
func OnValue(fn func(value float64)) Option {
	return func(d *Detector) {
		d.onValue = fn
	}
}

// New creates a detector for the given tone frequency, evaluating one
// Goertzel block per blockLen samples.
func New(toneHz int, blockLen int, options ...Option) *Detector {
	d := &Detector{
		freq:       toneHz,
		blockLen:   blockLen,
		sampleRate: DefaultSampleRate,
		threshold:  defaultThreshold,
	}
	for _, option := range options {
		option(d)
	}
	n := float64(d.blockLen)
	k := n * float64(d.freq) / float64(d.sampleRate)
	omega := 2.0 * math.Pi * k / n
	d.coeff = 2.0 * math.Cos(omega)
	return d
}

// WriteSamples implements svxlink.Sink. The detector always accepts the
// whole block.
func (d *Detector) WriteSamples(samples []float64) int {
	for _, sample := range samples {
		d.processSample(sample)
		if d.blockPos++; d.blockPos >= d.blockLen {
			d.processBlock()
		}
	}
	return len(samples)
}

// FlushSamples implements svxlink.Sink. The detector holds no emittable
// data, so the flush is confirmed right away. A partially filled block is
// dropped.
func (d *Detector) FlushSamples() {
	d.reset()
	d.blockPos = 0
	d.NotifyFlushed()
}

func (d *Detector) processSample(sample float64) {
	// Same preconditioning as the 16 bit reference implementation: the
	// sample is folded to an unsigned 8 bit value before filtering, which
	// is what the default threshold is calibrated against.
	u := float64((int(sample*32767) + 0x8000) >> 8)
	q0 := d.coeff*d.q1 - d.q2 + u
	d.q2 = d.q1
	d.q1 = q0
}

func (d *Detector) processBlock() {
	result := d.q1*d.q1 + d.q2*d.q2 - d.q1*d.q2*d.coeff
	if d.onValue != nil {
		d.onValue(result)
	}
	if result >= d.threshold {
		if d.hang == 0 && d.onActivity != nil {
			d.onActivity(true)
		}
		d.hang = hangBlocks
	} else if d.hang > 0 {
		if d.hang--; d.hang == 0 && d.onActivity != nil {
			d.onActivity(false)
		}
	}
	d.reset()
	d.blockPos = 0
}

func (d *Detector) reset() {
	d.q1 = 0
	d.q2 = 0
}
