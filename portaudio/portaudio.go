// Package portaudio plays the stream on the default audio device.
package portaudio

import (
	"github.com/gordonklaus/portaudio"

	"github.com/dj1an/svxlink"
)

// DefaultBlockSize is the size of the hardware write buffer.
const DefaultBlockSize = 512

// Sink plays accepted samples on the default output device. Samples are
// written to the device in fixed-size blocks; the sink never applies
// backpressure, device pacing blocks inside WriteSamples instead.
type Sink struct {
	svxlink.SourceHolder
	sampleRate int
	blockSize  int

	buf     []float32
	pending []float64
	stream  *portaudio.Stream
	err     error
}

// Option provides a way to set functional parameters to the sink.
type Option func(*Sink)

// WithBlockSize overrides the hardware buffer size.
func WithBlockSize(samples int) Option {
	return func(s *Sink) {
		s.blockSize = samples
	}
}

// NewSink creates a playback sink. The device is opened by Open.
func NewSink(sampleRate int, options ...Option) *Sink {
	s := &Sink{
		sampleRate: sampleRate,
		blockSize:  DefaultBlockSize,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Open initializes portaudio and starts a mono stream on the default
// output device.
func (s *Sink) Open() error {
	s.buf = make([]float32, s.blockSize)
	err := portaudio.Initialize()
	if err != nil {
		return err
	}
	s.stream, err = portaudio.OpenDefaultStream(0, 1, float64(s.sampleRate), s.blockSize, &s.buf)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err = s.stream.Start(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return err
	}
	return nil
}

// WriteSamples implements svxlink.Sink. Device errors are sticky and
// surfaced via Err; the stream itself is never stalled by them.
func (s *Sink) WriteSamples(samples []float64) int {
	if s.err == nil && s.stream != nil {
		s.pending = append(s.pending, samples...)
		for len(s.pending) >= s.blockSize {
			s.write(s.pending[:s.blockSize])
			s.pending = s.pending[s.blockSize:]
		}
	}
	return len(samples)
}

// FlushSamples implements svxlink.Sink. The partial tail block is padded
// with silence and played out before the flush confirms.
func (s *Sink) FlushSamples() {
	if s.err == nil && s.stream != nil && len(s.pending) > 0 {
		for len(s.pending) < s.blockSize {
			s.pending = append(s.pending, 0)
		}
		s.write(s.pending)
		s.pending = s.pending[:0]
	}
	s.NotifyFlushed()
}

// Err returns the first device error, if any.
func (s *Sink) Err() error {
	return s.err
}

// Close stops the stream and terminates portaudio. Safe to call on a
// sink that was never opened.
func (s *Sink) Close() error {
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil
	if err := stream.Stop(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}
	if err := stream.Close(); err != nil {
		portaudio.Terminate()
		return err
	}
	return portaudio.Terminate()
}

func (s *Sink) write(block []float64) {
	for i := range block {
		s.buf[i] = float32(block[i])
	}
	s.err = s.stream.Write()
}
