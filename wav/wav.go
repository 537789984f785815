// Package wav provides wav file endpoints for the pipeline: a Source that
// pushes decoded sample blocks downstream honoring backpressure, and a
// Sink that encodes accepted samples to a file.
package wav

import (
	"errors"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/dj1an/svxlink"
)

// DefaultBlockSize is the number of samples pushed per write.
const DefaultBlockSize = 512

// ErrNotValid is returned when the file is not a valid wav file.
var ErrNotValid = errors.New("wav is not valid")

// Source decodes a wav file and pushes mono blocks into the connected
// sink. Multi-channel files are mixed down by averaging. The source pumps
// as far as the sink accepts; a short accept suspends it until the sink
// signals ResumeOutput. The sink keeps the samples it did not accept and
// replays them downstream itself, so the source resumes with fresh
// blocks. The end of the file is announced with a flush request.
type Source struct {
	file    *os.File
	decoder *wav.Decoder
	ib      *audio.IntBuffer

	blockSize int
	sink      svxlink.Sink
	eof       bool
	err       error

	onDone func()
}

// SourceOption provides a way to set functional parameters to the source.
type SourceOption func(*Source)

// WithBlockSize overrides the block size.
func WithBlockSize(samples int) SourceOption {
	return func(s *Source) {
		s.blockSize = samples
	}
}

// OnDone registers a callback invoked once the connected sink confirmed
// the final flush.
func OnDone(fn func()) SourceOption {
	return func(s *Source) {
		s.onDone = fn
	}
}

// NewSource opens a wav file for streaming.
func NewSource(path string, options ...SourceOption) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, ErrNotValid
	}
	s := &Source{
		file:      file,
		decoder:   decoder,
		blockSize: DefaultBlockSize,
	}
	for _, option := range options {
		option(s)
	}
	s.ib = &audio.IntBuffer{
		Format:         decoder.Format(),
		Data:           make([]int, s.blockSize*decoder.Format().NumChannels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	return s, nil
}

// SampleRate returns the sample rate of the file.
func (s *Source) SampleRate() int {
	return int(s.decoder.SampleRate)
}

// BitDepth returns the bit depth of the file.
func (s *Source) BitDepth() int {
	return int(s.decoder.BitDepth)
}

// Connect attaches the downstream sink and registers the source for its
// notifications.
func (s *Source) Connect(sink svxlink.Sink) {
	s.sink = sink
	sink.SetSource(s)
}

// Start pumps the file into the connected sink until either the sink
// applies backpressure or the file ends. Pumping continues from the
// sink's ResumeOutput notifications.
func (s *Source) Start() error {
	s.pump()
	return s.err
}

// Err returns the first decoding error, if any.
func (s *Source) Err() error {
	return s.err
}

// Close closes the underlying file.
func (s *Source) Close() error {
	return s.file.Close()
}

// ResumeOutput implements svxlink.Source.
func (s *Source) ResumeOutput() {
	s.pump()
}

// AllSamplesFlushed implements svxlink.Source.
func (s *Source) AllSamplesFlushed() {
	if s.onDone != nil {
		s.onDone()
	}
}

func (s *Source) pump() {
	for s.err == nil && !s.eof {
		block, err := s.read()
		if err != nil {
			s.err = err
			return
		}
		if block == nil {
			s.eof = true
			s.sink.FlushSamples()
			return
		}
		if s.sink.WriteSamples(block) < len(block) {
			// Backpressured. The sink owns the rest of the block and
			// asks for fresh samples with ResumeOutput.
			return
		}
	}
}

// read decodes the next block, nil at the end of the file.
func (s *Source) read() ([]float64, error) {
	s.ib.Data = s.ib.Data[:cap(s.ib.Data)]
	read, err := s.decoder.PCMBuffer(s.ib)
	if err != nil {
		return nil, err
	}
	if read == 0 {
		return nil, nil
	}
	numChannels := s.ib.Format.NumChannels
	frames := read / numChannels
	block := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < numChannels; c++ {
			sum += float64(s.ib.Data[i*numChannels+c]) / 0x8000
		}
		block[i] = sum / float64(numChannels)
	}
	return block, nil
}

// Sink encodes accepted samples into a mono wav file. It never applies
// backpressure. The file is finalized by Close, which makes the sink
// usable as a managed splitter branch.
type Sink struct {
	svxlink.SourceHolder
	file    *os.File
	encoder *wav.Encoder
	ib      *audio.IntBuffer
	err     error
}

// NewSink creates a mono wav file sink.
func NewSink(path string, sampleRate int, bitDepth int) (*Sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	encoder := wav.NewEncoder(file, sampleRate, bitDepth, 1, 1)
	return &Sink{
		file:    file,
		encoder: encoder,
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

// WriteSamples implements svxlink.Sink. Encoding errors are sticky and
// surfaced via Err; the stream itself is never stalled by them.
func (s *Sink) WriteSamples(samples []float64) int {
	if s.err == nil {
		s.ib.Data = s.ib.Data[:0]
		for _, sample := range samples {
			s.ib.Data = append(s.ib.Data, int(sample*0x7fff))
		}
		s.err = s.encoder.Write(s.ib)
	}
	return len(samples)
}

// FlushSamples implements svxlink.Sink. All accepted samples have already
// been handed to the encoder, so the flush confirms immediately.
func (s *Sink) FlushSamples() {
	s.NotifyFlushed()
}

// Err returns the first encoding error, if any.
func (s *Sink) Err() error {
	return s.err
}

// Close finalizes the wav header and closes the file.
func (s *Sink) Close() error {
	if err := s.encoder.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
