// Package mp3 provides mp3 file endpoints for the pipeline: a Source
// decoding through go-mp3 and a Sink encoding through lame.
package mp3

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/viert/lame"

	"github.com/dj1an/svxlink"
)

// DefaultBlockSize is the number of samples pushed per write.
const DefaultBlockSize = 512

// Source decodes an mp3 file and pushes mono blocks into the connected
// sink. The decoder always produces stereo frames; they are mixed down
// by averaging. A short accept suspends the source until the sink signals
// ResumeOutput; the sink keeps the unaccepted remainder, so the source
// resumes with fresh blocks. The end of the file is announced with a
// flush request.
type Source struct {
	file    *os.File
	decoder *mp3.Decoder

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

// NewSource opens an mp3 file for streaming.
func NewSource(path string, options ...SourceOption) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	s := &Source{
		file:      file,
		decoder:   decoder,
		blockSize: DefaultBlockSize,
	}
	for _, option := range options {
		option(s)
	}
	return s, nil
}

// SampleRate returns the sample rate of the decoded stream.
func (s *Source) SampleRate() int {
	return s.decoder.SampleRate()
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
		if len(block) == 0 {
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

// read decodes up to blockSize mono samples, empty at the end of the
// file. The decoded stream is interleaved stereo int16 little endian.
func (s *Source) read() ([]float64, error) {
	block := make([]float64, 0, s.blockSize)
	var frame [2]int16
	for len(block) < s.blockSize {
		if err := binary.Read(s.decoder, binary.LittleEndian, &frame); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return nil, err
		}
		mixed := (float64(frame[0]) + float64(frame[1])) / 2 / 0x8000
		block = append(block, mixed)
	}
	return block, nil
}

// Sink encodes accepted samples into an mp3 file. The mono stream is
// written as identical left and right channels. The sink never applies
// backpressure. The encoder is finalized by Close, which makes the sink
// usable as a managed splitter branch.
type Sink struct {
	svxlink.SourceHolder
	file   *os.File
	writer *lame.LameWriter
	err    error
}

// NewSink creates an mp3 file sink.
func NewSink(path string, sampleRate int, bitRate int, quality int) (*Sink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	writer := lame.NewWriter(file)
	writer.Encoder.SetBitrate(bitRate)
	writer.Encoder.SetQuality(quality)
	writer.Encoder.SetNumChannels(2)
	writer.Encoder.SetInSamplerate(sampleRate)
	writer.Encoder.SetMode(lame.JOINT_STEREO)
	writer.Encoder.SetVBR(lame.VBR_RH)
	writer.Encoder.InitParams()
	return &Sink{
		file:   file,
		writer: writer,
	}, nil
}

// WriteSamples implements svxlink.Sink. Encoding errors are sticky and
// surfaced via Err; the stream itself is never stalled by them.
func (s *Sink) WriteSamples(samples []float64) int {
	if s.err == nil {
		buf := new(bytes.Buffer)
		for _, sample := range samples {
			v := int16(sample * 0x7fff)
			if err := binary.Write(buf, binary.LittleEndian, [2]int16{v, v}); err != nil {
				s.err = err
				return len(samples)
			}
		}
		_, s.err = s.writer.Write(buf.Bytes())
	}
	return len(samples)
}

// FlushSamples implements svxlink.Sink.
func (s *Sink) FlushSamples() {
	s.NotifyFlushed()
}

// Err returns the first encoding error, if any.
func (s *Sink) Err() error {
	return s.err
}

// Close finalizes the encoder and closes the file.
func (s *Sink) Close() error {
	if err := s.writer.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
