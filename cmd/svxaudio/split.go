package main

import (
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dj1an/svxlink"
	"github.com/dj1an/svxlink/async"
	"github.com/dj1an/svxlink/mp3"
	"github.com/dj1an/svxlink/portaudio"
	"github.com/dj1an/svxlink/split"
	"github.com/dj1an/svxlink/tone"
	"github.com/dj1an/svxlink/wav"
)

// source is the file reading side shared by the wav and mp3 packages.
type source interface {
	Connect(svxlink.Sink)
	Start() error
	SampleRate() int
	Close() error
}

type splitCommand struct {
	in      string
	wavOut  stringList
	mp3Out  string
	bitRate int
	play    bool
	toneHz  int
}

func (cmd *splitCommand) Name() string {
	return "split"
}

func (cmd *splitCommand) Help() string {
	return "Split an audio file into multiple outputs"
}

func (cmd *splitCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.in, "in", "", "input wav or mp3 file (required)")
	fs.Var(&cmd.wavOut, "wav", "semicolon separated wav output files")
	fs.StringVar(&cmd.mp3Out, "mp3", "", "mp3 output file")
	fs.IntVar(&cmd.bitRate, "bitrate", 192, "mp3 output bit rate")
	fs.BoolVar(&cmd.play, "play", false, "play on the default audio device")
	fs.IntVar(&cmd.toneHz, "tone", 0, "report activity of the given tone frequency in Hz")
}

func (cmd *splitCommand) Run() error {
	if cmd.in == "" {
		return errors.New("missing -in required flag")
	}
	if len(cmd.wavOut) == 0 && cmd.mp3Out == "" && !cmd.play && cmd.toneHz == 0 {
		return errors.New("no outputs given")
	}

	var done bool
	src, err := openSource(cmd.in, func() { done = true })
	if err != nil {
		return err
	}
	defer src.Close()
	rate := src.SampleRate()

	loop := async.NewLoop()
	sp := split.New(loop)

	type closer interface {
		Err() error
		Close() error
	}
	var closers []closer

	for _, path := range cmd.wavOut {
		sink, err := wav.NewSink(path, rate, 16)
		if err != nil {
			return err
		}
		closers = append(closers, sink)
		if err := sp.AddSink(sink, false); err != nil {
			return err
		}
	}
	if cmd.mp3Out != "" {
		sink, err := mp3.NewSink(cmd.mp3Out, rate, cmd.bitRate, 2)
		if err != nil {
			return err
		}
		closers = append(closers, sink)
		if err := sp.AddSink(sink, false); err != nil {
			return err
		}
	}
	if cmd.play {
		sink := portaudio.NewSink(rate)
		if err := sink.Open(); err != nil {
			return err
		}
		closers = append(closers, sink)
		if err := sp.AddSink(sink, false); err != nil {
			return err
		}
	}
	if cmd.toneHz > 0 {
		det := tone.New(cmd.toneHz, 100,
			tone.WithSampleRate(rate),
			tone.OnActivity(func(active bool) {
				if active {
					fmt.Printf("tone %d Hz detected\n", cmd.toneHz)
				} else {
					fmt.Printf("tone %d Hz lost\n", cmd.toneHz)
				}
			}),
		)
		if err := sp.AddSink(det, false); err != nil {
			return err
		}
	}

	src.Connect(sp)
	if err := src.Start(); err != nil {
		return err
	}
	loop.RunPending()
	if !done {
		return errors.New("stream did not complete")
	}

	for _, c := range closers {
		if err := c.Err(); err != nil {
			return err
		}
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}

// openSource picks the decoder by file extension.
func openSource(path string, onDone func()) (source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return wav.NewSource(path, wav.OnDone(onDone))
	case ".mp3":
		return mp3.NewSource(path, mp3.OnDone(onDone))
	}
	return nil, fmt.Errorf("unsupported file format: %v", path)
}
