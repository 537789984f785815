package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/dj1an/svxlink/tone"
)

type detectCommand struct {
	in     string
	toneHz int
	block  int
	values bool
}

func (cmd *detectCommand) Name() string {
	return "detect"
}

func (cmd *detectCommand) Help() string {
	return "Detect a tone frequency in an audio file"
}

func (cmd *detectCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.in, "in", "", "input wav or mp3 file (required)")
	fs.IntVar(&cmd.toneHz, "freq", 1750, "tone frequency in Hz")
	fs.IntVar(&cmd.block, "block", 100, "detection block length in samples")
	fs.BoolVar(&cmd.values, "values", false, "print the magnitude of every block")
}

func (cmd *detectCommand) Run() error {
	if cmd.in == "" {
		return errors.New("missing -in required flag")
	}

	var done bool
	src, err := openSource(cmd.in, func() { done = true })
	if err != nil {
		return err
	}
	defer src.Close()

	options := []tone.Option{
		tone.WithSampleRate(src.SampleRate()),
		tone.OnActivity(func(active bool) {
			if active {
				fmt.Printf("tone %d Hz detected\n", cmd.toneHz)
			} else {
				fmt.Printf("tone %d Hz lost\n", cmd.toneHz)
			}
		}),
	}
	if cmd.values {
		options = append(options, tone.OnValue(func(value float64) {
			fmt.Printf("%.0f\n", value)
		}))
	}
	det := tone.New(cmd.toneHz, cmd.block, options...)

	src.Connect(det)
	if err := src.Start(); err != nil {
		return err
	}
	if !done {
		return errors.New("stream did not complete")
	}
	return nil
}
