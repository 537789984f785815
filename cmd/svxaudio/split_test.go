package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	audiowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtureWav(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	e := audiowav.NewEncoder(f, 8000, 16, 1, 1)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 8000},
		SourceBitDepth: 16,
	}
	for i := 0; i < 400; i++ {
		ib.Data = append(ib.Data, (i%200-100)*100)
	}
	require.NoError(t, e.Write(ib))
	require.NoError(t, e.Close())
	require.NoError(t, f.Close())
}

func TestSplitCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeFixtureWav(t, in)
	out1 := filepath.Join(dir, "a.wav")
	out2 := filepath.Join(dir, "b.wav")

	cmd := &splitCommand{
		in:     in,
		wavOut: stringList{out1, out2},
		toneHz: 1750,
	}
	require.NoError(t, cmd.Run())

	for _, path := range []string{out1, out2} {
		info, err := os.Stat(path)
		require.NoError(t, err)
		// More than a bare wav header.
		assert.Greater(t, info.Size(), int64(44))
	}
}

func TestSplitCommandValidation(t *testing.T) {
	assert.Error(t, (&splitCommand{}).Run())
	assert.Error(t, (&splitCommand{in: "in.wav"}).Run())
	assert.Error(t, (&splitCommand{
		in:     "in.flac",
		wavOut: stringList{"out.wav"},
	}).Run())
}
