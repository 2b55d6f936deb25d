package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWAV(t *testing.T, rate, bitDepth, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, rate, bitDepth, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	return path
}

func TestLoadMono_StereoDownmix(t *testing.T) {
	// left, right interleaved
	path := writeWAV(t, 8000, 16, 2, []int{
		16384, 16384,
		-32768, 0,
		8192, -8192,
		0, 32767,
	})

	s, info, err := LoadMono(path, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, 8000, info.SourceRate)
	assert.Equal(t, 8000, info.Rate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, 4, info.Frames)
	assert.False(t, info.Resampled)

	require.Equal(t, 4, s.Len())
	assert.InDelta(t, 0.5, s.At(0), 1e-6)
	assert.InDelta(t, -0.5, s.At(1), 1e-6)
	assert.InDelta(t, 0, s.At(2), 1e-6)
	assert.InDelta(t, 0.5, s.At(3), 1e-4)
}

func TestLoadMono_SameRateSkipsResample(t *testing.T) {
	path := writeWAV(t, 44100, 16, 1, []int{0, 1000, -1000, 0})

	_, info, err := LoadMono(path, 44100, nil)
	require.NoError(t, err)
	assert.False(t, info.Resampled)
	assert.Equal(t, 4, info.Frames)
}

func TestLoadMono_Resamples(t *testing.T) {
	data := make([]int, 4410)
	for i := range data {
		data[i] = (i % 100) * 100
	}
	path := writeWAV(t, 44100, 16, 1, data)

	s, info, err := LoadMono(path, 48000, nil)
	require.NoError(t, err)
	assert.True(t, info.Resampled)
	assert.Equal(t, 44100, info.SourceRate)
	assert.Equal(t, 48000, info.Rate)
	assert.InDelta(t, 4800, s.Len(), 48, "length scales with the rate ratio")
}

func TestLoadMono_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not RIFF data"), 0o644))

	_, _, err := LoadMono(path, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidWAV)
}

func TestLoadMono_MissingFile(t *testing.T) {
	_, _, err := LoadMono(filepath.Join(t.TempDir(), "missing.wav"), 0, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDownmix_EightBitIsUnsigned(t *testing.T) {
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 8000},
		Data:   []int{128, 255, 0},
	}
	out, err := downmix(buf, 8)
	require.NoError(t, err)
	assert.InDelta(t, 0, out[0], 1e-6)
	assert.InDelta(t, 127.0/128, out[1], 1e-6)
	assert.InDelta(t, -1, out[2], 1e-6)

	_, err = downmix(buf, 12)
	assert.ErrorIs(t, err, ErrUnsupportedBitDepth)
}
