// Package assets decodes the sonification samples into memory.
//
// Samples are small enough to hold fully in memory. They are downmixed to
// mono, normalized to [-1, 1] and resampled to the device rate once at
// startup, so the render path only ever reads a flat float32 slice.
package assets

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/dh1tw/gosamplerate"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/teslashibe/go-sonify/pkg/warp"
)

var (
	// ErrInvalidWAV is returned when a file is not a readable PCM WAV file.
	ErrInvalidWAV = errors.New("invalid WAV file")

	// ErrUnsupportedBitDepth is returned for bit depths other than 8, 16, 24 and 32.
	ErrUnsupportedBitDepth = errors.New("unsupported WAV bit depth")
)

// Info describes a decoded asset.
type Info struct {
	Path       string
	SourceRate int
	Rate       int
	Channels   int
	BitDepth   int
	Frames     int
	DecodeTime time.Duration
	Resampled  bool
}

// LoadMono decodes the WAV file at path into a mono sample at targetRate.
// targetRate 0 keeps the file's own rate.
func LoadMono(path string, targetRate int, logger *slog.Logger) (*warp.Sample, Info, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	data, info, err := decode(path)
	if err != nil {
		return nil, Info{}, err
	}

	info.Rate = info.SourceRate
	if targetRate > 0 && targetRate != info.SourceRate {
		ratio := float64(targetRate) / float64(info.SourceRate)
		logger.Debug("resampling asset", "path", path, "from", info.SourceRate, "to", targetRate)
		data, err = gosamplerate.Simple(data, ratio, 1, gosamplerate.SRC_SINC_BEST_QUALITY)
		if err != nil {
			return nil, Info{}, fmt.Errorf("resample %s: %w", path, err)
		}
		info.Rate = targetRate
		info.Resampled = true
	}
	info.Frames = len(data)
	info.DecodeTime = time.Since(start)

	sample, err := warp.NewSample(data)
	if err != nil {
		return nil, Info{}, fmt.Errorf("load %s: %w", path, err)
	}

	logger.Info("asset loaded",
		"path", path,
		"frames", info.Frames,
		"rate", info.Rate,
		"channels", info.Channels,
		"bit_depth", info.BitDepth,
		"resampled", info.Resampled,
		"seconds", info.DecodeTime.Seconds(),
	)
	return sample, info, nil
}

// decode reads path and returns the downmixed, normalized frames.
func decode(path string) ([]float32, Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Info{}, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, Info{}, fmt.Errorf("%w: %s", ErrInvalidWAV, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, Info{}, fmt.Errorf("decode %s: %w", path, err)
	}

	bitDepth := int(dec.BitDepth)
	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, Info{}, fmt.Errorf("%w: %s has no channels", ErrInvalidWAV, path)
	}

	data, err := downmix(buf, bitDepth)
	if err != nil {
		return nil, Info{}, fmt.Errorf("%s: %w", path, err)
	}

	return data, Info{
		Path:       path,
		SourceRate: buf.Format.SampleRate,
		Channels:   channels,
		BitDepth:   bitDepth,
	}, nil
}

// downmix averages interleaved channels into one and scales to [-1, 1].
func downmix(buf *audio.IntBuffer, bitDepth int) ([]float32, error) {
	var offset, scale float64
	switch bitDepth {
	case 8:
		// 8-bit PCM is unsigned
		offset, scale = 128, 128
	case 16, 24, 32:
		scale = math.Pow(2, float64(bitDepth-1))
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float64
		for ch := range channels {
			sum += (float64(buf.Data[i*channels+ch]) - offset) / scale
		}
		out[i] = float32(sum / float64(channels))
	}
	return out, nil
}
