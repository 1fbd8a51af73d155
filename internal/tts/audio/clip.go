// Package audio provides audio data structures, containers and stream framing for the
// TTS pipeline. Samples are mono float32 in [-1, 1].
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// SampleRate is the native output rate of the Kani TTS model.
const SampleRate = 22050

// PCM constants.
const (
	pcmMax          = 32767
	pcmMin          = -32768
	bytesPerSample  = 2
	millisPerSecond = 1000
)

var (
	// ErrSampleRateMismatch is returned when clips with different rates are joined.
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	// ErrEmptyClip is returned when a clip holds no samples.
	ErrEmptyClip = errors.New("clip contains no samples")
)

// Clip is a mono buffer of float32 samples.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// NewClip wraps samples recorded at the given rate.
func NewClip(samples []float32, sampleRate int) *Clip {
	return &Clip{Samples: samples, SampleRate: sampleRate}
}

// Len returns the number of samples.
func (c *Clip) Len() int {
	if c == nil {
		return 0
	}

	return len(c.Samples)
}

// Empty reports whether the clip carries no audio.
func (c *Clip) Empty() bool {
	return c.Len() == 0
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.Empty() || c.SampleRate <= 0 {
		return 0
	}

	seconds := float64(len(c.Samples)) / float64(c.SampleRate)

	return time.Duration(seconds * float64(time.Second))
}

// Concat joins clips in order. Nil and empty clips are skipped; all remaining
// clips must share one sample rate.
func Concat(clips ...*Clip) (*Clip, error) {
	total := 0
	rate := 0

	for index, clip := range clips {
		if clip.Empty() {
			continue
		}

		if rate == 0 {
			rate = clip.SampleRate
		} else if clip.SampleRate != rate {
			return nil, fmt.Errorf("%w: clip %d has %d Hz, expected %d Hz",
				ErrSampleRateMismatch, index+1, clip.SampleRate, rate)
		}

		total += len(clip.Samples)
	}

	if total == 0 {
		return nil, ErrEmptyClip
	}

	samples := make([]float32, 0, total)
	for _, clip := range clips {
		if clip.Empty() {
			continue
		}

		samples = append(samples, clip.Samples...)
	}

	return NewClip(samples, rate), nil
}

// FloatToInt16 converts one sample, clamping to the 16-bit range.
func FloatToInt16(sample float32) int16 {
	scaled := math.Round(float64(sample) * pcmMax)

	switch {
	case scaled > pcmMax:
		return pcmMax
	case scaled < pcmMin:
		return pcmMin
	default:
		return int16(scaled)
	}
}

// PCM16LE encodes samples as signed 16-bit little-endian PCM.
func PCM16LE(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)

	for index, sample := range samples {
		value := uint16(FloatToInt16(sample))
		out[index*bytesPerSample] = byte(value)
		out[index*bytesPerSample+1] = byte(value >> 8)
	}

	return out
}

// FrameBytes returns the PCM16 byte size of one frame of the given length.
// The result is always a positive multiple of the sample width.
func FrameBytes(sampleRate, frameMillis int) int {
	samples := sampleRate * frameMillis / millisPerSecond
	if samples <= 0 {
		samples = 1
	}

	return samples * bytesPerSample
}
