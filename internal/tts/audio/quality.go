package audio

import (
	"errors"
	"fmt"
	"math"
)

// Supported bit depths.
const (
	BitDepth8  = 8
	BitDepth16 = 16
	BitDepth24 = 24
	BitDepth32 = 32
)

// Quality validation limits.
const (
	MaxSampleRate = 192000
	MaxChannels   = 8
	MaxVolume     = 10.0
)

// Error formats.
const (
	errFmtSampleRateRange    = "%w: sample rate must be between 1 and %d Hz"
	errFmtBitDepthValues     = "%w: bit depth must be 8, 16, 24, or 32"
	errFmtChannelsRange      = "%w: channels must be between 1 and %d"
	errFmtFadeInNonNegative  = "%w: fade in must be non-negative"
	errFmtFadeOutNonNegative = "%w: fade out must be non-negative"
	errFmtVolumeRange        = "%w: volume must be between 0.0 and %.1f"
)

// ErrInvalidQuality is returned for out-of-range quality settings.
var ErrInvalidQuality = errors.New("invalid quality settings")

// Quality represents output format settings and post-processing effects.
// FadeIn and FadeOut are in seconds.
type Quality struct {
	SampleRate int     `json:"sampleRate"`
	BitDepth   int     `json:"bitDepth"`
	Channels   int     `json:"channels"`
	Volume     float64 `json:"volume"`
	FadeIn     float64 `json:"fadeIn,omitempty"`
	FadeOut    float64 `json:"fadeOut,omitempty"`
	Normalize  bool    `json:"normalize"`
}

// NewDefaultQuality returns the model's native output settings with no effects.
func NewDefaultQuality() Quality {
	return Quality{
		SampleRate: SampleRate,
		BitDepth:   BitDepth16,
		Channels:   1,
		Volume:     1.0,
		Normalize:  false,
	}
}

// Validate checks if quality settings are within reasonable bounds.
func (q *Quality) Validate() error {
	if q.SampleRate <= 0 || q.SampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidQuality, MaxSampleRate)
	}

	switch q.BitDepth {
	case BitDepth8, BitDepth16, BitDepth24, BitDepth32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidQuality)
	}

	if q.Channels <= 0 || q.Channels > MaxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidQuality, MaxChannels)
	}

	if q.Volume < 0.0 || q.Volume > MaxVolume {
		return fmt.Errorf(errFmtVolumeRange, ErrInvalidQuality, MaxVolume)
	}

	if q.FadeIn < 0.0 {
		return fmt.Errorf(errFmtFadeInNonNegative, ErrInvalidQuality)
	}

	if q.FadeOut < 0.0 {
		return fmt.Errorf(errFmtFadeOutNonNegative, ErrInvalidQuality)
	}

	return nil
}

// ApplyEffects returns a processed copy of the clip. Normalisation scales the
// peak to full range before the volume gain; fades are linear.
func (q *Quality) ApplyEffects(clip *Clip) (*Clip, error) {
	err := q.Validate()
	if err != nil {
		return nil, err
	}

	if clip.Empty() {
		return nil, ErrEmptyClip
	}

	samples := make([]float32, len(clip.Samples))
	copy(samples, clip.Samples)

	gain := q.Volume
	if q.Normalize {
		if peak := peakOf(samples); peak > 0 {
			gain *= 1.0 / peak
		}
	}

	if gain != 1.0 {
		for index := range samples {
			samples[index] = clampUnit(float64(samples[index]) * gain)
		}
	}

	applyFade(samples, fadeLength(q.FadeIn, clip.SampleRate, len(samples)), true)
	applyFade(samples, fadeLength(q.FadeOut, clip.SampleRate, len(samples)), false)

	return NewClip(samples, clip.SampleRate), nil
}

func peakOf(samples []float32) float64 {
	var peak float64
	for _, sample := range samples {
		peak = math.Max(peak, math.Abs(float64(sample)))
	}

	return peak
}

func clampUnit(value float64) float32 {
	return float32(math.Max(-1, math.Min(1, value)))
}

func fadeLength(seconds float64, sampleRate, total int) int {
	length := int(seconds * float64(sampleRate))

	return min(max(length, 0), total)
}

func applyFade(samples []float32, length int, fadeIn bool) {
	if length == 0 {
		return
	}

	total := len(samples)
	for step := range length {
		factor := float32(step) / float32(length)
		if fadeIn {
			samples[step] *= factor
		} else {
			samples[total-1-step] *= factor
		}
	}
}
