package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zaf/g711"
)

// StreamFormat names a wire encoding for streamed audio.
type StreamFormat string

// Supported stream encodings.
const (
	FormatPCM16 StreamFormat = "pcm16"
	FormatWAV   StreamFormat = "wav"
	FormatMuLaw StreamFormat = "mulaw"
	FormatALaw  StreamFormat = "alaw"
)

// ErrUnsupportedFormat is returned for unknown stream formats.
var ErrUnsupportedFormat = errors.New("unsupported stream format")

// ParseStreamFormat maps a request value to a format. Empty selects pcm16.
func ParseStreamFormat(value string) (StreamFormat, error) {
	switch StreamFormat(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatPCM16:
		return FormatPCM16, nil
	case FormatWAV:
		return FormatWAV, nil
	case FormatMuLaw, "ulaw":
		return FormatMuLaw, nil
	case FormatALaw:
		return FormatALaw, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}
}

// ContentType returns the HTTP media type of the format at the given rate.
func (f StreamFormat) ContentType(sampleRate int) string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMuLaw:
		return fmt.Sprintf("audio/basic;rate=%d", sampleRate)
	case FormatALaw:
		return fmt.Sprintf("audio/x-alaw-basic;rate=%d", sampleRate)
	default:
		return fmt.Sprintf("audio/L16;rate=%d;channels=1", sampleRate)
	}
}

// Encode converts 16-bit little-endian PCM to the format's payload encoding.
// The WAV format carries plain PCM after its header.
func (f StreamFormat) Encode(pcm []byte) []byte {
	switch f {
	case FormatMuLaw:
		return g711.EncodeUlaw(pcm)
	case FormatALaw:
		return g711.EncodeAlaw(pcm)
	default:
		return pcm
	}
}

// Preamble returns the bytes sent before the first frame.
func (f StreamFormat) Preamble(sampleRate int) []byte {
	if f == FormatWAV {
		return StreamingWAVHeader(sampleRate, wavChannels, wavBitDepth)
	}

	return nil
}

// Frames splits PCM into frames of frameBytes; the last frame may be shorter.
// The returned slices alias pcm.
func Frames(pcm []byte, frameBytes int) [][]byte {
	if len(pcm) == 0 {
		return nil
	}

	if frameBytes <= 0 || frameBytes >= len(pcm) {
		return [][]byte{pcm}
	}

	frames := make([][]byte, 0, (len(pcm)+frameBytes-1)/frameBytes)
	for start := 0; start < len(pcm); start += frameBytes {
		end := min(start+frameBytes, len(pcm))
		frames = append(frames, pcm[start:end])
	}

	return frames
}

// Framer cuts a PCM stream arriving in pieces of any size into frames of a
// fixed size. Only the final frame returned by Flush may be shorter.
type Framer struct {
	size    int
	pending []byte
}

// NewFramer creates a framer emitting frames of frameBytes, rounded down to a
// whole number of samples.
func NewFramer(frameBytes int) *Framer {
	size := max(frameBytes, bytesPerSample)

	return &Framer{size: size - size%bytesPerSample}
}

// Push appends pcm and returns every frame now complete.
func (f *Framer) Push(pcm []byte) [][]byte {
	f.pending = append(f.pending, pcm...)

	var frames [][]byte

	for len(f.pending) >= f.size {
		frame := make([]byte, f.size)
		copy(frame, f.pending)
		frames = append(frames, frame)
		f.pending = f.pending[f.size:]
	}

	return frames
}

// Flush returns the buffered partial frame, or nil when nothing is left.
func (f *Framer) Flush() []byte {
	if len(f.pending) == 0 {
		return nil
	}

	rest := f.pending
	f.pending = nil

	return rest
}

// ClipFramer frames a sequence of clips as PCM16. Frame size follows the
// first clip's sample rate; a later clip at another rate is rejected.
type ClipFramer struct {
	frameMillis int
	sampleRate  int
	framer      *Framer
}

// NewClipFramer creates a framer emitting frames of frameMillis milliseconds.
func NewClipFramer(frameMillis int) *ClipFramer {
	return &ClipFramer{frameMillis: frameMillis}
}

// SampleRate returns the rate fixed by the first clip, or 0 before it.
func (f *ClipFramer) SampleRate() int {
	return f.sampleRate
}

// Push converts clip to PCM16 and returns every frame now complete.
func (f *ClipFramer) Push(clip *Clip) ([][]byte, error) {
	if f.framer == nil {
		f.sampleRate = clip.SampleRate
		f.framer = NewFramer(FrameBytes(clip.SampleRate, f.frameMillis))
	} else if clip.SampleRate != f.sampleRate {
		return nil, fmt.Errorf("%w: streamed clip has %d Hz, stream started at %d Hz",
			ErrSampleRateMismatch, clip.SampleRate, f.sampleRate)
	}

	return f.framer.Push(PCM16LE(clip.Samples)), nil
}

// Flush returns the buffered partial frame, or nil when nothing is left.
func (f *ClipFramer) Flush() []byte {
	if f.framer == nil {
		return nil
	}

	return f.framer.Flush()
}
