package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth      = 16
	wavChannels      = 1
	wavFormatPCM     = 1
	wavFormatFloat   = 3
	floatBitDepth    = 32
	unsignedBitDepth = 8
	filePermissions  = 0o600
	unknownChunkSize = 0xFFFFFFFF
)

// ErrInvalidWAV is returned when a payload is not a readable WAV file.
var ErrInvalidWAV = errors.New("invalid WAV data")

// DecodeWAV parses a WAV payload into a mono clip. Integer PCM and 32-bit
// IEEE float data are accepted. Multi-channel input is down-mixed by averaging
// the channels.
func DecodeWAV(data []byte) (*Clip, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, ErrInvalidWAV
	}

	toFloat, err := sampleConverter(decoder.WavAudioFormat, int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWAV, err)
	}

	channels := int(decoder.NumChans)
	if channels <= 0 {
		channels = 1
	}

	frames := len(buffer.Data) / channels
	samples := make([]float32, frames)

	for frame := range frames {
		var sum float32
		for channel := range channels {
			sum += toFloat(buffer.Data[frame*channels+channel])
		}

		samples[frame] = sum / float32(channels)
	}

	return NewClip(samples, int(decoder.SampleRate)), nil
}

// sampleConverter maps a decoded integer sample to [-1, 1] for the given WAV
// format code and bit depth.
func sampleConverter(format uint16, bitDepth int) (func(int) float32, error) {
	switch {
	case format == wavFormatFloat && bitDepth == floatBitDepth:
		// The decoder hands back the raw little-endian bits as an int32.
		return func(value int) float32 {
			return math.Float32frombits(uint32(int32(value)))
		}, nil
	case format == wavFormatPCM && bitDepth == unsignedBitDepth:
		return func(value int) float32 {
			return float32(value-128) / 128
		}, nil
	case format == wavFormatPCM && bitDepth > unsignedBitDepth && bitDepth <= floatBitDepth:
		scale := float32(int64(1) << (bitDepth - 1))

		return func(value int) float32 {
			return float32(value) / scale
		}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported format %d with %d bits per sample", ErrInvalidWAV, format, bitDepth)
	}
}

// EncodeWAV writes the clip as a 16-bit mono PCM WAV file.
func EncodeWAV(writer io.WriteSeeker, clip *Clip) error {
	if clip.Empty() {
		return ErrEmptyClip
	}

	encoder := wav.NewEncoder(writer, clip.SampleRate, wavBitDepth, wavChannels, wavFormatPCM)

	data := make([]int, len(clip.Samples))
	for index, sample := range clip.Samples {
		data[index] = int(FloatToInt16(sample))
	}

	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: wavChannels, SampleRate: clip.SampleRate},
		Data:           data,
		SourceBitDepth: wavBitDepth,
	}

	err := encoder.Write(buffer)
	if err != nil {
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	return nil
}

// WAVBytes encodes the clip into an in-memory WAV file.
func WAVBytes(clip *Clip) ([]byte, error) {
	buffer := &seekBuffer{}

	err := EncodeWAV(buffer, clip)
	if err != nil {
		return nil, err
	}

	return buffer.Bytes(), nil
}

// WriteWAVFile encodes the clip to the given path.
func WriteWAVFile(path string, clip *Clip) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to create WAV file %s: %w", path, err)
	}

	encodeErr := EncodeWAV(file, clip)
	closeErr := file.Close()

	if encodeErr != nil {
		return encodeErr
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close WAV file %s: %w", path, closeErr)
	}

	return nil
}

// StreamingWAVHeader returns a 44-byte PCM header whose size fields are set to
// the maximum value, for responses whose length is not known up front.
func StreamingWAVHeader(sampleRate, channels, bitDepth int) []byte {
	header := make([]byte, 0, 44)
	blockAlign := channels * bitDepth / 8
	byteRate := sampleRate * blockAlign

	header = append(header, "RIFF"...)
	header = appendUint32(header, unknownChunkSize)
	header = append(header, "WAVEfmt "...)
	header = appendUint32(header, 16)
	header = appendUint16(header, wavFormatPCM)
	header = appendUint16(header, uint16(channels))
	header = appendUint32(header, uint32(sampleRate))
	header = appendUint32(header, uint32(byteRate))
	header = appendUint16(header, uint16(blockAlign))
	header = appendUint16(header, uint16(bitDepth))
	header = append(header, "data"...)
	header = appendUint32(header, unknownChunkSize)

	return header
}

func appendUint16(dst []byte, value uint16) []byte {
	return append(dst, byte(value), byte(value>>8))
}

func appendUint32(dst []byte, value uint32) []byte {
	return append(dst, byte(value), byte(value>>8), byte(value>>16), byte(value>>24))
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes when it closes.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}

	copy(b.data[b.pos:], p)
	b.pos = end

	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64

	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(b.pos)
	case io.SeekEnd:
		base = int64(len(b.data))
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	target := base + offset
	if target < 0 {
		return 0, fmt.Errorf("negative seek position %d", target)
	}

	b.pos = int(target)

	return target, nil
}

func (b *seekBuffer) Bytes() []byte {
	return b.data
}
