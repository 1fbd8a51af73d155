package tts

import (
	"context"
	"errors"

	"github.com/book-expert/kani-tts-service/internal/speaker"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
)

// Machine-readable error codes reported to clients.
const (
	CodeTextEmpty       = "TEXT_EMPTY"
	CodeTextTooLong     = "TEXT_TOO_LONG"
	CodeNoChunks        = "NO_CHUNKS"
	CodeInvalidParams   = "INVALID_PARAMS"
	CodeUnknownSpeaker  = "UNKNOWN_SPEAKER"
	CodeEmptyAudio      = "EMPTY_AUDIO"
	CodeSynthesisFailed = "SYNTHESIS_FAILED"
	CodeCancelled       = "CANCELLED"
	CodeInternal        = "INTERNAL"
)

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	switch ErrorCode(err) {
	case CodeTextEmpty, CodeTextTooLong, CodeNoChunks, CodeInvalidParams, CodeUnknownSpeaker:
		return true
	default:
		return false
	}
}

// ErrorCode classifies err. Request errors win over backend errors, and
// cancellation wins over both.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	case errors.Is(err, ErrTextEmpty):
		return CodeTextEmpty
	case errors.Is(err, ErrTextTooLong):
		return CodeTextTooLong
	case errors.Is(err, ErrNoChunks):
		return CodeNoChunks
	case errors.Is(err, ErrInvalidParams):
		return CodeInvalidParams
	case errors.Is(err, speaker.ErrUnknownSpeaker):
		return CodeUnknownSpeaker
	case errors.Is(err, ErrEmptyAudio):
		return CodeEmptyAudio
	case errors.Is(err, ErrSynthesisFailed), errors.Is(err, audio.ErrSampleRateMismatch):
		return CodeSynthesisFailed
	default:
		return CodeInternal
	}
}
