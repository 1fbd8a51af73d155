// Package core defines the core business types and interfaces for the TTS service.
package core

import (
	"context"

	"github.com/book-expert/kani-tts-service/internal/tts/audio"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// SynthesisParams holds the per-request sampling parameters sent to the model.
// SpeakerID is empty when no speaker is selected.
type SynthesisParams struct {
	SpeakerID         string
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	MaxNewTokens      int
}

// Synthesizer turns one model-sized piece of text into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, params SynthesisParams) (*audio.Clip, error)
	HealthCheck(ctx context.Context) error
}
