package tts

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
)

// HTTPSynthesizer adapts HTTPClient to core.Synthesizer.
type HTTPSynthesizer struct {
	client *HTTPClient
}

// NewHTTPSynthesizer creates a synthesizer for the server at baseURL.
func NewHTTPSynthesizer(baseURL string, timeout time.Duration) *HTTPSynthesizer {
	return NewHTTPSynthesizerWithClient(NewHTTPClient(baseURL, timeout))
}

// NewHTTPSynthesizerWithClient wraps an existing client.
func NewHTTPSynthesizerWithClient(client *HTTPClient) *HTTPSynthesizer {
	return &HTTPSynthesizer{client: client}
}

// Synthesize requests speech for text and decodes the returned WAV.
func (s *HTTPSynthesizer) Synthesize(
	ctx context.Context,
	text string,
	params core.SynthesisParams,
) (*audio.Clip, error) {
	audioData, err := s.client.GenerateSpeech(ctx, Request{
		Text:              text,
		SpeakerID:         params.SpeakerID,
		Temperature:       params.Temperature,
		TopP:              params.TopP,
		RepetitionPenalty: params.RepetitionPenalty,
		MaxNewTokens:      params.MaxNewTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	clip, err := audio.DecodeWAV(audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode backend audio: %w", err)
	}

	return clip, nil
}

// HealthCheck delegates to the client.
func (s *HTTPSynthesizer) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}
