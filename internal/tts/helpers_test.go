package tts_test

import (
	"testing"

	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func testParams() core.SynthesisParams {
	return core.SynthesisParams{
		SpeakerID:         "nam-mien-nam",
		Temperature:       0.6,
		TopP:              0.95,
		RepetitionPenalty: 1.1,
		MaxNewTokens:      1200,
	}
}

func testWAV(t *testing.T, samples int) []byte {
	t.Helper()

	values := make([]float32, samples)
	for index := range values {
		values[index] = float32(index%10) / 20
	}

	data, err := audio.WAVBytes(audio.NewClip(values, audio.SampleRate))
	require.NoError(t, err)

	return data
}
