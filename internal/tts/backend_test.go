package tts_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/fileutil"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSynthesizer(t *testing.T) {
	t.Parallel()

	log := createTestLogger(t)

	synth, err := tts.NewSynthesizer(config.TTSServiceConfig{
		Backend:        config.BackendHTTP,
		ServiceURL:     "http://127.0.0.1:8000",
		TimeoutSeconds: 5,
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &tts.HTTPSynthesizer{}, synth)

	modelPath := filepath.Join(t.TempDir(), "kani-tts-vie.bin")
	require.NoError(t, os.WriteFile(modelPath, []byte("weights"), 0o600))

	synth, err = tts.NewSynthesizer(config.TTSServiceConfig{
		Backend:    config.BackendChatLLM,
		BinaryPath: "chatllm",
		ModelPath:  modelPath,
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &tts.ChatLLMProcessor{}, synth)
}

func TestNewSynthesizer_Errors(t *testing.T) {
	t.Parallel()

	log := createTestLogger(t)

	_, err := tts.NewSynthesizer(config.TTSServiceConfig{Backend: "onnx"}, log)
	require.ErrorIs(t, err, config.ErrUnknownBackend)

	_, err = tts.NewSynthesizer(config.TTSServiceConfig{
		Backend:    config.BackendChatLLM,
		BinaryPath: "chatllm",
		ModelPath:  filepath.Join(t.TempDir(), "missing.bin"),
	}, log)
	require.ErrorIs(t, err, fileutil.ErrModelNotFound)

	_, err = tts.NewSynthesizer(config.TTSServiceConfig{Backend: config.BackendChatLLM, BinaryPath: "chatllm"}, log)
	require.ErrorIs(t, err, tts.ErrModelPathEmpty)
}
