// Package config_test tests the configuration loading for the kani-tts-service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
[server]
host = "127.0.0.1"
port = 9000
allowed_origins = ["http://localhost:5173"]

[tts_service]
backend = "http"
service_url = "http://127.0.0.1:8001"
timeout_seconds = 60
workers = 3
temperature = 0.7
top_p = 0.9
repetition_penalty = 1.2
max_new_tokens = 900

[text]
max_text_len = 4000
max_chars_per_chunk = 200

[audio]
sample_rate = 22050
stream_frame_ms = 40

[nats]
url = "nats://127.0.0.1:4222"
text_processed_subject = "text.processed"
audio_object_store_bucket = "AUDIO_FILES"

[paths]
base_logs_dir = "/var/log/kani"
`

func TestUnmarshalConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(sampleConfig), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "http://127.0.0.1:8001", cfg.TTS.ServiceURL)
	assert.Equal(t, 3, cfg.TTS.Workers)
	assert.InEpsilon(t, 0.7, cfg.TTS.Temperature, 0.001)
	assert.InEpsilon(t, 0.9, cfg.TTS.TopP, 0.001)
	assert.Equal(t, 900, cfg.TTS.MaxNewTokens)
	assert.Equal(t, 4000, cfg.Text.MaxTextLen)
	assert.Equal(t, 200, cfg.Text.MaxCharsPerChunk)
	assert.Equal(t, 40, cfg.Audio.StreamFrameMillis)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "/var/log/kani", cfg.Paths.BaseLogsDir)
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 8080\n"), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("KANI_TTS_BACKEND_URL", "")
	t.Setenv("NATS_URL", "")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, config.BackendHTTP, cfg.TTS.Backend)
	assert.Equal(t, config.DefaultMaxTextLen, cfg.Text.MaxTextLen)
	assert.Equal(t, config.DefaultMaxCharsPerChunk, cfg.Text.MaxCharsPerChunk)
	assert.Equal(t, config.DefaultSampleRate, cfg.Audio.SampleRate)
	assert.InDelta(t, config.DefaultVolume, cfg.Audio.Volume, 1e-9)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	t.Setenv("PORT", "7000")
	t.Setenv("KANI_TTS_BACKEND_URL", "http://backend:9999")
	t.Setenv("NATS_URL", "")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "http://backend:9999", cfg.TTS.ServiceURL)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
}

func TestLoadFile_InvalidPortEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "project.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	t.Setenv("PORT", "not-a-port")

	_, err := config.LoadFile(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}, wantErr: nil},
		{name: "bad port", mutate: func(cfg *config.Config) { cfg.Server.Port = 70000 }, wantErr: config.ErrInvalidPort},
		{name: "unknown backend", mutate: func(cfg *config.Config) { cfg.TTS.Backend = "onnx" }, wantErr: config.ErrUnknownBackend},
		{name: "top_p too large", mutate: func(cfg *config.Config) { cfg.TTS.TopP = 1.5 }, wantErr: config.ErrTopPRange},
		{
			name:    "repetition penalty below one",
			mutate:  func(cfg *config.Config) { cfg.TTS.RepetitionPenalty = 0.5 },
			wantErr: config.ErrRepetitionPenaltyRange,
		},
		{name: "negative temperature", mutate: func(cfg *config.Config) { cfg.TTS.Temperature = -1 }, wantErr: config.ErrTemperatureRange},
		{
			name:    "chunk larger than text",
			mutate:  func(cfg *config.Config) { cfg.Text.MaxCharsPerChunk = cfg.Text.MaxTextLen + 1 },
			wantErr: config.ErrChunkLimit,
		},
		{name: "negative workers", mutate: func(cfg *config.Config) { cfg.TTS.Workers = -2 }, wantErr: config.ErrWorkersNegative},
		{name: "volume too loud", mutate: func(cfg *config.Config) { cfg.Audio.Volume = 11 }, wantErr: config.ErrAudioEffects},
		{
			name:    "origin without scheme",
			mutate:  func(cfg *config.Config) { cfg.Server.AllowedOrigins = []string{"localhost:3000"} },
			wantErr: config.ErrAllowedOrigin,
		},
		{name: "negative fade", mutate: func(cfg *config.Config) { cfg.Audio.FadeOutSeconds = -0.1 }, wantErr: config.ErrAudioEffects},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var cfg config.Config

			cfg.ApplyDefaults()
			testCase.mutate(&cfg)

			err := cfg.Validate()
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}
