// Package config provides the configuration structure for the kani-tts-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Backend names accepted by tts_service.backend.
const (
	BackendHTTP    = "http"
	BackendChatLLM = "chatllm"
)

// Environment variables that override file values.
const (
	envPort       = "PORT"
	envBackendURL = "KANI_TTS_BACKEND_URL"
	envNATSURL    = "NATS_URL"
)

// Defaults mirror the demo application limits and the model's native output rate.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 7860
	DefaultBackendURL        = "http://127.0.0.1:8000"
	DefaultTimeoutSeconds    = 120
	DefaultWorkers           = 2
	DefaultTemperature       = 0.6
	DefaultTopP              = 0.95
	DefaultRepetitionPenalty = 1.1
	DefaultMaxNewTokens      = 1200
	DefaultMaxTextLen        = 8000
	DefaultMaxCharsPerChunk  = 250
	DefaultSampleRate        = 22050
	DefaultStreamFrameMillis = 100
	DefaultVolume            = 1.0
	MaxVolume                = 10.0
	DefaultCacheSize         = 256
	DefaultLogsDir           = "logs"
	DefaultOutputDir         = "output"
)

var (
	// ErrInvalidPort indicates a listen port outside 1..65535.
	ErrInvalidPort = errors.New("server port must be between 1 and 65535")
	// ErrUnknownBackend indicates an unsupported tts_service.backend value.
	ErrUnknownBackend = errors.New("unknown tts backend")
	// ErrChunkLimit indicates that the chunk limit exceeds the text limit.
	ErrChunkLimit = errors.New("max_chars_per_chunk must be positive and not exceed max_text_len")
	// ErrWorkersNegative indicates a negative worker count.
	ErrWorkersNegative = errors.New("workers must be non-negative")
	// ErrTopPRange indicates that top_p is outside [0.0, 1.0].
	ErrTopPRange = errors.New("top_p must be between 0.0 and 1.0")
	// ErrRepetitionPenaltyRange indicates a repetition penalty below 1.0.
	ErrRepetitionPenaltyRange = errors.New("repetition penalty must be >= 1.0")
	// ErrTemperatureRange indicates a negative temperature.
	ErrTemperatureRange = errors.New("temperature must be >= 0.0")
	// ErrSampleRate indicates a non-positive sample rate.
	ErrSampleRate = errors.New("sample rate must be positive")
	// ErrAudioEffects indicates an out-of-range volume or fade.
	ErrAudioEffects = errors.New("invalid audio effects")
	// ErrAllowedOrigin indicates a CORS origin that is neither "*" nor an http(s) URL.
	ErrAllowedOrigin = errors.New("allowed origin must be \"*\" or start with http:// or https://")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// TTSServiceConfig holds the inference backend settings.
type TTSServiceConfig struct {
	Backend           string  `toml:"backend"`
	ServiceURL        string  `toml:"service_url"`
	BinaryPath        string  `toml:"binary_path"`
	ModelPath         string  `toml:"model_path"`
	CodecModelPath    string  `toml:"codec_model_path"`
	NGL               int     `toml:"n_gpu_layers"`
	Seed              int     `toml:"seed"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	Workers           int     `toml:"workers"`
	Temperature       float64 `toml:"temperature"`
	TopP              float64 `toml:"top_p"`
	RepetitionPenalty float64 `toml:"repetition_penalty"`
	MaxNewTokens      int     `toml:"max_new_tokens"`
}

// TextConfig holds the input limits and normalisation switch.
type TextConfig struct {
	MaxTextLen       int  `toml:"max_text_len"`
	MaxCharsPerChunk int  `toml:"max_chars_per_chunk"`
	DisableNormalize bool `toml:"disable_normalize"`
}

// AudioConfig holds the output format settings.
// Volume, PeakNormalize and the fades apply to complete clips only, never to
// streamed audio.
type AudioConfig struct {
	SampleRate        int     `toml:"sample_rate"`
	StreamFrameMillis int     `toml:"stream_frame_ms"`
	Volume            float64 `toml:"volume"`
	PeakNormalize     bool    `toml:"peak_normalize"`
	FadeInSeconds     float64 `toml:"fade_in_seconds"`
	FadeOutSeconds    float64 `toml:"fade_out_seconds"`
}

// CacheConfig holds the chunk cache settings. Size <= 0 disables the cache.
type CacheConfig struct {
	Size int `toml:"size"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the worker.
type NATSConfig struct {
	URL                    string `toml:"url"`
	TextProcessedSubject   string `toml:"text_processed_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	TextObjectStoreBucket  string `toml:"text_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	OutputDir   string `toml:"output_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server ServerConfig     `toml:"server"`
	TTS    TTSServiceConfig `toml:"tts_service"`
	Text   TextConfig       `toml:"text"`
	Audio  AudioConfig      `toml:"audio"`
	Cache  CacheConfig      `toml:"cache"`
	NATS   NATSConfig       `toml:"nats"`
	Paths  PathsConfig      `toml:"paths"`
}

// Load loads the configuration through the central configurator and applies
// environment overrides and defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a TOML file on disk.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return finish(&cfg)
}

// Default returns a configuration populated only with defaults and environment overrides.
func Default() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	err := cfg.ApplyEnv()
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when they are set.
func (c *Config) ApplyEnv() error {
	if port := os.Getenv(envPort); port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", envPort, port, err)
		}

		c.Server.Port = value
	}

	if url := os.Getenv(envBackendURL); url != "" {
		c.TTS.ServiceURL = url
	}

	if url := os.Getenv(envNATSURL); url != "" {
		c.NATS.URL = url
	}

	return nil
}

// ApplyDefaults fills every zero value with its default.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}

	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}

	if c.TTS.Backend == "" {
		c.TTS.Backend = BackendHTTP
	}

	if c.TTS.ServiceURL == "" {
		c.TTS.ServiceURL = DefaultBackendURL
	}

	if c.TTS.BinaryPath == "" {
		c.TTS.BinaryPath = "chatllm"
	}

	if c.TTS.TimeoutSeconds == 0 {
		c.TTS.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if c.TTS.Workers == 0 {
		c.TTS.Workers = DefaultWorkers
	}

	if c.TTS.Temperature == 0 {
		c.TTS.Temperature = DefaultTemperature
	}

	if c.TTS.TopP == 0 {
		c.TTS.TopP = DefaultTopP
	}

	if c.TTS.RepetitionPenalty == 0 {
		c.TTS.RepetitionPenalty = DefaultRepetitionPenalty
	}

	if c.TTS.MaxNewTokens == 0 {
		c.TTS.MaxNewTokens = DefaultMaxNewTokens
	}

	c.applyTextDefaults()

	if c.NATS.TextProcessedSubject == "" {
		c.NATS.TextProcessedSubject = "tts.text.processed"
	}

	if c.NATS.AudioObjectStoreBucket == "" {
		c.NATS.AudioObjectStoreBucket = "TTS_AUDIO"
	}

	if c.NATS.TextObjectStoreBucket == "" {
		c.NATS.TextObjectStoreBucket = "TTS_TEXT"
	}

	if c.Paths.BaseLogsDir == "" {
		c.Paths.BaseLogsDir = DefaultLogsDir
	}

	if c.Paths.OutputDir == "" {
		c.Paths.OutputDir = DefaultOutputDir
	}
}

func (c *Config) applyTextDefaults() {
	if c.Text.MaxTextLen == 0 {
		c.Text.MaxTextLen = DefaultMaxTextLen
	}

	if c.Text.MaxCharsPerChunk == 0 {
		c.Text.MaxCharsPerChunk = DefaultMaxCharsPerChunk
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = DefaultSampleRate
	}

	if c.Audio.StreamFrameMillis == 0 {
		c.Audio.StreamFrameMillis = DefaultStreamFrameMillis
	}

	if c.Audio.Volume == 0 {
		c.Audio.Volume = DefaultVolume
	}

	if c.Cache.Size == 0 {
		c.Cache.Size = DefaultCacheSize
	}
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: got %d", ErrInvalidPort, c.Server.Port)
	}

	switch c.TTS.Backend {
	case BackendHTTP, BackendChatLLM:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.TTS.Backend)
	}

	if c.TTS.Workers < 0 {
		return fmt.Errorf("%w: got %d", ErrWorkersNegative, c.TTS.Workers)
	}

	if c.TTS.TopP < 0.0 || c.TTS.TopP > 1.0 {
		return fmt.Errorf("%w: got %f", ErrTopPRange, c.TTS.TopP)
	}

	if c.TTS.RepetitionPenalty < 1.0 {
		return fmt.Errorf("%w: got %f", ErrRepetitionPenaltyRange, c.TTS.RepetitionPenalty)
	}

	if c.TTS.Temperature < 0.0 {
		return fmt.Errorf("%w: got %f", ErrTemperatureRange, c.TTS.Temperature)
	}

	if c.Text.MaxCharsPerChunk <= 0 || c.Text.MaxCharsPerChunk > c.Text.MaxTextLen {
		return fmt.Errorf("%w: chunk %d, text %d", ErrChunkLimit, c.Text.MaxCharsPerChunk, c.Text.MaxTextLen)
	}

	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("%w: got %d", ErrSampleRate, c.Audio.SampleRate)
	}

	if c.Audio.Volume < 0 || c.Audio.Volume > MaxVolume {
		return fmt.Errorf("%w: volume %f", ErrAudioEffects, c.Audio.Volume)
	}

	if c.Audio.FadeInSeconds < 0 || c.Audio.FadeOutSeconds < 0 {
		return fmt.Errorf("%w: fades must be non-negative", ErrAudioEffects)
	}

	for _, origin := range c.Server.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("%w: %q", ErrAllowedOrigin, origin)
		}
	}

	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
