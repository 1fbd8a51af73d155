package tts

import (
	"fmt"
	"time"

	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/fileutil"
	"github.com/book-expert/logger"
)

// NewSynthesizer builds the inference backend named by cfg.Backend. Model
// files for the chatllm backend are looked up with fileutil.ModelPath, so bare
// file names resolve against ./models and the model cache.
func NewSynthesizer(cfg config.TTSServiceConfig, log *logger.Logger) (core.Synthesizer, error) {
	switch cfg.Backend {
	case config.BackendHTTP:
		return NewHTTPSynthesizer(cfg.ServiceURL, time.Duration(cfg.TimeoutSeconds)*time.Second), nil
	case config.BackendChatLLM:
		var err error

		if cfg.ModelPath != "" {
			cfg.ModelPath, err = fileutil.ModelPath(cfg.ModelPath)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve model: %w", err)
			}
		}

		if cfg.CodecModelPath != "" {
			cfg.CodecModelPath, err = fileutil.ModelPath(cfg.CodecModelPath)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve codec model: %w", err)
			}
		}

		log.Info("Using chatllm backend with model %s", cfg.ModelPath)

		return NewChatLLMProcessor(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
