package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	"github.com/book-expert/logger"
)

const chatLLMExportPattern = "kani-tts-chatllm-*.wav"

var (
	// ErrBinaryPathEmpty is returned when no chatllm binary is configured.
	ErrBinaryPathEmpty = errors.New("chatllm binary path cannot be empty")
	// ErrModelPathEmpty is returned when no model file is configured.
	ErrModelPathEmpty = errors.New("model path cannot be empty")
)

// ChatLLMProcessor implements core.Synthesizer by running the chatllm binary
// and reading the WAV it exports.
type ChatLLMProcessor struct {
	config config.TTSServiceConfig
	log    *logger.Logger
}

// NewChatLLMProcessor creates a processor for the configured binary and model.
func NewChatLLMProcessor(cfg config.TTSServiceConfig, log *logger.Logger) (*ChatLLMProcessor, error) {
	if cfg.BinaryPath == "" {
		return nil, ErrBinaryPathEmpty
	}

	if cfg.ModelPath == "" {
		return nil, ErrModelPathEmpty
	}

	return &ChatLLMProcessor{
		config: cfg,
		log:    log,
	}, nil
}

// Synthesize runs one chatllm inference for text.
func (p *ChatLLMProcessor) Synthesize(
	ctx context.Context,
	text string,
	params core.SynthesisParams,
) (*audio.Clip, error) {
	tempFile, err := os.CreateTemp("", chatLLMExportPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file for tts output: %w", err)
	}

	tempPath := tempFile.Name()

	closeErr := tempFile.Close()
	if closeErr != nil {
		p.log.Warn("Failed to close temp file '%s': %v", tempPath, closeErr)
	}

	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			p.log.Warn("Failed to remove temp file '%s': %v", tempPath, removeErr)
		}
	}()

	if p.config.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(p.config.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	// #nosec G204 -- binary and model come from configuration; text is a single argument
	cmd := exec.CommandContext(ctx, p.config.BinaryPath, p.args(text, params, tempPath)...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("chatllm binary execution failed: %w - output: %s", err, string(output))
	}

	audioData, err := os.ReadFile(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from temp file: %w", err)
	}

	clip, err := audio.DecodeWAV(audioData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chatllm audio: %w", err)
	}

	return clip, nil
}

// HealthCheck verifies that the binary and model files are present.
func (p *ChatLLMProcessor) HealthCheck(_ context.Context) error {
	_, err := exec.LookPath(p.config.BinaryPath)
	if err != nil {
		return fmt.Errorf("chatllm binary not found: %w", err)
	}

	_, err = os.Stat(p.config.ModelPath)
	if err != nil {
		return fmt.Errorf("model file not available: %w", err)
	}

	return nil
}

func (p *ChatLLMProcessor) args(text string, params core.SynthesisParams, exportPath string) []string {
	args := []string{"-m", p.config.ModelPath}

	if p.config.CodecModelPath != "" {
		args = append(args, "--snac_model", p.config.CodecModelPath)
	}

	args = append(args,
		"-p", Prompt(text, params.SpeakerID),
		"--tts_export", exportPath,
		"--seed", strconv.Itoa(p.config.Seed),
		"-ngl", strconv.Itoa(p.config.NGL),
		"--top_p", fmt.Sprintf("%.2f", params.TopP),
		"--repetition_penalty", fmt.Sprintf("%.2f", params.RepetitionPenalty),
		"--temp", fmt.Sprintf("%.2f", params.Temperature),
	)

	if params.MaxNewTokens > 0 {
		args = append(args, "--max_new_tokens", strconv.Itoa(params.MaxNewTokens))
	}

	return args
}

// Prompt prefixes text with the speaker ID the way the model was trained,
// "speaker: text". Without a speaker the text is sent as is.
func Prompt(text, speakerID string) string {
	if speakerID == "" {
		return text
	}

	return speakerID + ": " + text
}
