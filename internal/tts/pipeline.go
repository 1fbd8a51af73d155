package tts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/book-expert/kani-tts-service/internal/cache"
	"github.com/book-expert/kani-tts-service/internal/config"
	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/fileutil"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	"github.com/book-expert/kani-tts-service/internal/tts/text"
	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"
)

const (
	// HealthCheckTimeout bounds a backend health probe.
	HealthCheckTimeout = 10 * time.Second
)

var (
	// ErrTextEmpty is returned when the request text is blank.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrTextTooLong is returned when the request text exceeds the configured limit.
	ErrTextTooLong = errors.New("text is too long")
	// ErrNoChunks is returned when splitting leaves nothing to synthesise.
	ErrNoChunks = errors.New("no valid content after processing")
	// ErrEmptyAudio is returned when the backend produced no samples for a chunk.
	ErrEmptyAudio = errors.New("no audio generated")
	// ErrSynthesisFailed wraps backend failures for a chunk.
	ErrSynthesisFailed = errors.New("synthesis failed")
	// ErrInvalidParams is returned for out-of-range sampling parameters.
	ErrInvalidParams = errors.New("invalid sampling parameters")
	// ErrOutputPathEmpty is returned when no output path is given.
	ErrOutputPathEmpty = errors.New("output path cannot be empty")
)

const (
	errFmtTextTooLong       = "%w (%d characters, limit is %d)"
	errFmtChunkFailed       = "%w: chunk %d: %w"
	errFmtChunkEmpty        = "%w for chunk %d"
	errFmtHealthCheckFailed = "TTS service health check failed: %w"

	logFmtChunkProcessed   = "Processed chunk %d/%d in %s"
	logFmtChunkFailed      = "Failed to process chunk %d: %v"
	logFmtChunkCacheHit    = "Chunk %d/%d served from cache"
	logFmtSynthesisDone    = "Synthesised %d chunks: %.2fs audio in %.2fs"
	logFmtGeneratedAudio   = "Generated audio: %s (%.1fs)"
	msgProcessingText      = "Đang xử lý văn bản..."
	msgFmtSynthesising     = "Đang tạo giọng nói (%d đoạn)..."
	msgFmtChunkDone        = "Xong đoạn %d/%d"
	msgFmtSynthesisSummary = "Hoàn tất sau %.2fs | Độ dài audio: %.1fs | Số đoạn: %d"
)

// Stage names a step of a synthesis request.
type Stage string

// Synthesis stages reported through Progress.
const (
	StageProcessing   Stage = "processing"
	StageSynthesizing Stage = "synthesizing"
	StageChunkDone    Stage = "chunk_done"
	StageDone         Stage = "done"
)

// Progress describes how far a request has come. Chunk is 1-based and zero for
// stages that are not about a single chunk.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Chunk   int    `json:"chunk,omitempty"`
	Total   int    `json:"total,omitempty"`
	Message string `json:"message"`
}

// ProgressFunc receives progress events. It may be called from several
// goroutines but never concurrently.
type ProgressFunc func(Progress)

// ChunkSink receives chunk audio in order during streaming. Returning an error
// stops the stream.
type ChunkSink func(index int, clip *audio.Clip) error

// Request is one synthesis request.
type Request struct {
	Text string

	// SpeakerID is the resolved speaker; empty means unspecified.
	SpeakerID string

	Normalize bool

	// Sampling overrides; zero values use the configured defaults.
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
	MaxNewTokens      int

	Progress ProgressFunc
}

// Result is the outcome of a synthesis request.
type Result struct {
	// Clip is the concatenated audio; nil for streamed requests.
	Clip *audio.Clip

	// Texts are the chunk texts sent to the model.
	Texts []string

	Chunks int

	// Elapsed is the sum of per-chunk inference time.
	Elapsed time.Duration

	Duration time.Duration
}

// Summary is the human-readable status line for the result.
func (r *Result) Summary() string {
	return fmt.Sprintf(msgFmtSynthesisSummary, r.Elapsed.Seconds(), r.Duration.Seconds(), r.Chunks)
}

// Settings control limits and defaults of a Pipeline.
type Settings struct {
	MaxTextLen       int
	MaxCharsPerChunk int
	Workers          int
	Defaults         core.SynthesisParams
	// Effects post-process joined clips from Synthesize. Nil leaves audio untouched.
	Effects *audio.Quality
}

// SettingsFromConfig derives pipeline settings from the service configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxTextLen:       cfg.Text.MaxTextLen,
		MaxCharsPerChunk: cfg.Text.MaxCharsPerChunk,
		Workers:          cfg.TTS.Workers,
		Defaults: core.SynthesisParams{
			Temperature:       cfg.TTS.Temperature,
			TopP:              cfg.TTS.TopP,
			RepetitionPenalty: cfg.TTS.RepetitionPenalty,
			MaxNewTokens:      cfg.TTS.MaxNewTokens,
		},
		Effects: effectsFromConfig(cfg.Audio),
	}
}

func effectsFromConfig(cfg config.AudioConfig) *audio.Quality {
	if cfg.Volume == 1.0 && !cfg.PeakNormalize && cfg.FadeInSeconds == 0 && cfg.FadeOutSeconds == 0 {
		return nil
	}

	quality := audio.NewDefaultQuality()
	quality.Volume = cfg.Volume
	quality.Normalize = cfg.PeakNormalize
	quality.FadeIn = cfg.FadeInSeconds
	quality.FadeOut = cfg.FadeOutSeconds

	return &quality
}

// Pipeline validates requests, splits text into chunks, synthesises the chunks
// with bounded concurrency and joins the audio in order.
type Pipeline struct {
	synthesizer core.Synthesizer
	chunkCache  *cache.ChunkCache
	normalizer  *text.Normalizer
	logger      *logger.Logger
	settings    Settings
}

// NewPipeline creates a pipeline. chunkCache may be nil.
func NewPipeline(
	synthesizer core.Synthesizer,
	chunkCache *cache.ChunkCache,
	log *logger.Logger,
	settings Settings,
) *Pipeline {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}

	return &Pipeline{
		synthesizer: synthesizer,
		chunkCache:  chunkCache,
		normalizer:  text.NewNormalizer(),
		logger:      log,
		settings:    settings,
	}
}

// Settings returns the pipeline settings.
func (p *Pipeline) Settings() Settings {
	return p.settings
}

// CacheStats returns the chunk cache counters.
func (p *Pipeline) CacheStats() cache.Stats {
	return p.chunkCache.Stats()
}

// HealthCheck probes the backend.
func (p *Pipeline) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()

	err := p.synthesizer.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf(errFmtHealthCheckFailed, err)
	}

	return nil
}

// Chunks validates req and returns the chunk texts it would synthesise,
// normalised when requested.
func (p *Pipeline) Chunks(req Request) ([]string, error) {
	trimmed := strings.TrimSpace(req.Text)
	if trimmed == "" {
		return nil, ErrTextEmpty
	}

	length := utf8.RuneCountInString(trimmed)
	if p.settings.MaxTextLen > 0 && length > p.settings.MaxTextLen {
		return nil, fmt.Errorf(errFmtTextTooLong, ErrTextTooLong, length, p.settings.MaxTextLen)
	}

	raw := text.SplitByPunctuation(trimmed, p.settings.MaxCharsPerChunk)

	chunks := make([]string, 0, len(raw))

	for _, chunk := range raw {
		if req.Normalize {
			chunk = p.normalizer.Normalize(chunk)
		}

		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	return chunks, nil
}

// Synthesize runs the whole request and returns the joined audio.
func (p *Pipeline) Synthesize(ctx context.Context, req Request) (*Result, error) {
	chunks, params, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	report := serialize(req.Progress)
	report(Progress{Stage: StageSynthesizing, Total: len(chunks), Message: fmt.Sprintf(msgFmtSynthesising, len(chunks))})

	clips := make([]*audio.Clip, len(chunks))
	elapsed := make([]time.Duration, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.settings.Workers)

	for index, chunk := range chunks {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}

			clip, took, chunkErr := p.synthesizeChunk(groupCtx, index, len(chunks), chunk, params)
			if chunkErr != nil {
				return chunkErr
			}

			clips[index] = clip
			elapsed[index] = took

			report(Progress{
				Stage:   StageChunkDone,
				Chunk:   index + 1,
				Total:   len(chunks),
				Message: fmt.Sprintf(msgFmtChunkDone, index+1, len(chunks)),
			})

			return nil
		})
	}

	err = group.Wait()
	if err != nil {
		return nil, err
	}

	joined, err := audio.Concat(clips...)
	if err != nil {
		return nil, fmt.Errorf("failed to join chunk audio: %w", err)
	}

	if p.settings.Effects != nil {
		joined, err = p.settings.Effects.ApplyEffects(joined)
		if err != nil {
			return nil, fmt.Errorf("failed to apply audio effects: %w", err)
		}
	}

	result := &Result{
		Clip:     joined,
		Texts:    chunks,
		Chunks:   len(chunks),
		Elapsed:  sum(elapsed),
		Duration: joined.Duration(),
	}

	p.logger.Info(logFmtSynthesisDone, result.Chunks, result.Duration.Seconds(), result.Elapsed.Seconds())
	report(Progress{Stage: StageDone, Total: len(chunks), Message: result.Summary()})

	return result, nil
}

type chunkResult struct {
	clip    *audio.Clip
	elapsed time.Duration
	err     error
}

// Stream synthesises the request and hands each chunk clip to sink in chunk
// order as soon as it and all earlier chunks are ready. At most Workers chunks
// are being synthesised or waiting for the sink at any time, so a slow sink
// holds back synthesis. The returned Result has no Clip.
func (p *Pipeline) Stream(ctx context.Context, req Request, sink ChunkSink) (*Result, error) {
	chunks, params, err := p.prepare(req)
	if err != nil {
		return nil, err
	}

	report := serialize(req.Progress)
	report(Progress{Stage: StageSynthesizing, Total: len(chunks), Message: fmt.Sprintf(msgFmtSynthesising, len(chunks))})

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]chan chunkResult, len(chunks))
	for index := range results {
		results[index] = make(chan chunkResult, 1)
	}

	slots := make(chan struct{}, p.settings.Workers)

	var group errgroup.Group

	group.Go(func() error {
		for index, chunk := range chunks {
			select {
			case slots <- struct{}{}:
			case <-streamCtx.Done():
				return nil
			}

			group.Go(func() error {
				clip, took, chunkErr := p.synthesizeChunk(streamCtx, index, len(chunks), chunk, params)
				results[index] <- chunkResult{clip: clip, elapsed: took, err: chunkErr}

				return nil
			})
		}

		return nil
	})

	result := &Result{Texts: chunks, Chunks: len(chunks)}

	err = p.drain(streamCtx, results, slots, sink, report, result)

	cancel()

	_ = group.Wait()

	if err != nil {
		return nil, err
	}

	p.logger.Info(logFmtSynthesisDone, result.Chunks, result.Duration.Seconds(), result.Elapsed.Seconds())
	report(Progress{Stage: StageDone, Total: len(chunks), Message: result.Summary()})

	return result, nil
}

func (p *Pipeline) drain(
	ctx context.Context,
	results []chan chunkResult,
	slots chan struct{},
	sink ChunkSink,
	report ProgressFunc,
	result *Result,
) error {
	for index, pending := range results {
		var outcome chunkResult

		select {
		case outcome = <-pending:
		case <-ctx.Done():
			return fmt.Errorf("stream interrupted: %w", ctx.Err())
		}

		if outcome.err != nil {
			return outcome.err
		}

		err := sink(index, outcome.clip)
		if err != nil {
			return fmt.Errorf("failed to deliver chunk %d: %w", index+1, err)
		}

		// The slot is held until the sink accepts the chunk.
		<-slots

		result.Elapsed += outcome.elapsed
		result.Duration += outcome.clip.Duration()

		report(Progress{
			Stage:   StageChunkDone,
			Chunk:   index + 1,
			Total:   len(results),
			Message: fmt.Sprintf(msgFmtChunkDone, index+1, len(results)),
		})
	}

	return nil
}

// SynthesizeToFile synthesises req and writes the WAV to outputPath, creating
// parent directories.
func (p *Pipeline) SynthesizeToFile(ctx context.Context, req Request, outputPath string) (*Result, error) {
	if outputPath == "" {
		return nil, ErrOutputPathEmpty
	}

	err := fileutil.EnsureDir(filepath.Dir(outputPath))
	if err != nil {
		return nil, err
	}

	result, err := p.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	err = audio.WriteWAVFile(outputPath, result.Clip)
	if err != nil {
		return nil, fmt.Errorf("failed to write audio file: %w", err)
	}

	p.logger.Info(logFmtGeneratedAudio, outputPath, result.Duration.Seconds())

	return result, nil
}

func (p *Pipeline) prepare(req Request) ([]string, core.SynthesisParams, error) {
	report := req.Progress
	if report != nil {
		report(Progress{Stage: StageProcessing, Message: msgProcessingText})
	}

	params, err := p.params(req)
	if err != nil {
		return nil, core.SynthesisParams{}, err
	}

	chunks, err := p.Chunks(req)
	if err != nil {
		return nil, core.SynthesisParams{}, err
	}

	return chunks, params, nil
}

func (p *Pipeline) params(req Request) (core.SynthesisParams, error) {
	params := p.settings.Defaults
	params.SpeakerID = req.SpeakerID

	if req.Temperature != 0 {
		params.Temperature = req.Temperature
	}

	if req.TopP != 0 {
		params.TopP = req.TopP
	}

	if req.RepetitionPenalty != 0 {
		params.RepetitionPenalty = req.RepetitionPenalty
	}

	if req.MaxNewTokens != 0 {
		params.MaxNewTokens = req.MaxNewTokens
	}

	switch {
	case params.Temperature < 0:
		return params, fmt.Errorf("%w: temperature %.2f is negative", ErrInvalidParams, params.Temperature)
	case params.TopP < 0 || params.TopP > 1:
		return params, fmt.Errorf("%w: top_p %.2f is outside [0, 1]", ErrInvalidParams, params.TopP)
	case params.RepetitionPenalty < 1:
		return params, fmt.Errorf("%w: repetition penalty %.2f is below 1", ErrInvalidParams, params.RepetitionPenalty)
	case params.MaxNewTokens < 0:
		return params, fmt.Errorf("%w: max new tokens %d is negative", ErrInvalidParams, params.MaxNewTokens)
	}

	return params, nil
}

func (p *Pipeline) synthesizeChunk(
	ctx context.Context,
	index, total int,
	chunk string,
	params core.SynthesisParams,
) (*audio.Clip, time.Duration, error) {
	key := cache.Key(chunk, params)

	if clip, found := p.chunkCache.Get(key); found {
		p.logger.Info(logFmtChunkCacheHit, index+1, total)

		return clip, 0, nil
	}

	start := time.Now()

	clip, err := p.synthesizer.Synthesize(ctx, chunk, params)

	took := time.Since(start)

	if err != nil {
		p.logger.Error(logFmtChunkFailed, index+1, err)

		return nil, took, fmt.Errorf(errFmtChunkFailed, ErrSynthesisFailed, index+1, err)
	}

	if clip.Empty() {
		return nil, took, fmt.Errorf(errFmtChunkEmpty, ErrEmptyAudio, index+1)
	}

	p.chunkCache.Add(key, clip)
	p.logger.Info(logFmtChunkProcessed, index+1, total, took.Round(time.Millisecond))

	return clip, took, nil
}

// serialize wraps fn so concurrent callers never overlap.
func serialize(fn ProgressFunc) ProgressFunc {
	if fn == nil {
		return func(Progress) {}
	}

	var mutex sync.Mutex

	return func(event Progress) {
		mutex.Lock()
		defer mutex.Unlock()

		fn(event)
	}
}

func sum(values []time.Duration) time.Duration {
	var total time.Duration

	for _, value := range values {
		total += value
	}

	return total
}
