// Package worker serves asynchronous synthesis jobs received over NATS.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/fileutil"
	"github.com/book-expert/kani-tts-service/internal/speaker"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultJobTimeout bounds one job from download to upload.
const DefaultJobTimeout = 10 * time.Minute

// Reply headers set when a job fails.
const (
	HeaderError     = "Kani-TTS-Error"
	HeaderErrorCode = "Kani-TTS-Error-Code"
)

const audioKeyExtension = ".wav"

// Synthesizer runs a whole synthesis request.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// NatsWorker listens for TextProcessedEvent requests, synthesises the text
// they point at and replies with an AudioChunkCreatedEvent.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	textStore      core.ObjectStore
	audioStore     core.ObjectStore
	synthesizer    Synthesizer
	normalize      bool
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a worker that reads job text from textStore and writes
// audio to audioStore. A non-positive jobTimeout uses DefaultJobTimeout.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	audioStore core.ObjectStore,
	synthesizer Synthesizer,
	normalize bool,
	jobTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		audioStore:     audioStore,
		synthesizer:    synthesizer,
		normalize:      normalize,
		jobTimeout:     jobTimeout,
		log:            log,
	}
}

// Run subscribes and blocks until ctx is done, then drains the subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for synthesis jobs on %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.jobTimeout)
	defer cancel()

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse event: %v", err)
		w.replyError(msg, err)

		return
	}

	audioKey, err := w.processJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process TTS job for workflow %s: %v", event.Header.WorkflowID, err)
		w.replyError(msg, err)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   audioKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processJob downloads the text, synthesises it and uploads the WAV.
func (w *NatsWorker) processJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	voice, err := speaker.Resolve(event.Voice)
	if err != nil {
		return "", err
	}

	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	result, err := w.synthesizer.Synthesize(ctx, tts.Request{
		Text:              string(textData),
		SpeakerID:         voice.ID,
		Normalize:         w.normalize,
		Temperature:       event.Temperature,
		TopP:              event.TopP,
		RepetitionPenalty: event.RepetitionPenalty,
	})
	if err != nil {
		return "", fmt.Errorf("failed to synthesise page %d: %w", event.PageNumber, err)
	}

	wavData, err := audio.WAVBytes(result.Clip)
	if err != nil {
		return "", fmt.Errorf("failed to encode audio: %w", err)
	}

	audioKey := newAudioKey(event)

	err = w.audioStore.Upload(ctx, audioKey, wavData)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio data for key '%s': %w", audioKey, err)
	}

	w.log.Info("Workflow %s page %d: %s", event.Header.WorkflowID, event.PageNumber, result.Summary())

	return audioKey, nil
}

// replyError answers a request with the error in headers so the caller does
// not wait for its timeout.
func (w *NatsWorker) replyError(msg *nats.Msg, cause error) {
	if msg.Reply == "" {
		return
	}

	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderError, cause.Error())
	reply.Header.Set(HeaderErrorCode, tts.ErrorCode(cause))

	err := msg.RespondMsg(reply)
	if err != nil {
		w.log.Warn("Failed to send error reply: %v", err)
	}
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}

// newAudioKey names the uploaded WAV after the workflow and page, with a
// random suffix so retried jobs never overwrite each other.
func newAudioKey(event *events.TextProcessedEvent) string {
	workflow := fileutil.SanitizeFilename(event.Header.WorkflowID)
	if workflow == "" {
		return uuid.NewString() + audioKeyExtension
	}

	return fmt.Sprintf("%s_p%04d_%s%s", workflow, event.PageNumber, uuid.NewString(), audioKeyExtension)
}
