package server

import (
	_ "embed"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/book-expert/kani-tts-service/internal/speaker"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	"github.com/gin-gonic/gin"
)

// Response headers describing a synthesis result.
const (
	headerElapsed     = "X-Elapsed-Seconds"
	headerDuration    = "X-Audio-Duration-Seconds"
	headerChunkCount  = "X-Chunk-Count"
	headerSampleRate  = "X-Sample-Rate"
	headerStreamError = "X-Stream-Error"

	contentTypeWAV  = "audio/wav"
	contentTypeHTML = "text/html; charset=utf-8"
)

var exposedHeaders = []string{
	headerElapsed, headerDuration, headerChunkCount, headerSampleRate, headerStreamError, headerRequestID,
}

//go:embed static/index.html
var indexHTML []byte

// synthesisRequest is the JSON body of /tts, /stream-tts and the first
// WebSocket message. Speaker accepts an ID or a display label; empty selects
// the default speaker. Zero sampling values use the configured defaults.
type synthesisRequest struct {
	Text              string  `json:"text"`
	Speaker           string  `json:"speaker"`
	Normalize         *bool   `json:"normalize"`
	Format            string  `json:"format"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
	RepetitionPenalty float64 `json:"repetition_penalty"`
	MaxNewTokens      int     `json:"max_new_tokens"`
}

func (s *Server) pipelineRequest(body synthesisRequest) (tts.Request, error) {
	voice := speaker.Default()

	if body.Speaker != "" {
		resolved, err := speaker.Resolve(body.Speaker)
		if err != nil {
			return tts.Request{}, err
		}

		voice = resolved
	}

	normalize := !s.cfg.Text.DisableNormalize
	if body.Normalize != nil {
		normalize = *body.Normalize
	}

	return tts.Request{
		Text:              body.Text,
		SpeakerID:         voice.ID,
		Normalize:         normalize,
		Temperature:       body.Temperature,
		TopP:              body.TopP,
		RepetitionPenalty: body.RepetitionPenalty,
		MaxNewTokens:      body.MaxNewTokens,
	}, nil
}

// bindRequest decodes the body and resolves it. It writes the error response
// itself and reports whether the handler should continue.
func (s *Server) bindRequest(c *gin.Context) (synthesisRequest, tts.Request, bool) {
	var body synthesisRequest

	err := c.ShouldBindJSON(&body)
	if err != nil {
		s.writeBadRequest(c, codeInvalidRequest, fmt.Errorf("invalid request body: %w", err))

		return body, tts.Request{}, false
	}

	req, err := s.pipelineRequest(body)
	if err != nil {
		s.writeError(c, err)

		return body, tts.Request{}, false
	}

	return body, req, true
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, contentTypeHTML, indexHTML)
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.engine.CacheStats()

	response := gin.H{
		"status":    "ok",
		"backend":   s.cfg.TTS.Backend,
		"timestamp": time.Now().Unix(),
		"cache": gin.H{
			"hits":    stats.Hits,
			"misses":  stats.Misses,
			"entries": stats.Len,
		},
	}

	err := s.engine.HealthCheck(c.Request.Context())
	if err != nil {
		s.logger.Warn("Health check failed: %v", err)

		response["status"] = "degraded"
		response["detail"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, response)

		return
	}

	c.JSON(http.StatusOK, response)
}

func (s *Server) handleSpeakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":  speaker.DefaultID,
		"speakers": speaker.All(),
		"limits": gin.H{
			"max_text_len":        s.cfg.Text.MaxTextLen,
			"max_chars_per_chunk": s.cfg.Text.MaxCharsPerChunk,
		},
	})
}

func (s *Server) handleTTS(c *gin.Context) {
	_, req, ok := s.bindRequest(c)
	if !ok {
		return
	}

	result, err := s.engine.Synthesize(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)

		return
	}

	wav, err := audio.WAVBytes(result.Clip)
	if err != nil {
		s.writeError(c, err)

		return
	}

	setResultHeaders(c, result)
	c.Header(headerSampleRate, strconv.Itoa(result.Clip.SampleRate))
	c.Data(http.StatusOK, contentTypeWAV, wav)
}

func setResultHeaders(c *gin.Context, result *tts.Result) {
	c.Header(headerElapsed, strconv.FormatFloat(result.Elapsed.Seconds(), 'f', 3, 64))
	c.Header(headerDuration, strconv.FormatFloat(result.Duration.Seconds(), 'f', 3, 64))
	c.Header(headerChunkCount, strconv.Itoa(result.Chunks))
}

// handleStreamTTS writes fixed-size frames as chunks complete. Headers go out
// with the first chunk, so failures before it still get a JSON error. Later
// failures end the body early and are reported in the X-Stream-Error trailer.
func (s *Server) handleStreamTTS(c *gin.Context) {
	body, req, ok := s.bindRequest(c)
	if !ok {
		return
	}

	format, err := audio.ParseStreamFormat(body.Format)
	if err != nil {
		s.writeBadRequest(c, codeUnsupportedFormat, err)

		return
	}

	stream := newFrameWriter(c, format, s.cfg.Audio.StreamFrameMillis)

	result, err := s.engine.Stream(c.Request.Context(), req, stream.writeClip)
	if err == nil {
		err = stream.finish()
	}

	if err != nil {
		if !stream.started {
			s.writeError(c, err)

			return
		}

		s.logger.Error("[%s] stream aborted: %v", c.GetString(requestIDKey), err)
		c.Writer.Header().Set(headerStreamError, tts.ErrorCode(err))

		return
	}

	s.logger.Info("[%s] %s", c.GetString(requestIDKey), result.Summary())
}

// frameWriter re-frames chunk PCM into fixed-size frames and writes each one
// encoded and flushed. Frames are sized for the first chunk's sample rate.
type frameWriter struct {
	c       *gin.Context
	format  audio.StreamFormat
	framer  *audio.ClipFramer
	started bool
}

func newFrameWriter(c *gin.Context, format audio.StreamFormat, frameMillis int) *frameWriter {
	return &frameWriter{c: c, format: format, framer: audio.NewClipFramer(frameMillis)}
}

func (w *frameWriter) start(sampleRate int) error {
	header := w.c.Writer.Header()
	header.Set("Content-Type", w.format.ContentType(sampleRate))
	header.Set("Cache-Control", "no-cache")
	header.Set("Trailer", headerStreamError)
	header.Set(headerSampleRate, strconv.Itoa(sampleRate))
	w.c.Status(http.StatusOK)
	w.started = true

	preamble := w.format.Preamble(sampleRate)
	if preamble == nil {
		w.c.Writer.WriteHeaderNow()

		return nil
	}

	return w.write(preamble)
}

func (w *frameWriter) writeClip(_ int, clip *audio.Clip) error {
	if !w.started {
		err := w.start(clip.SampleRate)
		if err != nil {
			return err
		}
	}

	frames, err := w.framer.Push(clip)
	if err != nil {
		return err
	}

	for _, frame := range frames {
		err = w.write(w.format.Encode(frame))
		if err != nil {
			return err
		}
	}

	return nil
}

func (w *frameWriter) finish() error {
	rest := w.framer.Flush()
	if len(rest) == 0 {
		return nil
	}

	return w.write(w.format.Encode(rest))
}

func (w *frameWriter) write(payload []byte) error {
	_, err := w.c.Writer.Write(payload)
	if err != nil {
		return fmt.Errorf("failed to write stream frame: %w", err)
	}

	w.c.Writer.Flush()

	return nil
}
