package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsBufferSize      = 16 * 1024
	wsMaxRequestBytes = 256 * 1024
	wsWriteTimeout    = 10 * time.Second
	wsRequestTimeout  = 30 * time.Second
)

// Message types sent as JSON text frames. Audio travels as binary PCM16 frames
// between the "start" and "done" messages.
const (
	msgTypeStatus = "status"
	msgTypeStart  = "start"
	msgTypeDone   = "done"
	msgTypeError  = "error"
)

type wsMessage struct {
	Type            string   `json:"type"`
	Stage           string   `json:"stage,omitempty"`
	Chunk           int      `json:"chunk,omitempty"`
	Total           int      `json:"total,omitempty"`
	Message         string   `json:"message,omitempty"`
	SampleRate      int      `json:"sample_rate,omitempty"`
	Encoding        string   `json:"encoding,omitempty"`
	Chunks          int      `json:"chunks,omitempty"`
	ElapsedSeconds  float64  `json:"elapsed_seconds,omitempty"`
	DurationSeconds float64  `json:"duration_seconds,omitempty"`
	Texts           []string `json:"texts,omitempty"`
	Detail          string   `json:"detail,omitempty"`
	ErrorCode       string   `json:"error_code,omitempty"`
}

// wsSession serialises writes; gorilla connections allow one writer at a time.
type wsSession struct {
	mutex sync.Mutex
	conn  *websocket.Conn
}

func (w *wsSession) sendJSON(message wsMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	return w.write(websocket.TextMessage, payload)
}

func (w *wsSession) sendBinary(frame []byte) error {
	return w.write(websocket.BinaryMessage, frame)
}

func (w *wsSession) write(messageType int, payload []byte) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	err := w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	err = w.conn.WriteMessage(messageType, payload)
	if err != nil {
		return fmt.Errorf("failed to write websocket message: %w", err)
	}

	return nil
}

func (w *wsSession) close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteTimeout),
	)
	_ = w.conn.Close()
}

// handleWebSocket runs one synthesis per connection: the client sends a single
// JSON request and receives status messages, PCM16 frames and a final "done"
// or "error" message. Closing the socket cancels the synthesis.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("[%s] WebSocket upgrade failed: %v", c.GetString(requestIDKey), err)

		return
	}

	session := &wsSession{conn: conn}
	defer session.close()

	conn.SetReadLimit(wsMaxRequestBytes)

	var body synthesisRequest

	_ = conn.SetReadDeadline(time.Now().Add(wsRequestTimeout))

	err = conn.ReadJSON(&body)
	if err != nil {
		s.sendWSError(session, codeInvalidRequest, fmt.Errorf("invalid request message: %w", err))

		return
	}

	_ = conn.SetReadDeadline(time.Time{})

	req, err := s.pipelineRequest(body)
	if err != nil {
		s.sendWSError(session, tts.ErrorCode(err), err)

		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go watchClose(conn, cancel)

	req.Progress = func(progress tts.Progress) {
		_ = session.sendJSON(wsMessage{
			Type:    msgTypeStatus,
			Stage:   string(progress.Stage),
			Chunk:   progress.Chunk,
			Total:   progress.Total,
			Message: progress.Message,
		})
	}

	framer := audio.NewClipFramer(s.cfg.Audio.StreamFrameMillis)

	sink := func(_ int, clip *audio.Clip) error {
		if framer.SampleRate() == 0 {
			startErr := session.sendJSON(wsMessage{
				Type:       msgTypeStart,
				SampleRate: clip.SampleRate,
				Encoding:   string(audio.FormatPCM16),
			})
			if startErr != nil {
				return startErr
			}
		}

		frames, pushErr := framer.Push(clip)
		if pushErr != nil {
			return pushErr
		}

		for _, frame := range frames {
			sendErr := session.sendBinary(frame)
			if sendErr != nil {
				return sendErr
			}
		}

		return nil
	}

	result, err := s.engine.Stream(ctx, req, sink)
	if err == nil {
		if rest := framer.Flush(); len(rest) > 0 {
			err = session.sendBinary(rest)
		}
	}

	if err != nil {
		s.logger.Warn("[%s] WebSocket synthesis failed: %v", c.GetString(requestIDKey), err)
		s.sendWSError(session, tts.ErrorCode(err), err)

		return
	}

	s.logger.Info("[%s] %s", c.GetString(requestIDKey), result.Summary())

	_ = session.sendJSON(wsMessage{
		Type:            msgTypeDone,
		Message:         result.Summary(),
		Chunks:          result.Chunks,
		ElapsedSeconds:  result.Elapsed.Seconds(),
		DurationSeconds: result.Duration.Seconds(),
		Texts:           result.Texts,
	})
}

func (s *Server) sendWSError(session *wsSession, code string, err error) {
	sendErr := session.sendJSON(wsMessage{Type: msgTypeError, Detail: err.Error(), ErrorCode: code})
	if sendErr != nil {
		s.logger.Warn("Failed to send WebSocket error: %v", sendErr)
	}
}

// watchClose cancels the request once the peer closes the connection or the
// read side fails.
func watchClose(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		_, _, err := conn.NextReader()
		if err != nil {
			return
		}
	}
}
