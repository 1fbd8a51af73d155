package server

import (
	"context"
	"net/http"

	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/gin-gonic/gin"
)

// Error codes raised by the HTTP layer itself.
const (
	codeInvalidRequest    = "INVALID_REQUEST"
	codeUnsupportedFormat = "UNSUPPORTED_FORMAT"
)

// statusClientClosedRequest is reported when the caller went away mid-request.
const statusClientClosedRequest = 499

// errorResponse is the JSON error body. The shape matches what the backend
// client decodes.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
}

func newErrorResponse(err error) errorResponse {
	return errorResponse{Detail: err.Error(), ErrorCode: tts.ErrorCode(err)}
}

// statusFor maps a pipeline error to an HTTP status. A deadline hit while the
// caller is still connected is a backend timeout, not a cancellation.
func statusFor(ctx context.Context, err error) int {
	switch tts.ErrorCode(err) {
	case tts.CodeTextEmpty, tts.CodeTextTooLong, tts.CodeNoChunks, tts.CodeInvalidParams, tts.CodeUnknownSpeaker:
		return http.StatusBadRequest
	case tts.CodeCancelled:
		if ctx.Err() != nil {
			return statusClientClosedRequest
		}

		return http.StatusGatewayTimeout
	case tts.CodeEmptyAudio, tts.CodeSynthesisFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(c.Request.Context(), err)

	if status >= http.StatusInternalServerError {
		s.logger.Error("[%s] %s failed: %v", c.GetString(requestIDKey), c.Request.URL.Path, err)
	} else {
		s.logger.Warn("[%s] %s rejected: %v", c.GetString(requestIDKey), c.Request.URL.Path, err)
	}

	c.AbortWithStatusJSON(status, newErrorResponse(err))
}

func (s *Server) writeBadRequest(c *gin.Context, code string, err error) {
	s.logger.Warn("[%s] %s rejected: %v", c.GetString(requestIDKey), c.Request.URL.Path, err)
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Detail: err.Error(), ErrorCode: code})
}
