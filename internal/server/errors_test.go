package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/book-expert/kani-tts-service/internal/speaker"
	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/stretchr/testify/assert"
)

var errTestBackend = errors.New("backend exploded")

func TestStatusFor(t *testing.T) {
	t.Parallel()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want int
	}{
		{name: "empty text", ctx: context.Background(), err: tts.ErrTextEmpty, want: http.StatusBadRequest},
		{name: "unknown speaker", ctx: context.Background(), err: speaker.ErrUnknownSpeaker, want: http.StatusBadRequest},
		{name: "empty audio", ctx: context.Background(), err: tts.ErrEmptyAudio, want: http.StatusBadGateway},
		{
			name: "backend failure",
			ctx:  context.Background(),
			err:  fmt.Errorf("%w: chunk 2: %w", tts.ErrSynthesisFailed, errTestBackend),
			want: http.StatusBadGateway,
		},
		{name: "caller went away", ctx: cancelled, err: context.Canceled, want: statusClientClosedRequest},
		{name: "backend timeout", ctx: context.Background(), err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{name: "unclassified", ctx: context.Background(), err: errTestBackend, want: http.StatusInternalServerError},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, testCase.want, statusFor(testCase.ctx, testCase.err))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	t.Parallel()

	request := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodGet, "/ws/tts", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}

		return r
	}

	open := originChecker(nil)
	assert.True(t, open(request("https://evil.example")))

	restricted := originChecker([]string{"https://tts.example"})
	assert.True(t, restricted(request("https://tts.example")))
	assert.True(t, restricted(request("")))
	assert.False(t, restricted(request("https://evil.example")))
}
