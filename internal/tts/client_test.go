package tts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/book-expert/kani-tts-service/internal/tts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testBaseURL = "http://localhost:8000"
	testTimeout = 10 * time.Second
)

func createStandardTestRequest() tts.Request {
	return tts.Request{
		Text:              "Xin chào.",
		SpeakerID:         "nu-mien-nam",
		Temperature:       0.6,
		TopP:              0.95,
		RepetitionPenalty: 1.1,
		MaxNewTokens:      1200,
	}
}

func createSuccessHandler(t *testing.T, body []byte) http.HandlerFunc {
	t.Helper()

	return func(responseWriter http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/v1/generate/speech", request.URL.Path)
		assert.Equal(t, "application/json", request.Header.Get("Content-Type"))
		assert.Equal(t, "audio/wav", request.Header.Get("Accept"))

		var req tts.Request

		err := json.NewDecoder(request.Body).Decode(&req)
		assert.NoError(t, err)
		assert.Equal(t, createStandardTestRequest(), req)

		responseWriter.Header().Set("Content-Type", "audio/wav")
		responseWriter.WriteHeader(http.StatusOK)
		_, _ = responseWriter.Write(body)
	}
}

func TestHTTPClient_GenerateSpeech_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(createSuccessHandler(t, []byte("RIFF....WAVE")))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL+"/", testTimeout)

	audioData, err := client.GenerateSpeech(context.Background(), createStandardTestRequest())
	require.NoError(t, err)
	assert.Equal(t, "RIFF....WAVE", string(audioData))
}

func TestHTTPClient_GenerateSpeech_OmitsEmptySpeaker(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, request *http.Request) {
			var payload map[string]any

			assert.NoError(t, json.NewDecoder(request.Body).Decode(&payload))
			assert.NotContains(t, payload, "speaker_id")

			responseWriter.Header().Set("Content-Type", "audio/x-wav")
			_, _ = responseWriter.Write([]byte("RIFF"))
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)

	_, err := client.GenerateSpeech(context.Background(), tts.Request{Text: "Xin chào."})
	require.NoError(t, err)
}

func TestHTTPClient_GenerateSpeech_EmptyText(t *testing.T) {
	t.Parallel()

	client := tts.NewHTTPClient(testBaseURL, testTimeout)

	_, err := client.GenerateSpeech(context.Background(), tts.Request{Text: "  "})
	require.ErrorIs(t, err, tts.ErrTextCannotBeEmpty)
}

func TestHTTPClient_GenerateSpeech_StructuredError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			responseWriter.Header().Set("Content-Type", "application/json")
			responseWriter.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(responseWriter).Encode(tts.ErrorResponse{
				Detail:    "Unknown speaker",
				ErrorCode: "INVALID_SPEAKER",
			})
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)

	_, err := client.GenerateSpeech(context.Background(), createStandardTestRequest())
	require.ErrorIs(t, err, tts.ErrServiceStatus)
	assert.Contains(t, err.Error(), "Unknown speaker")
	assert.Contains(t, err.Error(), "INVALID_SPEAKER")
}

func TestHTTPClient_GenerateSpeech_PlainError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			http.Error(responseWriter, "model crashed", http.StatusInternalServerError)
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)

	_, err := client.GenerateSpeech(context.Background(), createStandardTestRequest())
	require.ErrorIs(t, err, tts.ErrServiceStatus)
	assert.Contains(t, err.Error(), "model crashed")
}

func TestHTTPClient_GenerateSpeech_WrongContentType(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			responseWriter.Header().Set("Content-Type", "text/plain")
			_, _ = responseWriter.Write([]byte("not audio"))
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)

	_, err := client.GenerateSpeech(context.Background(), createStandardTestRequest())
	require.ErrorIs(t, err, tts.ErrUnexpectedContentType)
}

func TestHTTPClient_GenerateSpeech_EmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			responseWriter.Header().Set("Content-Type", "audio/wav")
			responseWriter.WriteHeader(http.StatusOK)
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)

	_, err := client.GenerateSpeech(context.Background(), createStandardTestRequest())
	require.ErrorIs(t, err, tts.ErrReceivedEmptyAudio)
}

func TestHTTPClient_GenerateSpeech_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			responseWriter.WriteHeader(http.StatusOK)
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, 20*time.Millisecond)

	_, err := client.GenerateSpeech(context.Background(), createStandardTestRequest())
	require.Error(t, err)
}

func TestHTTPClient_HealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, request *http.Request) {
			assert.Equal(t, http.MethodGet, request.Method)
			assert.Equal(t, "/health", request.URL.Path)
			responseWriter.WriteHeader(http.StatusOK)
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)
	require.NoError(t, client.HealthCheck(context.Background()))
}

func TestHTTPClient_HealthCheck_Unhealthy(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			responseWriter.WriteHeader(http.StatusServiceUnavailable)
		},
	))
	defer server.Close()

	client := tts.NewHTTPClient(server.URL, testTimeout)
	require.Error(t, client.HealthCheck(context.Background()))
}

func TestHTTPClient_HealthCheck_Unreachable(t *testing.T) {
	t.Parallel()

	client := tts.NewHTTPClient("http://127.0.0.1:1", time.Second)
	require.Error(t, client.HealthCheck(context.Background()))
}

func TestHTTPSynthesizer_DecodesWAV(t *testing.T) {
	t.Parallel()

	wavData := testWAV(t, 441)

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, request *http.Request) {
			var req tts.Request

			assert.NoError(t, json.NewDecoder(request.Body).Decode(&req))
			assert.Equal(t, "nam-mien-nam", req.SpeakerID)
			assert.Equal(t, 1200, req.MaxNewTokens)

			responseWriter.Header().Set("Content-Type", "audio/wav")
			_, _ = responseWriter.Write(wavData)
		},
	))
	defer server.Close()

	synthesizer := tts.NewHTTPSynthesizer(server.URL, testTimeout)

	clip, err := synthesizer.Synthesize(context.Background(), "Xin chào.", testParams())
	require.NoError(t, err)
	assert.Equal(t, 441, clip.Len())
	assert.Equal(t, 22050, clip.SampleRate)
}

func TestHTTPSynthesizer_InvalidAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(
		func(responseWriter http.ResponseWriter, _ *http.Request) {
			responseWriter.Header().Set("Content-Type", "audio/wav")
			_, _ = responseWriter.Write([]byte("definitely not a wav file"))
		},
	))
	defer server.Close()

	synthesizer := tts.NewHTTPSynthesizer(server.URL, testTimeout)

	_, err := synthesizer.Synthesize(context.Background(), "Xin chào.", testParams())
	require.Error(t, err)
}
