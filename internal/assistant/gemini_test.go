package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func geminiServer(t *testing.T, status int, body string, inspect func(*http.Request, geminiRequest)) *GeminiClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if inspect != nil {
			inspect(r, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewGeminiClient(srv.URL, "test-key", "gemini-test", 5*time.Second)
}

func TestGeminiGenerate(t *testing.T) {
	client := geminiServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Irrigate "},{"text":"at dawn."}]},"finishReason":"STOP"}]}`,
		func(r *http.Request, req geminiRequest) {
			assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
			require.NotNil(t, req.SystemInstruction)
			assert.Equal(t, "be helpful", req.SystemInstruction.Parts[0].Text)
			require.Len(t, req.Contents, 3)
			assert.Equal(t, "model", req.Contents[1].Role)
			assert.Equal(t, "user", req.Contents[2].Role)
			assert.Equal(t, "when to irrigate?", req.Contents[2].Parts[0].Text)
		})

	text, err := client.Generate(context.Background(), Prompt{
		System:  "be helpful",
		Message: "when to irrigate?",
		History: []Turn{{Role: "user", Text: "hello"}, {Role: "model", Text: "namaste"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Irrigate at dawn.", text)
}

func TestGeminiBlockedPrompt(t *testing.T) {
	client := geminiServer(t, http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, nil)
	_, err := client.Generate(context.Background(), Prompt{Message: "x"})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGeminiSafetyFinishReason(t *testing.T) {
	client := geminiServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`, nil)
	_, err := client.Generate(context.Background(), Prompt{Message: "x"})
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGeminiUpstreamError(t *testing.T) {
	client := geminiServer(t, http.StatusServiceUnavailable, `{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`, nil)
	_, err := client.Generate(context.Background(), Prompt{Message: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
	assert.NotErrorIs(t, err, ErrBlocked)
}

func TestGeminiEmptyCandidates(t *testing.T) {
	client := geminiServer(t, http.StatusOK, `{"candidates":[]}`, nil)
	_, err := client.Generate(context.Background(), Prompt{Message: "x"})
	assert.Error(t, err)
}
