package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGeminiGenerateSendsPrimedHistory(t *testing.T) {
	var (
		mu       sync.Mutex
		lastPath string
		lastBody []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		lastPath = r.URL.Path
		lastBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"role":"model","parts":[{"text":"Action: HOLD"}]},"finishReason":"STOP"}]
		}`))
	}))
	defer server.Close()

	cfg := &Config{
		Provider:     ProviderGemini,
		BaseURL:      server.URL,
		APIKey:       "test-key",
		DefaultModel: "gemini-2.0-flash",
		Timeout:      5 * time.Second,
		MaxRetries:   0,
		LogLevel:     "error",
	}
	backend, err := NewBackend(context.Background(), cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	_, ok := backend.(*GeminiClient)
	require.True(t, ok)

	reply, err := backend.Generate(context.Background(), "persona", "ack", "context")
	require.NoError(t, err)
	require.Equal(t, "Action: HOLD", reply)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, strings.HasSuffix(lastPath, "models/gemini-2.0-flash:generateContent"), lastPath)

	var payload struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(lastBody, &payload))
	require.Len(t, payload.Contents, 3)
	require.Equal(t, "user", payload.Contents[0].Role)
	require.Equal(t, "persona", payload.Contents[0].Parts[0].Text)
	require.Equal(t, "model", payload.Contents[1].Role)
	require.Equal(t, "context", payload.Contents[2].Parts[0].Text)
}

func TestGeminiGenerateSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad key","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	cfg := &Config{
		Provider:     ProviderGemini,
		BaseURL:      server.URL,
		APIKey:       "bad",
		DefaultModel: "gemini-2.0-flash",
		Timeout:      5 * time.Second,
		LogLevel:     "error",
	}
	client, err := NewGeminiClient(context.Background(), cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "s", "p", "u")
	require.Error(t, err)
}

func TestNewBackendSelectsProvider(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	backend, err := NewBackend(context.Background(), cfg)
	require.NoError(t, err)
	_, ok := backend.(*Client)
	require.True(t, ok)

	cfg.Provider = "mystery"
	_, err = NewBackend(context.Background(), cfg)
	require.Error(t, err)
}

func TestBackendFunc(t *testing.T) {
	var b Backend = BackendFunc(func(_ context.Context, system, priming, user string) (string, error) {
		return system + "|" + priming + "|" + user, nil
	})
	out, err := b.Generate(context.Background(), "a", "b", "c")
	require.NoError(t, err)
	require.Equal(t, "a|b|c", out)
}
