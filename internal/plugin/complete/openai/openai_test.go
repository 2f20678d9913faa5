package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/config"
)

func TestCompleteRequestsJSONObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o", req["model"])
		format, _ := req["response_format"].(map[string]any)
		require.Equal(t, "json_object", format["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[
			{"index":0,"message":{"role":"assistant","content":"{\"memories\":[]}"},"finish_reason":"stop"}
		]}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL
	c, err := load(config.WithContext(context.Background(), &cfg))
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, `{"memories":[]}`, out)
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL
	c, err := load(config.WithContext(context.Background(), &cfg))
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "hello")
	require.ErrorContains(t, err, "empty response")
}
