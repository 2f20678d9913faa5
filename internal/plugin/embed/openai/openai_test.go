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

func TestLoadRequiresAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := load(config.WithContext(context.Background(), &cfg))
	require.ErrorContains(t, err, "API_KEY")
}

func TestEmbedTextsOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b"}, req.Input)
		require.Equal(t, "text-embedding-3-small", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL
	e, err := load(config.WithContext(context.Background(), &cfg))
	require.NoError(t, err)
	require.Equal(t, 1536, e.Dimension())

	vecs, err := e.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestEmbedTextsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIBaseURL = srv.URL
	e, err := load(config.WithContext(context.Background(), &cfg))
	require.NoError(t, err)

	_, err = e.EmbedTexts(context.Background(), []string{"a"})
	require.Error(t, err)
}
