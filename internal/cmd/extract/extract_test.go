package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/voice-engine-studio/memory-service/internal/model"
)

func TestReadTranscript(t *testing.T) {
	got, err := readTranscript("", strings.NewReader("User: hi"))
	require.NoError(t, err)
	require.Equal(t, "User: hi", got)

	path := filepath.Join(t.TempDir(), "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("User: コーヒーが好き"), 0o600))
	got, err = readTranscript(path, nil)
	require.NoError(t, err)
	require.Equal(t, "User: コーヒーが好き", got)

	_, err = readTranscript(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, []model.Candidate{{Content: "コーヒーが好き", Category: model.CategoryPreference}}))
	require.JSONEq(t, `[{"content":"コーヒーが好き","category":"preference"}]`, buf.String())
	require.Contains(t, buf.String(), "コーヒーが好き")
}

func TestCommandUsesServiceAPIKeyEnv(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-service", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chatcmpl-1",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"memories":[{"content":"likes coffee","category":"preference"}]}`},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	t.Setenv("MEMORY_SERVICE_COMPLETION_KIND", "openai")
	t.Setenv("MEMORY_SERVICE_OPENAI_API_KEY", "sk-service")
	t.Setenv("MEMORY_SERVICE_OPENAI_BASE_URL", srv.URL+"/v1")
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("User: I love coffee"), 0o600))

	var buf bytes.Buffer
	cmd := Command()
	cmd.Writer = &buf
	require.NoError(t, cmd.Run(context.Background(), []string{"extract", "--file", path}))

	var got []model.Candidate
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, []model.Candidate{{Content: "likes coffee", Category: model.CategoryPreference}}, got)
}

func TestCommandNamesServiceAPIKeyWhenMissing(t *testing.T) {
	t.Setenv("MEMORY_SERVICE_COMPLETION_KIND", "anthropic")
	t.Setenv("MEMORY_SERVICE_COMPLETION_ANTHROPIC_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")

	path := filepath.Join(t.TempDir(), "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("User: hi"), 0o600))

	cmd := Command()
	cmd.Writer = &bytes.Buffer{}
	err := cmd.Run(context.Background(), []string{"extract", path})
	require.ErrorContains(t, err, "MEMORY_SERVICE_COMPLETION_ANTHROPIC_API_KEY")
}
