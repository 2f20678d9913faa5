package bdd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockCompletion is an OpenAI-compatible chat completion endpoint that
// answers every request with a configurable reply.
type MockCompletion struct {
	Server *httptest.Server

	mu       sync.Mutex
	reply    string
	status   int
	requests int
}

func NewMockCompletion(t *testing.T) *MockCompletion {
	m := &MockCompletion{reply: `{"memories":[]}`, status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", m.handle)
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Server.Close)
	return m
}

// SetReply sets the assistant message content returned by later requests.
func (m *MockCompletion) SetReply(reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = reply
	m.status = http.StatusOK
}

// Fail makes later requests return the given HTTP status.
func (m *MockCompletion) Fail(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}

func (m *MockCompletion) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests
}

func (m *MockCompletion) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = `{"memories":[]}`
	m.status = http.StatusOK
	m.requests = 0
}

func (m *MockCompletion) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests++
	reply, status := m.reply, m.status
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "mock failure", "type": "server_error"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-mock",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": reply},
			"finish_reason": "stop",
		}},
	})
}
