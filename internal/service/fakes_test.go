package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/voice-engine-studio/memory-service/internal/plugin/store/memory"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
)

// keywordEmbedder maps each text onto fixed axes by keyword, so tests can
// reason about similarity exactly. With emptyOnMiss, text matching no axis
// embeds to nothing.
type keywordEmbedder struct {
	mu          sync.Mutex
	axes        []string
	calls       int
	err         error
	delay       time.Duration
	emptyOnMiss bool
}

func (e *keywordEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err, delay := e.err, e.delay
	e.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(e.axes))
		hit := false
		for j, axis := range e.axes {
			if strings.Contains(strings.ToLower(t), axis) {
				v[j] = 1
				hit = true
			}
		}
		if !hit && e.emptyOnMiss {
			continue
		}
		out[i] = v
	}
	return out, nil
}

func (e *keywordEmbedder) ModelName() string { return "keyword" }
func (e *keywordEmbedder) Dimension() int    { return len(e.axes) }

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type scriptedCompleter struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	panics  bool
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.panics {
		panic("provider exploded")
	}
	return c.reply, c.err
}

func (c *scriptedCompleter) ModelName() string { return "scripted" }

var errProvider = errors.New("provider unavailable")

// mapIndex is a VectorIndex returning fixed scores.
type mapIndex struct {
	mu       sync.Mutex
	scores   map[uuid.UUID]float64
	upserted []registryvector.UpsertRequest
	deleted  []uuid.UUID
	err      error
}

func (m *mapIndex) Search(_ context.Context, _ string, _ []float32, limit int) ([]registryvector.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []registryvector.SearchResult
	for id, s := range m.scores {
		out = append(out, registryvector.SearchResult{MemoryID: id, Score: s})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mapIndex) Upsert(_ context.Context, entries []registryvector.UpsertRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserted = append(m.upserted, entries...)
	return nil
}

func (m *mapIndex) Delete(_ context.Context, _ string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mapIndex) IsEnabled() bool { return true }
func (m *mapIndex) Name() string    { return "map" }

// deletingStore deletes each memory right after its embedding is attached,
// as if the owner removed it while the indexer was mid-batch.
type deletingStore struct {
	*memory.Store
}

func (s deletingStore) SetEmbedding(ctx context.Context, userID string, memoryID uuid.UUID, embedding []float32) error {
	if err := s.Store.SetEmbedding(ctx, userID, memoryID, embedding); err != nil {
		return err
	}
	return s.Store.Delete(ctx, userID, memoryID)
}
