// Package chromem is an embedded vector index. Each user gets a separate
// collection so queries never cross owners.
package chromem

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
)

func init() {
	registryvector.Register(registryvector.Plugin{
		Name: "chromem",
		Loader: func(_ context.Context) (registryvector.VectorIndex, error) {
			return New(), nil
		},
	})
}

type Index struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

func New() *Index {
	return &Index{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func (s *Index) IsEnabled() bool { return true }
func (s *Index) Name() string    { return "chromem" }

func (s *Index) collection(userID string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok || !create {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[userID]; ok {
		return col, nil
	}
	// Embeddings are always supplied by the caller, so no embedding func is needed.
	col, err := s.db.GetOrCreateCollection("user_"+userID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *Index) Upsert(ctx context.Context, entries []registryvector.UpsertRequest) error {
	for _, e := range entries {
		col, err := s.collection(e.UserID, true)
		if err != nil {
			return err
		}
		id := e.MemoryID.String()
		// AddDocument does not replace, so drop any previous vector first.
		if err := col.Delete(ctx, nil, nil, id); err != nil {
			return fmt.Errorf("chromem: replace %s: %w", id, err)
		}
		err = col.AddDocument(ctx, chromem.Document{
			ID:        id,
			Embedding: e.Embedding,
			Metadata:  map[string]string{"user_id": e.UserID, "model": e.ModelName},
		})
		if err != nil {
			return fmt.Errorf("chromem: add %s: %w", id, err)
		}
	}
	return nil
}

func (s *Index) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]registryvector.SearchResult, error) {
	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return nil, err
	}
	// chromem rejects nResults larger than the collection.
	n := min(limit, col.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	out := make([]registryvector.SearchResult, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		out = append(out, registryvector.SearchResult{MemoryID: id, Score: float64(r.Similarity)})
	}
	return out, nil
}

func (s *Index) Delete(ctx context.Context, userID string, memoryID uuid.UUID) error {
	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return err
	}
	return col.Delete(ctx, nil, nil, memoryID.String())
}

var _ registryvector.VectorIndex = (*Index)(nil)
