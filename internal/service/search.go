package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/voice-engine-studio/memory-service/internal/model"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
)

const (
	// DefaultSearchLimit is used when a search does not name a limit.
	DefaultSearchLimit = 5
	// MaxSearchLimit is the hard cap for search requests.
	MaxSearchLimit = 20
)

// SearchEngine ranks or filters one user's memories against a query.
type SearchEngine struct {
	store         registrystore.MemoryStore
	gateway       *Gateway
	index         registryvector.VectorIndex
	minSimilarity float64
}

// NewSearchEngine creates a search engine. gateway and index may be nil; with
// no embeddings available every search uses the substring baseline.
func NewSearchEngine(store registrystore.MemoryStore, gateway *Gateway, index registryvector.VectorIndex, minSimilarity float64) *SearchEngine {
	return &SearchEngine{
		store:         store,
		gateway:       gateway,
		index:         index,
		minSimilarity: minSimilarity,
	}
}

// Search returns at most limit memories relevant to query.
//
// When the query embeds, memories carrying an embedding of the same dimension
// are ranked by cosine similarity (ties keep stored order). The remaining
// memories are matched by case-insensitive substring and appended in stored
// order. Without a query embedding only the substring match applies.
func (s *SearchEngine) Search(ctx context.Context, userID string, query string, limit int) ([]model.Memory, error) {
	limit, err := registrystore.ResolveLimit(limit, DefaultSearchLimit, MaxSearchLimit)
	if err != nil {
		return nil, err
	}
	memories, err := s.store.Snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}

	var queryVec []float32
	if s.gateway.EmbeddingEnabled() && len(memories) > 0 {
		queryVec = s.gateway.Embed(ctx, query)
	}

	var results []model.Memory
	if len(queryVec) == 0 {
		results = substringMatches(memories, query)
	} else {
		results = s.hybrid(ctx, userID, memories, query, queryVec)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []model.Memory{}
	}
	return results, nil
}

type scored struct {
	memory model.Memory
	score  float64
}

func (s *SearchEngine) hybrid(ctx context.Context, userID string, memories []model.Memory, query string, queryVec []float32) []model.Memory {
	var candidates, rest []model.Memory
	for _, m := range memories {
		if len(m.Embedding) == len(queryVec) {
			candidates = append(candidates, m)
		} else {
			rest = append(rest, m)
		}
	}

	scores := s.indexScores(ctx, userID, queryVec, len(candidates))
	ranked := make([]scored, 0, len(candidates))
	for _, m := range candidates {
		var score float64
		if scores != nil {
			v, ok := scores[m.ID]
			if !ok {
				// Not in the index yet; treat it like an unembedded memory.
				rest = append(rest, m)
				continue
			}
			score = v
		} else {
			score = cosine(queryVec, m.Embedding)
		}
		if s.minSimilarity > 0 && score < s.minSimilarity {
			continue
		}
		ranked = append(ranked, scored{memory: m, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if scores != nil {
		// Memories moved to rest out of order; restore stored order.
		sort.SliceStable(rest, func(i, j int) bool { return storedBefore(rest[i], rest[j]) })
	}

	results := make([]model.Memory, 0, len(ranked)+len(rest))
	for _, r := range ranked {
		results = append(results, r.memory)
	}
	return append(results, substringMatches(rest, query)...)
}

// indexScores asks the vector index for every candidate's score. It returns
// nil when no index is configured or the index fails, which selects the
// in-process cosine instead.
func (s *SearchEngine) indexScores(ctx context.Context, userID string, queryVec []float32, n int) map[uuid.UUID]float64 {
	if s.index == nil || !s.index.IsEnabled() || n == 0 {
		return nil
	}
	results, err := s.index.Search(ctx, userID, queryVec, n)
	if err != nil {
		log.Warn("Vector index search failed; using in-process similarity", "index", s.index.Name(), "err", err)
		return nil
	}
	scores := make(map[uuid.UUID]float64, len(results))
	for _, r := range results {
		scores[r.MemoryID] = r.Score
	}
	return scores
}

func substringMatches(memories []model.Memory, query string) []model.Memory {
	q := strings.ToLower(query)
	var out []model.Memory
	for _, m := range memories {
		if strings.Contains(strings.ToLower(m.Content), q) {
			out = append(out, m)
		}
	}
	return out
}

func storedBefore(a, b model.Memory) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

// cosine returns the cosine similarity of equal-length vectors, or 0 when
// either has zero magnitude.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
