package service

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
	registryvector "github.com/voice-engine-studio/memory-service/internal/registry/vector"
	"github.com/voice-engine-studio/memory-service/internal/security"
)

// BackgroundIndexer embeds memories that have no embedding yet, attaches the
// vector to the record and mirrors it into the vector index.
type BackgroundIndexer struct {
	store    registrystore.MemoryStore
	gateway  *Gateway
	vector   registryvector.VectorIndex
	interval time.Duration
	batch    int
	wake     chan struct{}
}

// NewBackgroundIndexer creates a new indexer. vector may be nil.
func NewBackgroundIndexer(store registrystore.MemoryStore, gateway *Gateway, vector registryvector.VectorIndex, interval time.Duration, batchSize int) *BackgroundIndexer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BackgroundIndexer{
		store:    store,
		gateway:  gateway,
		vector:   vector,
		interval: interval,
		batch:    batchSize,
		wake:     make(chan struct{}, 1),
	}
}

// Notify requests an indexing pass without waiting for the next tick.
// It never blocks; repeated calls before the pass runs coalesce.
func (b *BackgroundIndexer) Notify() {
	if b == nil {
		return
	}
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Start begins the background indexing loop. Returns when ctx is cancelled.
func (b *BackgroundIndexer) Start(ctx context.Context) {
	if !b.gateway.EmbeddingEnabled() {
		log.Info("Background indexer disabled (no embedder)")
		return
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.wake:
		}
		b.drain(ctx)
	}
}

// drain indexes full batches until the backlog is empty or a batch fails.
func (b *BackgroundIndexer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		if _, more := b.IndexBatch(ctx); !more {
			return
		}
	}
}

// IndexBatch embeds one batch of pending memories. It returns how many were
// embedded and whether another batch may be pending. Memories whose content
// embeds to nothing are marked unembeddable so they leave the backlog.
func (b *BackgroundIndexer) IndexBatch(ctx context.Context) (int, bool) {
	pending, err := b.store.PendingEmbeddings(ctx, b.batch)
	if err != nil {
		log.Error("Indexer: list pending memories failed", "err", err)
		return 0, false
	}
	if len(pending) == 0 {
		return 0, false
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.Content
	}
	embeddings := b.gateway.EmbedBatch(ctx, texts)
	if embeddings == nil {
		// Already logged by the gateway; retry on the next tick.
		return 0, false
	}

	model := b.gateway.EmbeddingModel()
	upserts := make([]registryvector.UpsertRequest, 0, len(pending))
	count, settled := 0, 0
	for i, p := range pending {
		var notFound *registrystore.NotFoundError
		if len(embeddings[i]) == 0 {
			err := b.store.MarkUnembeddable(ctx, p.UserID, p.MemoryID)
			if err == nil || errors.As(err, &notFound) {
				settled++
			} else {
				log.Error("Indexer: mark unembeddable failed", "memoryId", p.MemoryID, "err", err)
			}
			continue
		}
		err := b.store.SetEmbedding(ctx, p.UserID, p.MemoryID, embeddings[i])
		if errors.As(err, &notFound) {
			// Deleted while we were embedding.
			settled++
			continue
		}
		if err != nil {
			log.Error("Indexer: set embedding failed", "memoryId", p.MemoryID, "err", err)
			continue
		}
		count++
		settled++
		upserts = append(upserts, registryvector.UpsertRequest{
			UserID:    p.UserID,
			MemoryID:  p.MemoryID,
			Embedding: embeddings[i],
			ModelName: model,
		})
	}

	if b.vectorEnabled() && len(upserts) > 0 {
		if err := b.vector.Upsert(ctx, upserts); err != nil {
			log.Error("Indexer: batch vector upsert failed", "index", b.vector.Name(), "err", err)
		} else {
			b.pruneDeleted(ctx, upserts)
		}
	}

	security.CountIndexed(count)
	if count > 0 {
		log.Info("Indexer: embedded memories", "count", count)
	}
	return count, settled > 0 && len(pending) == b.batch
}

// pruneDeleted removes vectors just upserted for memories that were deleted
// after their embedding was attached. Forget may have run before the upsert.
func (b *BackgroundIndexer) pruneDeleted(ctx context.Context, upserts []registryvector.UpsertRequest) {
	live := make(map[string]map[uuid.UUID]bool)
	for _, u := range upserts {
		ids, ok := live[u.UserID]
		if !ok {
			snap, err := b.store.Snapshot(ctx, u.UserID)
			if err != nil {
				log.Warn("Indexer: snapshot for prune failed", "userId", u.UserID, "err", err)
				continue
			}
			ids = make(map[uuid.UUID]bool, len(snap))
			for _, m := range snap {
				ids[m.ID] = true
			}
			live[u.UserID] = ids
		}
		if !ids[u.MemoryID] {
			b.Forget(ctx, u.UserID, u.MemoryID)
		}
	}
}

// Forget removes a deleted memory from the vector index.
func (b *BackgroundIndexer) Forget(ctx context.Context, userID string, memoryID uuid.UUID) {
	if b == nil || !b.vectorEnabled() {
		return
	}
	if err := b.vector.Delete(ctx, userID, memoryID); err != nil {
		log.Warn("Indexer: vector delete failed", "memoryId", memoryID, "err", err)
	}
}

func (b *BackgroundIndexer) vectorEnabled() bool {
	return b.vector != nil && b.vector.IsEnabled()
}
