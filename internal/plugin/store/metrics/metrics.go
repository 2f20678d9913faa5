package metrics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/voice-engine-studio/memory-service/internal/model"
	"github.com/voice-engine-studio/memory-service/internal/registry/store"
	"github.com/voice-engine-studio/memory-service/internal/security"
)

// Wrap returns a MemoryStore that records StoreLatency for every operation.
func Wrap(inner store.MemoryStore) store.MemoryStore {
	return &metricsStore{inner: inner}
}

type metricsStore struct {
	inner store.MemoryStore
}

func observe(op string, start time.Time) {
	security.ObserveStore(op, time.Since(start))
}

func (m *metricsStore) Create(ctx context.Context, userID string, content string, category model.Category) (model.Memory, error) {
	defer observe("create", time.Now())
	return m.inner.Create(ctx, userID, content, category)
}

func (m *metricsStore) List(ctx context.Context, userID string, opts store.ListOptions) ([]model.Memory, error) {
	defer observe("list", time.Now())
	return m.inner.List(ctx, userID, opts)
}

func (m *metricsStore) Delete(ctx context.Context, userID string, memoryID uuid.UUID) error {
	defer observe("delete", time.Now())
	return m.inner.Delete(ctx, userID, memoryID)
}

func (m *metricsStore) Snapshot(ctx context.Context, userID string) ([]model.Memory, error) {
	defer observe("snapshot", time.Now())
	return m.inner.Snapshot(ctx, userID)
}

func (m *metricsStore) SetEmbedding(ctx context.Context, userID string, memoryID uuid.UUID, embedding []float32) error {
	defer observe("set_embedding", time.Now())
	return m.inner.SetEmbedding(ctx, userID, memoryID, embedding)
}

func (m *metricsStore) MarkUnembeddable(ctx context.Context, userID string, memoryID uuid.UUID) error {
	defer observe("mark_unembeddable", time.Now())
	return m.inner.MarkUnembeddable(ctx, userID, memoryID)
}

func (m *metricsStore) PendingEmbeddings(ctx context.Context, limit int) ([]store.PendingEmbedding, error) {
	defer observe("pending_embeddings", time.Now())
	return m.inner.PendingEmbeddings(ctx, limit)
}
