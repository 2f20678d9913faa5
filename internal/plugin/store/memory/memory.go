// Package memory is the process-lifetime MemoryStore. It is constructed at
// startup and discarded when the process exits; nothing is persisted.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/voice-engine-studio/memory-service/internal/model"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registrystore.Register(registrystore.Plugin{
		Name: "memory",
		Loader: func(ctx context.Context) (registrystore.MemoryStore, error) {
			return New(), nil
		},
	})
}

// collection is one user's memories. Writers hold mu exclusively and replace
// the records slice; readers copy it under the read lock.
type collection struct {
	mu      sync.RWMutex
	records []model.Memory
}

// Store keeps a collection per user.
type Store struct {
	mu    sync.RWMutex
	users map[string]*collection
	seq   atomic.Uint64
	now   func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users: make(map[string]*collection),
		now:   time.Now,
	}
}

// WithClock overrides the timestamp source. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) lookup(userID string) *collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID]
}

func (s *Store) getOrCreate(userID string) *collection {
	if col := s.lookup(userID); col != nil {
		return col
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.users[userID]; ok {
		return col
	}
	col := &collection{}
	s.users[userID] = col
	return col
}

func (s *Store) Create(_ context.Context, userID string, content string, category model.Category) (model.Memory, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Memory{}, &registrystore.ValidationError{Field: "user_id", Message: "must not be empty"}
	}
	if strings.TrimSpace(content) == "" {
		return model.Memory{}, &registrystore.ValidationError{Field: "content", Message: "must not be empty"}
	}
	if !category.Valid() {
		return model.Memory{}, &registrystore.ValidationError{Field: "category", Message: "must be one of profile, preference, context"}
	}

	col := s.getOrCreate(userID)
	col.mu.Lock()
	defer col.mu.Unlock()

	mem := model.Memory{
		ID:        uuid.New(),
		UserID:    userID,
		Content:   content,
		Category:  category,
		CreatedAt: s.now().UTC(),
		Seq:       s.seq.Add(1),
	}
	records := make([]model.Memory, len(col.records), len(col.records)+1)
	copy(records, col.records)
	records = append(records, mem)
	// A clock step backwards must not break the (CreatedAt, Seq) order.
	if n := len(records); n > 1 && records[n-1].CreatedAt.Before(records[n-2].CreatedAt) {
		sort.SliceStable(records, func(i, j int) bool { return less(records[i], records[j]) })
	}
	col.records = records
	return mem, nil
}

func (s *Store) List(_ context.Context, userID string, opts registrystore.ListOptions) ([]model.Memory, error) {
	limit, err := registrystore.ResolveLimit(opts.Limit, registrystore.DefaultListLimit, registrystore.MaxListLimit)
	if err != nil {
		return nil, err
	}
	if opts.Category != nil && !opts.Category.Valid() {
		return nil, &registrystore.ValidationError{Field: "category", Message: "must be one of profile, preference, context"}
	}

	result := []model.Memory{}
	col := s.lookup(userID)
	if col == nil {
		return result, nil
	}
	col.mu.RLock()
	defer col.mu.RUnlock()
	for _, m := range col.records {
		if opts.Category != nil && m.Category != *opts.Category {
			continue
		}
		result = append(result, m)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) Delete(_ context.Context, userID string, memoryID uuid.UUID) error {
	notFound := &registrystore.NotFoundError{Resource: "memory", ID: memoryID.String()}
	col := s.lookup(userID)
	if col == nil {
		return notFound
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	for i, m := range col.records {
		if m.ID != memoryID {
			continue
		}
		records := make([]model.Memory, 0, len(col.records)-1)
		records = append(records, col.records[:i]...)
		records = append(records, col.records[i+1:]...)
		col.records = records
		return nil
	}
	return notFound
}

func (s *Store) Snapshot(_ context.Context, userID string) ([]model.Memory, error) {
	col := s.lookup(userID)
	if col == nil {
		return []model.Memory{}, nil
	}
	col.mu.RLock()
	defer col.mu.RUnlock()
	out := make([]model.Memory, len(col.records))
	copy(out, col.records)
	return out, nil
}

func (s *Store) SetEmbedding(_ context.Context, userID string, memoryID uuid.UUID, embedding []float32) error {
	return s.update(userID, memoryID, func(m *model.Memory) {
		m.Embedding = append([]float32(nil), embedding...)
	})
}

func (s *Store) MarkUnembeddable(_ context.Context, userID string, memoryID uuid.UUID) error {
	return s.update(userID, memoryID, func(m *model.Memory) {
		m.Unembeddable = true
	})
}

// update applies fn to a copy of the record and swaps in a new slice, so
// earlier snapshots never observe the change.
func (s *Store) update(userID string, memoryID uuid.UUID, fn func(*model.Memory)) error {
	col := s.lookup(userID)
	if col == nil {
		return &registrystore.NotFoundError{Resource: "memory", ID: memoryID.String()}
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	for i, m := range col.records {
		if m.ID != memoryID {
			continue
		}
		records := make([]model.Memory, len(col.records))
		copy(records, col.records)
		fn(&records[i])
		col.records = records
		return nil
	}
	return &registrystore.NotFoundError{Resource: "memory", ID: memoryID.String()}
}

func (s *Store) PendingEmbeddings(_ context.Context, limit int) ([]registrystore.PendingEmbedding, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	cols := make([]*collection, 0, len(s.users))
	for _, col := range s.users {
		cols = append(cols, col)
	}
	s.mu.RUnlock()

	var pending []model.Memory
	for _, col := range cols {
		col.mu.RLock()
		for _, m := range col.records {
			if !m.Embedded() && !m.Unembeddable {
				pending = append(pending, m)
			}
		}
		col.mu.RUnlock()
	}
	sort.Slice(pending, func(i, j int) bool { return less(pending[i], pending[j]) })
	if len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]registrystore.PendingEmbedding, len(pending))
	for i, m := range pending {
		out[i] = registrystore.PendingEmbedding{UserID: m.UserID, MemoryID: m.ID, Content: m.Content}
	}
	return out, nil
}

func less(a, b model.Memory) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Seq < b.Seq
}

var _ registrystore.MemoryStore = (*Store)(nil)
