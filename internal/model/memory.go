package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies a memory. The set is closed; anything else is rejected
// at the boundary rather than stored.
type Category string

const (
	// CategoryProfile holds identity facts (name, job, family).
	CategoryProfile Category = "profile"
	// CategoryPreference holds likes and dislikes.
	CategoryPreference Category = "preference"
	// CategoryContext holds situational or temporal facts (plans, projects).
	CategoryContext Category = "context"
)

// Categories lists every valid category in context-assembly order.
var Categories = []Category{CategoryProfile, CategoryPreference, CategoryContext}

// ParseCategory converts raw input into a Category. Matching ignores case and
// surrounding whitespace.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q; valid: %v", raw, Categories)
	}
	return c, nil
}

// Valid reports whether c is one of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategoryProfile, CategoryPreference, CategoryContext:
		return true
	}
	return false
}

// Memory is a single long-term fact about a user.
// Content is immutable; the only change after creation is attaching Embedding.
type Memory struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	CreatedAt time.Time `json:"created_at"`

	// Seq breaks CreatedAt ties; assigned from a process-wide counter.
	Seq uint64 `json:"-"`

	// Embedding is empty until the indexer has computed it.
	Embedding []float32 `json:"-"`

	// Unembeddable is set when the provider produced no vector for Content.
	// Such a memory stays lexical-only and is no longer pending.
	Unembeddable bool `json:"-"`
}

// Embedded reports whether the memory carries an embedding vector.
func (m Memory) Embedded() bool {
	return len(m.Embedding) > 0
}

// Candidate is a memory proposed by extraction but not yet persisted.
type Candidate struct {
	Content  string   `json:"content"`
	Category Category `json:"category"`
}
