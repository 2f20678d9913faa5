package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/voice-engine-studio/memory-service/internal/model"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
)

// MaxContextRunes bounds the assembled context before the ellipsis is appended.
const MaxContextRunes = 1000

const contextEllipsis = "..."

type contextSection struct {
	category model.Category
	header   string
	cap      int
}

// contextSections is the emission order of BuildContext.
var contextSections = []contextSection{
	{model.CategoryProfile, "【ユーザープロフィール】", 5},
	{model.CategoryPreference, "【好み・設定】", 5},
	{model.CategoryContext, "【過去の文脈】", 10},
}

// ContextAssembler renders a user's memories as bounded text for a system prompt.
type ContextAssembler struct {
	store registrystore.MemoryStore
}

func NewContextAssembler(store registrystore.MemoryStore) *ContextAssembler {
	return &ContextAssembler{store: store}
}

// BuildContext groups the user's memories by category and keeps the oldest
// few of each. The result is empty when the user has no memories.
func (a *ContextAssembler) BuildContext(ctx context.Context, userID string) (string, error) {
	memories, err := a.store.Snapshot(ctx, userID)
	if err != nil {
		return "", err
	}
	return RenderContext(memories), nil
}

// RenderContext formats memories already in stored order.
func RenderContext(memories []model.Memory) string {
	buckets := make(map[model.Category][]string, len(contextSections))
	for _, m := range memories {
		buckets[m.Category] = append(buckets[m.Category], m.Content)
	}

	sections := make([]string, 0, len(contextSections))
	for _, sec := range contextSections {
		items := buckets[sec.category]
		if len(items) == 0 {
			continue
		}
		if len(items) > sec.cap {
			items = items[:sec.cap]
		}
		sections = append(sections, sec.header+"\n"+strings.Join(items, "\n"))
	}

	text := strings.Join(sections, "\n\n")
	if utf8.RuneCountInString(text) > MaxContextRunes {
		text = string([]rune(text)[:MaxContextRunes]) + contextEllipsis
	}
	return text
}
