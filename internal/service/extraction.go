package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/voice-engine-studio/memory-service/internal/model"
	registrystore "github.com/voice-engine-studio/memory-service/internal/registry/store"
	"github.com/voice-engine-studio/memory-service/internal/security"
)

// MaxPromptMemories is how many existing memories are shown to the model as
// dedupe advice.
const MaxPromptMemories = 10

// ExtractionPipeline turns a conversation transcript into memory candidates.
// It is best-effort: any provider or parsing failure yields no candidates.
type ExtractionPipeline struct {
	gateway *Gateway
}

func NewExtractionPipeline(gateway *Gateway) *ExtractionPipeline {
	return &ExtractionPipeline{gateway: gateway}
}

// Extract asks the completion provider for new memorable facts in
// conversation. existing is passed to the model as advice only; nothing here
// filters against it.
func (p *ExtractionPipeline) Extract(ctx context.Context, conversation string, existing []string) []model.Candidate {
	if !p.gateway.CompletionEnabled() || strings.TrimSpace(conversation) == "" {
		return []model.Candidate{}
	}
	reply := p.gateway.Complete(ctx, BuildExtractionPrompt(conversation, existing))
	if reply == "" {
		return []model.Candidate{}
	}
	candidates, dropped := ParseCandidates(reply)
	security.CountExtraction("accepted", len(candidates))
	security.CountExtraction("dropped", dropped)
	if dropped > 0 {
		log.Debug("Extraction dropped invalid candidates", "dropped", dropped, "accepted", len(candidates))
	}
	return candidates
}

// BuildExtractionPrompt renders the instruction sent to the completion provider.
func BuildExtractionPrompt(conversation string, existing []string) string {
	var b strings.Builder
	b.WriteString("以下の会話から、長期的に記憶しておくべきユーザーの情報を抽出してください。\n")
	b.WriteString("各項目は次のカテゴリのいずれか一つに分類してください:\n")
	b.WriteString("- profile: 名前、職業、家族構成などの基本情報\n")
	b.WriteString("- preference: 食べ物、趣味、苦手なものなどの好み\n")
	b.WriteString("- context: 予定、進行中のプロジェクト、目標などの文脈\n")
	b.WriteString("既に記憶している内容と重複するものは含めず、新しい情報だけを返してください。\n")
	if len(existing) > 0 {
		if len(existing) > MaxPromptMemories {
			existing = existing[:MaxPromptMemories]
		}
		b.WriteString("\n既存のメモリ:\n")
		for _, m := range existing {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n会話:\n")
	b.WriteString(conversation)
	b.WriteString("\n\n次の形式のJSONのみを出力してください:\n")
	b.WriteString(`{"memories": [{"content": "記憶する内容", "category": "profile"}]}`)
	b.WriteString("\n")
	return b.String()
}

var codeFence = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\s*```$")

// ParseCandidates validates a provider reply. It accepts a JSON array of
// candidates or an object whose "memories" field is that array. Elements
// without non-empty content or with an unknown category are dropped and
// counted; a reply of any other shape yields no candidates.
func ParseCandidates(reply string) (candidates []model.Candidate, dropped int) {
	candidates = []model.Candidate{}
	text := strings.TrimSpace(reply)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return candidates, 0
	}
	items, ok := candidateArray(raw)
	if !ok {
		return candidates, 0
	}

	for _, item := range items {
		c, err := parseCandidate(item)
		if err != nil {
			dropped++
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, dropped
}

func candidateArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, true
	}
	var wrapped struct {
		Memories *[]json.RawMessage `json:"memories"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Memories != nil {
		return *wrapped.Memories, true
	}
	return nil, false
}

func parseCandidate(item json.RawMessage) (model.Candidate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return model.Candidate{}, fmt.Errorf("not an object")
	}
	var content, category string
	if err := json.Unmarshal(fields["content"], &content); err != nil {
		return model.Candidate{}, fmt.Errorf("content: %w", err)
	}
	if err := json.Unmarshal(fields["category"], &category); err != nil {
		return model.Candidate{}, fmt.Errorf("category: %w", err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Candidate{}, fmt.Errorf("content is empty")
	}
	cat, err := model.ParseCategory(category)
	if err != nil {
		return model.Candidate{}, err
	}
	return model.Candidate{Content: content, Category: cat}, nil
}

// ExtractResult reports what ExtractAndStore proposed and persisted.
type ExtractResult struct {
	Candidates []model.Candidate `json:"candidates"`
	Created    []model.Memory    `json:"created"`
}

// Notifier is told when new memories may need indexing.
type Notifier interface {
	Notify()
}

// MemoryExtractor runs extraction for a user and writes the results back.
type MemoryExtractor struct {
	store    registrystore.MemoryStore
	pipeline *ExtractionPipeline
	notifier Notifier
}

func NewMemoryExtractor(store registrystore.MemoryStore, pipeline *ExtractionPipeline, notifier Notifier) *MemoryExtractor {
	return &MemoryExtractor{store: store, pipeline: pipeline, notifier: notifier}
}

// Preview returns candidates for the user's conversation without storing them.
func (e *MemoryExtractor) Preview(ctx context.Context, userID, conversation string) (ExtractResult, error) {
	existing, err := e.store.Snapshot(ctx, userID)
	if err != nil {
		return ExtractResult{}, err
	}
	return ExtractResult{
		Candidates: e.pipeline.Extract(ctx, conversation, contents(existing)),
		Created:    []model.Memory{},
	}, nil
}

// ExtractAndStore extracts candidates and creates those not already known.
// A candidate is a duplicate when its trimmed, case-folded content matches an
// existing memory of the user or an earlier candidate in the same batch.
func (e *MemoryExtractor) ExtractAndStore(ctx context.Context, userID, conversation string) (ExtractResult, error) {
	existing, err := e.store.Snapshot(ctx, userID)
	if err != nil {
		return ExtractResult{}, err
	}
	result := ExtractResult{
		Candidates: e.pipeline.Extract(ctx, conversation, contents(existing)),
		Created:    []model.Memory{},
	}

	seen := make(map[string]bool, len(existing)+len(result.Candidates))
	for _, m := range existing {
		seen[dedupeKey(m.Content)] = true
	}
	duplicates := 0
	for _, c := range result.Candidates {
		key := dedupeKey(c.Content)
		if seen[key] {
			duplicates++
			continue
		}
		seen[key] = true
		created, err := e.store.Create(ctx, userID, c.Content, c.Category)
		if err != nil {
			return result, fmt.Errorf("store extracted memory: %w", err)
		}
		result.Created = append(result.Created, created)
	}
	security.CountExtraction("duplicate", duplicates)
	security.CountExtraction("stored", len(result.Created))

	if len(result.Created) > 0 && e.notifier != nil {
		e.notifier.Notify()
	}
	log.Info("Extracted memories", "userID", userID, "candidates", len(result.Candidates), "created", len(result.Created))
	return result, nil
}

func contents(memories []model.Memory) []string {
	out := make([]string, len(memories))
	for i, m := range memories {
		out[i] = m.Content
	}
	return out
}

func dedupeKey(content string) string {
	return strings.ToLower(strings.TrimSpace(content))
}
