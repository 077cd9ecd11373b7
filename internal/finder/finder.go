// Package finder implements tool discovery: keyword, embedding, and
// LLM-backed search strategies plus an "auto" mode that tries them in
// order and falls back on failure. The embedding strategy's storage and
// ranking is grounded directly on the teacher's pkg/embeddings.Searcher
// (cosine similarity over a flat table of stored vectors, a similarity
// threshold, then a sort-and-limit pass).
package finder

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/voocel/toolrt/internal/obslog"
	"github.com/voocel/toolrt/internal/registry"
	"github.com/voocel/toolrt/internal/rterrors"
	"github.com/voocel/toolrt/internal/toolapi"
)

// Strategy identifies a discovery mechanism.
type Strategy string

const (
	StrategyAuto      Strategy = "auto"
	StrategyKeyword   Strategy = "keyword"
	StrategyEmbedding Strategy = "embedding"
	StrategyLLM       Strategy = "llm"
)

// Match is one discovered tool: its name, description, and relevance score
// (1.0 for an exact keyword hit, cosine similarity in [-1, 1] for embedding
// matches), matching the {name, description, score} shape every discovery
// strategy returns.
type Match struct {
	Name        string
	Description string
	Score       float64
}

// EmbeddingProvider embeds text into a vector, the same narrow interface
// the teacher's searcher.go depends on rather than a concrete client.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingStore persists and retrieves tool embedding vectors, the finder's
// equivalent of the teacher's embeddings table.
type EmbeddingStore interface {
	Upsert(ctx context.Context, toolName string, vector []float64) error
	All(ctx context.Context) (map[string][]float64, error)
}

// LLMSelector asks a collaborating LLM which tools best answer a query, the
// abstract collaborator interface SPEC_FULL §1 requires instead of a
// concrete provider binding.
type LLMSelector interface {
	SelectTools(ctx context.Context, query string, candidates []string) ([]string, error)
}

// similarityThreshold mirrors the teacher's embeddings.similarityThreshold:
// once sorted by score, the top match is always kept and any later match
// scoring below this is dropped, even if fewer than limit results remain.
const similarityThreshold = 0.72

// llmCandidateNarrowLimit caps how many candidates findLLM passes to the
// configured LLMSelector. Registries larger than this are first narrowed
// with a keyword pass, since handing an LLM selector the full catalog name
// list wastes context and degrades selection quality.
const llmCandidateNarrowLimit = 50

// Finder discovers tools by name, description, or semantic similarity.
type Finder struct {
	registry *registry.Registry
	provider EmbeddingProvider
	store    EmbeddingStore
	llm      LLMSelector
	log      *obslog.Logger
}

// Options configures a new Finder. Provider/Store/LLM may be nil if that
// strategy is unavailable; auto mode skips unavailable strategies.
type Options struct {
	Registry *registry.Registry
	Provider EmbeddingProvider
	Store    EmbeddingStore
	LLM      LLMSelector
	Logger   *obslog.Logger
}

// New builds a Finder.
func New(opts Options) *Finder {
	log := opts.Logger
	if log == nil {
		log = obslog.Nop()
	}
	return &Finder{
		registry: opts.Registry,
		provider: opts.Provider,
		store:    opts.Store,
		llm:      opts.LLM,
		log:      log,
	}
}

// Find discovers tools matching query using strategy, defaulting to "auto"
// when strategy is empty. An unrecognized strategy falls back to keyword
// search and logs the fallback, rather than failing the call.
func (f *Finder) Find(ctx context.Context, query string, strategy Strategy, limit int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, rterrors.Validation("query", "non-empty string", "empty")
	}

	switch strategy {
	case "", StrategyAuto:
		return f.findAuto(ctx, query, limit)
	case StrategyKeyword:
		return f.findKeyword(query, limit), nil
	case StrategyEmbedding:
		return f.findEmbedding(ctx, query, limit)
	case StrategyLLM:
		return f.findLLM(ctx, query, limit)
	default:
		f.log.Warn("finder: unknown strategy, falling back to keyword", "strategy", string(strategy))
		return f.findKeyword(query, limit), nil
	}
}

// findAuto tries LLM, then embedding, then keyword, returning the first
// strategy that produces any match.
func (f *Finder) findAuto(ctx context.Context, query string, limit int) ([]Match, error) {
	if f.llm != nil {
		if matches, err := f.findLLM(ctx, query, limit); err == nil && len(matches) > 0 {
			return matches, nil
		}
	}
	if f.provider != nil && f.store != nil {
		if matches, err := f.findEmbedding(ctx, query, limit); err == nil && len(matches) > 0 {
			return matches, nil
		}
	}
	return f.findKeyword(query, limit), nil
}

// findKeyword scores every registered tool by substring presence of the
// query terms in its name, description, and tags.
func (f *Finder) findKeyword(query string, limit int) []Match {
	terms := strings.Fields(strings.ToLower(query))
	var matches []Match
	for _, spec := range f.registry.List() {
		score := keywordScore(spec, terms)
		if score > 0 {
			matches = append(matches, Match{Name: spec.Name, Description: spec.Description, Score: score})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return truncate(matches, limit)
}

func keywordScore(spec *toolapi.Spec, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	haystack := strings.ToLower(spec.Name + " " + spec.Description + " " + strings.Join(spec.Tags, " "))
	var hits int
	for _, term := range terms {
		if strings.Contains(haystack, term) {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return float64(hits) / float64(len(terms))
}

// findEmbedding embeds query and ranks every stored tool vector by cosine
// similarity, applying the same threshold-then-limit logic as the
// teacher's Searcher.Search.
func (f *Finder) findEmbedding(ctx context.Context, query string, limit int) ([]Match, error) {
	queryVec, err := f.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("finder: embedding query: %w", err)
	}

	vectors, err := f.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("finder: loading tool embeddings: %w", err)
	}

	var matches []Match
	for name, vec := range vectors {
		sim, err := cosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}
		description := ""
		if spec, ok := f.registry.Spec(name); ok {
			description = spec.Description
		}
		matches = append(matches, Match{Name: name, Description: description, Score: sim})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })

	var selected []Match
	for i, m := range matches {
		if i > 0 && m.Score < similarityThreshold {
			if limit > 0 && len(selected) >= limit {
				break
			}
			continue
		}
		selected = append(selected, m)
		if limit > 0 && len(selected) >= limit {
			break
		}
	}
	if len(selected) == 0 {
		return truncate(matches, limit), nil
	}
	return selected, nil
}

// findLLM asks the configured LLMSelector to pick tools out of the
// registered catalog. When the catalog is larger than
// llmCandidateNarrowLimit, it's first narrowed with a keyword pass so the
// selector sees a relevant shortlist instead of every registered name.
func (f *Finder) findLLM(ctx context.Context, query string, limit int) ([]Match, error) {
	candidates := f.registry.Names()
	if len(candidates) > llmCandidateNarrowLimit {
		narrowed := f.findKeyword(query, llmCandidateNarrowLimit)
		if len(narrowed) > 0 {
			names := make([]string, len(narrowed))
			for i, m := range narrowed {
				names[i] = m.Name
			}
			candidates = names
		}
	}

	selected, err := f.llm.SelectTools(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("finder: llm selection: %w", err)
	}
	matches := make([]Match, 0, len(selected))
	for i, name := range selected {
		description := ""
		if spec, ok := f.registry.Spec(name); ok {
			description = spec.Description
		}
		matches = append(matches, Match{Name: name, Description: description, Score: 1.0 - float64(i)*0.01})
	}
	return truncate(matches, limit), nil
}

func truncate(matches []Match, limit int) []Match {
	if limit <= 0 || len(matches) <= limit {
		return matches
	}
	return matches[:limit]
}

func cosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, fmt.Errorf("finder: vector length mismatch (%d vs %d)", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, fmt.Errorf("finder: zero-magnitude vector")
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
