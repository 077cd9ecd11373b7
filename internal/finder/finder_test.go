package finder

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voocel/toolrt/internal/registry"
	"github.com/voocel/toolrt/internal/toolapi"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Register(&toolapi.Spec{Name: "search_pubmed", Description: "search biomedical literature", Tags: []string{"search", "pubmed"}}))
	require.NoError(t, r.Register(&toolapi.Spec{Name: "fetch_weather", Description: "get current weather for a city"}))
	return r
}

func TestFindEmptyQueryIsValidationError(t *testing.T) {
	f := New(Options{Registry: newTestRegistry(t)})
	_, err := f.Find(context.Background(), "", StrategyKeyword, 10)
	require.Error(t, err)
}

func TestFindKeywordMatchesNameAndTags(t *testing.T) {
	f := New(Options{Registry: newTestRegistry(t)})
	matches, err := f.Find(context.Background(), "pubmed search", StrategyKeyword, 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "search_pubmed", matches[0].Name)
}

func TestFindUnknownStrategyFallsBackToKeyword(t *testing.T) {
	f := New(Options{Registry: newTestRegistry(t)})
	matches, err := f.Find(context.Background(), "weather", Strategy("bogus"), 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "fetch_weather", matches[0].Name)
}

type fakeEmbeddingProvider struct {
	vectors map[string][]float64
}

func (p *fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	return p.vectors[text], nil
}

type memStore struct {
	vectors map[string][]float64
}

func (m *memStore) Upsert(ctx context.Context, toolName string, vector []float64) error {
	m.vectors[toolName] = vector
	return nil
}

func (m *memStore) All(ctx context.Context) (map[string][]float64, error) {
	return m.vectors, nil
}

func TestFindEmbeddingRanksBySimilarity(t *testing.T) {
	store := &memStore{vectors: map[string][]float64{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
	}}
	provider := &fakeEmbeddingProvider{vectors: map[string][]float64{"query": {1, 0, 0}}}

	f := New(Options{Registry: newTestRegistry(t), Provider: provider, Store: store})
	matches, err := f.Find(context.Background(), "query", StrategyEmbedding, 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "a", matches[0].Name)
}

func TestCosineSimilarityMismatchedLengths(t *testing.T) {
	_, err := cosineSimilarity([]float64{1, 2}, []float64{1})
	require.Error(t, err)
}

func TestFindKeywordPopulatesDescription(t *testing.T) {
	f := New(Options{Registry: newTestRegistry(t)})
	matches, err := f.Find(context.Background(), "pubmed", StrategyKeyword, 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "search biomedical literature", matches[0].Description)
}

type fakeLLMSelector struct {
	lastCandidates []string
	order          []string
}

func (s *fakeLLMSelector) SelectTools(ctx context.Context, query string, candidates []string) ([]string, error) {
	s.lastCandidates = candidates
	return s.order, nil
}

func TestFindLLMPopulatesDescriptionFromRegistry(t *testing.T) {
	selector := &fakeLLMSelector{order: []string{"search_pubmed"}}
	f := New(Options{Registry: newTestRegistry(t), LLM: selector})

	matches, err := f.Find(context.Background(), "pubmed search", StrategyLLM, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "search biomedical literature", matches[0].Description)
}

func TestFindLLMNarrowsLargeRegistriesWithKeywordFirst(t *testing.T) {
	r := registry.New()
	for i := 0; i < llmCandidateNarrowLimit+10; i++ {
		require.NoError(t, r.Register(&toolapi.Spec{
			Name:        fmt.Sprintf("filler_%03d", i),
			Description: "an unrelated filler tool",
		}))
	}
	require.NoError(t, r.Register(&toolapi.Spec{Name: "search_pubmed", Description: "search biomedical literature pubmed"}))

	selector := &fakeLLMSelector{order: []string{"search_pubmed"}}
	f := New(Options{Registry: r, LLM: selector})

	_, err := f.Find(context.Background(), "pubmed", StrategyLLM, 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(selector.lastCandidates), llmCandidateNarrowLimit)
	assert.Contains(t, selector.lastCandidates, "search_pubmed")
}
