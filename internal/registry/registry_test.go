package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voocel/toolrt/internal/toolapi"
)

type stubTool struct{}

func (stubTool) Execute(ctx context.Context, args map[string]any) (*toolapi.Result, error) {
	return &toolapi.Result{Success: true}, nil
}

type streamingStubTool struct{ stubTool }

func (streamingStubTool) ExecuteStreaming(ctx context.Context, args map[string]any, stream toolapi.StreamCallback) (*toolapi.Result, error) {
	return &toolapi.Result{Success: true}, nil
}

func TestRegisterDetectsCapabilities(t *testing.T) {
	r := New()
	r.RegisterFactory("streaming", func(spec *toolapi.Spec) (toolapi.Instance, error) {
		return streamingStubTool{}, nil
	})

	err := r.Register(&toolapi.Spec{Name: "echo_stream", Type: "streaming"})
	require.NoError(t, err)

	spec, ok := r.Spec("echo_stream")
	require.True(t, ok)
	assert.True(t, spec.Capabilities.Streaming)
	assert.False(t, spec.Capabilities.CacheAware)
}

func TestRegisterRejectsNegativeConcurrency(t *testing.T) {
	r := New()
	err := r.Register(&toolapi.Spec{Name: "bad", Type: "plain", BatchMaxConcurrency: -1})
	require.Error(t, err)
}

func TestInstanceLazyConstructsWhenFactoryRegisteredLater(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&toolapi.Spec{Name: "late", Type: "plain"}))

	r.RegisterFactory("plain", func(spec *toolapi.Spec) (toolapi.Instance, error) {
		return stubTool{}, nil
	})

	instance, err := r.Instance("late")
	require.NoError(t, err)
	res, err := instance.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Success)

	spec, _ := r.Spec("late")
	assert.False(t, spec.Capabilities.Streaming)
}

func TestNamesAndCountAndByCategory(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&toolapi.Spec{Name: "b", Type: "x", Category: "search"}))
	require.NoError(t, r.Register(&toolapi.Spec{Name: "a", Type: "x", Category: "search"}))
	require.NoError(t, r.Register(&toolapi.Spec{Name: "c", Type: "x", Category: "other"}))

	assert.Equal(t, []string{"a", "b", "c"}, r.Names())
	assert.Equal(t, 3, r.Count())
	assert.Equal(t, []string{"a", "b"}, r.ByCategory("search"))
}

func TestBuildMetadataDiff(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&toolapi.Spec{Name: "t1", Type: "x", Description: "v1"}))
	require.NoError(t, r.Register(&toolapi.Spec{Name: "t2", Type: "x"}))

	newTools, changed, unchanged, snapshot := r.Diff(BuildMetadata{})
	assert.ElementsMatch(t, []string{"t1", "t2"}, newTools)
	assert.Empty(t, changed)
	assert.Empty(t, unchanged)

	r2 := New()
	require.NoError(t, r2.Register(&toolapi.Spec{Name: "t1", Type: "x", Description: "v2"}))
	require.NoError(t, r2.Register(&toolapi.Spec{Name: "t2", Type: "x"}))

	newTools, changed, unchanged, _ = r2.Diff(snapshot)
	assert.Empty(t, newTools)
	assert.Equal(t, []string{"t1"}, changed)
	assert.Equal(t, []string{"t2"}, unchanged)
}

func TestRefreshDropsInstanceForChangedSpec(t *testing.T) {
	r := New()
	var built int
	r.RegisterFactory("x", func(spec *toolapi.Spec) (toolapi.Instance, error) {
		built++
		return stubTool{}, nil
	})
	spec := &toolapi.Spec{Name: "t1", Type: "x", Description: "v1"}
	require.NoError(t, r.Register(spec))

	_, err := r.Instance("t1")
	require.NoError(t, err)
	assert.Equal(t, 1, built)

	_, _, _, snapshot := r.Diff(BuildMetadata{})

	spec.Description = "v2"
	newTools, changed, unchanged, _ := r.Refresh(snapshot)
	assert.Empty(t, newTools)
	assert.Equal(t, []string{"t1"}, changed)
	assert.Empty(t, unchanged)

	_, err = r.Instance("t1")
	require.NoError(t, err)
	assert.Equal(t, 2, built, "changed spec's cached instance should be dropped and rebuilt")
}

func TestCatalogNamesReadsManifestWithoutInstantiating(t *testing.T) {
	r := New()
	var built int
	r.RegisterFactory("x", func(spec *toolapi.Spec) (toolapi.Instance, error) {
		built++
		return stubTool{}, nil
	})
	require.NoError(t, r.Register(&toolapi.Spec{Name: "search_pubmed", Type: "x", Category: "search"}))

	dir := t.TempDir()
	path := filepath.Join(dir, "search.json")
	data, err := json.Marshal(map[string]any{"tools": []string{"search_pubmed", "search_arxiv"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	catalog := Catalog{"search": path}
	names, err := catalog.Names(r, "search")
	require.NoError(t, err)
	assert.Equal(t, []string{"search_arxiv", "search_pubmed"}, names)
	assert.Equal(t, 0, built)
}

func TestCatalogNamesFallsBackWhenManifestMissing(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&toolapi.Spec{Name: "a", Type: "x", Category: "search"}))

	catalog := Catalog{"search": filepath.Join(t.TempDir(), "missing.json")}
	names, err := catalog.Names(r, "search")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, names)
}
