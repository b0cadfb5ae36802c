package npm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkghub/internal/adapter"
	"pkghub/internal/cache"
	"pkghub/internal/fetch"
	"pkghub/pkg/problems"
)

const leftPadDoc = `{
	"name": "left-pad",
	"description": "String left pad",
	"dist-tags": {"latest": "1.3.0"},
	"versions": {
		"1.0.0": {"version": "1.0.0", "license": "WTFPL",
			"dist": {"tarball": "https://registry.example/left-pad/-/left-pad-1.0.0.tgz", "shasum": "aaa"}},
		"1.3.0": {"version": "1.3.0", "license": {"type": "MIT"},
			"dependencies": {"util-deprecate": "^1.0.0"},
			"dist": {"tarball": "https://registry.example/left-pad/-/left-pad-1.3.0.tgz", "shasum": "bbb"}}
	},
	"time": {
		"created": "2014-03-20T01:02:03Z",
		"modified": "2018-04-10T08:00:00Z",
		"1.0.0": "2014-03-20T01:02:03Z",
		"1.3.0": "2018-04-10T08:00:00Z"
	},
	"license": "MIT",
	"homepage": "https://github.com/left-pad/left-pad",
	"keywords": ["pad", "string"]
}`

func newBackend(t *testing.T, upstream http.Handler) *Backend {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	return New(Config{
		Upstream:    adapter.Upstream{Fetcher: fetch.New(fetch.Config{}), Cache: c},
		RegistryURL: srv.URL,
		CatalogURL:  srv.URL + "/_all_docs",
	})
}

func TestLookupTranslatesPackageDoc(t *testing.T) {
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/left-pad", r.URL.Path)
		w.Write([]byte(leftPadDoc))
	}))

	pkg, err := b.Lookup(context.Background(), "left-pad")
	require.NoError(t, err)

	assert.Equal(t, "left-pad", pkg.ID)
	assert.Equal(t, "String left pad", pkg.Description)
	assert.Equal(t, "1.3.0", pkg.DefaultVersion)
	assert.Equal(t, "MIT", pkg.Extra["license"])
	assert.Equal(t, time.Date(2014, 3, 20, 1, 2, 3, 0, time.UTC), pkg.CreatedAt)

	require.Len(t, pkg.Versions, 2)
	assert.Equal(t, "1.0.0", pkg.Versions[0].ID)
	assert.Equal(t, "WTFPL", pkg.Versions[0].Extra["license"])
	latest := pkg.Versions[1]
	assert.Equal(t, "MIT", latest.Extra["license"], "object-form license should flatten to its type")
	assert.Equal(t, "https://registry.example/left-pad/-/left-pad-1.3.0.tgz", latest.Extra["downloadurl"])
}

func TestLookupScopedNameIsEscaped(t *testing.T) {
	var seen string
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.URL.RawPath
		if seen == "" {
			seen = r.URL.Path
		}
		w.Write([]byte(`{"name": "@types/node", "versions": {}, "time": {}}`))
	}))

	_, err := b.Lookup(context.Background(), "@types/node")
	require.NoError(t, err)
	assert.Equal(t, "/@types%2Fnode", seen)
}

func TestLookupMissingPackageIsNotFound(t *testing.T) {
	b := newBackend(t, http.NotFoundHandler())

	_, err := b.Lookup(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, problems.IsKind(err, problems.KindNotFound))
}

func TestLoadIndexSkipsDesignDocs(t *testing.T) {
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_all_docs", r.URL.Path)
		w.Write([]byte(`{"rows": [
			{"id": "_design/app"},
			{"id": "Express"},
			{"id": "left-pad"}
		]}`))
	}))

	entries, err := b.LoadIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "express", entries[0].Normalized)
	assert.Equal(t, "Express", entries[0].Raw)
}

func TestDefinition(t *testing.T) {
	def := New(Config{}).Definition()
	assert.Equal(t, "noderegistries", def.GroupType)
	assert.Equal(t, "npmjs.org", def.GroupID)
	assert.Equal(t, "packages", def.ResourceType)
	assert.False(t, def.CatalogDisabled)
}
