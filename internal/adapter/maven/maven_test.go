package maven

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkghub/internal/adapter"
	"pkghub/internal/cache"
	"pkghub/internal/fetch"
	"pkghub/pkg/problems"
)

func newBackend(t *testing.T, handler http.Handler) *Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	return New(Config{
		Upstream:    adapter.Upstream{Fetcher: fetch.New(fetch.Config{}), Cache: c},
		SearchURL:   srv.URL + "/solrsearch/select",
		RepoURL:     "https://repo.example/maven2",
		CatalogRows: 400,
	})
}

const gavResponse = `{"response": {"numFound": 2, "docs": [
	{"id": "org.slf4j:slf4j-api:2.0.13", "g": "org.slf4j", "a": "slf4j-api",
	 "v": "2.0.13", "p": "jar", "timestamp": 1715000000000},
	{"id": "org.slf4j:slf4j-api:2.0.0-alpha1", "g": "org.slf4j", "a": "slf4j-api",
	 "v": "2.0.0-alpha1", "p": "jar", "timestamp": 1565000000000}
]}}`

func TestLookupTranslatesCoordinates(t *testing.T) {
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "gav", q.Get("core"))
		require.Equal(t, `g:"org.slf4j" AND a:"slf4j-api"`, q.Get("q"))
		w.Write([]byte(gavResponse))
	}))

	pkg, err := b.Lookup(context.Background(), "org.slf4j/slf4j-api")
	require.NoError(t, err)

	assert.Equal(t, "org.slf4j/slf4j-api", pkg.ID)
	assert.Equal(t, "org.slf4j:slf4j-api", pkg.Name)
	assert.Equal(t, "org.slf4j", pkg.Extra["groupid"])
	assert.Equal(t, "2.0.13", pkg.DefaultVersion, "pre-releases never win the default")

	require.Len(t, pkg.Versions, 2)
	assert.Equal(t, "2.0.0-alpha1", pkg.Versions[0].ID, "versions come back oldest first")
	assert.Equal(t,
		"https://repo.example/maven2/org/slf4j/slf4j-api/2.0.13/slf4j-api-2.0.13.jar",
		pkg.Versions[1].Extra["downloadurl"])
}

func TestLookupAcceptsColonSpelling(t *testing.T) {
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(gavResponse))
	}))

	pkg, err := b.Lookup(context.Background(), "org.slf4j:slf4j-api")
	require.NoError(t, err)
	assert.Equal(t, "org.slf4j/slf4j-api", pkg.ID)
}

func TestLookupUnknownCoordinateIsNotFound(t *testing.T) {
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response": {"numFound": 0, "docs": []}}`))
	}))

	_, err := b.Lookup(context.Background(), "org.example/ghost")
	require.Error(t, err)
	assert.True(t, problems.IsKind(err, problems.KindNotFound))
}

func TestLoadIndexPagesUntilCap(t *testing.T) {
	var starts []string
	b := newBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		starts = append(starts, q.Get("start"))
		fmt.Fprintf(w, `{"response": {"numFound": 300, "docs": [
			{"g": "org.example", "a": "lib-%s"}
		]}}`, q.Get("start"))
	}))

	entries, err := b.LoadIndex(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"0", "200"}, starts, "paging stops once numFound is covered")
	require.Len(t, entries, 2)
	assert.Equal(t, "org.example/lib-0", entries[0].Raw)
}
