package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkghub/internal/engine"
	"pkghub/internal/httpapi"
	"pkghub/internal/index"
	"pkghub/pkg/problems"
)

type fakeBackend struct {
	def      Definition
	idx      *index.Index
	packages map[string]*Package
}

func newFakeBackend(def Definition, packages ...*Package) *fakeBackend {
	b := &fakeBackend{def: def, idx: index.New(), packages: map[string]*Package{}}
	entries := make([]index.Entry, 0, len(packages))
	for _, p := range packages {
		b.packages[p.Name] = p
		entries = append(entries, index.Entry{Normalized: p.ID, Raw: p.Name})
	}
	b.idx.Swap(index.Build(entries))
	return b
}

func (b *fakeBackend) Definition() Definition { return b.def }
func (b *fakeBackend) Index() *index.Index    { return b.idx }

func (b *fakeBackend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	return nil, nil
}

func (b *fakeBackend) Lookup(ctx context.Context, name string) (*Package, error) {
	p, ok := b.packages[name]
	if !ok {
		return nil, problems.NotFound("no package %q", name)
	}
	return p, nil
}

func testDefinition() Definition {
	return Definition{
		Ecosystem:        "npm",
		GroupType:        "noderegistries",
		GroupSingular:    "noderegistry",
		GroupID:          "npmjs.org",
		GroupName:        "npm public registry",
		ResourceType:     "packages",
		ResourceSingular: "package",
	}
}

func testPackage(name string) *Package {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Package{
		ID:          name,
		Name:        name,
		Description: "a test package",
		CreatedAt:   created,
		ModifiedAt:  created.Add(24 * time.Hour),
		Extra:       map[string]interface{}{"license": "MIT"},
		Versions: []PackageVersion{
			{ID: "1.0.0", CreatedAt: created, Extra: map[string]interface{}{"deprecated": false}},
			{ID: "2.0.0", CreatedAt: created.Add(24 * time.Hour)},
		},
		DefaultVersion: "2.0.0",
	}
}

func newTestServer(t *testing.T, packages ...*Package) *Server {
	t.Helper()
	return NewServer(ServerConfig{Backend: newFakeBackend(testDefinition(), packages...)})
}

func get(t *testing.T, s *Server, path string, header map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	}
	return w, body
}

func TestServerRegistryRoot(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "npm", body["registryid"])
	assert.Equal(t, "1.0-rc2", body["specversion"])
	assert.Equal(t, "/", body["xid"])
	assert.Equal(t, "http://example.com/noderegistries", body["noderegistriesurl"])
	assert.Equal(t, float64(1), body["noderegistriescount"])
}

func TestServerRegistryRootHonorsBaseURLHeader(t *testing.T) {
	s := newTestServer(t)

	_, body := get(t, s, "/", map[string]string{httpapi.HeaderBaseURL: "https://bridge.example:8443"})

	assert.Equal(t, "https://bridge.example:8443/", body["self"])
	assert.Equal(t, "https://bridge.example:8443/noderegistries", body["noderegistriesurl"])
}

func TestServerModelAndCapabilities(t *testing.T) {
	s := newTestServer(t)

	w, body := get(t, s, "/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	groups := body["groups"].(map[string]interface{})
	require.Contains(t, groups, "noderegistries")

	w, body = get(t, s, "/capabilities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["mutable"])
	assert.Contains(t, body["specversions"], "1.0-rc2")
}

func TestServerGroupCollectionAndEntity(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/noderegistries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := body["page"].([]interface{})
	require.Len(t, page, 1)
	assert.Equal(t, float64(1), body["total"])

	w, body = get(t, s, "/noderegistries/npmjs.org", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "npmjs.org", body["noderegistryid"])
	assert.Equal(t, "/noderegistries/npmjs.org", body["xid"])
	assert.Equal(t, float64(1), body["packagescount"])

	w, _ = get(t, s, "/noderegistries/other.org", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerResourcesRequireNameConstraint(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(httpapi.HeaderNotice))
	assert.Empty(t, body["page"])
	assert.Equal(t, float64(0), body["total"])
}

func TestServerResourcesFilteredByName(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"), testPackage("lodash"), testPackage("express"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages?filter=name=l*", nil)

	require.Equal(t, http.StatusOK, w.Code)
	page := body["page"].([]interface{})
	require.Len(t, page, 2)
	assert.Equal(t, float64(2), body["total"])
	first := page[0].(map[string]interface{})
	assert.Equal(t, "left-pad", first["packageid"])
}

func TestServerResourcesPaginationLinks(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"), testPackage("lodash"), testPackage("lerna"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages?filter=name=l*&limit=2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["page"], 2)
	link := w.Header().Get("Link")
	assert.Contains(t, link, `rel="next"`)
	assert.Contains(t, link, "count=3")
}

func TestServerResourceEntity(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages/left-pad", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "left-pad", body["packageid"])
	assert.Equal(t, "2.0.0", body["versionid"])
	assert.Equal(t, true, body["isdefault"])
	assert.Equal(t, "MIT", body["license"])
	assert.Equal(t, float64(2), body["versionscount"])
	assert.Equal(t, "http://example.com/noderegistries/npmjs.org/packages/left-pad/meta", body["metaurl"])
}

func TestServerResourceNotFound(t *testing.T) {
	s := newTestServer(t)

	w, body := get(t, s, "/noderegistries/npmjs.org/packages/ghost", nil)

	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, problems.ContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "/noderegistries/npmjs.org/packages/ghost", body["instance"])
}

func TestServerMeta(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages/left-pad/meta", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["readonly"])
	assert.Equal(t, "2.0.0", body["defaultversionid"])
	assert.Contains(t, body["defaultversionurl"], "/versions/2.0.0")
}

func TestServerVersions(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages/left-pad/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), body["total"])

	w, body = get(t, s, "/noderegistries/npmjs.org/packages/left-pad/versions/1.0.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1.0.0", body["versionid"])
	assert.Equal(t, false, body["isdefault"])

	w, _ = get(t, s, "/noderegistries/npmjs.org/packages/left-pad/versions/9.9.9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerInlineVersionsOnResource(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	w, body := get(t, s, "/noderegistries/npmjs.org/packages/left-pad?inline=versions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	versions, ok := body["versions"].(map[string]interface{})
	require.True(t, ok, "versions collection should be inlined as a map")
	assert.Len(t, versions, 2)
	require.Contains(t, versions, "2.0.0")
	v := versions["2.0.0"].(map[string]interface{})
	assert.Equal(t, true, v["isdefault"])
}

func TestServerInlineVersionsBoundedByDefaultLimit(t *testing.T) {
	pkg := &Package{ID: "left-pad", Name: "left-pad", DefaultVersion: "6.0.0"}
	for _, id := range []string{"1.0.0", "2.0.0", "3.0.0", "4.0.0", "5.0.0", "6.0.0"} {
		pkg.Versions = append(pkg.Versions, PackageVersion{ID: id})
	}
	s := NewServer(ServerConfig{
		Backend: newFakeBackend(testDefinition(), pkg),
		Engine:  engine.Opts{DefaultLimit: 3, MaxLimit: 100, CandidateLimit: 2000},
	})

	w, body := get(t, s, "/noderegistries/npmjs.org/packages/left-pad?inline=versions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	versions, ok := body["versions"].(map[string]interface{})
	require.True(t, ok, "versions collection should be inlined as a map")
	assert.Len(t, versions, 3)
	assert.Contains(t, versions, "1.0.0")
	assert.Contains(t, versions, "3.0.0")
	assert.NotContains(t, versions, "6.0.0")
	assert.Equal(t, float64(6), body["versionscount"],
		"the count must report the whole collection, not the inlined page")
}

func TestServerCatalogDisabled(t *testing.T) {
	def := testDefinition()
	def.CatalogDisabled = true
	s := NewServer(ServerConfig{Backend: newFakeBackend(def, testPackage("left-pad"))})

	w, _ := get(t, s, "/noderegistries/npmjs.org/packages?filter=name=l*", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Direct lookup by id stays available.
	w, body := get(t, s, "/noderegistries/npmjs.org/packages/left-pad", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "left-pad", body["packageid"])
}

func TestServerRequiresAPIKeyWhenConfigured(t *testing.T) {
	s := NewServer(ServerConfig{
		Backend: newFakeBackend(testDefinition(), testPackage("left-pad")),
		APIKey:  "s3cret",
	})

	w, _ := get(t, s, "/noderegistries", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = get(t, s, "/noderegistries", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerRejectsWrites(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/noderegistries", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, OPTIONS", w.Header().Get("Allow"))
}

func TestServerAnswersBareOptions(t *testing.T) {
	s := newTestServer(t, testPackage("left-pad"))

	for _, path := range []string{"/model", "/noderegistries/npmjs.org/packages/left-pad"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code, path)
	}
}
