package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pkghub/internal/adapter"
	"pkghub/internal/httpapi"
	"pkghub/internal/index"
	"pkghub/pkg/problems"
)

// fakeAdapter is a minimal adapter surface for handshake and proxy tests.
type fakeAdapter struct {
	groupType string
	caps      adapter.Capabilities
	requests  []*http.Request
	handler   http.HandlerFunc
}

func (f *fakeAdapter) serve(w http.ResponseWriter, r *http.Request) {
	clone := r.Clone(context.Background())
	f.requests = append(f.requests, clone)
	switch r.URL.Path {
	case "/model":
		json.NewEncoder(w).Encode(adapter.Model{Groups: map[string]adapter.GroupModel{
			f.groupType: {Plural: f.groupType, Singular: "registry"},
		}})
	case "/capabilities":
		json.NewEncoder(w).Encode(f.caps)
	default:
		if f.handler != nil {
			f.handler(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"path": r.URL.Path})
	}
}

func newFakeAdapter(t *testing.T, groupType string) (*fakeAdapter, string) {
	t.Helper()
	f := &fakeAdapter{
		groupType: groupType,
		caps: adapter.Capabilities{
			Mutable: false, Pagination: true, Filtering: true, Sort: true, Inline: true,
			SpecVersions: []string{"1.0-rc2"},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func startBridge(t *testing.T, cfg Config) *Bridge {
	t.Helper()
	b := New(cfg)
	require.NoError(t, b.Start(context.Background()))
	require.Equal(t, StateReady, b.State())
	return b
}

func TestStartHandshakesAllAdapters(t *testing.T) {
	_, npmURL := newFakeAdapter(t, "noderegistries")
	_, pypiURL := newFakeAdapter(t, "pythonregistries")

	b := startBridge(t, Config{Adapters: []Descriptor{{URL: npmURL}, {URL: pypiURL}}})

	assert.Equal(t, []string{"noderegistries", "pythonregistries"}, b.GroupTypes())
	assert.Contains(t, b.Model().Groups, "noderegistries")
	assert.Contains(t, b.Model().Groups, "pythonregistries")
	assert.False(t, b.Capabilities().Mutable)
	assert.Equal(t, []string{"1.0-rc2"}, b.Capabilities().SpecVersions)
}

func TestStartRejectsDuplicateGroupType(t *testing.T) {
	_, a := newFakeAdapter(t, "noderegistries")
	_, bURL := newFakeAdapter(t, "noderegistries")

	br := New(Config{Adapters: []Descriptor{{URL: a}, {URL: bURL}}})
	err := br.Start(context.Background())

	require.Error(t, err)
	assert.True(t, problems.IsKind(err, problems.KindConflict))
	assert.NotEqual(t, StateReady, br.State())
}

func TestStartFailsWhenAdapterUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	br := New(Config{Adapters: []Descriptor{{URL: srv.URL, Timeout: time.Second}}})
	err := br.Start(context.Background())

	require.Error(t, err)
	assert.True(t, problems.IsKind(err, problems.KindServiceUnavailable))
}

func TestProxyRoutesGroupTypeTraffic(t *testing.T) {
	f, npmURL := newFakeAdapter(t, "noderegistries")
	b := startBridge(t, Config{Adapters: []Descriptor{{URL: npmURL, APIKey: "adapter-key"}}})

	// The proxy needs a live connection; a recorder cannot stand in for one.
	srv := httptest.NewServer(b.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/noderegistries/npmjs.org/packages?filter=name=l*", nil)
	require.NoError(t, err)
	req.Host = "example.com"
	req.Header.Set("Authorization", "Bearer client-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	proxied := f.requests[len(f.requests)-1]
	assert.Equal(t, "/noderegistries/npmjs.org/packages", proxied.URL.Path)
	assert.Equal(t, "filter=name=l*", proxied.URL.RawQuery)
	assert.Equal(t, "Bearer adapter-key", proxied.Header.Get("Authorization"),
		"the client bearer must never reach the adapter")
	assert.Equal(t, "http://example.com", proxied.Header.Get(httpapi.HeaderBaseURL))
}

func TestProxyUnknownGroupTypeIs404(t *testing.T) {
	_, npmURL := newFakeAdapter(t, "noderegistries")
	b := startBridge(t, Config{Adapters: []Descriptor{{URL: npmURL}}})

	req := httptest.NewRequest(http.MethodGet, "/gemregistries/rubygems.org/packages", nil)
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, problems.ContentType, w.Header().Get("Content-Type"))
}

func TestCompositeRegistryListsGroupTypes(t *testing.T) {
	_, npmURL := newFakeAdapter(t, "noderegistries")
	_, mcpURL := newFakeAdapter(t, "mcpproviders")
	b := startBridge(t, Config{Adapters: []Descriptor{{URL: npmURL}, {URL: mcpURL}}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "pkghub", body["registryid"])
	assert.Equal(t, "1.0-rc2", body["specversion"])
	assert.Equal(t, "http://example.com/noderegistries", body["noderegistriesurl"])
	assert.Equal(t, "http://example.com/mcpproviders", body["mcpprovidersurl"])
	assert.Equal(t, float64(1), body["noderegistriescount"])
}

func TestHealthDegradesWhenAdapterDown(t *testing.T) {
	_, npmURL := newFakeAdapter(t, "noderegistries")
	down, downURL := newFakeAdapter(t, "pythonregistries")
	_ = down
	b := startBridge(t, Config{
		Adapters:      []Descriptor{{URL: npmURL}, {URL: downURL}},
		HealthTimeout: time.Second,
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Take the second adapter down and probe again.
	down.handler = func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}
	w = httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status   string                 `json:"status"`
		Adapters map[string]probeResult `json:"adapters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.True(t, body.Adapters["noderegistries"].OK)
	assert.False(t, body.Adapters["pythonregistries"].OK)
	assert.NotEmpty(t, body.Adapters["pythonregistries"].Error)
}

func TestClientAPIKeyGuardsBridge(t *testing.T) {
	_, npmURL := newFakeAdapter(t, "noderegistries")
	b := startBridge(t, Config{Adapters: []Descriptor{{URL: npmURL}}, APIKey: "front-door"})
	h := b.Handler()

	req := httptest.NewRequest(http.MethodGet, "/model", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req.Header.Set("X-API-Key", "front-door")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// fakeBackend wires a real adapter server behind the bridge for an
// end-to-end pass through both hops.
type fakeBackend struct {
	def adapter.Definition
	idx *index.Index
	pkg *adapter.Package
}

func (f *fakeBackend) Definition() adapter.Definition { return f.def }
func (f *fakeBackend) Index() *index.Index            { return f.idx }
func (f *fakeBackend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	return nil, nil
}
func (f *fakeBackend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	if f.pkg != nil && name == f.pkg.Name {
		return f.pkg, nil
	}
	return nil, problems.NotFound("no package %q", name)
}

func TestEndToEndLookupThroughBridge(t *testing.T) {
	def := adapter.Definition{
		Ecosystem: "npm", GroupType: "noderegistries", GroupSingular: "noderegistry",
		GroupID: "npmjs.org", ResourceType: "packages", ResourceSingular: "package",
	}
	backend := &fakeBackend{
		def: def,
		idx: index.New(),
		pkg: &adapter.Package{
			ID: "left-pad", Name: "left-pad", Description: "String left pad",
			Versions:       []adapter.PackageVersion{{ID: "1.3.0"}},
			DefaultVersion: "1.3.0",
		},
	}
	backend.idx.Swap(index.Build([]index.Entry{{Normalized: "left-pad", Raw: "left-pad"}}))

	adapterSrv := httptest.NewServer(adapter.NewServer(adapter.ServerConfig{Backend: backend}).Handler())
	defer adapterSrv.Close()

	b := startBridge(t, Config{Adapters: []Descriptor{{URL: adapterSrv.URL}}})
	bridgeSrv := httptest.NewServer(b.Handler())
	defer bridgeSrv.Close()

	req, err := http.NewRequest(http.MethodGet, bridgeSrv.URL+"/noderegistries/npmjs.org/packages/left-pad", nil)
	require.NoError(t, err)
	req.Host = "bridge.example"
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "left-pad", body["packageid"])
	assert.Equal(t, "/noderegistries/npmjs.org/packages/left-pad", body["xid"])
	assert.Equal(t, "http://bridge.example/noderegistries/npmjs.org/packages/left-pad", body["self"],
		"self URLs must point at the bridge, not the adapter")
	assert.Equal(t, "1.3.0", body["versionid"])
}
