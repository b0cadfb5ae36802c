// Package bridge implements the aggregation front of pkghub: it handshakes
// the configured adapters at startup, merges their models and capabilities,
// and routes group-type traffic to the owning adapter.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/pkg/logging"
	"pkghub/pkg/problems"
)

// State is the bridge lifecycle phase.
type State string

const (
	StateInit          State = "INIT"
	StateLoadingConfig State = "LOADING_CONFIG"
	StateHandshaking   State = "HANDSHAKING"
	StateReady         State = "READY"
)

// Descriptor configures one upstream adapter.
type Descriptor struct {
	// URL is the adapter's base URL.
	URL string

	// APIKey, when set, is presented to the adapter as a Bearer token.
	APIKey string

	// Timeout bounds handshake and proxied requests, default 30s.
	Timeout time.Duration

	// HealthPath is probed by /health, default "/".
	HealthPath string
}

// Config configures the bridge.
type Config struct {
	// Adapters are handshaken in order; order matters only for
	// deterministic error reporting.
	Adapters []Descriptor

	// APIKey, when set, is required from clients.
	APIKey string

	// HealthTimeout bounds each /health probe, default 3s.
	HealthTimeout time.Duration

	Fetcher *fetch.Fetcher
}

// upstream is one handshaken adapter with its slice of the merged model.
type upstream struct {
	descriptor Descriptor
	target     *url.URL
	groupTypes []string
	model      adapter.Model
	caps       adapter.Capabilities
	proxy      http.Handler
}

// Bridge owns the routing table. The table is written once during Start and
// read-only afterwards.
type Bridge struct {
	cfg     Config
	fetcher *fetch.Fetcher
	started time.Time

	state atomic.Value // State

	routes    map[string]*upstream
	order     []string // group types, registration order
	upstreams []*upstream
	model     adapter.Model
	caps      adapter.Capabilities
}

func New(cfg Config) *Bridge {
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 3 * time.Second
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.New(fetch.Config{})
	}
	b := &Bridge{
		cfg:     cfg,
		fetcher: cfg.Fetcher,
		started: time.Now().UTC(),
		routes:  map[string]*upstream{},
	}
	b.state.Store(StateInit)
	return b
}

// State reports the lifecycle phase.
func (b *Bridge) State() State {
	return b.state.Load().(State)
}

// Start runs the startup handshake against every configured adapter. Any
// failure is fatal to the caller: a duplicate group type surfaces as a
// conflict problem, an unreachable adapter as service-unavailable.
func (b *Bridge) Start(ctx context.Context) error {
	b.state.Store(StateLoadingConfig)
	if len(b.cfg.Adapters) == 0 {
		return problems.ServiceUnavailable("no adapters configured")
	}

	b.state.Store(StateHandshaking)
	for _, d := range b.cfg.Adapters {
		up, err := b.handshake(ctx, d)
		if err != nil {
			return err
		}
		for _, gt := range up.groupTypes {
			if prev, dup := b.routes[gt]; dup {
				return problems.Conflict("group type %q is served by both %s and %s",
					gt, prev.descriptor.URL, d.URL)
			}
			b.routes[gt] = up
			b.order = append(b.order, gt)
		}
		b.upstreams = append(b.upstreams, up)
		b.merge(up)
		logging.Info("Bridge", "adapter %s serves %s", d.URL, strings.Join(up.groupTypes, ", "))
	}

	b.state.Store(StateReady)
	return nil
}

// handshake fetches /model and /capabilities exactly once for a descriptor.
func (b *Bridge) handshake(ctx context.Context, d Descriptor) (*upstream, error) {
	target, err := url.Parse(strings.TrimSuffix(d.URL, "/"))
	if err != nil || target.Host == "" {
		return nil, problems.ServiceUnavailable("adapter URL %q is not absolute", d.URL)
	}

	hctx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	up := &upstream{descriptor: d, target: target}
	if err := b.getJSON(hctx, d, "/model", &up.model); err != nil {
		return nil, problems.ServiceUnavailable("handshake with %s failed fetching /model", d.URL).WithCause(err)
	}
	if err := b.getJSON(hctx, d, "/capabilities", &up.caps); err != nil {
		return nil, problems.ServiceUnavailable("handshake with %s failed fetching /capabilities", d.URL).WithCause(err)
	}
	if len(up.model.Groups) == 0 {
		return nil, problems.ServiceUnavailable("adapter %s declares no group types", d.URL)
	}
	for gt := range up.model.Groups {
		up.groupTypes = append(up.groupTypes, gt)
	}
	sort.Strings(up.groupTypes)
	up.proxy = b.newProxy(up)
	return up, nil
}

func (b *Bridge) getJSON(ctx context.Context, d Descriptor, path string, out interface{}) error {
	req := fetch.Request{URL: strings.TrimSuffix(d.URL, "/") + path}
	if d.APIKey != "" {
		req.Header = http.Header{"Authorization": []string{"Bearer " + d.APIKey}}
	}
	return b.fetcher.GetJSON(ctx, req, out)
}

// merge folds one adapter's documents into the composite: group maps union,
// boolean capabilities AND, list capabilities union.
func (b *Bridge) merge(up *upstream) {
	if b.model.Groups == nil {
		b.model.Groups = map[string]adapter.GroupModel{}
	}
	for gt, gm := range up.model.Groups {
		b.model.Groups[gt] = gm
	}

	if len(b.upstreams) == 1 {
		b.caps = up.caps
		b.caps.APIs = unionSorted(nil, up.caps.APIs)
		b.caps.Flags = unionSorted(nil, up.caps.Flags)
		b.caps.SpecVersions = unionSorted(nil, up.caps.SpecVersions)
		return
	}
	b.caps.Mutable = b.caps.Mutable && up.caps.Mutable
	b.caps.Pagination = b.caps.Pagination && up.caps.Pagination
	b.caps.Filtering = b.caps.Filtering && up.caps.Filtering
	b.caps.Sort = b.caps.Sort && up.caps.Sort
	b.caps.Inline = b.caps.Inline && up.caps.Inline
	b.caps.APIs = unionSorted(b.caps.APIs, up.caps.APIs)
	b.caps.Flags = unionSorted(b.caps.Flags, up.caps.Flags)
	b.caps.SpecVersions = unionSorted(b.caps.SpecVersions, up.caps.SpecVersions)
}

func unionSorted(a, b []string) []string {
	seen := map[string]bool{}
	for _, s := range a {
		seen[s] = true
	}
	for _, s := range b {
		seen[s] = true
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Model returns the merged model document.
func (b *Bridge) Model() adapter.Model {
	return b.model
}

// Capabilities returns the merged capability document.
func (b *Bridge) Capabilities() adapter.Capabilities {
	return b.caps
}

// GroupTypes lists the routed group types in registration order.
func (b *Bridge) GroupTypes() []string {
	return append([]string(nil), b.order...)
}

// probeResult is one adapter's /health outcome.
type probeResult struct {
	URL   string `json:"url"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// probe checks every adapter in parallel within the health timeout.
func (b *Bridge) probe(ctx context.Context) (map[string]probeResult, bool) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.HealthTimeout)
	defer cancel()

	var mu sync.Mutex
	var wg sync.WaitGroup
	results := make(map[string]probeResult, len(b.upstreams))
	healthy := true

	for _, up := range b.upstreams {
		wg.Add(1)
		go func(up *upstream) {
			defer wg.Done()
			path := up.descriptor.HealthPath
			if path == "" {
				path = "/"
			}
			err := b.getJSON(ctx, up.descriptor, path, &struct{}{})
			res := probeResult{URL: up.descriptor.URL, OK: err == nil}
			if err != nil {
				res.Error = fmt.Sprintf("probe failed: %v", err)
			}
			mu.Lock()
			for _, gt := range up.groupTypes {
				results[gt] = res
			}
			healthy = healthy && res.OK
			mu.Unlock()
		}(up)
	}
	wg.Wait()
	return results, healthy
}
