// Package oci maps an OCI distribution v2 registry onto the
// containerregistries group type. Resource ids are full repository paths
// ("library/nginx"), url-encoded when they travel in request paths.
package oci

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/internal/index"
	"pkghub/pkg/logging"
)

// Config points the backend at one distribution v2 registry.
type Config struct {
	adapter.Upstream

	// RegistryURL is the registry root (https://registry.example).
	RegistryURL string

	// HostID overrides the group id; default is the registry host.
	HostID string

	// CatalogDisabled marks registries that refuse /v2/_catalog; the
	// resources collection then answers not-found while direct lookups
	// keep working.
	CatalogDisabled bool

	// CatalogPageSize tunes the _catalog pagination, default 1000.
	CatalogPageSize int
}

// Backend implements adapter.Backend for an OCI registry.
type Backend struct {
	cfg Config
	def adapter.Definition
	idx *index.Index
}

func New(cfg Config) (*Backend, error) {
	if cfg.RegistryURL == "" {
		return nil, fmt.Errorf("oci: RegistryURL is required")
	}
	cfg.RegistryURL = strings.TrimSuffix(cfg.RegistryURL, "/")
	if cfg.CatalogPageSize <= 0 {
		cfg.CatalogPageSize = 1000
	}
	host := cfg.HostID
	if host == "" {
		u, err := url.Parse(cfg.RegistryURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("oci: cannot derive host id from %q", cfg.RegistryURL)
		}
		host = u.Hostname()
	}
	def := adapter.Definition{
		Ecosystem:        "oci",
		GroupType:        "containerregistries",
		GroupSingular:    "containerregistry",
		GroupID:          host,
		GroupName:        host,
		GroupDesc:        "Container images served by " + host,
		ResourceType:     "images",
		ResourceSingular: "image",
		CatalogDisabled:  cfg.CatalogDisabled,
	}
	return &Backend{cfg: cfg, def: def, idx: index.New()}, nil
}

func (b *Backend) Definition() adapter.Definition {
	return b.def
}

func (b *Backend) Index() *index.Index {
	return b.idx
}

type catalogPage struct {
	Repositories []string `json:"repositories"`
}

// LoadIndex walks /v2/_catalog with the "last" cursor. Registries that
// disable the catalog yield an empty index; direct lookups stay available.
func (b *Backend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	if b.cfg.CatalogDisabled {
		return nil, nil
	}
	var entries []index.Entry
	last := ""
	for {
		u := fmt.Sprintf("%s/v2/_catalog?n=%d", b.cfg.RegistryURL, b.cfg.CatalogPageSize)
		if last != "" {
			u += "&last=" + url.QueryEscape(last)
		}
		var page catalogPage
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &page); err != nil {
			if fetch.IsUpstreamNotFound(err) {
				logging.Warn("Adapter-oci", "registry %s does not expose _catalog; serving an empty index", b.def.GroupID)
				return nil, nil
			}
			return nil, fetch.Problem(err)
		}
		for _, repo := range page.Repositories {
			if repo == "" {
				continue
			}
			entries = append(entries, index.Entry{Normalized: strings.ToLower(repo), Raw: repo})
		}
		if len(page.Repositories) < b.cfg.CatalogPageSize {
			return entries, nil
		}
		last = page.Repositories[len(page.Repositories)-1]
	}
}

type tagList struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// Lookup lists the repository's tags. The distribution API reports no
// timestamps without a per-tag manifest walk, so versions carry ids only.
func (b *Backend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	repo := strings.ToLower(strings.Trim(name, "/"))
	return b.cfg.CachedPackage(ctx, "oci", repo, func(ctx context.Context) (*adapter.Package, error) {
		var tags tagList
		u := b.cfg.RegistryURL + "/v2/" + repo + "/tags/list"
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &tags); err != nil {
			return nil, err
		}
		return b.translate(repo, &tags), nil
	})
}

func (b *Backend) translate(repo string, tags *tagList) *adapter.Package {
	pkg := &adapter.Package{
		ID:   repo,
		Name: repo,
		Extra: map[string]interface{}{
			"registry":   b.def.GroupID,
			"repository": repo,
		},
	}

	sorted := append([]string(nil), tags.Tags...)
	adapter.SortVersionIDs(sorted)
	hasLatest := false
	for _, tag := range sorted {
		if tag == "latest" {
			hasLatest = true
		}
		pkg.Versions = append(pkg.Versions, adapter.PackageVersion{
			ID: tag,
			Extra: map[string]interface{}{
				"reference": b.def.GroupID + "/" + repo + ":" + tag,
			},
		})
	}

	// "latest" wins the default when present; otherwise the highest
	// version-shaped tag (semver parsing tolerates a leading "v").
	if hasLatest {
		pkg.DefaultVersion = "latest"
	} else {
		pkg.DefaultVersion = adapter.HighestStable(sorted)
	}
	return pkg
}
