// Package mcp maps an MCP registry onto the mcpproviders group type.
// Upstream server names ("io.github.owner/repo") are sanitized into resource
// ids; the index maps the sanitized form back to the upstream spelling.
package mcp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	v0 "github.com/modelcontextprotocol/registry/pkg/api/v0"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/internal/index"
	"pkghub/pkg/problems"
)

// Sanitize derives the stable resource id from an upstream server name:
// lowercase, slashes become underscores, anything outside the id character
// set becomes a dash.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '/':
			b.WriteByte('_')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '~', r == ':', r == '@', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Config points the backend at an MCP registry.
type Config struct {
	adapter.Upstream

	// RegistryURL is the registry root, default the official registry.
	RegistryURL string

	// ProviderID is the group id, default "modelcontextprotocol.io".
	ProviderID string

	// PageLimit tunes the server-list pagination, default 100.
	PageLimit int
}

// Backend implements adapter.Backend for an MCP registry.
type Backend struct {
	cfg Config
	def adapter.Definition
	idx *index.Index
}

func New(cfg Config) *Backend {
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = "https://registry.modelcontextprotocol.io"
	}
	if cfg.ProviderID == "" {
		cfg.ProviderID = "modelcontextprotocol.io"
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 100
	}
	cfg.RegistryURL = strings.TrimSuffix(cfg.RegistryURL, "/")
	def := adapter.Definition{
		Ecosystem:        "mcp",
		GroupType:        "mcpproviders",
		GroupSingular:    "mcpprovider",
		GroupID:          cfg.ProviderID,
		GroupName:        cfg.ProviderID,
		GroupDesc:        "MCP servers published to " + cfg.ProviderID,
		ResourceType:     "servers",
		ResourceSingular: "server",
	}
	return &Backend{cfg: cfg, def: def, idx: index.New()}
}

func (b *Backend) Definition() adapter.Definition {
	return b.def
}

func (b *Backend) Index() *index.Index {
	return b.idx
}

// listResponse mirrors the registry's list envelope without pinning its
// wrapper types; only the fields the catalog walk needs are decoded.
type listResponse struct {
	Servers  []v0.ServerJSON `json:"servers"`
	Metadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"metadata"`
}

// LoadIndex walks GET /v0/servers with cursor pagination.
func (b *Backend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	var entries []index.Entry
	cursor := ""
	for {
		u := fmt.Sprintf("%s/v0/servers?limit=%d", b.cfg.RegistryURL, b.cfg.PageLimit)
		if cursor != "" {
			u += "&cursor=" + url.QueryEscape(cursor)
		}
		var page listResponse
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &page); err != nil {
			return nil, fetch.Problem(err)
		}
		for _, s := range page.Servers {
			if s.Name == "" {
				continue
			}
			entries = append(entries, index.Entry{Normalized: Sanitize(s.Name), Raw: s.Name})
		}
		if page.Metadata.NextCursor == "" {
			return entries, nil
		}
		cursor = page.Metadata.NextCursor
	}
}

// Lookup accepts either the upstream server name or the sanitized resource
// id; ids are mapped back to the upstream spelling through the index.
func (b *Backend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	raw := name
	if !strings.Contains(name, "/") {
		if e, ok := b.idx.Snapshot().Lookup(Sanitize(name)); ok {
			raw = e.Raw
		}
	}
	id := Sanitize(raw)
	return b.cfg.CachedPackage(ctx, "mcp", id, func(ctx context.Context) (*adapter.Package, error) {
		var page listResponse
		u := b.cfg.RegistryURL + "/v0/servers/" + url.PathEscape(raw) + "/versions"
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &page); err != nil {
			return nil, err
		}
		if len(page.Servers) == 0 {
			return nil, problems.NotFound("no MCP server %q on %s", raw, b.def.GroupID)
		}
		return b.translate(id, page.Servers), nil
	})
}

func (b *Backend) translate(id string, versions []v0.ServerJSON) *adapter.Package {
	pkg := &adapter.Package{
		ID:    id,
		Name:  versions[0].Name,
		Extra: map[string]interface{}{"servername": versions[0].Name},
	}

	ids := make([]string, 0, len(versions))
	for _, s := range versions {
		if s.Version == "" {
			continue
		}
		pv := adapter.PackageVersion{ID: s.Version, Extra: map[string]interface{}{}}
		if s.Description != "" {
			pv.Extra["description"] = s.Description
		}
		if official := officialMeta(s); official != nil {
			pv.CreatedAt = official.PublishedAt.UTC()
			pv.ModifiedAt = official.UpdatedAt.UTC()
			if official.IsLatest {
				pkg.DefaultVersion = s.Version
				pkg.Description = s.Description
			}
		}
		pkg.Versions = append(pkg.Versions, pv)
		ids = append(ids, s.Version)

		if !pv.CreatedAt.IsZero() {
			if pkg.CreatedAt.IsZero() || pv.CreatedAt.Before(pkg.CreatedAt) {
				pkg.CreatedAt = pv.CreatedAt
			}
			if pv.CreatedAt.After(pkg.ModifiedAt) {
				pkg.ModifiedAt = pv.CreatedAt
			}
		}
	}

	if pkg.Description == "" {
		pkg.Description = versions[0].Description
	}
	if pkg.DefaultVersion == "" {
		pkg.DefaultVersion = adapter.HighestStable(ids)
	}
	return pkg
}

func officialMeta(s v0.ServerJSON) *v0.RegistryExtensions {
	if s.Meta == nil || s.Meta.Official == nil {
		return nil
	}
	return s.Meta.Official
}
