// Package npm maps the npm public registry onto the noderegistries group
// type. Resource ids are raw npm names; scoped names (@scope/pkg) keep their
// slash and travel url-encoded in paths.
package npm

import (
	"context"
	"net/url"
	"strings"
	"time"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/internal/index"
)

// Config points the backend at an npm-compatible registry.
type Config struct {
	adapter.Upstream

	// RegistryURL is the metadata endpoint, default the public registry.
	RegistryURL string

	// CatalogURL is the bulk name catalog in CouchDB _all_docs shape,
	// default the public replicate endpoint.
	CatalogURL string
}

// Backend implements adapter.Backend for npm.
type Backend struct {
	cfg Config
	idx *index.Index
}

func New(cfg Config) *Backend {
	if cfg.RegistryURL == "" {
		cfg.RegistryURL = "https://registry.npmjs.org"
	}
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = "https://replicate.npmjs.com/_all_docs"
	}
	cfg.RegistryURL = strings.TrimSuffix(cfg.RegistryURL, "/")
	return &Backend{cfg: cfg, idx: index.New()}
}

func (b *Backend) Definition() adapter.Definition {
	return adapter.Definition{
		Ecosystem:        "npm",
		GroupType:        "noderegistries",
		GroupSingular:    "noderegistry",
		GroupID:          "npmjs.org",
		GroupName:        "npm public registry",
		GroupDesc:        "Node.js packages published to the npm public registry",
		ResourceType:     "packages",
		ResourceSingular: "package",
	}
}

func (b *Backend) Index() *index.Index {
	return b.idx
}

// catalogDoc is the CouchDB _all_docs row shape of the replicate endpoint.
type catalogDoc struct {
	Rows []struct {
		ID string `json:"id"`
	} `json:"rows"`
}

func (b *Backend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	var doc catalogDoc
	if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: b.cfg.CatalogURL}, &doc); err != nil {
		return nil, fetch.Problem(err)
	}
	entries := make([]index.Entry, 0, len(doc.Rows))
	for _, row := range doc.Rows {
		if row.ID == "" || strings.HasPrefix(row.ID, "_design/") {
			continue
		}
		entries = append(entries, index.Entry{Normalized: strings.ToLower(row.ID), Raw: row.ID})
	}
	return entries, nil
}

// packageDoc is the registry's package document.
type packageDoc struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	DistTags    map[string]string     `json:"dist-tags"`
	Versions    map[string]versionDoc `json:"versions"`
	Time        map[string]string     `json:"time"`
	License     interface{}           `json:"license"`
	Homepage    string                `json:"homepage"`
	Keywords    []string              `json:"keywords"`
}

type versionDoc struct {
	Version      string            `json:"version"`
	Description  string            `json:"description"`
	License      interface{}       `json:"license"`
	Deprecated   interface{}       `json:"deprecated"`
	Dependencies map[string]string `json:"dependencies"`
	Dist         struct {
		Tarball string `json:"tarball"`
		Shasum  string `json:"shasum"`
	} `json:"dist"`
}

func (b *Backend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	return b.cfg.CachedPackage(ctx, "npm", strings.ToLower(name), func(ctx context.Context) (*adapter.Package, error) {
		var doc packageDoc
		u := b.cfg.RegistryURL + "/" + url.PathEscape(name)
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &doc); err != nil {
			return nil, err
		}
		return b.translate(&doc), nil
	})
}

func (b *Backend) translate(doc *packageDoc) *adapter.Package {
	pkg := &adapter.Package{
		ID:          doc.Name,
		Name:        doc.Name,
		Description: doc.Description,
		CreatedAt:   parseTime(doc.Time["created"]),
		ModifiedAt:  parseTime(doc.Time["modified"]),
		Extra:       map[string]interface{}{},
	}
	if lic := licenseString(doc.License); lic != "" {
		pkg.Extra["license"] = lic
	}
	if doc.Homepage != "" {
		pkg.Extra["homepage"] = doc.Homepage
	}
	if len(doc.Keywords) > 0 {
		pkg.Extra["keywords"] = doc.Keywords
	}

	ids := make([]string, 0, len(doc.Versions))
	for id := range doc.Versions {
		ids = append(ids, id)
	}
	adapter.SortVersionIDs(ids)
	for _, id := range ids {
		v := doc.Versions[id]
		pv := adapter.PackageVersion{
			ID:        id,
			CreatedAt: parseTime(doc.Time[id]),
			Extra:     map[string]interface{}{},
		}
		if lic := licenseString(v.License); lic != "" {
			pv.Extra["license"] = lic
		}
		if v.Dist.Tarball != "" {
			pv.Extra["downloadurl"] = v.Dist.Tarball
		}
		if v.Dist.Shasum != "" {
			pv.Extra["shasum"] = v.Dist.Shasum
		}
		if len(v.Dependencies) > 0 {
			pv.Extra["dependencies"] = v.Dependencies
		}
		if v.Deprecated != nil && v.Deprecated != false {
			pv.Extra["deprecated"] = true
		}
		pkg.Versions = append(pkg.Versions, pv)
	}

	pkg.DefaultVersion = doc.DistTags["latest"]
	if pkg.DefaultVersion == "" {
		pkg.DefaultVersion = adapter.HighestStable(ids)
	}
	return pkg
}

// licenseString copes with the two historical shapes of the license field:
// a bare SPDX string or an object with a "type" member.
func licenseString(v interface{}) string {
	switch l := v.(type) {
	case string:
		return l
	case map[string]interface{}:
		s, _ := l["type"].(string)
		return s
	}
	return ""
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
