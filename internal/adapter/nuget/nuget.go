// Package nuget maps the NuGet v3 API onto the dotnetregistries group type.
// Resource ids preserve the publisher's casing; matching is case-insensitive
// through the normalized index.
package nuget

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/internal/index"
	"pkghub/pkg/problems"
)

// Config points the backend at a NuGet v3 service.
type Config struct {
	adapter.Upstream

	// RegistrationURL is the registration hive root, default nuget.org's
	// semver1 hive.
	RegistrationURL string

	// SearchURL is the search service used for the name catalog.
	SearchURL string

	// CatalogRows caps how many package ids one index refresh pulls.
	CatalogRows int
}

// Backend implements adapter.Backend for NuGet.
type Backend struct {
	cfg Config
	idx *index.Index
}

func New(cfg Config) *Backend {
	if cfg.RegistrationURL == "" {
		cfg.RegistrationURL = "https://api.nuget.org/v3/registration5-semver1"
	}
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://azuresearch-usnc.nuget.org/query"
	}
	if cfg.CatalogRows <= 0 {
		cfg.CatalogRows = 10000
	}
	cfg.RegistrationURL = strings.TrimSuffix(cfg.RegistrationURL, "/")
	return &Backend{cfg: cfg, idx: index.New()}
}

func (b *Backend) Definition() adapter.Definition {
	return adapter.Definition{
		Ecosystem:        "nuget",
		GroupType:        "dotnetregistries",
		GroupSingular:    "dotnetregistry",
		GroupID:          "nuget.org",
		GroupName:        "NuGet Gallery",
		GroupDesc:        ".NET packages published to nuget.org",
		ResourceType:     "packages",
		ResourceSingular: "package",
	}
}

func (b *Backend) Index() *index.Index {
	return b.idx
}

// searchPage is the subset of the search service response the catalog needs.
type searchPage struct {
	TotalHits int `json:"totalHits"`
	Data      []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (b *Backend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	const pageSize = 1000
	var entries []index.Entry
	for skip := 0; skip < b.cfg.CatalogRows; skip += pageSize {
		var page searchPage
		u := fmt.Sprintf("%s?q=&skip=%d&take=%d", b.cfg.SearchURL, skip, pageSize)
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &page); err != nil {
			return nil, fetch.Problem(err)
		}
		for _, d := range page.Data {
			if d.ID == "" {
				continue
			}
			entries = append(entries, index.Entry{Normalized: strings.ToLower(d.ID), Raw: d.ID})
		}
		if skip+pageSize >= page.TotalHits {
			break
		}
	}
	return entries, nil
}

// registrationIndex is the registration hive index: pages of catalog entries,
// inlined when small enough.
type registrationIndex struct {
	Items []registrationPage `json:"items"`
}

type registrationPage struct {
	PageURL string             `json:"@id"`
	Items   []registrationLeaf `json:"items"`
}

type registrationLeaf struct {
	CatalogEntry catalogEntry `json:"catalogEntry"`
}

type catalogEntry struct {
	ID                string    `json:"id"`
	Version           string    `json:"version"`
	Description       string    `json:"description"`
	Authors           string    `json:"authors"`
	LicenseExpression string    `json:"licenseExpression"`
	ProjectURL        string    `json:"projectUrl"`
	Published         time.Time `json:"published"`
	PackageContent    string    `json:"packageContent"`
	Listed            *bool     `json:"listed"`
}

func (b *Backend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	lower := strings.ToLower(name)
	return b.cfg.CachedPackage(ctx, "nuget", lower, func(ctx context.Context) (*adapter.Package, error) {
		var idx registrationIndex
		u := b.cfg.RegistrationURL + "/" + lower + "/index.json"
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &idx); err != nil {
			return nil, err
		}

		var leaves []registrationLeaf
		for _, page := range idx.Items {
			if page.Items != nil {
				leaves = append(leaves, page.Items...)
				continue
			}
			// Large hives externalize pages; fetch the ones we need.
			var full registrationPage
			if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: page.PageURL}, &full); err != nil {
				return nil, err
			}
			leaves = append(leaves, full.Items...)
		}
		if len(leaves) == 0 {
			return nil, problems.NotFound("no package %q on %s", name, b.Definition().GroupID)
		}
		pkg, err := b.translate(leaves)
		if err != nil {
			return nil, problems.NotFound("no listed versions of %q on %s", name, b.Definition().GroupID)
		}
		return pkg, nil
	})
}

func (b *Backend) translate(leaves []registrationLeaf) (*adapter.Package, error) {
	pkg := &adapter.Package{Extra: map[string]interface{}{}}

	ids := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		e := leaf.CatalogEntry
		if e.Listed != nil && !*e.Listed {
			continue
		}
		// The hive preserves the publisher's casing; the id is stable
		// across versions.
		pkg.ID = e.ID
		pkg.Name = e.ID
		if e.Description != "" {
			pkg.Description = e.Description
		}
		if e.LicenseExpression != "" {
			pkg.Extra["license"] = e.LicenseExpression
		}
		if e.ProjectURL != "" {
			pkg.Extra["homepage"] = e.ProjectURL
		}
		if e.Authors != "" {
			pkg.Extra["authors"] = e.Authors
		}

		pv := adapter.PackageVersion{
			ID:        e.Version,
			CreatedAt: e.Published.UTC(),
			Extra:     map[string]interface{}{},
		}
		if e.PackageContent != "" {
			pv.Extra["downloadurl"] = e.PackageContent
		}
		pkg.Versions = append(pkg.Versions, pv)
		ids = append(ids, e.Version)

		ts := e.Published.UTC()
		if pkg.CreatedAt.IsZero() || ts.Before(pkg.CreatedAt) {
			pkg.CreatedAt = ts
		}
		if ts.After(pkg.ModifiedAt) {
			pkg.ModifiedAt = ts
		}
	}

	if pkg.ID == "" {
		return nil, problems.NotFound("every version is unlisted")
	}
	pkg.DefaultVersion = adapter.HighestStable(ids)
	return pkg, nil
}
