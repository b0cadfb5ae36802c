// Package maven maps Maven Central onto the javaregistries group type.
// Resource ids are "groupId/artifactId"; clients url-encode the slash in
// paths. Metadata comes from the Central search API, artifacts from the
// repository itself.
package maven

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/internal/index"
	"pkghub/pkg/problems"
)

// Config points the backend at a Central-compatible search API.
type Config struct {
	adapter.Upstream

	// SearchURL is the solr search endpoint, default Maven Central's.
	SearchURL string

	// RepoURL is the artifact repository root used for download URLs.
	RepoURL string

	// CatalogRows caps how many coordinates one index refresh pulls from
	// the search API, which cannot enumerate all of Central.
	CatalogRows int
}

// Backend implements adapter.Backend for Maven Central.
type Backend struct {
	cfg Config
	idx *index.Index
}

func New(cfg Config) *Backend {
	if cfg.SearchURL == "" {
		cfg.SearchURL = "https://search.maven.org/solrsearch/select"
	}
	if cfg.RepoURL == "" {
		cfg.RepoURL = "https://repo1.maven.org/maven2"
	}
	if cfg.CatalogRows <= 0 {
		cfg.CatalogRows = 5000
	}
	cfg.RepoURL = strings.TrimSuffix(cfg.RepoURL, "/")
	return &Backend{cfg: cfg, idx: index.New()}
}

func (b *Backend) Definition() adapter.Definition {
	return adapter.Definition{
		Ecosystem:        "maven",
		GroupType:        "javaregistries",
		GroupSingular:    "javaregistry",
		GroupID:          "maven-central",
		GroupName:        "Maven Central",
		GroupDesc:        "Java artifacts published to Maven Central",
		ResourceType:     "packages",
		ResourceSingular: "package",
	}
}

func (b *Backend) Index() *index.Index {
	return b.idx
}

// searchResponse is the solr JSON envelope.
type searchResponse struct {
	Response struct {
		NumFound int         `json:"numFound"`
		Docs     []searchDoc `json:"docs"`
	} `json:"response"`
}

type searchDoc struct {
	ID            string `json:"id"`
	Group         string `json:"g"`
	Artifact      string `json:"a"`
	Version       string `json:"v"`
	LatestVersion string `json:"latestVersion"`
	Packaging     string `json:"p"`
	Timestamp     int64  `json:"timestamp"`
}

func (b *Backend) search(ctx context.Context, query url.Values, out *searchResponse) error {
	return b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: b.cfg.SearchURL + "?" + query.Encode()}, out)
}

// LoadIndex walks the artifact search in pages of 200 until the configured
// row cap. Central's search API cannot stream the full catalog, so the index
// covers the most relevant slice the API yields.
func (b *Backend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	const pageSize = 200
	var entries []index.Entry
	for start := 0; start < b.cfg.CatalogRows; start += pageSize {
		var resp searchResponse
		q := url.Values{}
		q.Set("q", "*:*")
		q.Set("wt", "json")
		q.Set("rows", fmt.Sprint(pageSize))
		q.Set("start", fmt.Sprint(start))
		if err := b.search(ctx, q, &resp); err != nil {
			return nil, fetch.Problem(err)
		}
		for _, d := range resp.Response.Docs {
			if d.Group == "" || d.Artifact == "" {
				continue
			}
			id := d.Group + "/" + d.Artifact
			entries = append(entries, index.Entry{Normalized: strings.ToLower(id), Raw: id})
		}
		if start+pageSize >= resp.Response.NumFound {
			break
		}
	}
	return entries, nil
}

// Lookup resolves "groupId/artifactId" (or the "groupId:artifactId" spelling)
// through the gav search core, which lists every version newest-first.
func (b *Backend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	id := strings.ToLower(strings.Replace(name, ":", "/", 1))
	return b.cfg.CachedPackage(ctx, "maven", id, func(ctx context.Context) (*adapter.Package, error) {
		group, artifact, ok := strings.Cut(id, "/")
		if !ok {
			return nil, problems.NotFound("%q is not a groupId/artifactId coordinate", name)
		}

		var resp searchResponse
		q := url.Values{}
		q.Set("q", fmt.Sprintf("g:%q AND a:%q", group, artifact))
		q.Set("core", "gav")
		q.Set("wt", "json")
		q.Set("rows", "200")
		if err := b.search(ctx, q, &resp); err != nil {
			return nil, err
		}
		if len(resp.Response.Docs) == 0 {
			return nil, problems.NotFound("no artifact %s:%s on %s", group, artifact, b.Definition().GroupID)
		}
		return b.translate(group, artifact, resp.Response.Docs), nil
	})
}

func (b *Backend) translate(group, artifact string, docs []searchDoc) *adapter.Package {
	pkg := &adapter.Package{
		ID:   group + "/" + artifact,
		Name: group + ":" + artifact,
		Extra: map[string]interface{}{
			"groupid":    group,
			"artifactid": artifact,
		},
	}

	ids := make([]string, 0, len(docs))
	for i := len(docs) - 1; i >= 0; i-- { // oldest first
		d := docs[i]
		ts := time.UnixMilli(d.Timestamp).UTC()
		pv := adapter.PackageVersion{
			ID:        d.Version,
			CreatedAt: ts,
			Extra: map[string]interface{}{
				"downloadurl": b.artifactURL(group, artifact, d.Version, d.Packaging),
			},
		}
		if d.Packaging != "" {
			pv.Extra["packaging"] = d.Packaging
		}
		pkg.Versions = append(pkg.Versions, pv)
		ids = append(ids, d.Version)

		if pkg.CreatedAt.IsZero() || ts.Before(pkg.CreatedAt) {
			pkg.CreatedAt = ts
		}
		if ts.After(pkg.ModifiedAt) {
			pkg.ModifiedAt = ts
		}
	}

	pkg.DefaultVersion = adapter.HighestStable(ids)
	return pkg
}

func (b *Backend) artifactURL(group, artifact, version, packaging string) string {
	ext := packaging
	switch ext {
	case "", "bundle", "maven-plugin":
		ext = "jar"
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s-%s.%s",
		b.cfg.RepoURL, strings.ReplaceAll(group, ".", "/"), artifact, version, artifact, version, ext)
}
