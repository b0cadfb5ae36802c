// Package pypi maps the Python Package Index onto the pythonregistries
// group type. Resource ids are PEP 503 normalized project names.
package pypi

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"pkghub/internal/adapter"
	"pkghub/internal/fetch"
	"pkghub/internal/index"
)

// simpleV1JSON is the content type of the PEP 691 simple index.
const simpleV1JSON = "application/vnd.pypi.simple.v1+json"

var normalizeRun = regexp.MustCompile(`[-_.]+`)

// Normalize applies the PEP 503 name normalization: lowercase, runs of
// ".", "-", "_" collapsed to a single "-".
func Normalize(name string) string {
	return strings.ToLower(normalizeRun.ReplaceAllString(name, "-"))
}

// Config points the backend at a PyPI-compatible index.
type Config struct {
	adapter.Upstream

	// BaseURL is the index root, default the public PyPI.
	BaseURL string
}

// Backend implements adapter.Backend for PyPI.
type Backend struct {
	cfg Config
	idx *index.Index
}

func New(cfg Config) *Backend {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://pypi.org"
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Backend{cfg: cfg, idx: index.New()}
}

func (b *Backend) Definition() adapter.Definition {
	return adapter.Definition{
		Ecosystem:        "pypi",
		GroupType:        "pythonregistries",
		GroupSingular:    "pythonregistry",
		GroupID:          "pypi.org",
		GroupName:        "Python Package Index",
		GroupDesc:        "Python distributions published to PyPI",
		ResourceType:     "packages",
		ResourceSingular: "package",
	}
}

func (b *Backend) Index() *index.Index {
	return b.idx
}

// simpleIndex is the PEP 691 JSON shape of GET /simple/.
type simpleIndex struct {
	Projects []struct {
		Name string `json:"name"`
	} `json:"projects"`
}

func (b *Backend) LoadIndex(ctx context.Context) ([]index.Entry, error) {
	var doc simpleIndex
	req := fetch.Request{
		URL:    b.cfg.BaseURL + "/simple/",
		Header: http.Header{"Accept": []string{simpleV1JSON}},
	}
	if err := b.cfg.Fetcher.GetJSON(ctx, req, &doc); err != nil {
		return nil, fetch.Problem(err)
	}
	entries := make([]index.Entry, 0, len(doc.Projects))
	for _, p := range doc.Projects {
		if p.Name == "" {
			continue
		}
		entries = append(entries, index.Entry{Normalized: Normalize(p.Name), Raw: p.Name})
	}
	return entries, nil
}

// projectDoc is the JSON API shape of GET /pypi/<name>/json.
type projectDoc struct {
	Info struct {
		Name           string            `json:"name"`
		Version        string            `json:"version"`
		Summary        string            `json:"summary"`
		License        string            `json:"license"`
		HomePage       string            `json:"home_page"`
		Author         string            `json:"author"`
		RequiresPython string            `json:"requires_python"`
		ProjectURLs    map[string]string `json:"project_urls"`
		Keywords       string            `json:"keywords"`
	} `json:"info"`
	Releases map[string][]releaseFile `json:"releases"`
}

type releaseFile struct {
	URL         string    `json:"url"`
	UploadTime  time.Time `json:"upload_time_iso_8601"`
	PackageType string    `json:"packagetype"`
	Size        int64     `json:"size"`
}

func (b *Backend) Lookup(ctx context.Context, name string) (*adapter.Package, error) {
	id := Normalize(name)
	return b.cfg.CachedPackage(ctx, "pypi", id, func(ctx context.Context) (*adapter.Package, error) {
		var doc projectDoc
		u := b.cfg.BaseURL + "/pypi/" + id + "/json"
		if err := b.cfg.Fetcher.GetJSON(ctx, fetch.Request{URL: u}, &doc); err != nil {
			return nil, err
		}
		return b.translate(id, &doc), nil
	})
}

func (b *Backend) translate(id string, doc *projectDoc) *adapter.Package {
	pkg := &adapter.Package{
		ID:          id,
		Name:        doc.Info.Name,
		Description: doc.Info.Summary,
		Extra:       map[string]interface{}{},
	}
	if doc.Info.License != "" {
		pkg.Extra["license"] = doc.Info.License
	}
	if doc.Info.HomePage != "" {
		pkg.Extra["homepage"] = doc.Info.HomePage
	}
	if doc.Info.Author != "" {
		pkg.Extra["author"] = doc.Info.Author
	}
	if doc.Info.RequiresPython != "" {
		pkg.Extra["requirespython"] = doc.Info.RequiresPython
	}

	ids := make([]string, 0, len(doc.Releases))
	for v := range doc.Releases {
		ids = append(ids, v)
	}
	adapter.SortVersionIDs(ids)
	for _, v := range ids {
		files := doc.Releases[v]
		pv := adapter.PackageVersion{ID: v, Extra: map[string]interface{}{}}
		for _, f := range files {
			if pv.CreatedAt.IsZero() || (!f.UploadTime.IsZero() && f.UploadTime.Before(pv.CreatedAt)) {
				pv.CreatedAt = f.UploadTime
			}
			// The sdist (or failing that, the first file) supplies the
			// download URL.
			if f.PackageType == "sdist" || pv.Extra["downloadurl"] == nil {
				pv.Extra["downloadurl"] = f.URL
			}
		}
		pkg.Versions = append(pkg.Versions, pv)

		// Project timestamps follow the first and last uploads.
		if !pv.CreatedAt.IsZero() {
			if pkg.CreatedAt.IsZero() || pv.CreatedAt.Before(pkg.CreatedAt) {
				pkg.CreatedAt = pv.CreatedAt
			}
			if pv.CreatedAt.After(pkg.ModifiedAt) {
				pkg.ModifiedAt = pv.CreatedAt
			}
		}
	}

	pkg.DefaultVersion = doc.Info.Version
	if pkg.DefaultVersion == "" {
		pkg.DefaultVersion = adapter.HighestStable(ids)
	}
	return pkg
}
