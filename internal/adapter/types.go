package adapter

import (
	"context"
	"time"

	"pkghub/internal/index"
)

// Definition is the static identity of one ecosystem adapter: its group
// type, the single well-known group it serves, and its resource type.
type Definition struct {
	// Ecosystem is the short adapter name used in cache keys and logs
	// ("npm", "pypi", "maven", "nuget", "oci", "mcp").
	Ecosystem string

	GroupType     string // plural, e.g. "noderegistries"
	GroupSingular string // e.g. "noderegistry"
	GroupID       string // e.g. "npmjs.org"
	GroupName     string
	GroupDesc     string

	ResourceType     string // plural, e.g. "packages"
	ResourceSingular string // e.g. "package"

	// CatalogDisabled marks adapters whose upstream forbids bulk catalog
	// listing (an OCI registry may disable _catalog); the resources
	// collection then answers not-found.
	CatalogDisabled bool
}

// Package is the ecosystem-neutral projection of one upstream package, image,
// or server. Backends produce it; the server shapes it into xRegistry
// entities against the per-request base URL.
type Package struct {
	// ID is the stable resource id derived per the adapter's id translation
	// rules. Two invocations against the same upstream state yield the same
	// ID.
	ID string

	Name        string
	Description string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Labels      map[string]string

	// Extra carries resource-level ecosystem attributes (license, homepage,
	// authors...) projected onto xRegistry names. All are filterable.
	Extra map[string]interface{}

	// Versions holds every known release, ordered as the upstream reports
	// them.
	Versions []PackageVersion

	// DefaultVersion is the version id the adapter declares default
	// (latest stable, highest semver, or the upstream's own flag).
	DefaultVersion string
}

// PackageVersion is one concrete release of a Package.
type PackageVersion struct {
	ID         string
	CreatedAt  time.Time
	ModifiedAt time.Time

	// Extra carries version-level attributes (license, download URL,
	// dependency list...).
	Extra map[string]interface{}
}

// Backend is the contract each ecosystem implements. The HTTP server, the
// collection engine, and the bridge assume nothing about an adapter beyond
// this interface plus the Definition.
type Backend interface {
	// Definition returns the adapter's static identity.
	Definition() Definition

	// Index returns the adapter's name index.
	Index() *index.Index

	// LoadIndex fetches the upstream bulk catalog for an index build.
	LoadIndex(ctx context.Context) ([]index.Entry, error)

	// Lookup materializes the package for one raw name from the index.
	// Implementations go through the metadata cache and translate upstream
	// failures into the problems taxonomy; a missing package is a not-found
	// problem.
	Lookup(ctx context.Context, name string) (*Package, error)
}
