package adapter

import (
	"time"

	"pkghub/pkg/xregistry"
)

// Version returns the version with the given id.
func (p *Package) Version(id string) (PackageVersion, bool) {
	for _, v := range p.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return PackageVersion{}, false
}

func groupXID(def Definition) string {
	return "/" + def.GroupType + "/" + def.GroupID
}

// registryEntity shapes the adapter's registry root against a request base
// URL. started pins createdat/modifiedat so repeated reads agree.
func registryEntity(def Definition, baseURL string, started time.Time) (xregistry.Entity, error) {
	e, err := xregistry.NewRegistry(xregistry.Config{
		ID:          def.Ecosystem,
		BaseURL:     baseURL,
		Name:        def.GroupName,
		Description: def.GroupDesc,
		CreatedAt:   started,
	})
	if err != nil {
		return nil, err
	}
	xregistry.SetRootCollection(e, def.GroupType, baseURL, 1)
	return e, nil
}

// groupEntity shapes the adapter's single well-known group.
func groupEntity(def Definition, baseURL string, started time.Time, resourceCount int) (xregistry.Entity, error) {
	e, err := xregistry.NewGroup(xregistry.Config{
		ID:          def.GroupID,
		ParentXID:   "/",
		Plural:      def.GroupType,
		Singular:    def.GroupSingular,
		BaseURL:     baseURL,
		Name:        def.GroupName,
		Description: def.GroupDesc,
		CreatedAt:   started,
	})
	if err != nil {
		return nil, err
	}
	xregistry.SetCollection(e, def.ResourceType, baseURL, resourceCount)
	return e, nil
}

// resourceEntity shapes one package as a resource entity. The default
// version's attributes are projected onto the resource, resource-level
// attributes winning on collision.
func resourceEntity(def Definition, baseURL string, pkg *Package) (xregistry.Entity, error) {
	e, err := xregistry.NewResource(xregistry.Config{
		ID:          pkg.ID,
		ParentXID:   groupXID(def),
		Plural:      def.ResourceType,
		Singular:    def.ResourceSingular,
		BaseURL:     baseURL,
		Name:        pkg.Name,
		Description: pkg.Description,
		Labels:      pkg.Labels,
		CreatedAt:   pkg.CreatedAt,
		ModifiedAt:  pkg.ModifiedAt,
	})
	if err != nil {
		return nil, err
	}
	mergeExtra(e, pkg.Extra)
	if dv, ok := pkg.Version(pkg.DefaultVersion); ok {
		e["versionid"] = dv.ID
		e["isdefault"] = true
		mergeExtra(e, dv.Extra)
	}
	e["metaurl"] = xregistry.SelfURL(baseURL, e.XID()+"/meta")
	xregistry.SetCollection(e, "versions", baseURL, len(pkg.Versions))
	return e, nil
}

// versionEntity shapes one release of a package.
func versionEntity(def Definition, baseURL string, pkg *Package, v PackageVersion) (xregistry.Entity, error) {
	e, err := xregistry.NewVersion(xregistry.Config{
		ID:         v.ID,
		ParentXID:  groupXID(def) + "/" + def.ResourceType + "/" + pkg.ID,
		Singular:   def.ResourceSingular,
		BaseURL:    baseURL,
		CreatedAt:  v.CreatedAt,
		ModifiedAt: v.ModifiedAt,
	}, v.ID == pkg.DefaultVersion)
	if err != nil {
		return nil, err
	}
	mergeExtra(e, v.Extra)
	return e, nil
}

// versionEntities shapes every release of a package. Releases whose upstream
// version string cannot form a valid id are dropped rather than failing the
// whole collection.
func versionEntities(def Definition, baseURL string, pkg *Package) []xregistry.Entity {
	out := make([]xregistry.Entity, 0, len(pkg.Versions))
	for _, v := range pkg.Versions {
		e, err := versionEntity(def, baseURL, pkg, v)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

// metaEntity shapes a package's meta entity, including the default version
// pointer when one exists.
func metaEntity(def Definition, baseURL string, pkg *Package) (xregistry.Entity, error) {
	resourceXID := groupXID(def) + "/" + def.ResourceType + "/" + pkg.ID
	return xregistry.NewMeta(resourceXID, baseURL, pkg.DefaultVersion, xregistry.Config{
		CreatedAt:  pkg.CreatedAt,
		ModifiedAt: pkg.ModifiedAt,
	})
}

// mergeExtra copies ecosystem attributes onto an entity without clobbering
// the xRegistry core attributes already present.
func mergeExtra(e xregistry.Entity, extra map[string]interface{}) {
	for k, v := range extra {
		if _, ok := e[k]; ok {
			continue
		}
		e[k] = v
	}
}
