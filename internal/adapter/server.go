package adapter

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"pkghub/internal/engine"
	"pkghub/internal/httpapi"
	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

// ServerConfig configures the HTTP surface wrapped around a backend.
type ServerConfig struct {
	Backend Backend

	// APIKey guards the surface when non-empty. The bridge presents it as a
	// Bearer token.
	APIKey string

	// Engine overrides the collection engine tuning; the zero value means
	// defaults with the mandatory name constraint enabled.
	Engine engine.Opts
}

// Server serves the read-only xRegistry contract for one ecosystem backend:
// the registry root, /model, /capabilities, and the group/resource/version
// tree. Every adapter process mounts exactly this surface.
type Server struct {
	backend Backend
	def     Definition
	opts    engine.Opts
	started time.Time
	router  *gin.Engine
}

// NewServer wires the contract routes for the backend onto a fresh router.
func NewServer(cfg ServerConfig) *Server {
	def := cfg.Backend.Definition()
	opts := cfg.Engine
	if opts == (engine.Opts{}) {
		opts = engine.DefaultOpts()
		opts.RequireNameFilter = true
	}

	s := &Server{
		backend: cfg.Backend,
		def:     def,
		opts:    opts,
		started: time.Now().UTC(),
	}

	r := httpapi.NewRouter("Adapter-" + def.Ecosystem)
	// Ids may contain url-encoded slashes (Maven coordinates, OCI
	// repository paths); route on the raw path so %2F stays inside one
	// segment and decodes inside the param.
	r.UseRawPath = true
	s.register(r, cfg.APIKey)
	s.router = r
	return s
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Definition returns the backend's static identity.
func (s *Server) Definition() Definition {
	return s.def
}

func (s *Server) register(r *gin.Engine, apiKey string) {
	g := r.Group("/", httpapi.GETOnly(), httpapi.RequireAPIKey(apiKey))

	g.GET("", s.handleRegistry)
	g.GET("/model", s.handleModel)
	g.GET("/capabilities", s.handleCapabilities)

	gt := "/" + s.def.GroupType
	g.GET(gt, s.handleGroups)
	g.GET(gt+"/:gid", s.handleGroup)

	rt := gt + "/:gid/" + s.def.ResourceType
	g.GET(rt, s.handleResources)
	g.GET(rt+"/:rid", s.handleResource)
	g.GET(rt+"/:rid/meta", s.handleMeta)
	g.GET(rt+"/:rid/versions", s.handleVersions)
	g.GET(rt+"/:rid/versions/:vid", s.handleVersion)
}

func (s *Server) handleRegistry(c *gin.Context) {
	base := httpapi.BaseURL(c.Request)
	e, err := registryEntity(s.def, base, s.started)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}

	flags := httpapi.Flags(c)
	e, err = engine.Expand(c.Request.Context(), e, flags.Inline, map[string]engine.CollectionLoader{
		s.def.GroupType: s.groupCollectionLoader(base),
	})
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	httpapi.WriteEntity(c, e)
}

func (s *Server) handleModel(c *gin.Context) {
	c.JSON(http.StatusOK, ModelFor(s.def))
}

func (s *Server) handleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, CapabilitiesFor(s.def))
}

func (s *Server) handleGroups(c *gin.Context) {
	base := httpapi.BaseURL(c.Request)
	e, err := groupEntity(s.def, base, s.started, s.backend.Index().Len())
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	httpapi.WriteCollection(c, engine.Apply([]xregistry.Entity{e}, httpapi.Flags(c), s.groupOpts(), s.linkURL(c, base)))
}

func (s *Server) handleGroup(c *gin.Context) {
	if c.Param("gid") != s.def.GroupID {
		httpapi.Abort(c, problems.NotFound("no %s with id %q", s.def.GroupSingular, c.Param("gid")))
		return
	}
	base := httpapi.BaseURL(c.Request)
	e, err := groupEntity(s.def, base, s.started, s.backend.Index().Len())
	if err != nil {
		httpapi.Abort(c, err)
		return
	}

	flags := httpapi.Flags(c)
	e, err = engine.Expand(c.Request.Context(), e, flags.Inline, map[string]engine.CollectionLoader{
		s.def.ResourceType: s.resourceCollectionLoader(base),
	})
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	httpapi.WriteEntity(c, e)
}

func (s *Server) handleResources(c *gin.Context) {
	if c.Param("gid") != s.def.GroupID {
		httpapi.Abort(c, problems.NotFound("no %s with id %q", s.def.GroupSingular, c.Param("gid")))
		return
	}
	if s.def.CatalogDisabled {
		httpapi.Abort(c, problems.NotFound("the %s upstream does not expose a catalog; address %s directly by id",
			s.def.Ecosystem, s.def.ResourceType))
		return
	}

	base := httpapi.BaseURL(c.Request)
	flags := httpapi.Flags(c)
	res, err := engine.ApplyIndexed(c.Request.Context(), s.backend.Index(), s.entityLoader(base), flags, s.opts, s.linkURL(c, base))
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	if flags.Inline.Active() {
		for i, e := range res.Page {
			expanded, err := engine.Expand(c.Request.Context(), e, flags.Inline, s.resourceLoaders(base, e))
			if err != nil {
				httpapi.Abort(c, err)
				return
			}
			res.Page[i] = expanded
		}
	}
	httpapi.WriteCollection(c, res)
}

func (s *Server) handleResource(c *gin.Context) {
	pkg, ok := s.lookup(c)
	if !ok {
		return
	}
	base := httpapi.BaseURL(c.Request)
	e, err := resourceEntity(s.def, base, pkg)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}

	flags := httpapi.Flags(c)
	e, err = engine.Expand(c.Request.Context(), e, flags.Inline, s.packageLoaders(base, pkg))
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	httpapi.WriteEntity(c, e)
}

func (s *Server) handleMeta(c *gin.Context) {
	pkg, ok := s.lookup(c)
	if !ok {
		return
	}
	e, err := metaEntity(s.def, httpapi.BaseURL(c.Request), pkg)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	httpapi.WriteEntity(c, e)
}

func (s *Server) handleVersions(c *gin.Context) {
	pkg, ok := s.lookup(c)
	if !ok {
		return
	}
	base := httpapi.BaseURL(c.Request)
	items := versionEntities(s.def, base, pkg)
	httpapi.WriteCollection(c, engine.Apply(items, httpapi.Flags(c), s.groupOpts(), s.linkURL(c, base)))
}

func (s *Server) handleVersion(c *gin.Context) {
	pkg, ok := s.lookup(c)
	if !ok {
		return
	}
	vid := c.Param("vid")
	v, ok := pkg.Version(vid)
	if !ok {
		httpapi.Abort(c, problems.NotFound("%s %q has no version %q", s.def.ResourceSingular, pkg.ID, vid))
		return
	}
	e, err := versionEntity(s.def, httpapi.BaseURL(c.Request), pkg, v)
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	httpapi.WriteEntity(c, e)
}

// lookup resolves the :rid path param through the backend, aborting the
// request on failure.
func (s *Server) lookup(c *gin.Context) (*Package, bool) {
	if c.Param("gid") != s.def.GroupID {
		httpapi.Abort(c, problems.NotFound("no %s with id %q", s.def.GroupSingular, c.Param("gid")))
		return nil, false
	}
	pkg, err := s.backend.Lookup(c.Request.Context(), c.Param("rid"))
	if err != nil {
		httpapi.Abort(c, err)
		return nil, false
	}
	return pkg, true
}

// entityLoader adapts Backend.Lookup into the engine's attribute-phase
// loader.
func (s *Server) entityLoader(base string) engine.EntityLoader {
	return func(ctx context.Context, name string) (xregistry.Entity, error) {
		pkg, err := s.backend.Lookup(ctx, name)
		if err != nil {
			return nil, err
		}
		return resourceEntity(s.def, base, pkg)
	}
}

// groupCollectionLoader inlines the adapter's single group on the registry
// root.
func (s *Server) groupCollectionLoader(base string) engine.CollectionLoader {
	return func(ctx context.Context) (map[string]xregistry.Entity, error) {
		e, err := groupEntity(s.def, base, s.started, s.backend.Index().Len())
		if err != nil {
			return nil, err
		}
		return map[string]xregistry.Entity{s.def.GroupID: e}, nil
	}
}

// resourceCollectionLoader inlines the first page of the resources
// collection on the group; inlining never walks the full catalog.
func (s *Server) resourceCollectionLoader(base string) engine.CollectionLoader {
	return func(ctx context.Context) (map[string]xregistry.Entity, error) {
		if s.def.CatalogDisabled {
			return map[string]xregistry.Entity{}, nil
		}
		out := make(map[string]xregistry.Entity)
		for _, entry := range s.backend.Index().Snapshot().Range(0, s.opts.DefaultLimit) {
			pkg, err := s.backend.Lookup(ctx, entry.Raw)
			if err != nil {
				if problems.IsKind(err, problems.KindNotFound) {
					continue
				}
				return nil, err
			}
			e, err := resourceEntity(s.def, base, pkg)
			if err != nil {
				return nil, err
			}
			out[pkg.ID] = e
		}
		return out, nil
	}
}

// resourceLoaders builds the nested-collection loaders for one resource in a
// collection page, re-resolving the package on demand.
func (s *Server) resourceLoaders(base string, e xregistry.Entity) map[string]engine.CollectionLoader {
	id, _ := e[s.def.ResourceSingular+"id"].(string)
	return map[string]engine.CollectionLoader{
		"versions": func(ctx context.Context) (map[string]xregistry.Entity, error) {
			pkg, err := s.backend.Lookup(ctx, id)
			if err != nil {
				return nil, err
			}
			return s.versionsMap(base, pkg), nil
		},
	}
}

// packageLoaders builds the nested-collection loaders for an already
// materialized package.
func (s *Server) packageLoaders(base string, pkg *Package) map[string]engine.CollectionLoader {
	return map[string]engine.CollectionLoader{
		"versions": func(ctx context.Context) (map[string]xregistry.Entity, error) {
			return s.versionsMap(base, pkg), nil
		},
		"meta": func(ctx context.Context) (map[string]xregistry.Entity, error) {
			m, err := metaEntity(s.def, base, pkg)
			if err != nil {
				return nil, err
			}
			return map[string]xregistry.Entity{"meta": m}, nil
		},
	}
}

// versionsMap builds the inline member map for a package's versions, bounded
// to the collection's default page so long release histories do not balloon
// inlined payloads. versionscount on the resource still reports the total.
func (s *Server) versionsMap(base string, pkg *Package) map[string]xregistry.Entity {
	ids := make([]string, 0, len(pkg.Versions))
	for _, v := range pkg.Versions {
		ids = append(ids, v.ID)
	}
	SortVersionIDs(ids)
	if len(ids) > s.opts.DefaultLimit {
		ids = ids[:s.opts.DefaultLimit]
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make(map[string]xregistry.Entity, len(ids))
	for _, e := range versionEntities(s.def, base, pkg) {
		if vid, ok := e["versionid"].(string); ok && keep[vid] {
			out[vid] = e
		}
	}
	return out
}

// groupOpts tunes the engine for the tiny in-memory collections (the single
// group, a package's versions) where the mandatory name constraint does not
// apply.
func (s *Server) groupOpts() engine.Opts {
	opts := s.opts
	opts.RequireNameFilter = false
	return opts
}

// linkURL rebuilds the client-facing request URL so pagination links point
// at the surface the client actually called.
func (s *Server) linkURL(c *gin.Context, base string) *url.URL {
	u, err := url.Parse(base)
	if err != nil {
		u = &url.URL{}
	}
	u.Path = c.Request.URL.Path
	u.RawQuery = c.Request.URL.RawQuery
	return u
}
