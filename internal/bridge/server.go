package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"

	"github.com/gin-gonic/gin"

	"pkghub/internal/httpapi"
	"pkghub/pkg/logging"
	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

// newProxy builds the reverse proxy for one adapter. Path and query pass
// through untouched; the client-facing base URL travels in x-base-url so the
// adapter mints self URLs the client can follow; the client's Authorization
// is never forwarded, the adapter's own key is injected instead.
func (b *Bridge) newProxy(up *upstream) http.Handler {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			base := httpapi.BaseURL(pr.In)
			pr.SetURL(up.target)
			pr.Out.Host = up.target.Host
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("X-API-Key")
			if up.descriptor.APIKey != "" {
				pr.Out.Header.Set("Authorization", "Bearer "+up.descriptor.APIKey)
			}
			pr.Out.Header.Set(httpapi.HeaderBaseURL, base)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logging.Error("Bridge", err, "proxying %s to %s failed", r.URL.Path, up.descriptor.URL)
			p := problems.BadGateway("upstream adapter for %s is unreachable", r.URL.Path).WithInstance(r.URL.Path)
			w.Header().Set("Content-Type", problems.ContentType)
			w.WriteHeader(p.Status)
			_ = writeJSON(w, p)
		},
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

// Handler builds the bridge's HTTP surface. Call after Start: the routing
// table must be complete.
func (b *Bridge) Handler() http.Handler {
	r := httpapi.NewRouter("Bridge")
	r.UseRawPath = true

	g := r.Group("/", httpapi.RequireAPIKey(b.cfg.APIKey))
	g.GET("", httpapi.GETOnly(), b.handleRegistry)
	g.GET("/model", httpapi.GETOnly(), b.handleModel)
	g.GET("/capabilities", httpapi.GETOnly(), b.handleCapabilities)
	g.GET("/health", b.handleHealth)

	for gt, up := range b.routes {
		proxy := up.proxy
		handler := func(c *gin.Context) {
			proxy.ServeHTTP(c.Writer, c.Request)
			c.Abort()
		}
		guarded := append([]gin.HandlerFunc{httpapi.GETOnly()}, handler)
		g.GET("/"+gt, guarded...)
		g.GET("/"+gt+"/*rest", guarded...)
		g.OPTIONS("/"+gt, handler)
		g.OPTIONS("/"+gt+"/*rest", handler)
	}
	return r
}

// handleRegistry serves the composite registry root: one collection
// attribute pair per routed group type.
func (b *Bridge) handleRegistry(c *gin.Context) {
	base := httpapi.BaseURL(c.Request)
	e, err := xregistry.NewRegistry(xregistry.Config{
		ID:          "pkghub",
		BaseURL:     base,
		Name:        "pkghub",
		Description: "aggregated package ecosystem registry",
		CreatedAt:   b.started,
	})
	if err != nil {
		httpapi.Abort(c, err)
		return
	}
	for _, gt := range b.order {
		xregistry.SetRootCollection(e, gt, base, 1)
	}
	httpapi.WriteEntity(c, e)
}

func (b *Bridge) handleModel(c *gin.Context) {
	c.JSON(http.StatusOK, b.model)
}

func (b *Bridge) handleCapabilities(c *gin.Context) {
	c.JSON(http.StatusOK, b.caps)
}

// handleHealth probes every adapter in parallel; a single failure degrades
// the whole bridge to 503 with the failures listed.
func (b *Bridge) handleHealth(c *gin.Context) {
	results, healthy := b.probe(c.Request.Context())
	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":   overall,
		"state":    b.State(),
		"adapters": results,
	})
}
