package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pkghub/internal/engine"
	"pkghub/pkg/problems"
	"pkghub/pkg/xregistry"
)

const (
	// HeaderBaseURL is set by the bridge on forwarded requests so adapters
	// build self URLs the client can follow.
	HeaderBaseURL = "x-base-url"

	// HeaderNotice carries a human-readable explanation alongside an empty
	// 200 page (e.g. missing mandatory name filter).
	HeaderNotice = "X-xRegistry-Notice"

	// HeaderRequestID tags every response for correlation.
	HeaderRequestID = "X-Request-Id"

	contentTypeJSON = "application/json; charset=utf-8"
)

// BaseURL resolves the client-facing base URL of a request, in order of
// precedence: the x-base-url header injected by the bridge, then
// x-forwarded-proto + x-forwarded-host, then the Host header with the
// connection's scheme.
func BaseURL(r *http.Request) string {
	if v := r.Header.Get(HeaderBaseURL); v != "" {
		return strings.TrimSuffix(v, "/")
	}
	host := r.Header.Get("x-forwarded-host")
	scheme := r.Header.Get("x-forwarded-proto")
	if host == "" {
		host = r.Host
	}
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme + "://" + host
}

// Flags returns the xRegistry query flags parsed by the middleware.
func Flags(c *gin.Context) engine.Flags {
	if v, ok := c.Get(flagsKey); ok {
		if f, ok := v.(engine.Flags); ok {
			return f
		}
	}
	return engine.Flags{}
}

// Abort records an error on the request and stops the handler chain; the
// error middleware turns it into a problem-details response.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// WriteEntity serializes one entity as a JSON success response.
func WriteEntity(c *gin.Context, e xregistry.Entity) {
	c.Header("Content-Type", contentTypeJSON)
	c.JSON(http.StatusOK, e)
}

// CollectionBody is the JSON shape of collection responses.
type CollectionBody struct {
	Page  []xregistry.Entity `json:"page"`
	Total int                `json:"total"`
}

// WriteCollection serializes an engine result: the page/total body, the RFC
// 5988 Link header when pagination was requested, and the notice header when
// the engine set one.
func WriteCollection(c *gin.Context, res engine.Result) {
	if len(res.Links) > 0 {
		c.Header("Link", engine.FormatLinkHeader(res.Links))
	}
	if res.Notice != "" {
		c.Header(HeaderNotice, res.Notice)
	}
	page := res.Page
	if page == nil {
		page = []xregistry.Entity{}
	}
	c.Header("Content-Type", contentTypeJSON)
	c.JSON(http.StatusOK, CollectionBody{Page: page, Total: res.Total})
}

// WriteProblem writes an RFC 9457 problem response for err, attaching the
// request path as the instance.
func WriteProblem(c *gin.Context, err error) {
	p := problems.From(err)
	if p.Instance == "" {
		p.Instance = c.Request.URL.Path
	}
	c.Header("Content-Type", problems.ContentType)
	c.AbortWithStatusJSON(p.Status, p)
}
