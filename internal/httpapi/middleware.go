package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pkghub/internal/engine"
	"pkghub/pkg/logging"
	"pkghub/pkg/problems"
)

const flagsKey = "pkghub.flags"

// NewRouter builds a gin engine with the ordered middleware chain every
// pkghub HTTP surface uses: CORS, request-id, request logging, flags
// parsing, and the central error handler. subsystem names the process in
// request logs ("Bridge", "Adapter-npm", ...).
func NewRouter(subsystem string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())
	r.Use(loggingMiddleware(subsystem))
	r.Use(flagsMiddleware())
	r.Use(errorMiddleware())

	r.NoRoute(func(c *gin.Context) {
		WriteProblem(c, problems.NotFound("no resource at %s", c.Request.URL.Path))
	})
	// Routes register GET only, so a bare OPTIONS (no CORS preflight
	// headers) lands here whenever the path itself exists.
	r.NoMethod(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Header("Allow", "GET, OPTIONS")
			c.Status(http.StatusNoContent)
			return
		}
		methodNotAllowed(c)
	})
	r.HandleMethodNotAllowed = true

	return r
}

// corsMiddleware is permissive for the read-only GET surface; OPTIONS
// preflights short-circuit with 204.
func corsMiddleware() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-Key", HeaderBaseURL}
	config.ExposeHeaders = []string{"Link", HeaderNotice, HeaderRequestID}
	return cors.New(config)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func loggingMiddleware(subsystem string) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logging.Debug(subsystem, "%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.RequestURI(), c.Writer.Status(),
			time.Since(started).Round(time.Microsecond))
	}
}

// flagsMiddleware parses the xRegistry query flags once per request. Parse
// failures end the request with bad-request before any handler runs.
func flagsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		flags, err := engine.ParseFlags(c.Request.URL.Query())
		if err != nil {
			WriteProblem(c, err)
			return
		}
		c.Set(flagsKey, flags)
		c.Next()
	}
}

// errorMiddleware is the single code path producing non-2xx bodies for
// errors recorded by handlers via Abort.
func errorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		if p := problems.From(err); p.Kind() == problems.KindInternalError {
			logging.Error("HTTP", err, "request %s failed", c.Request.URL.Path)
		}
		WriteProblem(c, err)
	}
}

// RequireAPIKey guards a surface with a static key accepted as either
// "Authorization: Bearer <key>" or "X-API-Key: <key>". An empty configured
// key disables the check.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		auth := c.GetHeader("Authorization")
		if strings.TrimPrefix(auth, "Bearer ") == key && auth != "" {
			c.Next()
			return
		}
		if c.GetHeader("X-API-Key") == key {
			c.Next()
			return
		}
		WriteProblem(c, problems.Unauthorized("a valid API key is required"))
	}
}

// GETOnly rejects non-GET methods on xRegistry resource paths with 405 while
// letting OPTIONS preflights succeed.
func GETOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			methodNotAllowed(c)
		}
	}
}

func methodNotAllowed(c *gin.Context) {
	c.Header("Allow", "GET, OPTIONS")
	p := problems.New(problems.KindBadRequest, "method %s is not allowed on %s", c.Request.Method, c.Request.URL.Path)
	p.Status = http.StatusMethodNotAllowed
	p.Title = "Method Not Allowed"
	p.Type = problems.TypeNamespace + "method-not-allowed"
	p.Instance = c.Request.URL.Path
	c.Header("Content-Type", problems.ContentType)
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, p)
}
