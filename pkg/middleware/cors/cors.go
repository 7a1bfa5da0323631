// Package cors holds the browser origin policy of the directory API. The same
// Origins set guards plain requests and the live websocket upgrade.
package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods  = "GET, POST, PATCH, DELETE, OPTIONS"
	exposeHeaders = "Content-Disposition, X-Request-ID"
	maxAgeSeconds = "600"
)

// Origins is a normalised set of allowed browser origins. An empty set allows
// every origin.
type Origins map[string]struct{}

// NewOrigins builds an Origins set ignoring trailing slashes and blanks.
func NewOrigins(allowed []string) Origins {
	set := make(Origins, len(allowed))
	for _, origin := range allowed {
		origin = normalise(origin)
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	return set
}

// Open reports whether any origin is accepted.
func (o Origins) Open() bool {
	return len(o) == 0
}

// Allows reports whether origin may call the API.
func (o Origins) Allows(origin string) bool {
	if o.Open() {
		return true
	}
	_, ok := o[normalise(origin)]
	return ok
}

// CheckOrigin adapts the set to websocket.Upgrader. Non-browser clients send
// no Origin header and are let through.
func (o Origins) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || o.Allows(origin)
}

// New returns the CORS middleware for allowedOrigins. Preflight requests stop
// here with 204; export downloads rely on Content-Disposition being exposed.
func New(allowedOrigins []string) gin.HandlerFunc {
	origins := NewOrigins(allowedOrigins)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		switch origin := c.GetHeader("Origin"); {
		case origin != "" && origins.Allows(origin):
			h.Set("Access-Control-Allow-Origin", origin)
		case origin == "" && origins.Open():
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", allowHeaders)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Expose-Headers", exposeHeaders)
		h.Set("Access-Control-Max-Age", maxAgeSeconds)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func normalise(origin string) string {
	return strings.TrimRight(strings.TrimSpace(origin), "/")
}
