package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ordersync/backend/internal/infrastructure/telemetry"
)

// DefaultProfilingSkipPaths are probe and scrape endpoints left unlabeled
var DefaultProfilingSkipPaths = []string{"/health", "/ready", "/metrics"}

// Profiling labels CPU samples taken while serving a request with its
// method and route pattern. Unmatched routes and skipPaths run unlabeled.
func Profiling(enabled bool, skipPaths ...string) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	if len(skipPaths) == 0 {
		skipPaths = DefaultProfilingSkipPaths
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" || isSkipped(c.Request.URL.Path, skipPaths) {
			c.Next()
			return
		}

		telemetry.WithRouteLabels(c.Request.Context(), c.Request.Method, route, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

func isSkipped(path string, skipPaths []string) bool {
	for _, p := range skipPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
