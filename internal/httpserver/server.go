package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PratikDhanave/tagbridge/internal/auth"
	"github.com/PratikDhanave/tagbridge/internal/bridge"
	"github.com/PratikDhanave/tagbridge/internal/config"
	"github.com/PratikDhanave/tagbridge/internal/handlers"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the router serves. Store and Hits are optional.
type Deps struct {
	Config     config.Config
	Dispatcher *bridge.Dispatcher
	Store      Pinger
	Hits       handlers.HitCounter
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics
// Authenticated: /exec, /session, /datalayer, /hits/count
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness checks the database when one is configured.
	r.GET("/ready", func(c *gin.Context) {
		if deps.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			defer cancel()

			if err := deps.Store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(deps.Config.APIKeys))

	handlers.RegisterExecRoutes(authGroup, deps.Dispatcher)
	handlers.RegisterSessionRoutes(authGroup, deps.Dispatcher)
	if deps.Hits != nil {
		handlers.RegisterHitRoutes(authGroup, deps.Hits, deps.Config.AppID)
	}

	return r
}
