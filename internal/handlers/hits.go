package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/tagbridge/internal/auth"
)

// HitCounter counts stored hits.
type HitCounter interface {
	CountHits(ctx context.Context, appID, event string, from, to time.Time) (int64, error)
}

// RegisterHitRoutes registers the stored-hit query endpoint.
//
// GET /hits/count?event=...&from=...&to=...
// - Counts hits in the window [from,to)
// - Hits are stored under the service's appID, whichever key the caller
// authenticated with, since every app drives the one bridge session
func RegisterHitRoutes(r gin.IRoutes, hc HitCounter, appID string) {
	r.GET("/hits/count", func(c *gin.Context) {
		if auth.AppID(c) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		event := c.Query("event")
		fromStr := c.Query("from")
		toStr := c.Query("to")
		if event == "" || fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event, from, to are required"})
			return
		}

		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		from, to = from.UTC(), to.UTC()
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := hc.CountHits(c.Request.Context(), appID, event, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"app_id": appID, "event": event, "count": count})
	})
}
