package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/tagbridge/internal/bridge"
	"github.com/PratikDhanave/tagbridge/internal/models"
)

// maxAwait caps ?wait= on GET /session.
const maxAwait = 10 * time.Second

// RegisterSessionRoutes registers read-only views of the bridge session.
//
// GET /session[?wait=2s] - session status; wait blocks until a pending
// initGTM resolves or the duration elapses
// GET /datalayer - current data-layer contents
func RegisterSessionRoutes(r gin.IRoutes, d *bridge.Dispatcher) {
	r.GET("/session", func(c *gin.Context) {
		st := d.Session().Status()

		if w := c.Query("wait"); w != "" {
			wait, err := time.ParseDuration(w)
			if err != nil || wait < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "wait must be a duration"})
				return
			}
			if wait > maxAwait {
				wait = maxAwait
			}
			ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
			defer cancel()
			// A timeout still reports the status as it stands.
			st, _ = d.AwaitReady(ctx)
		}

		c.JSON(http.StatusOK, sessionResponse(st, d.Manager().Pending()))
	})

	r.GET("/datalayer", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Manager().DataLayer().Snapshot())
	})
}

func sessionResponse(st bridge.Status, pending int) models.SessionResponse {
	resp := models.SessionResponse{
		State:            st.State.String(),
		Generation:       st.Generation,
		ContainerID:      st.ContainerID,
		ContainerVersion: st.ContainerVersion,
		ContainerDefault: st.ContainerDefault,
		Source:           string(st.Source),
		PendingHits:      pending,
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return resp
}
