package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/tagbridge/internal/bridge"
	"github.com/PratikDhanave/tagbridge/internal/models"
)

// RegisterExecRoutes registers the bridge call endpoint.
//
// POST /exec {"action": "...", "args": [...]}
// - Bridge-level failures are 200 with ok=false and the error string
// - 400 only when the body is not a bridge call
func RegisterExecRoutes(r gin.IRoutes, d *bridge.Dispatcher) {
	r.POST("/exec", func(c *gin.Context) {
		var req models.ExecRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if req.Action == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "action required"})
			return
		}

		res := d.Exec(c.Request.Context(), req.Action, bridge.Args(req.Args))
		c.JSON(http.StatusOK, models.ExecResponse{
			OK:      res.OK,
			Message: res.Message,
			Error:   res.Error,
		})
	})
}
