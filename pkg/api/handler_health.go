package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calliq/qaengine/pkg/database"
	"github.com/calliq/qaengine/pkg/queue"
	"github.com/calliq/qaengine/pkg/version"
)

// health handles GET /health: database connectivity, worker pool stats,
// and build version.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth, err := database.Health(ctx, s.db)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"version":  version.Full(),
				"database": dbHealth,
				"error":    err.Error(),
		})
		return
	}

	var queueHealth *queue.PoolHealth
	if s.pool != nil {
		queueHealth = s.pool.Health()
	}

	c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"version":  version.Full(),
			"database": dbHealth,
			"queue":    queueHealth,
	})
}
