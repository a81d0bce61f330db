package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Mount registers GET /healthz (liveness) and GET /readyz (readiness) on r.
func (c *Checker) Mount(r gin.IRoutes) {
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(ctx *gin.Context) {
		if err := c.Ready(ctx.Request.Context()); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
