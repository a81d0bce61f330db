package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/backend/internal/i18n"
)

// Recovery turns a handler panic into a 500 response.
func Recovery(log *zap.Logger, tr *i18n.Translator) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				log.Error("http: panic recovered",
					zap.Any("panic", p),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				AbortWithError(c, tr, http.StatusInternalServerError, i18n.KeyInternal)
			}
		}()
		c.Next()
	}
}
