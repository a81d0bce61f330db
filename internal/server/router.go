package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/backend/internal/health"
	"taskflow/backend/internal/i18n"
	identityhandler "taskflow/backend/internal/identity/handler"
	"taskflow/backend/internal/server/middleware"
)

// Deps holds the dependencies of the HTTP router.
type Deps struct {
	// Auth serves /api/v1/auth. Required.
	Auth identityhandler.AuthService
	// Tokens validates access tokens for authenticated routes. Required.
	Tokens middleware.AccessValidator
	// Sessions rejects access tokens of revoked sessions. If nil, only the token is checked.
	Sessions middleware.SessionValidator
	// Limiter rate-limits the auth routes. If nil, requests are not limited.
	Limiter middleware.Limiter
	// Health serves /healthz and /readyz. If nil, they are not registered.
	Health     *health.Checker
	Translator *i18n.Translator
	Logger     *zap.Logger
}

// NewRouter returns the gin engine with every route and the middleware chain.
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tr := deps.Translator
	if tr == nil {
		tr = i18n.New()
	}

	r := gin.New()
	r.Use(middleware.Client(), middleware.AccessLog(log), middleware.Recovery(log, tr))
	r.NoRoute(func(c *gin.Context) {
		middleware.AbortWithError(c, tr, http.StatusNotFound, i18n.KeyNotFound)
	})
	if deps.Health != nil {
		deps.Health.Mount(r)
	}

	auth := r.Group("/api/v1/auth", middleware.RateLimit(deps.Limiter, tr, log))
	requireAuth := middleware.Auth(deps.Tokens, deps.Sessions, tr, log)
	identityhandler.NewAuthHandler(deps.Auth, tr, log).Mount(auth, requireAuth)
	return r
}
