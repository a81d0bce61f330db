package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskflow/backend/internal/i18n"
)

const bearerPrefix = "bearer "

// AccessValidator validates access tokens. *security.TokenProvider implements it.
type AccessValidator interface {
	ValidateAccess(token string) (sessionID, userID string, err error)
}

// SessionValidator reports whether the session behind an access token is still live.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, userID string) error
}

// Auth requires a valid Bearer access token and sets user_id and session_id in the request context.
// When sessions is non-nil, tokens of revoked sessions are rejected before they expire.
func Auth(tokens AccessValidator, sessions SessionValidator, tr *i18n.Translator, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token := extractBearer(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, tr, http.StatusUnauthorized, i18n.KeyNotAuthenticated)
			return
		}
		sessionID, userID, err := tokens.ValidateAccess(token)
		if err != nil {
			AbortWithError(c, tr, http.StatusUnauthorized, i18n.KeyNotAuthenticated)
			return
		}
		ctx := c.Request.Context()
		if sessions != nil {
			if err := sessions.ValidateSession(ctx, sessionID, userID); err != nil {
				log.Debug("auth: session rejected", zap.String("session_id", sessionID), zap.Error(err))
				AbortWithError(c, tr, http.StatusUnauthorized, i18n.KeyNotAuthenticated)
				return
			}
		}
		c.Request = c.Request.WithContext(WithIdentity(ctx, userID, sessionID))
		c.Next()
	}
}

// extractBearer returns the token of an "Authorization: Bearer <token>" value, or "" if malformed.
func extractBearer(header string) string {
	v := strings.TrimSpace(header)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
