package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	sessionIDKey = contextKey{"session_id"}
	clientKey    = contextKey{"client"}
)

// ClientInfo is the caller metadata recorded on new sessions and audit entries.
type ClientInfo struct {
	IPAddress     string
	UserAgent     string
	DeviceName    string
	CorrelationID string
}

// WithIdentity returns a context with user_id and session_id set.
// Handlers and the auth service read these via GetUserID and GetSessionID.
func WithIdentity(ctx context.Context, userID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok && v != ""
}

// WithClient returns a context carrying the request's client metadata.
func WithClient(ctx context.Context, c ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, c)
}

// GetClient returns the client metadata from context; zero value when absent.
func GetClient(ctx context.Context) ClientInfo {
	c, _ := ctx.Value(clientKey).(ClientInfo)
	return c
}

// ClientIP returns the caller's IP from context, or "unknown".
func ClientIP(ctx context.Context) string {
	if ip := GetClient(ctx).IPAddress; ip != "" {
		return ip
	}
	return "unknown"
}
