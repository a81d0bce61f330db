package telemetry

import (
	"context"
	"time"
)

// Auth event types.
const (
	EventLoginSucceeded  = "auth.login.succeeded"
	EventLoginFailed     = "auth.login.failed"
	EventAccountLocked   = "auth.account.locked"
	EventTokenRefreshed  = "auth.token.refreshed"
	EventRefreshReuse    = "auth.token.reuse_detected"
	EventLoggedOut       = "auth.logout"
	EventUserRegistered  = "auth.user.registered"
	EventEmailConfirmed  = "auth.email.confirmed"
	EventPasswordReset   = "auth.password.reset"
	EventSessionsEvicted = "auth.sessions.evicted"
	EventSessionsRevoked = "auth.sessions.revoked"
)

// Event is one auth telemetry event.
type Event struct {
	Type       string
	UserID     string
	SessionID  string
	Attributes map[string]string
	CreatedAt  time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
