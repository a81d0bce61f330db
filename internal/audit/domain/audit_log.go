package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	UserID    string // empty when the caller is unknown (e.g. login with an unknown email)
	SessionID string
	Action    string
	IP        string
	Metadata  string // JSON object; empty when there is nothing to add
	CreatedAt time.Time
}

// Auth actions recorded by the identity service.
const (
	ActionLoginSuccess   = "login_success"
	ActionLoginFailure   = "login_failure"
	ActionAccountLocked  = "account_locked"
	ActionLogout         = "logout"
	ActionRefreshReuse   = "refresh_reuse"
	ActionRegister       = "register"
	ActionEmailConfirmed = "email_confirmed"
	ActionPasswordReset  = "password_reset"
	ActionSessionEvicted = "session_evicted"
)
