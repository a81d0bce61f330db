package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskflow/backend/internal/audit"
	auditdomain "taskflow/backend/internal/audit/domain"
	confirmationdomain "taskflow/backend/internal/confirmation/domain"
	"taskflow/backend/internal/jobs"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/policy/engine"
	refreshtokendomain "taskflow/backend/internal/refreshtoken/domain"
	roledomain "taskflow/backend/internal/role/domain"
	"taskflow/backend/internal/security"
	"taskflow/backend/internal/server/middleware"
	sessiondomain "taskflow/backend/internal/session/domain"
	"taskflow/backend/internal/telemetry"
	userdomain "taskflow/backend/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateLoginState(ctx context.Context, id string, accessFailedCount int, lockoutEnd *time.Time, at time.Time) error
	RecordFailedAttempt(ctx context.Context, id string, maxAttempts int, lockoutEnd, at time.Time) (userdomain.FailedAttempt, error)
	LockForUpdate(ctx context.Context, id string) error
	SetEmailConfirmed(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

// RoleRepo is the minimal role repository needed by the auth service.
type RoleRepo interface {
	GetByName(ctx context.Context, name string) (*roledomain.Role, error)
	AssignToUser(ctx context.Context, userID, roleID string, at time.Time) error
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByID(ctx context.Context, id string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	ListActiveByUser(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeMany(ctx context.Context, ids []string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) ([]string, error)
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
}

// RefreshTokenRepo is the minimal refresh token repository needed by the auth service.
type RefreshTokenRepo interface {
	Create(ctx context.Context, t *refreshtokendomain.RefreshToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (*refreshtokendomain.RefreshToken, error)
	GetByHash(ctx context.Context, tokenHash string) (*refreshtokendomain.RefreshToken, error)
	SetReplacedBy(ctx context.Context, id, replacedByID string) error
	RevokeBySessions(ctx context.Context, sessionIDs []string, at time.Time) error
}

// CodeRepo is the minimal confirmation code repository needed by the auth service.
type CodeRepo interface {
	Create(ctx context.Context, c *confirmationdomain.Code) error
	InvalidateActive(ctx context.Context, userID string, typ confirmationdomain.Type, now time.Time) error
	Consume(ctx context.Context, userID string, typ confirmationdomain.Type, codeHash string, now time.Time) (bool, error)
	Exists(ctx context.Context, userID string, typ confirmationdomain.Type, codeHash string, now time.Time) (bool, error)
}

// UnitOfWork runs fn in one transaction. A call nested inside another joins the outer transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Options are the auth settings the service enforces.
type Options struct {
	MaxFailedAccessAttempts  int
	LockoutDuration          time.Duration
	LockoutEnabled           bool // applied to newly registered users
	MaxActiveSessionsPerUser int
	RequireConfirmedEmail    bool
	RequireConfirmedPhone    bool
	ConfirmationCodeTTL      time.Duration
	ConfirmationCodeLength   int
	DefaultRole              string
	PasswordPolicy           security.PasswordPolicy
}

// Deps are the collaborators of AuthService. Policy, Jobs, Audit, Events, Metrics and Logger may be nil.
type Deps struct {
	Users         UserRepo
	Roles         RoleRepo
	Sessions      SessionRepo
	RefreshTokens RefreshTokenRepo
	Codes         CodeRepo
	UnitOfWork    UnitOfWork
	Hasher        *security.Hasher
	Tokens        *security.TokenProvider
	Policy        engine.Evaluator
	Jobs          jobs.Enqueuer
	Audit         audit.AuditLogger
	Events        telemetry.EventEmitter
	Metrics       *telemetry.AuthMetrics
	Logger        *zap.Logger
}

// AuthResult is the outcome of Login and Refresh.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
	SessionID    string
	UserID       string
}

// LoginInput is the Login request. Client is recorded on the new session.
type LoginInput struct {
	Email    string
	Password string
	Client   middleware.ClientInfo
}

// AuthService implements login, refresh-token rotation, logout, registration and the
// confirmation-code flows.
type AuthService struct {
	Deps
	opts Options
	log  *zap.Logger
	now  func() time.Time
}

// NewAuthService returns an AuthService. Zero option values fall back to safe defaults.
func NewAuthService(deps Deps, opts Options) *AuthService {
	if opts.MaxFailedAccessAttempts < 1 {
		opts.MaxFailedAccessAttempts = 5
	}
	if opts.LockoutDuration <= 0 {
		opts.LockoutDuration = 5 * time.Minute
	}
	if opts.MaxActiveSessionsPerUser < 1 {
		opts.MaxActiveSessionsPerUser = 5
	}
	if opts.ConfirmationCodeTTL <= 0 {
		opts.ConfirmationCodeTTL = 15 * time.Minute
	}
	if opts.PasswordPolicy.RequiredLength < 1 {
		opts.PasswordPolicy = security.DefaultPasswordPolicy()
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		Deps: deps,
		opts: opts,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock. Used by tests to move past lockout and code expiry.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login authenticates email and password and opens a new session.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	normalized := security.NormalizeEmail(in.Email)
	if normalized == "" || in.Password == "" {
		s.Metrics.LoginAttempt(ctx, telemetry.OutcomeInvalid)
		return nil, ErrInvalidCredentials
	}
	user, err := s.Users.GetByNormalizedEmail(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("login: lookup user: %w", err)
	}
	if user == nil || user.IsDeleted() {
		s.Hasher.VerifyDummy(in.Password)
		s.loginFailed(ctx, "", "unknown_user")
		return nil, ErrInvalidCredentials
	}

	if err := s.checkSignInGate(ctx, user); err != nil {
		s.Metrics.LoginAttempt(ctx, telemetry.OutcomeForbidden)
		s.record(ctx, user.ID, "", auditdomain.ActionLoginFailure, map[string]string{"reason": err.Error()})
		return nil, err
	}

	now := s.now()
	if user.IsLockedOut(now) {
		s.Metrics.LoginAttempt(ctx, telemetry.OutcomeLocked)
		s.record(ctx, user.ID, "", auditdomain.ActionLoginFailure, map[string]string{"reason": "locked_out"})
		return nil, ErrAccountLocked
	}

	if !s.Hasher.Verify(user.PasswordHash, in.Password) {
		return nil, s.recordFailedAttempt(ctx, user, now)
	}

	result, evicted, err := s.openSession(ctx, user, in.Client, now)
	if err != nil {
		return nil, err
	}

	s.Metrics.LoginAttempt(ctx, telemetry.OutcomeSuccess)
	s.record(ctx, user.ID, result.SessionID, auditdomain.ActionLoginSuccess, nil)
	s.emit(ctx, telemetry.EventLoginSucceeded, user.ID, result.SessionID, map[string]string{"ip": in.Client.IPAddress})
	if len(evicted) > 0 {
		s.Metrics.SessionsEvicted(ctx, len(evicted))
		for _, id := range evicted {
			s.record(ctx, user.ID, id, auditdomain.ActionSessionEvicted, nil)
		}
		s.emit(ctx, telemetry.EventSessionsEvicted, user.ID, result.SessionID, map[string]string{"count": fmt.Sprint(len(evicted))})
	}
	return result, nil
}

// checkSignInGate applies the account gate (active, confirmed email or phone) through the policy engine.
func (s *AuthService) checkSignInGate(ctx context.Context, user *userdomain.User) error {
	in := engine.SignInInput{
		IsActive:              user.IsActive,
		EmailConfirmed:        user.EmailConfirmed,
		PhoneConfirmed:        user.PhoneNumberConfirmed,
		RequireConfirmedEmail: s.opts.RequireConfirmedEmail,
		RequireConfirmedPhone: s.opts.RequireConfirmedPhone,
	}
	reason := engine.GateReason(in)
	if s.Policy != nil {
		r, err := s.Policy.EvaluateSignIn(ctx, in)
		if err != nil {
			s.logger(ctx).Warn("login: sign-in policy failed, using built-in gate", zap.Error(err))
		} else {
			reason = r
		}
	}
	switch reason {
	case engine.DenyNone:
		return nil
	case engine.DenyEmailUnconfirmed:
		return ErrEmailNotConfirmed
	case engine.DenyPhoneUnconfirmed:
		return ErrPhoneNotConfirmed
	}
	return ErrAccountInactive
}

// recordFailedAttempt counts a wrong password in its own write so it survives the failed request.
// The repository increments atomically; the attempt that reaches the maximum locks the account.
func (s *AuthService) recordFailedAttempt(ctx context.Context, user *userdomain.User, now time.Time) error {
	if !user.LockoutEnabled {
		s.loginFailed(ctx, user.ID, "bad_password")
		return ErrInvalidCredentials
	}
	res, err := s.Users.RecordFailedAttempt(ctx, user.ID, s.opts.MaxFailedAccessAttempts, now.Add(s.opts.LockoutDuration), now)
	if err != nil {
		return fmt.Errorf("login: record failed attempt: %w", err)
	}
	switch {
	case res.Locked:
		s.Metrics.LoginAttempt(ctx, telemetry.OutcomeLocked)
		s.record(ctx, user.ID, "", auditdomain.ActionAccountLocked, map[string]string{"until": res.LockoutEnd.Format(time.RFC3339)})
		s.emit(ctx, telemetry.EventAccountLocked, user.ID, "", nil)
		return ErrAccountLocked
	case res.LockoutEnd != nil && res.LockoutEnd.After(now):
		// Another request locked the account after this one read the user.
		s.Metrics.LoginAttempt(ctx, telemetry.OutcomeLocked)
		s.record(ctx, user.ID, "", auditdomain.ActionLoginFailure, map[string]string{"reason": "locked_out"})
		return ErrAccountLocked
	}
	s.loginFailed(ctx, user.ID, "bad_password")
	return ErrInvalidCredentials
}

func (s *AuthService) loginFailed(ctx context.Context, userID, reason string) {
	s.Metrics.LoginAttempt(ctx, telemetry.OutcomeInvalid)
	s.record(ctx, userID, "", auditdomain.ActionLoginFailure, map[string]string{"reason": reason})
	s.emit(ctx, telemetry.EventLoginFailed, userID, "", map[string]string{"reason": reason})
}

// openSession resets the failure counter, evicts the oldest sessions over the cap, creates the new
// session and persists its first refresh token, all in one transaction. Returns the evicted session ids.
// The user row is locked first so concurrent logins for one user count sessions one after another.
func (s *AuthService) openSession(ctx context.Context, user *userdomain.User, client middleware.ClientInfo, now time.Time) (*AuthResult, []string, error) {
	var (
		result  *AuthResult
		evicted []string
	)
	err := s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Users.LockForUpdate(ctx, user.ID); err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if err := s.Users.UpdateLoginState(ctx, user.ID, 0, nil, now); err != nil {
			return fmt.Errorf("reset login state: %w", err)
		}
		active, err := s.Sessions.ListActiveByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if excess := len(active) - s.opts.MaxActiveSessionsPerUser + 1; excess > 0 {
			for _, sess := range active[:excess] {
				evicted = append(evicted, sess.ID)
			}
			if err := s.revokeSessions(ctx, evicted, now); err != nil {
				return fmt.Errorf("evict sessions: %w", err)
			}
		}
		sess := &sessiondomain.Session{
			ID:            uuid.New().String(),
			UserID:        user.ID,
			DeviceName:    client.DeviceName,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			CorrelationID: client.CorrelationID,
			CreatedAt:     now,
			LastSeenAt:    now,
		}
		if err := s.Sessions.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		result, _, err = s.issueTokens(ctx, sess.ID, user.ID, now)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("login: %w", err)
	}
	return result, evicted, nil
}

// issueTokens signs a new access and refresh pair for the session and stores the refresh token hash.
// Returns the stored refresh token row id.
func (s *AuthService) issueTokens(ctx context.Context, sessionID, userID string, now time.Time) (*AuthResult, string, error) {
	access, err := s.Tokens.IssueAccess(sessionID, userID)
	if err != nil {
		return nil, "", fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.Tokens.IssueRefresh(sessionID, userID)
	if err != nil {
		return nil, "", fmt.Errorf("issue refresh token: %w", err)
	}
	row := &refreshtokendomain.RefreshToken{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		UserID:    userID,
		TokenHash: security.HashRefreshToken(refresh.Token),
		ExpiresAt: refresh.ExpiresAt,
		CreatedAt: now,
	}
	if err := s.RefreshTokens.Create(ctx, row); err != nil {
		return nil, "", fmt.Errorf("store refresh token: %w", err)
	}
	return &AuthResult{
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresAt:    access.ExpiresAt,
		SessionID:    sessionID,
		UserID:       userID,
	}, row.ID, nil
}

func (s *AuthService) revokeSessions(ctx context.Context, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.Sessions.RevokeMany(ctx, ids, now); err != nil {
		return err
	}
	return s.RefreshTokens.RevokeBySessions(ctx, ids, now)
}

// Refresh exchanges a refresh token for a new pair bound to the same session. The presented token
// is consumed in a single statement, so it can be exchanged at most once. Presenting a token that
// was already exchanged revokes its whole session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		s.Metrics.Refresh(ctx, telemetry.OutcomeInvalidToken)
		return nil, ErrInvalidRefreshToken
	}
	sessionID, _, userID, err := s.Tokens.ValidateRefresh(refreshToken)
	if err != nil {
		s.Metrics.Refresh(ctx, telemetry.OutcomeInvalidToken)
		return nil, ErrInvalidRefreshToken
	}
	hash := security.HashRefreshToken(refreshToken)
	now := s.now()

	var (
		result       *AuthResult
		reusedByUser string
	)
	err = s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		consumed, err := s.RefreshTokens.Consume(ctx, hash, now)
		if err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}
		if consumed == nil {
			existing, err := s.RefreshTokens.GetByHash(ctx, hash)
			if err != nil {
				return fmt.Errorf("lookup refresh token: %w", err)
			}
			if existing != nil && existing.IsUsed() && !existing.IsRevoked() {
				// Committed, so the revocation holds even though the caller gets an error.
				reusedByUser = existing.UserID
				return s.revokeSessions(ctx, []string{existing.SessionID}, now)
			}
			return ErrInvalidRefreshToken
		}
		if consumed.SessionID != sessionID || consumed.UserID != userID {
			return ErrInvalidRefreshToken
		}
		sess, err := s.Sessions.GetByID(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("lookup session: %w", err)
		}
		if sess == nil || sess.IsRevoked() {
			return ErrInvalidRefreshToken
		}
		user, err := s.Users.GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if user == nil || user.IsDeleted() || !user.IsActive {
			return ErrInvalidRefreshToken
		}
		if err := s.Sessions.UpdateLastSeen(ctx, sessionID, now); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		var newID string
		result, newID, err = s.issueTokens(ctx, sessionID, userID, now)
		if err != nil {
			return err
		}
		if err := s.RefreshTokens.SetReplacedBy(ctx, consumed.ID, newID); err != nil {
			return fmt.Errorf("chain refresh token: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrInvalidRefreshToken) {
		s.Metrics.Refresh(ctx, telemetry.OutcomeInvalidToken)
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		s.Metrics.Refresh(ctx, telemetry.OutcomeError)
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if reusedByUser != "" {
		s.logger(ctx).Warn("refresh token reuse detected, session revoked", zap.String("session_id", sessionID), zap.String("user_id", reusedByUser))
		s.Metrics.Refresh(ctx, telemetry.OutcomeReuse)
		s.record(ctx, reusedByUser, sessionID, auditdomain.ActionRefreshReuse, nil)
		s.emit(ctx, telemetry.EventRefreshReuse, reusedByUser, sessionID, nil)
		return nil, ErrInvalidRefreshToken
	}
	s.Metrics.Refresh(ctx, telemetry.OutcomeSuccess)
	s.emit(ctx, telemetry.EventTokenRefreshed, userID, sessionID, nil)
	return result, nil
}

// Logout revokes the caller's session (taken from the context) and every refresh token of it.
func (s *AuthService) Logout(ctx context.Context) error {
	sessionID, ok := middleware.GetSessionID(ctx)
	if !ok {
		return ErrNotAuthenticated
	}
	userID, _ := middleware.GetUserID(ctx)
	now := s.now()
	err := s.UnitOfWork.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.Sessions.Revoke(ctx, sessionID, now); err != nil {
			return err
		}
		return s.RefreshTokens.RevokeBySessions(ctx, []string{sessionID}, now)
	})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.record(ctx, userID, sessionID, auditdomain.ActionLogout, nil)
	s.emit(ctx, telemetry.EventLoggedOut, userID, sessionID, nil)
	return nil
}

// ValidateSession reports whether sessionID is a live session of userID. The HTTP auth middleware
// calls it so access tokens of revoked sessions stop working before they expire.
func (s *AuthService) ValidateSession(ctx context.Context, sessionID, userID string) error {
	sess, err := s.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("validate session: %w", err)
	}
	if sess == nil || sess.IsRevoked() || sess.UserID != userID {
		return ErrNotAuthenticated
	}
	return nil
}

func (s *AuthService) emit(ctx context.Context, eventType, userID, sessionID string, attrs map[string]string) {
	telemetry.EmitAsync(ctx, s.Events, &telemetry.Event{
		Type:       eventType,
		UserID:     userID,
		SessionID:  sessionID,
		Attributes: attrs,
		CreatedAt:  s.now(),
	}, s.log)
}

func (s *AuthService) record(ctx context.Context, userID, sessionID, action string, metadata map[string]string) {
	if s.Audit == nil {
		return
	}
	s.Audit.LogEvent(ctx, userID, sessionID, action, metadata)
}

func (s *AuthService) logger(ctx context.Context) *zap.Logger {
	return logging.FromContext(ctx, s.log)
}
