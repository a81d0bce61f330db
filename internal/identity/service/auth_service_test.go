package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	auditdomain "taskflow/backend/internal/audit/domain"
	"taskflow/backend/internal/policy/engine"
	"taskflow/backend/internal/server/middleware"
)

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "alice@example.com", true)
	client := middleware.ClientInfo{IPAddress: "10.0.0.7", UserAgent: "curl/8", DeviceName: "laptop", CorrelationID: "corr-1"}

	res, err := env.svc.Login(context.Background(), LoginInput{Email: "Alice@Example.com ", Password: testPassword, Client: client})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("Login should return non-empty access and refresh tokens")
	}
	if res.UserID != u.ID || res.SessionID == "" {
		t.Errorf("result = %+v", res)
	}
	sess := env.session(t, res.SessionID)
	if sess.UserID != u.ID || sess.IPAddress != "10.0.0.7" || sess.UserAgent != "curl/8" || sess.DeviceName != "laptop" || sess.CorrelationID != "corr-1" {
		t.Errorf("session metadata not captured: %+v", sess)
	}
	row := env.tokenByValue(t, res.RefreshToken)
	if row.SessionID != res.SessionID || row.UserID != u.ID {
		t.Errorf("refresh token row = %+v", row)
	}
	if row.TokenHash == res.RefreshToken {
		t.Error("refresh token must be stored hashed")
	}
	if !tokenActive(*row, env.clock.Now()) {
		t.Error("new refresh token should be active")
	}
	if !slices.Contains(env.audit.actions(), auditdomain.ActionLoginSuccess) {
		t.Errorf("audit actions = %v, want login_success", env.audit.actions())
	}
}

func TestLogin_UnknownUserAndEmptyInput(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@example.com", true)
	testCases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", testPassword},
		{"empty email", "", testPassword},
		{"empty password", "alice@example.com", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Login(context.Background(), LoginInput{Email: tc.email, Password: tc.password})
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Login = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestLogin_DeletedUserIsUnknown(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "gone@example.com", true)
	env.store.mu.Lock()
	u.DeletedAt = timeRef(env.clock.Now())
	env.store.users[u.ID] = u
	env.store.mu.Unlock()

	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "gone@example.com", Password: testPassword}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login = %v, want ErrInvalidCredentials", err)
	}
}

func TestLogin_WrongPasswordIncrementsCounter(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "bob@example.com", true)

	_, err := env.svc.Login(context.Background(), LoginInput{Email: "bob@example.com", Password: "wrong"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("Login = %v, want ErrInvalidCredentials", err)
	}
	if got := env.user(t, u.ID).AccessFailedCount; got != 1 {
		t.Errorf("AccessFailedCount = %d, want 1", got)
	}
}

func TestLogin_LockoutAfterMaxFailedAttempts(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "carol@example.com", true)
	ctx := context.Background()
	wrong := LoginInput{Email: "carol@example.com", Password: "wrong"}

	for i := 1; i < 3; i++ {
		if _, err := env.svc.Login(ctx, wrong); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v, want ErrInvalidCredentials", i, err)
		}
	}
	if _, err := env.svc.Login(ctx, wrong); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("attempt 3: %v, want ErrAccountLocked", err)
	}
	locked := env.user(t, u.ID)
	if locked.LockoutEnd == nil || !locked.LockoutEnd.Equal(env.clock.Now().Add(5*time.Minute)) {
		t.Fatalf("LockoutEnd = %v, want now+5m", locked.LockoutEnd)
	}
	if locked.AccessFailedCount != 0 {
		t.Errorf("AccessFailedCount = %d, want reset to 0 on lock", locked.AccessFailedCount)
	}

	// Correct password during lockout is still refused.
	if _, err := env.svc.Login(ctx, LoginInput{Email: "carol@example.com", Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("correct password while locked: %v, want ErrAccountLocked", err)
	}

	env.clock.Advance(5*time.Minute - time.Second)
	if _, err := env.svc.Login(ctx, LoginInput{Email: "carol@example.com", Password: testPassword}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("just before lockout end: %v, want ErrAccountLocked", err)
	}

	env.clock.Advance(2 * time.Second)
	env.login(t, "carol@example.com")
	after := env.user(t, u.ID)
	if after.LockoutEnd != nil || after.AccessFailedCount != 0 {
		t.Errorf("after successful login: LockoutEnd=%v AccessFailedCount=%d", after.LockoutEnd, after.AccessFailedCount)
	}
	if !slices.Contains(env.audit.actions(), auditdomain.ActionAccountLocked) {
		t.Errorf("audit actions = %v, want account_locked", env.audit.actions())
	}
}

func TestLogin_ConcurrentWrongPasswordsLockOnce(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "erin@example.com", true)
	wrong := LoginInput{Email: "erin@example.com", Password: "wrong"}

	const attempts = 20
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Login(context.Background(), wrong)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var invalid, locked int
	for err := range errs {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			invalid++
		case errors.Is(err, ErrAccountLocked):
			locked++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if invalid != 2 || locked != attempts-2 {
		t.Errorf("invalid=%d locked=%d, want 2 and %d", invalid, locked, attempts-2)
	}
	got := env.user(t, u.ID)
	if got.LockoutEnd == nil || !got.LockoutEnd.Equal(env.clock.Now().Add(5*time.Minute)) {
		t.Errorf("LockoutEnd = %v, want now+5m", got.LockoutEnd)
	}
	if got.AccessFailedCount != 0 {
		t.Errorf("AccessFailedCount = %d, want 0", got.AccessFailedCount)
	}
	var lockEvents int
	for _, a := range env.audit.actions() {
		if a == auditdomain.ActionAccountLocked {
			lockEvents++
		}
	}
	if lockEvents != 1 {
		t.Errorf("account_locked audited %d times, want 1", lockEvents)
	}
}

func TestLogin_LockoutDisabledForUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "nolock@example.com", true)
	env.store.mu.Lock()
	u.LockoutEnabled = false
	env.store.users[u.ID] = u
	env.store.mu.Unlock()

	for i := 0; i < 5; i++ {
		if _, err := env.svc.Login(context.Background(), LoginInput{Email: "nolock@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v, want ErrInvalidCredentials", i, err)
		}
	}
	env.login(t, "nolock@example.com")
}

func TestLogin_SuccessResetsFailedCount(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "dave@example.com", true)
	for i := 0; i < 2; i++ {
		_, _ = env.svc.Login(context.Background(), LoginInput{Email: "dave@example.com", Password: "wrong"})
	}
	if got := env.user(t, u.ID).AccessFailedCount; got != 2 {
		t.Fatalf("AccessFailedCount = %d, want 2", got)
	}
	env.login(t, "dave@example.com")
	if got := env.user(t, u.ID).AccessFailedCount; got != 0 {
		t.Errorf("AccessFailedCount after success = %d, want 0", got)
	}
}

func TestLogin_GateChecks(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(*Options)
		active   bool
		email    bool
		phone    bool
		password string
		want     error
	}{
		{"inactive", nil, false, true, false, testPassword, ErrAccountInactive},
		{"email unconfirmed", nil, true, false, false, testPassword, ErrEmailNotConfirmed},
		{"gate runs before password", nil, true, false, false, "wrong", ErrEmailNotConfirmed},
		{"phone unconfirmed", func(o *Options) { o.RequireConfirmedPhone = true }, true, true, false, testPassword, ErrPhoneNotConfirmed},
		{"email not required", func(o *Options) { o.RequireConfirmedEmail = false }, true, false, false, testPassword, nil},
		{"phone confirmed", func(o *Options) { o.RequireConfirmedPhone = true }, true, true, true, testPassword, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var mutate []func(*Options)
			if tc.mutate != nil {
				mutate = append(mutate, tc.mutate)
			}
			env := newTestEnv(t, mutate...)
			u := env.seedUser(t, "gate@example.com", tc.email)
			env.store.mu.Lock()
			u.IsActive = tc.active
			u.PhoneNumberConfirmed = tc.phone
			env.store.users[u.ID] = u
			env.store.mu.Unlock()

			_, err := env.svc.Login(context.Background(), LoginInput{Email: "gate@example.com", Password: tc.password})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("Login: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Login = %v, want %v", err, tc.want)
			}
			if got := env.user(t, u.ID).AccessFailedCount; got != 0 {
				t.Errorf("gate refusal must not count as a failed attempt, got %d", got)
			}
		})
	}
}

func TestLogin_WithOPASignInPolicy(t *testing.T) {
	env := newTestEnv(t)
	evaluator, err := engine.NewOPAEvaluator(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	env.svc.Policy = evaluator
	env.seedUser(t, "opa@example.com", false)
	if _, err := env.svc.Login(context.Background(), LoginInput{Email: "opa@example.com", Password: testPassword}); !errors.Is(err, ErrEmailNotConfirmed) {
		t.Fatalf("Login = %v, want ErrEmailNotConfirmed", err)
	}
	env.seedUser(t, "ok@example.com", true)
	env.login(t, "ok@example.com")
}

func TestLogin_EmailCaseAndDiacriticsInsensitive(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "José@Example.com", true)
	res := env.login(t, "jose@EXAMPLE.com")
	if res.UserID != u.ID {
		t.Errorf("UserID = %s, want %s", res.UserID, u.ID)
	}
}

func TestLogin_SessionCapEvictsOldest(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "erin@example.com", true)

	first := env.login(t, "erin@example.com")
	env.clock.Advance(time.Second)
	second := env.login(t, "erin@example.com")
	env.clock.Advance(time.Second)
	third := env.login(t, "erin@example.com")

	if !env.session(t, first.SessionID).IsRevoked() {
		t.Error("oldest session should be revoked")
	}
	if env.session(t, second.SessionID).IsRevoked() || env.session(t, third.SessionID).IsRevoked() {
		t.Error("newest sessions within the cap must stay live")
	}
	if !env.tokenByValue(t, first.RefreshToken).IsRevoked() {
		t.Error("evicted session's refresh token should be revoked")
	}
	if _, err := env.svc.Refresh(context.Background(), first.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh with evicted token = %v, want ErrInvalidRefreshToken", err)
	}
	if !slices.Contains(env.audit.actions(), auditdomain.ActionSessionEvicted) {
		t.Errorf("audit actions = %v, want session_evicted", env.audit.actions())
	}
}

func TestLogin_ConcurrentLoginsRespectSessionCap(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "gina@example.com", true)
	env.login(t, "gina@example.com")

	const logins = 6
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svc.Login(context.Background(), LoginInput{Email: "gina@example.com", Password: testPassword}); err != nil {
				t.Errorf("Login: %v", err)
			}
		}()
	}
	wg.Wait()

	active, err := memSessionRepo{env.store}.ListActiveByUser(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListActiveByUser: %v", err)
	}
	if len(active) != 2 {
		t.Errorf("active sessions = %d, want cap of 2", len(active))
	}
}

func TestLogin_RollsBackWhenTokenStoreFails(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "frank@example.com", true)
	_, _ = env.svc.Login(context.Background(), LoginInput{Email: "frank@example.com", Password: "wrong"})

	boom := errors.New("insert failed")
	env.tokens.createErr = boom
	_, err := env.svc.Login(context.Background(), LoginInput{Email: "frank@example.com", Password: testPassword})
	if !errors.Is(err, boom) {
		t.Fatalf("Login = %v, want wrapped %v", err, boom)
	}
	env.store.mu.Lock()
	sessions := len(env.store.sessions)
	env.store.mu.Unlock()
	if sessions != 0 {
		t.Errorf("sessions = %d, want 0 after rollback", sessions)
	}
	if got := env.user(t, u.ID).AccessFailedCount; got != 1 {
		t.Errorf("AccessFailedCount = %d, want 1 (reset rolled back)", got)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "gina@example.com", true)
	login := env.login(t, "gina@example.com")
	env.clock.Advance(time.Minute)

	res, err := env.svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken == login.RefreshToken || res.AccessToken == "" {
		t.Fatal("Refresh should return a new token pair")
	}
	if res.SessionID != login.SessionID || res.UserID != login.UserID {
		t.Errorf("Refresh bound to %s/%s, want %s/%s", res.SessionID, res.UserID, login.SessionID, login.UserID)
	}
	old := env.tokenByValue(t, login.RefreshToken)
	next := env.tokenByValue(t, res.RefreshToken)
	if !old.IsUsed() {
		t.Error("old refresh token should be marked used")
	}
	if old.ReplacedByTokenID != next.ID {
		t.Errorf("ReplacedByTokenID = %q, want %q", old.ReplacedByTokenID, next.ID)
	}
	if !tokenActive(*next, env.clock.Now()) {
		t.Error("new refresh token should be active")
	}
	if !env.session(t, login.SessionID).LastSeenAt.Equal(env.clock.Now()) {
		t.Error("refresh should touch the session")
	}
}

func TestRefresh_SecondUseFailsAndRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "hank@example.com", true)
	login := env.login(t, "hank@example.com")
	ctx := context.Background()

	rotated, err := env.svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if _, err := env.svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("second Refresh = %v, want ErrInvalidRefreshToken", err)
	}
	if !env.session(t, login.SessionID).IsRevoked() {
		t.Error("reuse should revoke the session")
	}
	if _, err := env.svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh with rotated token after reuse = %v, want ErrInvalidRefreshToken", err)
	}
	if !slices.Contains(env.audit.actions(), auditdomain.ActionRefreshReuse) {
		t.Errorf("audit actions = %v, want refresh_reuse", env.audit.actions())
	}
}

func TestRefresh_InvalidTokens(t *testing.T) {
	env := newTestEnv(t)
	for _, tok := range []string{"", "not-a-jwt"} {
		if _, err := env.svc.Refresh(context.Background(), tok); !errors.Is(err, ErrInvalidRefreshToken) {
			t.Errorf("Refresh(%q) = %v, want ErrInvalidRefreshToken", tok, err)
		}
	}
	env.seedUser(t, "ivy@example.com", true)
	login := env.login(t, "ivy@example.com")
	if _, err := env.svc.Refresh(context.Background(), login.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh with access token = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefresh_RevokedSessionKeepsTokenUnconsumed(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "jack@example.com", true)
	login := env.login(t, "jack@example.com")

	env.store.mu.Lock()
	sess := env.store.sessions[login.SessionID]
	sess.RevokedAt = timeRef(env.clock.Now())
	env.store.sessions[login.SessionID] = sess
	env.store.mu.Unlock()

	if _, err := env.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh = %v, want ErrInvalidRefreshToken", err)
	}
	if env.tokenByValue(t, login.RefreshToken).IsUsed() {
		t.Error("token consumption should roll back with the failed refresh")
	}
}

func TestRefresh_InactiveUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.seedUser(t, "kim@example.com", true)
	login := env.login(t, "kim@example.com")
	env.store.mu.Lock()
	u = env.store.users[u.ID]
	u.IsActive = false
	env.store.users[u.ID] = u
	env.store.mu.Unlock()

	if _, err := env.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestLogout_RevokesSessionAndTokens(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "lena@example.com", true)
	login := env.login(t, "lena@example.com")
	ctx := middleware.WithIdentity(context.Background(), login.UserID, login.SessionID)

	if err := env.svc.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if !env.session(t, login.SessionID).IsRevoked() {
		t.Error("session should be revoked")
	}
	if !env.tokenByValue(t, login.RefreshToken).IsRevoked() {
		t.Error("refresh token should be revoked")
	}
	if _, err := env.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Refresh after logout = %v, want ErrInvalidRefreshToken", err)
	}
	if err := env.svc.ValidateSession(context.Background(), login.SessionID, login.UserID); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("ValidateSession after logout = %v, want ErrNotAuthenticated", err)
	}
}

func TestLogout_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	if err := env.svc.Logout(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Logout without session = %v, want ErrNotAuthenticated", err)
	}
}

func TestValidateSession(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "mia@example.com", true)
	login := env.login(t, "mia@example.com")
	ctx := context.Background()

	if err := env.svc.ValidateSession(ctx, login.SessionID, login.UserID); err != nil {
		t.Errorf("ValidateSession: %v", err)
	}
	if err := env.svc.ValidateSession(ctx, login.SessionID, "someone-else"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("ValidateSession wrong user = %v", err)
	}
	if err := env.svc.ValidateSession(ctx, "missing", login.UserID); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("ValidateSession unknown session = %v", err)
	}
}
