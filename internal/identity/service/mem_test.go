package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	confirmationdomain "taskflow/backend/internal/confirmation/domain"
	"taskflow/backend/internal/jobs"
	refreshtokendomain "taskflow/backend/internal/refreshtoken/domain"
	roledomain "taskflow/backend/internal/role/domain"
	"taskflow/backend/internal/security"
	sessiondomain "taskflow/backend/internal/session/domain"
	userdomain "taskflow/backend/internal/user/domain"
	userrepo "taskflow/backend/internal/user/repository"
)

// memStore holds every table behind one mutex so memUnitOfWork can snapshot and restore it.
type memStore struct {
	mu        sync.Mutex
	users     map[string]userdomain.User
	roles     map[string]roledomain.Role
	userRoles map[string][]string
	sessions  map[string]sessiondomain.Session
	tokens    map[string]refreshtokendomain.RefreshToken
	codes     map[string]confirmationdomain.Code
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[string]userdomain.User{},
		roles:     map[string]roledomain.Role{},
		userRoles: map[string][]string{},
		sessions:  map[string]sessiondomain.Session{},
		tokens:    map[string]refreshtokendomain.RefreshToken{},
		codes:     map[string]confirmationdomain.Code{},
	}
}

type memSnapshot struct {
	users     map[string]userdomain.User
	userRoles map[string][]string
	sessions  map[string]sessiondomain.Session
	tokens    map[string]refreshtokendomain.RefreshToken
	codes     map[string]confirmationdomain.Code
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make(map[string][]string, len(s.userRoles))
	for k, v := range s.userRoles {
		roles[k] = append([]string(nil), v...)
	}
	return memSnapshot{
		users:     copyMap(s.users),
		userRoles: roles,
		sessions:  copyMap(s.sessions),
		tokens:    copyMap(s.tokens),
		codes:     copyMap(s.codes),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users, s.userRoles, s.sessions, s.tokens, s.codes = snap.users, snap.userRoles, snap.sessions, snap.tokens, snap.codes
}

func timeRef(t time.Time) *time.Time { return &t }

// tokenActive and codeActive mirror the WHERE clauses of the postgres repositories.
func tokenActive(t refreshtokendomain.RefreshToken, now time.Time) bool {
	return t.UsedAt == nil && t.RevokedAt == nil && t.ExpiresAt.After(now)
}

func codeActive(c confirmationdomain.Code, now time.Time) bool {
	return c.UsedAt == nil && c.ExpiresAt.After(now)
}

type txMarker struct{}

// memUnitOfWork restores the store when fn fails; nested calls join the outer one.
// Outer transactions run one at a time, standing in for the row locks they take.
type memUnitOfWork struct {
	store *memStore
	mu    sync.Mutex
	calls int
}

func (u *memUnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return fn(ctx)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	snap := u.store.snapshot()
	defer func() {
		if p := recover(); p != nil {
			u.store.restore(snap)
			panic(p)
		}
	}()
	if err := fn(context.WithValue(ctx, txMarker{}, true)); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}

type memUserRepo struct{ *memStore }

func (r memUserRepo) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, nil
	}
	return &u, nil
}

func (r memUserRepo) GetByNormalizedEmail(_ context.Context, normalized string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.NormalizedEmail == normalized && u.DeletedAt == nil {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r memUserRepo) Create(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.NormalizedEmail == u.NormalizedEmail && existing.DeletedAt == nil {
			return userrepo.ErrDuplicateEmail
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r memUserRepo) update(id string, fn func(u *userdomain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return errors.New("user not found")
	}
	fn(&u)
	r.users[id] = u
	return nil
}

func (r memUserRepo) UpdateLoginState(_ context.Context, id string, count int, lockoutEnd *time.Time, at time.Time) error {
	return r.update(id, func(u *userdomain.User) {
		u.AccessFailedCount = count
		u.LockoutEnd = lockoutEnd
		u.UpdatedAt = at
	})
}

func (r memUserRepo) LockForUpdate(ctx context.Context, id string) error {
	if ctx.Value(txMarker{}) == nil {
		return errors.New("lock for update outside transaction")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return errors.New("user not found")
	}
	return nil
}

func (r memUserRepo) RecordFailedAttempt(_ context.Context, id string, maxAttempts int, lockoutEnd, at time.Time) (userdomain.FailedAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return userdomain.FailedAttempt{}, nil
	}
	var res userdomain.FailedAttempt
	switch {
	case u.LockoutEnd != nil && u.LockoutEnd.After(at):
	case u.AccessFailedCount+1 >= maxAttempts:
		u.AccessFailedCount = 0
		u.LockoutEnd = timeRef(lockoutEnd)
		res.Locked = true
	default:
		u.AccessFailedCount++
	}
	u.UpdatedAt = at
	r.users[id] = u
	res.LockoutEnd = u.LockoutEnd
	return res, nil
}

func (r memUserRepo) SetEmailConfirmed(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *userdomain.User) {
		u.EmailConfirmed = true
		u.UpdatedAt = at
	})
}

func (r memUserRepo) UpdatePassword(_ context.Context, id, hash string, at time.Time) error {
	return r.update(id, func(u *userdomain.User) {
		u.PasswordHash = hash
		u.AccessFailedCount = 0
		u.LockoutEnd = nil
		u.UpdatedAt = at
	})
}

type memRoleRepo struct{ *memStore }

func (r memRoleRepo) GetByName(_ context.Context, name string) (*roledomain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if strings.EqualFold(role.Name, name) && role.DeletedAt == nil {
			role := role
			return &role, nil
		}
	}
	return nil, nil
}

func (r memRoleRepo) AssignToUser(_ context.Context, userID, roleID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userRoles[userID] = append(r.userRoles[userID], roleID)
	return nil
}

type memSessionRepo struct{ *memStore }

func (r memSessionRepo) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r memSessionRepo) Create(_ context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = *s
	return nil
}

func (r memSessionRepo) ListActiveByUser(_ context.Context, userID string) ([]*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r memSessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	return r.RevokeMany(ctx, []string{id}, at)
}

func (r memSessionRepo) RevokeMany(_ context.Context, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if s, ok := r.sessions[id]; ok && s.RevokedAt == nil {
			s.RevokedAt = timeRef(at)
			r.sessions[id] = s
		}
	}
	return nil
}

func (r memSessionRepo) RevokeAllByUser(_ context.Context, userID string, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = timeRef(at)
			r.sessions[id] = s
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r memSessionRepo) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		s.LastSeenAt = at
		r.sessions[id] = s
	}
	return nil
}

type memRefreshTokenRepo struct {
	*memStore
	createErr error
}

func (r *memRefreshTokenRepo) Create(_ context.Context, t *refreshtokendomain.RefreshToken) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[t.ID] = *t
	return nil
}

func (r *memRefreshTokenRepo) Consume(_ context.Context, hash string, now time.Time) (*refreshtokendomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.TokenHash == hash && tokenActive(t, now) {
			t.UsedAt = timeRef(now)
			r.tokens[id] = t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memRefreshTokenRepo) GetByHash(_ context.Context, hash string) (*refreshtokendomain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.TokenHash == hash {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (r *memRefreshTokenRepo) SetReplacedBy(_ context.Context, id, newID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[id]
	if !ok {
		return errors.New("token not found")
	}
	t.ReplacedByTokenID = newID
	r.tokens[id] = t
	return nil
}

func (r *memRefreshTokenRepo) RevokeBySessions(_ context.Context, ids []string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in := map[string]bool{}
	for _, id := range ids {
		in[id] = true
	}
	for id, t := range r.tokens {
		if in[t.SessionID] && t.RevokedAt == nil {
			t.RevokedAt = timeRef(at)
			r.tokens[id] = t
		}
	}
	return nil
}

type memCodeRepo struct{ *memStore }

func (r memCodeRepo) Create(_ context.Context, c *confirmationdomain.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[c.ID] = *c
	return nil
}

func (r memCodeRepo) InvalidateActive(_ context.Context, userID string, typ confirmationdomain.Type, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.codes {
		if c.UserID == userID && c.Type == typ && codeActive(c, now) {
			c.UsedAt = timeRef(now)
			r.codes[id] = c
		}
	}
	return nil
}

func (r memCodeRepo) find(userID string, typ confirmationdomain.Type, hash string, now time.Time) (string, bool) {
	for id, c := range r.codes {
		if c.UserID == userID && c.Type == typ && c.CodeHash == hash && codeActive(c, now) {
			return id, true
		}
	}
	return "", false
}

func (r memCodeRepo) Consume(_ context.Context, userID string, typ confirmationdomain.Type, hash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.find(userID, typ, hash, now)
	if !ok {
		return false, nil
	}
	c := r.codes[id]
	c.UsedAt = timeRef(now)
	r.codes[id] = c
	return true, nil
}

func (r memCodeRepo) Exists(_ context.Context, userID string, typ confirmationdomain.Type, hash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.find(userID, typ, hash, now)
	return ok, nil
}

type recordingJobs struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (r *recordingJobs) Enqueue(_ context.Context, job jobs.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *recordingJobs) all() []jobs.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]jobs.Job(nil), r.jobs...)
}

// lastCode returns the code carried by the most recent send_email job for template.
func (r *recordingJobs) lastCode(t *testing.T, template string) string {
	t.Helper()
	all := r.all()
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Type == jobs.TypeSendEmail && all[i].Template == template {
			return all[i].Data["code"]
		}
	}
	t.Fatalf("no %s email enqueued", template)
	return ""
}

type auditEntry struct {
	userID, sessionID, action string
	metadata                  map[string]string
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (a *recordingAudit) LogEvent(_ context.Context, userID, sessionID, action string, metadata map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, auditEntry{userID, sessionID, action, metadata})
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		out = append(out, e.action)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

const testPassword = "Correct-Horse-1"

type testEnv struct {
	svc    *AuthService
	store  *memStore
	tokens *memRefreshTokenRepo
	uow    *memUnitOfWork
	hasher *security.Hasher
	jobs   *recordingJobs
	audit  *recordingAudit
	clock  *fakeClock
}

func defaultTestOptions() Options {
	return Options{
		MaxFailedAccessAttempts:  3,
		LockoutDuration:          5 * time.Minute,
		LockoutEnabled:           true,
		MaxActiveSessionsPerUser: 2,
		RequireConfirmedEmail:    true,
		ConfirmationCodeTTL:      15 * time.Minute,
		ConfirmationCodeLength:   6,
		DefaultRole:              roledomain.RoleMember,
		PasswordPolicy:           security.DefaultPasswordPolicy(),
	}
}

func newTestEnv(t *testing.T, mutate ...func(*Options)) *testEnv {
	t.Helper()
	opts := defaultTestOptions()
	for _, m := range mutate {
		m(&opts)
	}
	tp, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	store := newMemStore()
	store.roles["role-member"] = roledomain.Role{ID: "role-member", Name: roledomain.RoleMember}
	env := &testEnv{
		store:  store,
		tokens: &memRefreshTokenRepo{memStore: store},
		uow:    &memUnitOfWork{store: store},
		hasher: security.NewHasher(4),
		jobs:   &recordingJobs{},
		audit:  &recordingAudit{},
		// Token expiry is stamped from the wall clock, so the fake clock starts there.
		clock: &fakeClock{now: time.Now().UTC()},
	}
	env.svc = NewAuthService(Deps{
		Users:         memUserRepo{store},
		Roles:         memRoleRepo{store},
		Sessions:      memSessionRepo{store},
		RefreshTokens: env.tokens,
		Codes:         memCodeRepo{store},
		UnitOfWork:    env.uow,
		Hasher:        env.hasher,
		Tokens:        tp,
		Jobs:          env.jobs,
		Audit:         env.audit,
	}, opts).WithClock(env.clock.Now)
	return env
}

// seedUser stores an active user with testPassword. confirmed sets EmailConfirmed.
func (e *testEnv) seedUser(t *testing.T, email string, confirmed bool) userdomain.User {
	t.Helper()
	hash, err := e.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	now := e.clock.Now()
	u := userdomain.User{
		ID:              uuid.New().String(),
		Email:           email,
		NormalizedEmail: security.NormalizeEmail(email),
		PasswordHash:    hash,
		EmailConfirmed:  confirmed,
		LockoutEnabled:  true,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	e.store.mu.Lock()
	e.store.users[u.ID] = u
	e.store.mu.Unlock()
	return u
}

func (e *testEnv) user(t *testing.T, id string) userdomain.User {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	u, ok := e.store.users[id]
	if !ok {
		t.Fatalf("user %s not found", id)
	}
	return u
}

func (e *testEnv) session(t *testing.T, id string) *sessiondomain.Session {
	t.Helper()
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	s, ok := e.store.sessions[id]
	if !ok {
		t.Fatalf("session %s not found", id)
	}
	return &s
}

func (e *testEnv) tokenByValue(t *testing.T, token string) *refreshtokendomain.RefreshToken {
	t.Helper()
	hash := security.HashRefreshToken(token)
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	for _, rt := range e.store.tokens {
		if rt.TokenHash == hash {
			return &rt
		}
	}
	t.Fatal("refresh token row not found")
	return nil
}

func (e *testEnv) login(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), LoginInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return res
}
