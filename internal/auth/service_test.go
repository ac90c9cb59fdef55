package auth

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/courierdesk/gateway/internal/ratelimit"
	"github.com/courierdesk/gateway/internal/token"
	"github.com/courierdesk/gateway/internal/user"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct-horse-battery"

// memoryStore is an in-memory UserStore whose swap is atomic per store,
// mirroring the conditional UPDATE in the Postgres repository.
type memoryStore struct {
	mu       sync.Mutex
	users    map[string]*user.User
	attempts []user.LoginAttempt
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: make(map[string]*user.User)}
}

func (m *memoryStore) add(t *testing.T, id, email string, role user.Role, status user.Status) *user.User {
	t.Helper()
	digest, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	u := &user.User{ID: id, Email: email, PasswordDigest: string(digest), Role: role, Status: status}
	m.mu.Lock()
	m.users[id] = u
	m.mu.Unlock()
	return u
}

func (m *memoryStore) FindByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) FindByID(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryStore) UpdateLastLoggedOn(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLoggedOn = sql.NullTime{Time: time.Now(), Valid: true}
	}
	return nil
}

func (m *memoryStore) SetRefreshTokenHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.RefreshTokenHash = sql.NullString{String: hash, Valid: true}
	}
	return nil
}

func (m *memoryStore) SwapRefreshTokenHash(_ context.Context, id, oldHash, newHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.RefreshTokenHash.Valid || u.RefreshTokenHash.String != oldHash {
		return false, nil
	}
	u.RefreshTokenHash = sql.NullString{String: newHash, Valid: true}
	return true, nil
}

func (m *memoryStore) ClearRefreshTokenHash(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.RefreshTokenHash = sql.NullString{}
	}
	return nil
}

func (m *memoryStore) RecordLoginAttempt(_ context.Context, email, ipAddress, method string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, user.LoginAttempt{Email: email, IPAddress: ipAddress, Method: method, Success: success})
	return nil
}

func (m *memoryStore) refreshHash(id string) sql.NullString {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].RefreshTokenHash
}

type denyingLimiter struct{}

func (denyingLimiter) Check(context.Context, string, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{LockoutRemaining: 90 * time.Second}, nil
}
func (denyingLimiter) RecordFailure(context.Context, string, string) error { return nil }
func (denyingLimiter) RecordSuccess(context.Context, string, string) error { return nil }

func newTestTokens(opts ...token.Option) *token.Service {
	return token.NewService(
		"test-access-secret-minimum-32-chars",
		"test-refresh-secret-minimum-32-chars",
		15*time.Minute,
		168*time.Hour,
		opts...,
	)
}

func newTestService(t *testing.T) (*Service, *memoryStore) {
	t.Helper()
	store := newMemoryStore()
	store.add(t, "11111111-1111-4111-8111-111111111111", "courier@example.com", user.RoleCourier, user.StatusActive)
	store.add(t, "22222222-2222-4222-8222-222222222222", "shop@example.com", user.RoleCompany, user.StatusActive)
	store.add(t, "33333333-3333-4333-8333-333333333333", "pending@example.com", user.RoleCourier, user.StatusPending)
	store.add(t, "44444444-4444-4444-8444-444444444444", "suspended@example.com", user.RoleCompany, user.StatusSuspended)
	store.add(t, "55555555-5555-4555-8555-555555555555", "blocked@example.com", user.RoleCourier, user.StatusBlocked)
	return NewService(store, newTestTokens(), nil, nil), store
}

func TestService_LoginSuccess(t *testing.T) {
	svc, store := newTestService(t)
	tokens := newTestTokens()

	resp, err := svc.Login(context.Background(), "  Shop@Example.COM ", testPassword, "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, resp.Token)

	claims, err := tokens.ValidateAccess(resp.Token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.RoleCompany, claims.Role)
	assert.Equal(t, "22222222-2222-4222-8222-222222222222", claims.UserID())
	assert.Equal(t, user.RoleCompany, resp.User.Role)

	stored := store.refreshHash("22222222-2222-4222-8222-222222222222")
	require.True(t, stored.Valid)
	assert.Equal(t, token.HashToken(resp.Token.RefreshToken), stored.String)
}

func TestService_LoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, wrongPassword := svc.Login(ctx, "courier@example.com", "not-the-password", "10.0.0.1")
	_, unknownEmail := svc.Login(ctx, "ghost@example.com", testPassword, "10.0.0.1")

	require.ErrorIs(t, wrongPassword, apperrors.ErrInvalidCredentials)
	require.ErrorIs(t, unknownEmail, apperrors.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())

	a, _ := apperrors.As(wrongPassword)
	b, _ := apperrors.As(unknownEmail)
	assert.Equal(t, *a, *b)
}

func TestService_LoginInactiveAccounts(t *testing.T) {
	tests := []struct {
		email  string
		id     string
		reason string
	}{
		{"pending@example.com", "33333333-3333-4333-8333-333333333333", "PENDING"},
		{"suspended@example.com", "44444444-4444-4444-8444-444444444444", "SUSPENDED"},
		{"blocked@example.com", "55555555-5555-4555-8555-555555555555", "BLOCKED"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			svc, store := newTestService(t)

			resp, err := svc.Login(context.Background(), tt.email, testPassword, "10.0.0.1")
			assert.Nil(t, resp)
			require.ErrorIs(t, err, apperrors.ErrAccountNotActive)

			appErr, ok := apperrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.reason, appErr.Reason)
			assert.False(t, store.refreshHash(tt.id).Valid, "no refresh token may be issued")
		})
	}
}

func TestService_LoginInactiveWithWrongPasswordIsGeneric(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "pending@example.com", "wrong-password", "10.0.0.1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestService_LoginRateLimited(t *testing.T) {
	store := newMemoryStore()
	store.add(t, "11111111-1111-4111-8111-111111111111", "courier@example.com", user.RoleCourier, user.StatusActive)
	svc := NewService(store, newTestTokens(), denyingLimiter{}, nil)

	_, err := svc.Login(context.Background(), "courier@example.com", testPassword, "10.0.0.1")
	require.ErrorIs(t, err, apperrors.ErrRateLimitExceeded)
	assert.Contains(t, err.Error(), "1m30s")
}

func TestService_LoginRecordsAudit(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Login(ctx, "courier@example.com", "bad-password", "10.0.0.9")
	_, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.9")
	require.NoError(t, err)

	require.Len(t, store.attempts, 2)
	assert.False(t, store.attempts[0].Success)
	assert.True(t, store.attempts[1].Success)
	assert.Equal(t, MethodPassword, store.attempts[1].Method)
}

func TestService_RefreshRotation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)

	rotated, err := svc.Refresh(ctx, login.Token.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Token.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(ctx, login.Token.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	_, err = svc.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestService_NewLoginSupersedesRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.2")
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, first.Token.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestService_LogoutRevokesRefresh(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, login.User.ID))

	_, err = svc.Refresh(ctx, login.Token.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrTokenRevoked)

	// Access tokens remain usable until they expire
	_, err = svc.ValidateToken(login.Token.AccessToken)
	require.NoError(t, err)
}

func TestService_ConcurrentRefreshOnlyOneWins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)

	const racers = 8
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]error, racers)
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, results[i] = svc.Refresh(ctx, login.Token.RefreshToken)
		}(i)
	}
	close(start)
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
	}
	assert.Equal(t, 1, succeeded)
}

func TestService_RefreshRejectsSuspendedUser(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)

	store.mu.Lock()
	store.users[login.User.ID].Status = user.StatusSuspended
	store.mu.Unlock()

	_, err = svc.Refresh(ctx, login.Token.RefreshToken)
	require.ErrorIs(t, err, apperrors.ErrAccountNotActive)
}

func TestService_RefreshTokenErrors(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	past := time.Now().Add(-200 * time.Hour)
	stale, err := newTestTokens(token.WithClock(func() time.Time { return past })).
		Issue(token.IdentityOf(&user.User{ID: "11111111-1111-4111-8111-111111111111", Role: user.RoleCourier}))
	require.NoError(t, err)
	require.NoError(t, store.SetRefreshTokenHash(ctx, "11111111-1111-4111-8111-111111111111", token.HashToken(stale.RefreshToken)))

	_, err = svc.Refresh(ctx, stale.RefreshToken)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)

	_, err = svc.Refresh(ctx, "aaa.bbb.ccc")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	login, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, login.Token.AccessToken)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken, "access tokens are signed with the other secret")
}

func TestService_ValidateTokenExpiredIsDistinct(t *testing.T) {
	svc, _ := newTestService(t)

	past := time.Now().Add(-time.Hour)
	pair, err := newTestTokens(token.WithClock(func() time.Time { return past })).Issue(token.Identity{
		UserID: "11111111-1111-4111-8111-111111111111",
		Email:  "courier@example.com",
		Role:   user.RoleCourier,
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.AccessToken)
	require.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.False(t, errors.Is(err, apperrors.ErrInvalidToken))

	_, err = svc.ValidateToken("garbage")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestService_CurrentUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "courier@example.com", testPassword, "10.0.0.1")
	require.NoError(t, err)
	claims, err := svc.ValidateToken(login.Token.AccessToken)
	require.NoError(t, err)

	u, err := svc.CurrentUser(ctx, claims)
	require.NoError(t, err)
	assert.Equal(t, "courier@example.com", u.Email)
	assert.True(t, u.LastLoggedOn.Valid)
}
