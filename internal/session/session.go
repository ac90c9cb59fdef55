// Package session is the client side of sign-in: it owns the stored token
// pair, tracks whether the user is signed in, and consults the portal
// authorizer before navigation.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/courierdesk/gateway/internal/portal"
	"github.com/courierdesk/gateway/internal/token"
	"github.com/courierdesk/gateway/internal/user"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotSignedIn is returned by operations that need a stored session
var ErrNotSignedIn = errors.New("not signed in")

// API is the part of the gateway a session talks to
type API interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*token.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
}

// Session is a single owned sign-in state. It starts Unauthenticated; call
// Rehydrate once at startup.
//
// mu guards the in-memory state only. Gateway calls run without it so
// State and Navigate stay answerable while a sign-in is in flight. Every
// state change bumps gen; a result computed against an older gen is
// discarded.
type Session struct {
	mu         sync.Mutex
	gen        uint64
	state      portal.State
	claims     *token.Claims
	store      TokenStore
	api        API
	authorizer *portal.Authorizer
	now        func() time.Time
	logger     *zap.Logger
}

// errSuperseded is returned when another sign-in, refresh or logout changed
// the session while a request was in flight
var errSuperseded = errors.New("session changed while the request was in flight")

// Option configures a Session
type Option func(*Session)

// WithClock overrides the clock used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// New creates an Unauthenticated session
func New(store TokenStore, api API, authorizer *portal.Authorizer, opts ...Option) *Session {
	s := &Session{
		state:      portal.Anonymous(),
		store:      store,
		api:        api,
		authorizer: authorizer,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state
func (s *Session) State() portal.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Claims returns the decoded access token of an authenticated session
func (s *Session) Claims() (*token.Claims, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != portal.Authenticated || s.claims == nil {
		return nil, false
	}
	cp := *s.claims
	return &cp, true
}

// Rehydrate restores the session from storage. A decodable, unexpired
// access token signs the user in directly; an expired one is silently
// refreshed when a refresh token is stored. The session reads as
// Authenticating until this returns. A gateway rejection clears storage;
// a transport failure keeps the stored pair for the next attempt.
func (s *Session) Rehydrate(ctx context.Context) (portal.State, error) {
	gen, _ := s.begin()

	stored, err := s.store.Load(ctx)
	if err != nil {
		return s.commit(gen, func() { s.resetLocked(ctx) }), fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil || stored.AccessToken == "" {
		return s.commit(gen, func() { s.resetLocked(ctx) }), nil
	}

	claims, err := token.DecodeUnverified(stored.AccessToken)
	if err != nil || !claims.Role.Valid() {
		s.logger.Debug("stored access token unreadable", zap.Error(err))
		return s.commit(gen, func() { s.resetLocked(ctx) }), nil
	}

	if !claims.Expired(s.now()) {
		return s.commit(gen, func() { s.signInLocked(claims) }), nil
	}

	if stored.RefreshToken == "" {
		return s.commit(gen, func() { s.resetLocked(ctx) }), nil
	}

	pair, err := s.api.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		s.logger.Debug("silent refresh failed", zap.Error(err))
		if rejected(err) {
			return s.commit(gen, func() { s.resetLocked(ctx) }), nil
		}
		return s.commit(gen, s.signOutLocked), nil
	}

	var adoptErr error
	st := s.commit(gen, func() {
		if adoptErr = s.adoptLocked(ctx, pair); adoptErr != nil {
			s.resetLocked(ctx)
		}
	})
	return st, adoptErr
}

// Login signs in with email and password and persists the pair. The
// session reads as Authenticating while the gateway answers.
func (s *Session) Login(ctx context.Context, email, password string) (*user.Profile, error) {
	gen, prev := s.begin()
	if prev.Phase == portal.Authenticating {
		// the rehydration this login superseded will not commit
		prev = portal.Anonymous()
	}

	res, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.commit(gen, func() { s.state = prev })
		return nil, err
	}

	var adoptErr error
	applied := false
	s.commit(gen, func() {
		applied = true
		if adoptErr = s.adoptLocked(ctx, res.Token); adoptErr != nil {
			s.resetLocked(ctx)
		}
	})
	if !applied {
		return nil, errSuperseded
	}
	if adoptErr != nil {
		return nil, adoptErr
	}
	return &res.User, nil
}

// Refresh rotates the stored pair now
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()

	stored, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if stored == nil || stored.RefreshToken == "" {
		return ErrNotSignedIn
	}

	pair, err := s.api.Refresh(ctx, stored.RefreshToken)
	if err != nil {
		if rejected(err) {
			s.commit(gen, func() { s.resetLocked(ctx) })
		}
		return err
	}

	var adoptErr error
	applied := false
	s.commit(gen, func() {
		applied = true
		adoptErr = s.adoptLocked(ctx, pair)
	})
	if !applied {
		return errSuperseded
	}
	return adoptErr
}

// Logout clears local state and storage, then asks the gateway to revoke
// the refresh token. Local sign-out happens even when that call fails, and
// it supersedes any sign-in still in flight.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	stored, _ := s.store.Load(ctx)
	clearErr := s.store.Clear(ctx)
	s.signOutLocked()
	s.mu.Unlock()

	var apiErr error
	if stored != nil && stored.AccessToken != "" {
		if apiErr = s.api.Logout(ctx, stored.AccessToken); apiErr != nil {
			s.logger.Warn("server logout failed", zap.Error(apiErr))
		}
	}

	if clearErr != nil {
		return fmt.Errorf("failed to clear session: %w", clearErr)
	}
	return apiErr
}

// Navigate reports what should happen when the user opens target. It
// never changes the session state.
func (s *Session) Navigate(target string) portal.Decision {
	return s.authorizer.Decide(target, s.State())
}

// AccessToken returns the stored access token of an authenticated session
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Phase != portal.Authenticated {
		return "", ErrNotSignedIn
	}
	stored, err := s.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if stored == nil {
		return "", ErrNotSignedIn
	}
	return stored.AccessToken, nil
}

// begin marks the session Authenticating and returns the new generation
// along with the state it replaced
func (s *Session) begin() (uint64, portal.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	prev := s.state
	s.state = portal.Pending()
	return s.gen, prev
}

// commit applies fn if nothing changed the session since gen was taken,
// and returns the state either way
func (s *Session) commit(gen uint64, fn func()) portal.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return s.state
	}
	s.gen++
	fn()
	return s.state
}

func (s *Session) adoptLocked(ctx context.Context, pair *token.TokenPair) error {
	if pair == nil {
		return errors.New("gateway returned no token pair")
	}
	claims, err := token.DecodeUnverified(pair.AccessToken)
	if err != nil {
		return fmt.Errorf("gateway returned an unreadable access token: %w", err)
	}
	if err := s.store.Save(ctx, &Tokens{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.signInLocked(claims)
	return nil
}

func (s *Session) signInLocked(claims *token.Claims) {
	s.claims = claims
	s.state = portal.SignedIn(claims.Role)
}

func (s *Session) signOutLocked() {
	s.claims = nil
	s.state = portal.Anonymous()
}

func (s *Session) resetLocked(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear session storage", zap.Error(err))
	}
	s.signOutLocked()
}

// rejected reports whether the gateway refused the stored credentials, as
// opposed to not being reachable
func rejected(err error) bool {
	return errors.Is(err, apperrors.ErrTokenExpired) ||
		errors.Is(err, apperrors.ErrInvalidToken) ||
		errors.Is(err, apperrors.ErrTokenRevoked) ||
		errors.Is(err, apperrors.ErrAccountNotActive) ||
		errors.Is(err, apperrors.ErrUnauthorized)
}
