package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courierdesk/gateway/internal/metrics"
	"github.com/courierdesk/gateway/internal/ratelimit"
	"github.com/courierdesk/gateway/internal/token"
	"github.com/courierdesk/gateway/internal/user"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Login methods, used for audit rows and metrics
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
)

// UserStore is the credential store the service needs
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	FindByID(ctx context.Context, id string) (*user.User, error)
	UpdateLastLoggedOn(ctx context.Context, id string) error
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	SwapRefreshTokenHash(ctx context.Context, id, oldHash, newHash string) (bool, error)
	ClearRefreshTokenHash(ctx context.Context, id string) error
	RecordLoginAttempt(ctx context.Context, email, ipAddress, method string, success bool) error
}

// TokenIssuer issues and verifies token pairs
type TokenIssuer interface {
	Issue(id token.Identity) (*token.TokenPair, error)
	ValidateAccess(raw string) (*token.Claims, error)
	ValidateRefresh(raw string) (*jwt.RegisteredClaims, error)
}

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Check(ctx context.Context, email, ipAddress string) (ratelimit.Decision, error)
	RecordFailure(ctx context.Context, email, ipAddress string) error
	RecordSuccess(ctx context.Context, email, ipAddress string) error
}

// Service handles authentication business logic
type Service struct {
	users       UserStore
	tokens      TokenIssuer
	rateLimiter RateLimiter
	logger      *zap.Logger
}

// NewService creates a new authentication service. rateLimiter may be nil.
func NewService(users UserStore, tokens TokenIssuer, rateLimiter RateLimiter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:       users,
		tokens:      tokens,
		rateLimiter: rateLimiter,
		logger:      logger,
	}
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token *token.TokenPair `json:"token"`
	User  user.Profile     `json:"user"`
}

// Login authenticates with email and password. Unknown emails and wrong
// passwords fail with the same error and comparable latency.
func (s *Service) Login(ctx context.Context, email, password, ipAddress string) (*LoginResponse, error) {
	start := time.Now()
	email = NormalizeEmail(email)

	if s.rateLimiter != nil {
		decision, err := s.rateLimiter.Check(ctx, email, ipAddress)
		if err != nil {
			// Redis trouble must not lock everyone out
			s.logger.Warn("rate limiter check failed", zap.Error(err))
		} else if !decision.Allowed {
			metrics.RecordRateLimitHit()
			metrics.RecordLoginAttempt(MethodPassword, metrics.OutcomeBlocked, time.Since(start))
			return nil, apperrors.ErrRateLimitExceeded.WithMessage(
				fmt.Sprintf("Too many login attempts, try again in %v", decision.LockoutRemaining.Round(time.Second)))
		}
	}

	usr, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if usr == nil {
		burnPasswordCheck(password)
		s.recordFailure(ctx, email, ipAddress, MethodPassword, start)
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := VerifyPassword(password, usr.PasswordDigest); err != nil {
		if !errors.Is(err, errPasswordMismatch) {
			s.logger.Error("stored password digest unusable", zap.String("user_id", usr.ID), zap.Error(err))
		}
		s.recordFailure(ctx, email, ipAddress, MethodPassword, start)
		return nil, apperrors.ErrInvalidCredentials
	}

	resp, err := s.CompleteLogin(ctx, usr, MethodPassword, ipAddress)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotActive) {
			metrics.RecordLoginAttempt(MethodPassword, metrics.OutcomeInactive, time.Since(start))
		}
		return nil, err
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.RecordSuccess(ctx, email, ipAddress); err != nil {
			s.logger.Warn("failed to reset rate limit counter", zap.Error(err))
		}
	}
	metrics.RecordLoginAttempt(MethodPassword, metrics.OutcomeSuccess, time.Since(start))

	return resp, nil
}

// CompleteLogin finishes a login for an already authenticated user:
// status gate, token issuance and bookkeeping.
func (s *Service) CompleteLogin(ctx context.Context, usr *user.User, method, ipAddress string) (*LoginResponse, error) {
	if err := checkStatus(usr.Status); err != nil {
		s.audit(ctx, usr.Email, ipAddress, method, false)
		return nil, err
	}

	pair, err := s.issue(ctx, usr)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, usr.Email, ipAddress, method, true)
	if err := s.users.UpdateLastLoggedOn(ctx, usr.ID); err != nil {
		s.logger.Warn("failed to update last_logged_on", zap.String("user_id", usr.ID), zap.Error(err))
	}

	s.logger.Info("user logged in",
		zap.String("user_id", usr.ID),
		zap.String("role", usr.Role.String()),
		zap.String("method", method),
	)

	return &LoginResponse{Token: pair, User: usr.Profile()}, nil
}

// issue creates a pair and makes its refresh token the only valid one
func (s *Service) issue(ctx context.Context, usr *user.User) (*token.TokenPair, error) {
	pair, err := s.tokens.Issue(token.IdentityOf(usr))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	if err := s.users.SetRefreshTokenHash(ctx, usr.ID, token.HashToken(pair.RefreshToken)); err != nil {
		return nil, fmt.Errorf("failed to persist refresh token: %w", err)
	}
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. Every successful call
// rotates the stored reference, so the presented token becomes unusable.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.TokenPair, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			metrics.RecordRefresh(metrics.OutcomeExpired)
			return nil, apperrors.ErrTokenExpired
		}
		metrics.RecordRefresh(metrics.OutcomeInvalid)
		return nil, apperrors.ErrInvalidToken
	}

	usr, err := s.users.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	presented := token.HashToken(refreshToken)
	if usr == nil || !usr.RefreshTokenHash.Valid || usr.RefreshTokenHash.String != presented {
		metrics.RecordRefresh(metrics.OutcomeRevoked)
		return nil, apperrors.ErrTokenRevoked
	}

	if err := checkStatus(usr.Status); err != nil {
		metrics.RecordRefresh(metrics.OutcomeInactive)
		return nil, err
	}

	pair, err := s.tokens.Issue(token.IdentityOf(usr))
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	swapped, err := s.users.SwapRefreshTokenHash(ctx, usr.ID, presented, token.HashToken(pair.RefreshToken))
	if err != nil {
		return nil, err
	}
	if !swapped {
		// Lost a race with another refresh or a logout
		metrics.RecordRefresh(metrics.OutcomeRevoked)
		return nil, apperrors.ErrTokenRevoked
	}

	metrics.RecordRefresh(metrics.OutcomeSuccess)
	return pair, nil
}

// Logout revokes the user's refresh token. Outstanding access tokens stay
// valid until they expire.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshTokenHash(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	s.logger.Info("user logged out", zap.String("user_id", userID))
	return nil
}

// ValidateToken validates a bearer access token
func (s *Service) ValidateToken(raw string) (*token.Claims, error) {
	claims, err := s.tokens.ValidateAccess(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			metrics.RecordJWTValidation(metrics.OutcomeExpired)
			return nil, apperrors.ErrTokenExpired
		}
		metrics.RecordJWTValidation(metrics.OutcomeInvalid)
		return nil, apperrors.ErrInvalidToken
	}
	metrics.RecordJWTValidation(metrics.OutcomeSuccess)
	return claims, nil
}

// CurrentUser loads the user behind an access token
func (s *Service) CurrentUser(ctx context.Context, claims *token.Claims) (*user.User, error) {
	usr, err := s.users.FindByID(ctx, claims.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if usr == nil {
		return nil, apperrors.ErrUnauthorized
	}
	return usr, nil
}

func (s *Service) recordFailure(ctx context.Context, email, ipAddress, method string, start time.Time) {
	s.audit(ctx, email, ipAddress, method, false)
	if s.rateLimiter != nil {
		if err := s.rateLimiter.RecordFailure(ctx, email, ipAddress); err != nil {
			s.logger.Warn("failed to record failed attempt", zap.Error(err))
		}
	}
	metrics.RecordLoginAttempt(method, metrics.OutcomeFailure, time.Since(start))
}

func (s *Service) audit(ctx context.Context, email, ipAddress, method string, success bool) {
	if err := s.users.RecordLoginAttempt(ctx, email, ipAddress, method, success); err != nil {
		s.logger.Warn("failed to record login attempt", zap.Error(err))
	}
}

// checkStatus maps a non-active status to its caller-visible reason
func checkStatus(status user.Status) error {
	switch status {
	case user.StatusActive:
		return nil
	case user.StatusPending:
		return apperrors.ErrAccountNotActive.WithReason(string(user.StatusPending)).
			WithMessage("Account is awaiting approval")
	case user.StatusSuspended:
		return apperrors.ErrAccountNotActive.WithReason(string(user.StatusSuspended)).
			WithMessage("Account is suspended")
	case user.StatusBlocked:
		return apperrors.ErrAccountNotActive.WithReason(string(user.StatusBlocked)).
			WithMessage("Account is blocked")
	default:
		return apperrors.ErrAccountNotActive
	}
}
