package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/courierdesk/gateway/internal/auth"
	"github.com/courierdesk/gateway/internal/metrics"
	"github.com/courierdesk/gateway/internal/user"
	apperrors "github.com/courierdesk/gateway/pkg/errors"
	"go.uber.org/zap"
)

// Provider is an OAuth identity provider flow
type Provider interface {
	AuthURL(ctx context.Context, returnPath string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*UserInfo, string, error)
}

// UserFinder looks up the account a provider identity maps to
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
}

// LoginCompleter applies status checks and issues tokens for a user the
// provider has authenticated
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, usr *user.User, method, ipAddress string) (*auth.LoginResponse, error)
}

// AuthService signs existing users in with Google. Accounts are never
// created here; the verified Google email must match a stored user.
type AuthService struct {
	users  UserFinder
	logins LoginCompleter
	google Provider
	logger *zap.Logger
}

// NewAuthService creates a new OAuth authentication service
func NewAuthService(users UserFinder, logins LoginCompleter, google Provider, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:  users,
		logins: logins,
		google: google,
		logger: logger,
	}
}

// AuthenticateWithGoogle completes the Google callback and returns the
// login result with the return path stored alongside the state
func (s *AuthService) AuthenticateWithGoogle(ctx context.Context, code, state, ipAddress string) (*auth.LoginResponse, string, error) {
	start := time.Now()

	info, returnPath, err := s.google.HandleCallback(ctx, code, state)
	if err != nil {
		metrics.RecordLoginAttempt(auth.MethodGoogle, metrics.OutcomeFailure, time.Since(start))
		if errors.Is(err, ErrInvalidState) {
			return nil, "", apperrors.ErrOAuthFailed.WithMessage("Sign-in request expired, please try again")
		}
		s.logger.Warn("google callback failed", zap.Error(err))
		return nil, "", apperrors.ErrOAuthFailed
	}

	if !info.EmailVerified || info.Email == "" {
		metrics.RecordLoginAttempt(auth.MethodGoogle, metrics.OutcomeFailure, time.Since(start))
		return nil, "", apperrors.ErrOAuthFailed.WithMessage("Google account email is not verified")
	}

	usr, err := s.users.FindByEmail(ctx, auth.NormalizeEmail(info.Email))
	if err != nil {
		return nil, "", fmt.Errorf("database error: %w", err)
	}
	if usr == nil {
		metrics.RecordLoginAttempt(auth.MethodGoogle, metrics.OutcomeFailure, time.Since(start))
		return nil, "", apperrors.ErrOAuthFailed.WithMessage("No account is registered for this Google email")
	}

	resp, err := s.logins.CompleteLogin(ctx, usr, auth.MethodGoogle, ipAddress)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotActive) {
			metrics.RecordLoginAttempt(auth.MethodGoogle, metrics.OutcomeInactive, time.Since(start))
		}
		return nil, "", err
	}

	metrics.RecordLoginAttempt(auth.MethodGoogle, metrics.OutcomeSuccess, time.Since(start))
	return resp, returnPath, nil
}
