package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/courierdesk/gateway/internal/database"
	"github.com/redis/go-redis/v9"
)

// ErrInvalidState is returned for unknown, expired or already used states
var ErrInvalidState = errors.New("invalid or expired state token")

// StateTTL bounds how long a user may take at the provider's consent screen
const StateTTL = 10 * time.Minute

// StateManager manages OAuth state tokens for CSRF prevention. Each state
// carries the sanitized path to return to after sign-in.
type StateManager struct {
	client redis.Cmdable
	keys   database.Keyspace
	ttl    time.Duration
}

// NewStateManager creates a new OAuth state manager
func NewStateManager(client redis.Cmdable, keys database.Keyspace) *StateManager {
	return &StateManager{
		client: client,
		keys:   keys,
		ttl:    StateTTL,
	}
}

func (sm *StateManager) key(state string) string {
	return sm.keys.Key("oauth", "state", state)
}

// GenerateState generates a random state token
func (sm *StateManager) GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// SaveState saves a state token to Redis
func (sm *StateManager) SaveState(ctx context.Context, state, returnPath string) error {
	if err := sm.client.Set(ctx, sm.key(state), returnPath, sm.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save OAuth state: %w", err)
	}
	return nil
}

// ConsumeState validates a state token and returns its return path. A
// state can be consumed once.
func (sm *StateManager) ConsumeState(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}

	returnPath, err := sm.client.GetDel(ctx, sm.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to validate OAuth state: %w", err)
	}

	return returnPath, nil
}

// UserInfo is the identity a provider vouches for
type UserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	EmailVerified  bool
}
