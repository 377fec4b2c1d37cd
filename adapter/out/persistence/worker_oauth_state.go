package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"calsync_server/core/domain"
	"calsync_server/core/service/auth"
)

// OAuthStateKey Redis key prefix for OAuth state
const OAuthStateKey = "calsync:oauth:state:"

var ErrStateNotFound = errors.New("state not found or expired")

// RedisOAuthStateStore keeps one-time OAuth states in Redis. A state is
// deleted on first use.
type RedisOAuthStateStore struct {
	client redis.UniversalClient
}

func NewRedisOAuthStateStore(client redis.UniversalClient) *RedisOAuthStateStore {
	return &RedisOAuthStateStore{client: client}
}

var _ auth.StateStore = (*RedisOAuthStateStore)(nil)

func stateKey(provider domain.Provider, state string) string {
	return OAuthStateKey + string(provider) + ":" + state
}

// Issue stores a random state naming user for auth.StateTTL.
func (s *RedisOAuthStateStore) Issue(ctx context.Context, provider domain.Provider, user string) (string, error) {
	if user == "" {
		return "", errors.New("user cannot be empty")
	}
	state := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := s.client.Set(ctx, stateKey(provider, state), user, auth.StateTTL).Err(); err != nil {
		return "", fmt.Errorf("failed to store OAuth state: %w", err)
	}
	return state, nil
}

// Consume returns the user a state was issued to and deletes it.
func (s *RedisOAuthStateStore) Consume(ctx context.Context, provider domain.Provider, state string) (string, error) {
	if state == "" {
		return "", ErrStateNotFound
	}
	user, err := s.client.GetDel(ctx, stateKey(provider, state)).Result()
	if err == redis.Nil {
		return "", ErrStateNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to validate OAuth state: %w", err)
	}
	return user, nil
}
