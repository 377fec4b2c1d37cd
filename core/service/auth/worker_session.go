package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"calsync_server/core/domain"
)

const (
	SessionTTL = time.Hour
	StateTTL   = 10 * time.Minute

	sessionAudience = "calsync:session"
	stateAudience   = "calsync:oauth-state:"
)

var ErrInvalidSession = errors.New("invalid session token")

// SessionSigner issues and verifies HS256 tokens whose subject is a user name.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionSigner(secret string, ttl time.Duration) *SessionSigner {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &SessionSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *SessionSigner) sign(user, audience string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   user,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *SessionSigner) verify(token, audience string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidSession
	}
	return claims.Subject, nil
}

// Sign issues a session token for user.
func (s *SessionSigner) Sign(user string) (string, error) {
	return s.sign(user, sessionAudience, s.ttl)
}

// Verify returns the user a session token was issued to.
func (s *SessionSigner) Verify(token string) (string, error) {
	return s.verify(token, sessionAudience)
}

// StateStore issues and redeems the OAuth state parameter.
type StateStore interface {
	Issue(ctx context.Context, provider domain.Provider, user string) (string, error)
	Consume(ctx context.Context, provider domain.Provider, state string) (string, error)
}

// SignedStateStore carries the user inside a short-lived signed state, so no
// server-side storage is needed. The state is bound to one provider.
type SignedStateStore struct {
	signer *SessionSigner
}

func NewSignedStateStore(signer *SessionSigner) *SignedStateStore {
	return &SignedStateStore{signer: signer}
}

func (s *SignedStateStore) Issue(ctx context.Context, provider domain.Provider, user string) (string, error) {
	return s.signer.sign(user, stateAudience+string(provider), StateTTL)
}

func (s *SignedStateStore) Consume(ctx context.Context, provider domain.Provider, state string) (string, error) {
	return s.signer.verify(state, stateAudience+string(provider))
}
