package domain

import "time"

type Provider string

const (
	ProviderGoogle  Provider = "google"
	ProviderOutlook Provider = "outlook"
)

func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderOutlook
}

// TokenBody is the persisted OAuth2 token.
type TokenBody struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// StoredToken is the per-user, per-provider token document.
type StoredToken struct {
	Token TokenBody `json:"token"`
}
