package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/core/service/common"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"
)

var (
	DefaultGoogleScopes = []string{
		"https://www.googleapis.com/auth/calendar",
		"https://www.googleapis.com/auth/calendar.events",
	}
	DefaultMicrosoftScopes = []string{
		"offline_access",
		"https://graph.microsoft.com/Calendars.Read",
		"https://graph.microsoft.com/User.Read",
	}
)

// NewGoogleConfig returns the OAuth2 config for Google Calendar.
func NewGoogleConfig(clientID, clientSecret, redirectURL string, scopes []string) *oauth2.Config {
	if clientID == "" {
		return nil
	}
	if len(scopes) == 0 {
		scopes = DefaultGoogleScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
}

// NewMicrosoftConfig returns the OAuth2 config for Microsoft Graph.
func NewMicrosoftConfig(clientID, clientSecret, redirectURL, tenant string, scopes []string) *oauth2.Config {
	if clientID == "" {
		return nil
	}
	if tenant == "" {
		tenant = "common"
	}
	if len(scopes) == 0 {
		scopes = DefaultMicrosoftScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
	}
}

// OAuthService stores per-user provider tokens and keeps them fresh.
type OAuthService struct {
	keys    common.Keys
	store   out.DocumentStore
	configs map[domain.Provider]*oauth2.Config
	states  StateStore
	now     func() time.Time
}

var (
	_ in.OAuthService   = (*OAuthService)(nil)
	_ out.TokenProvider = (*OAuthService)(nil)
)

func NewOAuthService(keys common.Keys, store out.DocumentStore, googleConfig, outlookConfig *oauth2.Config, states StateStore) *OAuthService {
	configs := make(map[domain.Provider]*oauth2.Config, 2)
	if googleConfig != nil {
		configs[domain.ProviderGoogle] = googleConfig
	}
	if outlookConfig != nil {
		configs[domain.ProviderOutlook] = outlookConfig
	}
	return &OAuthService{
		keys:    keys,
		store:   store,
		configs: configs,
		states:  states,
		now:     time.Now,
	}
}

func (s *OAuthService) config(provider domain.Provider) (*oauth2.Config, error) {
	if !provider.Valid() {
		return nil, apperr.BadRequest(fmt.Sprintf("unsupported provider: %s", provider))
	}
	cfg, ok := s.configs[provider]
	if !ok {
		return nil, apperr.ConfigError(fmt.Sprintf("%s oauth not configured", provider))
	}
	return cfg, nil
}

func (s *OAuthService) tokenKey(provider domain.Provider, user string) string {
	if provider == domain.ProviderOutlook {
		return s.keys.SourceTokenKey(user)
	}
	return s.keys.TargetTokenKey(user)
}

// LoginURL builds the consent URL. Offline access and forced consent make
// the provider return a refresh token on every authorization.
func (s *OAuthService) LoginURL(ctx context.Context, provider domain.Provider, user string) (string, error) {
	cfg, err := s.config(provider)
	if err != nil {
		return "", err
	}
	state, err := s.states.Issue(ctx, provider, user)
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// Authorize redeems the callback state and code and stores the token.
func (s *OAuthService) Authorize(ctx context.Context, provider domain.Provider, code, state string) (string, error) {
	cfg, err := s.config(provider)
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", apperr.MissingField("code")
	}

	user, err := s.states.Consume(ctx, provider, state)
	if err != nil {
		return "", apperr.Unauthorized("invalid oauth state").WithError(err)
	}

	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", apperr.OAuthFailed(string(provider), err)
	}

	if err := s.save(ctx, provider, user, token, out.WriteCondition{}); err != nil {
		return "", apperr.StorageError("save token", err)
	}

	logger.Info("[OAuthService.Authorize] Stored %s token for user %s", provider, user)
	return user, nil
}

// Authorized reports whether a token document exists for the user.
func (s *OAuthService) Authorized(ctx context.Context, provider domain.Provider, user string) (bool, error) {
	return s.store.Exists(ctx, s.keys.Bucket, s.tokenKey(provider, user))
}

// Token returns a valid token, refreshing and persisting it when expired.
func (s *OAuthService) Token(ctx context.Context, provider domain.Provider, user string) (*oauth2.Token, error) {
	return s.token(ctx, provider, user, false)
}

func (s *OAuthService) token(ctx context.Context, provider domain.Provider, user string, force bool) (*oauth2.Token, error) {
	var stored domain.StoredToken
	found, err := common.ReadJSON(ctx, s.store, s.keys.Bucket, s.tokenKey(provider, user), &stored)
	if err != nil {
		return nil, err
	}
	if !found.Exists {
		return nil, fmt.Errorf("%s token for %s: %w", provider, user, out.ErrDocumentNotFound)
	}

	current := &oauth2.Token{
		AccessToken:  stored.Token.AccessToken,
		RefreshToken: stored.Token.RefreshToken,
		TokenType:    stored.Token.TokenType,
		Expiry:       stored.Token.ExpiresAt,
	}
	if !force && current.Valid() {
		return current, nil
	}

	cfg, err := s.config(provider)
	if err != nil {
		return nil, err
	}
	if current.RefreshToken == "" {
		return nil, apperr.OAuthFailed(string(provider), errors.New("token expired and no refresh token stored"))
	}

	stale := *current
	if force {
		stale.AccessToken = ""
	}
	fresh, err := cfg.TokenSource(ctx, &stale).Token()
	if err != nil {
		return nil, apperr.OAuthFailed(string(provider), err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = current.RefreshToken
	}
	if fresh.AccessToken == current.AccessToken && fresh.Expiry.Equal(current.Expiry) {
		return fresh, nil
	}

	if err := s.save(ctx, provider, user, fresh, found.Condition()); err != nil {
		if errors.Is(err, out.ErrVersionConflict) {
			logger.Debug("[OAuthService.Token] %s token for %s refreshed concurrently", provider, user)
			return fresh, nil
		}
		return nil, err
	}
	logger.Debug("[OAuthService.Token] Refreshed %s token for %s", provider, user)
	return fresh, nil
}

func (s *OAuthService) save(ctx context.Context, provider domain.Provider, user string, token *oauth2.Token, cond out.WriteCondition) error {
	doc := domain.StoredToken{Token: domain.TokenBody{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    token.Expiry,
	}}
	_, err := common.PutJSON(ctx, s.store, s.keys.Bucket, s.tokenKey(provider, user), doc, cond)
	return err
}

// RefreshAll refreshes every stored token of every user. Failures are logged
// per token and returned together.
func (s *OAuthService) RefreshAll(ctx context.Context) error {
	children, err := s.store.ListChildKeys(ctx, s.keys.Bucket, s.keys.UserHome)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var errs []error
	refreshed := 0
	for _, user := range common.UserNames(children, s.keys.UserHome) {
		for _, provider := range []domain.Provider{domain.ProviderOutlook, domain.ProviderGoogle} {
			if _, ok := s.configs[provider]; !ok {
				continue
			}
			ok, err := s.Authorized(ctx, provider, user)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", user, provider, err))
				continue
			}
			if !ok {
				continue
			}
			if _, err := s.token(ctx, provider, user, true); err != nil {
				logger.WithError(err).Warn("[OAuthService.RefreshAll] Failed to refresh %s token for %s", provider, user)
				errs = append(errs, fmt.Errorf("%s/%s: %w", user, provider, err))
				continue
			}
			refreshed++
		}
	}

	logger.Info("[OAuthService.RefreshAll] Refreshed %d tokens, %d failed", refreshed, len(errs))
	return errors.Join(errs...)
}
