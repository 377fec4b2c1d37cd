package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"calsync_server/adapter/out/objectstore"
	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/core/service/common"
)

var fastParams = Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", fastParams)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("hash = %s", hash)
	}
	if err := VerifyPassword(hash, "s3cret"); err != nil {
		t.Errorf("VerifyPassword: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("wrong password: err = %v", err)
	}

	other, _ := HashPassword("s3cret", fastParams)
	if other == hash {
		t.Error("salt not random")
	}
}

func TestVerifyPasswordMalformed(t *testing.T) {
	for _, h := range []string{"", "plain", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA"} {
		if err := VerifyPassword(h, "x"); err == nil {
			t.Errorf("VerifyPassword(%q) = nil", h)
		}
	}
}

func TestSessionSigner(t *testing.T) {
	s := NewSessionSigner("secret", time.Hour)
	tok, err := s.Sign("alice")
	if err != nil {
		t.Fatal(err)
	}
	user, err := s.Verify(tok)
	if err != nil || user != "alice" {
		t.Fatalf("Verify = %q, %v", user, err)
	}

	other := NewSessionSigner("other", time.Hour)
	if _, err := other.Verify(tok); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("foreign secret: err = %v", err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Verify(tok); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expired: err = %v", err)
	}

	if _, err := NewSessionSigner("", 0).Sign("alice"); err == nil {
		t.Error("signing without secret succeeded")
	}
}

func TestStateIsNotASession(t *testing.T) {
	signer := NewSessionSigner("secret", time.Hour)
	states := NewSignedStateStore(signer)
	ctx := context.Background()

	state, err := states.Issue(ctx, domain.ProviderGoogle, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := signer.Verify(state); err == nil {
		t.Error("state accepted as session")
	}
	if _, err := states.Consume(ctx, domain.ProviderOutlook, state); err == nil {
		t.Error("google state accepted for outlook")
	}
	user, err := states.Consume(ctx, domain.ProviderGoogle, state)
	if err != nil || user != "alice" {
		t.Errorf("Consume = %q, %v", user, err)
	}
}

var testKeys = common.Keys{
	Bucket:      "home",
	UserHome:    "users/",
	SourceToken: "users/%USER%/outlook_token.json",
	TargetToken: "users/%USER%/google_token.json",
}

type tokenServer struct {
	*httptest.Server
	hits     atomic.Int32
	response string
	status   int
}

func newTokenServer(t *testing.T, response string) *tokenServer {
	ts := &tokenServer{response: response, status: http.StatusOK}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ts.status)
		_, _ = w.Write([]byte(ts.response))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newService(t *testing.T, tokenURL string) (*OAuthService, *objectstore.MemoryStore) {
	t.Helper()
	store := objectstore.NewMemoryStore()
	cfg := func() *oauth2.Config {
		return &oauth2.Config{
			ClientID:     "id",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://provider.example/auth",
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	states := NewSignedStateStore(NewSessionSigner("secret", time.Hour))
	return NewOAuthService(testKeys, store, cfg(), cfg(), states), store
}

func storeToken(t *testing.T, store out.DocumentStore, key string, body domain.TokenBody) {
	t.Helper()
	if _, err := common.PutJSON(context.Background(), store, testKeys.Bucket, key, domain.StoredToken{Token: body}, out.WriteCondition{}); err != nil {
		t.Fatal(err)
	}
}

func readToken(t *testing.T, store out.DocumentStore, key string) domain.TokenBody {
	t.Helper()
	var doc domain.StoredToken
	if _, err := common.ReadJSON(context.Background(), store, testKeys.Bucket, key, &doc); err != nil {
		t.Fatal(err)
	}
	return doc.Token
}

func TestLoginURLAndAuthorize(t *testing.T) {
	ts := newTokenServer(t, `{"access_token":"a1","refresh_token":"r1","token_type":"Bearer","expires_in":3600}`)
	svc, store := newService(t, ts.URL)
	ctx := context.Background()

	raw, err := svc.LoginURL(ctx, domain.ProviderGoogle, "alice")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" {
		t.Errorf("login url = %s", raw)
	}

	user, err := svc.Authorize(ctx, domain.ProviderGoogle, "code", q.Get("state"))
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if user != "alice" {
		t.Errorf("user = %s", user)
	}
	got := readToken(t, store, "users/alice/google_token.json")
	if got.AccessToken != "a1" || got.RefreshToken != "r1" || got.ExpiresAt.IsZero() {
		t.Errorf("stored token = %+v", got)
	}

	ok, err := svc.Authorized(ctx, domain.ProviderGoogle, "alice")
	if err != nil || !ok {
		t.Errorf("Authorized(google) = %v, %v", ok, err)
	}
	ok, _ = svc.Authorized(ctx, domain.ProviderOutlook, "alice")
	if ok {
		t.Error("Authorized(outlook) = true")
	}
}

func TestAuthorizeRejectsBadState(t *testing.T) {
	ts := newTokenServer(t, `{}`)
	svc, _ := newService(t, ts.URL)

	if _, err := svc.Authorize(context.Background(), domain.ProviderGoogle, "code", "forged"); err == nil {
		t.Fatal("forged state accepted")
	}
	if ts.hits.Load() != 0 {
		t.Error("code exchanged for a forged state")
	}
}

func TestTokenValidSkipsRefresh(t *testing.T) {
	ts := newTokenServer(t, `{}`)
	svc, store := newService(t, ts.URL)
	storeToken(t, store, "users/alice/outlook_token.json", domain.TokenBody{
		AccessToken: "live", RefreshToken: "r", ExpiresAt: time.Now().Add(time.Hour),
	})

	tok, err := svc.Token(context.Background(), domain.ProviderOutlook, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "live" || ts.hits.Load() != 0 {
		t.Errorf("token = %s, hits = %d", tok.AccessToken, ts.hits.Load())
	}
}

func TestTokenRefreshKeepsRefreshToken(t *testing.T) {
	ts := newTokenServer(t, `{"access_token":"renewed","token_type":"Bearer","expires_in":3600}`)
	svc, store := newService(t, ts.URL)
	key := "users/alice/google_token.json"
	storeToken(t, store, key, domain.TokenBody{
		AccessToken: "old", RefreshToken: "keep-me", ExpiresAt: time.Now().Add(-time.Minute),
	})

	tok, err := svc.Token(context.Background(), domain.ProviderGoogle, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if tok.AccessToken != "renewed" || tok.RefreshToken != "keep-me" {
		t.Errorf("token = %+v", tok)
	}
	stored := readToken(t, store, key)
	if stored.AccessToken != "renewed" || stored.RefreshToken != "keep-me" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestTokenMissing(t *testing.T) {
	svc, _ := newService(t, "http://127.0.0.1:0")
	_, err := svc.Token(context.Background(), domain.ProviderGoogle, "nobody")
	if !errors.Is(err, out.ErrDocumentNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestTokenRefreshFailure(t *testing.T) {
	ts := newTokenServer(t, `{"error":"invalid_grant"}`)
	ts.status = http.StatusBadRequest
	svc, store := newService(t, ts.URL)
	storeToken(t, store, "users/alice/google_token.json", domain.TokenBody{
		AccessToken: "old", RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute),
	})

	if _, err := svc.Token(context.Background(), domain.ProviderGoogle, "alice"); err == nil {
		t.Error("expected refresh error")
	}
}

func TestRefreshAllContinuesPastFailures(t *testing.T) {
	ts := newTokenServer(t, `{"access_token":"renewed","token_type":"Bearer","expires_in":3600}`)
	svc, store := newService(t, ts.URL)
	future := time.Now().Add(time.Hour)
	storeToken(t, store, "users/alice/google_token.json", domain.TokenBody{AccessToken: "a", RefreshToken: "r", ExpiresAt: future})
	storeToken(t, store, "users/bob/outlook_token.json", domain.TokenBody{AccessToken: "b", ExpiresAt: future})
	storeToken(t, store, "users/carol/outlook_token.json", domain.TokenBody{AccessToken: "c", RefreshToken: "r", ExpiresAt: future})

	err := svc.RefreshAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bob") {
		t.Errorf("err = %v, want bob's failure", err)
	}
	if got := readToken(t, store, "users/alice/google_token.json").AccessToken; got != "renewed" {
		t.Errorf("alice google = %s", got)
	}
	if got := readToken(t, store, "users/carol/outlook_token.json").AccessToken; got != "renewed" {
		t.Errorf("carol outlook = %s", got)
	}
}
