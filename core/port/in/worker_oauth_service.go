package in

import (
	"context"

	"calsync_server/core/domain"
)

type OAuthService interface {
	LoginURL(ctx context.Context, provider domain.Provider, user string) (string, error)
	Authorize(ctx context.Context, provider domain.Provider, code, state string) (string, error)
	Authorized(ctx context.Context, provider domain.Provider, user string) (bool, error)
	RefreshAll(ctx context.Context) error
}
