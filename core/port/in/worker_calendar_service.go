package in

import (
	"context"

	"calsync_server/core/domain"
)

// SyncService runs one full Outlook to Google sync pass.
type SyncService interface {
	RunSync(ctx context.Context) (*domain.SyncReport, error)
}
