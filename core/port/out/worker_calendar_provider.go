package out

import (
	"context"
	"time"

	"calsync_server/core/domain"

	"golang.org/x/oauth2"
)

// SourceCalendarProvider reads events from the source calendar (Outlook).
type SourceCalendarProvider interface {
	FetchEvents(ctx context.Context, token *oauth2.Token, from, to time.Time) ([]domain.SourceEvent, error)
}

// TargetCalendarProvider writes events to the target calendar (Google).
type TargetCalendarProvider interface {
	QueryFreeBusy(ctx context.Context, token *oauth2.Token, window domain.FreeBusyWindow, calendarIDs []string) (domain.FreeBusyResult, error)
	// CreateEvent inserts on the primary calendar, notifying all attendees,
	// and returns the new event id.
	CreateEvent(ctx context.Context, token *oauth2.Token, event *domain.TargetEvent) (string, error)
	DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error
}

// TokenProvider returns a valid access token for a user and provider,
// refreshing and persisting it when needed.
type TokenProvider interface {
	Token(ctx context.Context, provider domain.Provider, user string) (*oauth2.Token, error)
}
