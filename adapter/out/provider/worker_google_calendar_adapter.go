package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/httputil"
)

const primaryCalendar = "primary"

// GoogleCalendarAdapter books mirrored events and rooms on the user's
// primary Google calendar.
type GoogleCalendarAdapter struct {
	endpoint string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewGoogleCalendarAdapter creates the adapter. An empty endpoint uses the
// public API.
func NewGoogleCalendarAdapter(endpoint string) *GoogleCalendarAdapter {
	return &GoogleCalendarAdapter{
		endpoint: endpoint,
		client:   httputil.GoogleCalendarClient(),
		cb:       newBreaker("google-calendar"),
	}
}

var _ out.TargetCalendarProvider = (*GoogleCalendarAdapter)(nil)

// getService creates a Calendar service with token.
func (a *GoogleCalendarAdapter) getService(ctx context.Context, token *oauth2.Token) (*calendar.Service, error) {
	base := context.WithValue(ctx, oauth2.HTTPClient, a.client)
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(base, oauth2.StaticTokenSource(token)))}
	if a.endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.endpoint))
	}
	return calendar.NewService(ctx, opts...)
}

// QueryFreeBusy asks for busy intervals of all calendars in one request.
func (a *GoogleCalendarAdapter) QueryFreeBusy(ctx context.Context, token *oauth2.Token, window domain.FreeBusyWindow, calendarIDs []string) (domain.FreeBusyResult, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	items := make([]*calendar.FreeBusyRequestItem, len(calendarIDs))
	for i, id := range calendarIDs {
		items[i] = &calendar.FreeBusyRequestItem{Id: id}
	}
	req := &calendar.FreeBusyRequest{
		TimeMin:  window.TimeMin,
		TimeMax:  window.TimeMax,
		TimeZone: window.TimeZone,
		Items:    items,
	}

	result, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Freebusy.Query(req).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query free/busy: %w", err)
	}
	resp := result.(*calendar.FreeBusyResponse)

	busy := make(domain.FreeBusyResult, len(resp.Calendars))
	for id, cal := range resp.Calendars {
		entry := domain.CalendarBusy{Failed: len(cal.Errors) > 0}
		for _, p := range cal.Busy {
			entry.Busy = append(entry.Busy, domain.BusyPeriod{Start: p.Start, End: p.End})
		}
		busy[id] = entry
	}
	return busy, nil
}

// CreateEvent inserts the event and notifies every attendee.
func (a *GoogleCalendarAdapter) CreateEvent(ctx context.Context, token *oauth2.Token, event *domain.TargetEvent) (string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to create calendar service: %w", err)
	}

	gcalEvent := toGoogleEvent(event)
	result, err := a.cb.Execute(func() (interface{}, error) {
		return svc.Events.Insert(primaryCalendar, gcalEvent).
			SendUpdates("all").
			Context(ctx).Do()
	})
	if err != nil {
		return "", fmt.Errorf("failed to create event: %w", err)
	}
	return result.(*calendar.Event).Id, nil
}

// DeleteEvent deletes an event. An event that is already gone counts as
// deleted.
func (a *GoogleCalendarAdapter) DeleteEvent(ctx context.Context, token *oauth2.Token, eventID string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to create calendar service: %w", err)
	}

	_, err = a.cb.Execute(func() (interface{}, error) {
		err := svc.Events.Delete(primaryCalendar, eventID).SendUpdates("all").Context(ctx).Do()
		if isGone(err) {
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone
	}
	return false
}

func toGoogleEvent(e *domain.TargetEvent) *calendar.Event {
	attendees := make([]*calendar.EventAttendee, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		attendees = append(attendees, &calendar.EventAttendee{Email: a.Email})
	}
	overrides := make([]*calendar.EventReminder, 0, len(e.Reminders.Overrides))
	for _, r := range e.Reminders.Overrides {
		overrides = append(overrides, &calendar.EventReminder{Method: r.Method, Minutes: int64(r.Minutes)})
	}

	return &calendar.Event{
		Summary:     e.Summary,
		Location:    e.Location,
		Description: e.Description,
		Start:       &calendar.EventDateTime{DateTime: e.Start.DateTime, TimeZone: e.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: e.End.DateTime, TimeZone: e.End.TimeZone},
		Recurrence:  e.Recurrence,
		Attendees:   attendees,
		Reminders: &calendar.EventReminders{
			UseDefault: e.Reminders.UseDefault,
			Overrides:  overrides,
			// useDefault=false is dropped by omitempty otherwise.
			ForceSendFields: []string{"UseDefault"},
		},
		GuestsCanModify: e.GuestsCanModify,
	}
}
