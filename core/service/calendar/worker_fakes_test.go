package calendar

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"calsync_server/core/domain"
)

type fakeTokens struct {
	fail map[string]error // "provider/user"
}

func (f *fakeTokens) Token(ctx context.Context, provider domain.Provider, user string) (*oauth2.Token, error) {
	if err := f.fail[string(provider)+"/"+user]; err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: string(provider) + ":" + user}, nil
}

type fakeSource struct {
	mu     sync.Mutex
	events map[string][]domain.SourceEvent // by access token
	fail   map[string]error
	calls  int
}

func (f *fakeSource) FetchEvents(ctx context.Context, token *oauth2.Token, from, to time.Time) ([]domain.SourceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.fail[token.AccessToken]; err != nil {
		return nil, err
	}
	return f.events[token.AccessToken], nil
}

type fakeTarget struct {
	mu        sync.Mutex
	busy      map[string][]domain.BusyPeriod
	failed    map[string]bool
	queryErr  error
	createErr error
	deleteErr error
	nextID    int
	queries   []domain.FreeBusyWindow
	created   []domain.TargetEvent
	createdBy []string
	deleted   []string
	deletedBy []string
}

func (f *fakeTarget) QueryFreeBusy(ctx context.Context, token *oauth2.Token, window domain.FreeBusyWindow, ids []string) (domain.FreeBusyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, window)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	res := domain.FreeBusyResult{}
	for _, id := range ids {
		res[id] = domain.CalendarBusy{Busy: f.busy[id], Failed: f.failed[id]}
	}
	return res, nil
}

func (f *fakeTarget) CreateEvent(ctx context.Context, token *oauth2.Token, ev *domain.TargetEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	f.created = append(f.created, *ev)
	f.createdBy = append(f.createdBy, token.AccessToken)
	return "g" + strconv.Itoa(f.nextID), nil
}

func (f *fakeTarget) DeleteEvent(ctx context.Context, token *oauth2.Token, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	f.deletedBy = append(f.deletedBy, token.AccessToken)
	return nil
}

type sentMail struct {
	To      []string
	Subject string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(ctx context.Context, to []string, subject, body string) error {
	f.sent = append(f.sent, sentMail{To: to, Subject: subject})
	return f.err
}

type fakeLock struct {
	held     bool
	released bool
}

func (f *fakeLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error) {
	if f.held {
		return nil, false, nil
	}
	return func(context.Context) error { f.released = true; return nil }, true, nil
}

type fakePublisher struct {
	reports []*domain.SyncReport
}

func (f *fakePublisher) PublishReport(ctx context.Context, r *domain.SyncReport) error {
	f.reports = append(f.reports, r)
	return nil
}

var errBoom = errors.New("boom")

func event(id, start, end string, cancelled bool, attendees ...string) domain.SourceEvent {
	ev := domain.SourceEvent{
		ICalUID:     id,
		Subject:     "Meeting " + id,
		Start:       domain.EventDateTime{DateTime: start, TimeZone: "UTC"},
		End:         domain.EventDateTime{DateTime: end, TimeZone: "UTC"},
		BodyPreview: "agenda",
		IsCancelled: cancelled,
	}
	for _, a := range attendees {
		ev.Attendees = append(ev.Attendees, domain.SourceAttendee{EmailAddress: domain.EmailAddress{Address: a}})
	}
	return ev
}
