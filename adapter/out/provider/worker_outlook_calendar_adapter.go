package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/httputil"
)

const (
	msGraphBaseURL    = "https://graph.microsoft.com/v1.0"
	outlookTimeFormat = "2006-01-02T15:04:05"
	outlookPageSize   = 100
	outlookMaxPages   = 50
)

var outlookEventFields = "iCalUId,subject,start,end,bodyPreview,attendees,isCancelled"

// OutlookCalendarAdapter reads the signed-in user's calendar view from
// Microsoft Graph.
type OutlookCalendarAdapter struct {
	baseURL  string
	timeZone string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// NewOutlookCalendarAdapter creates the adapter. timeZone is the zone Graph
// is asked to express event times in.
func NewOutlookCalendarAdapter(baseURL, timeZone string) *OutlookCalendarAdapter {
	if baseURL == "" {
		baseURL = msGraphBaseURL
	}
	if timeZone == "" {
		timeZone = "UTC"
	}
	return &OutlookCalendarAdapter{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeZone: timeZone,
		client:   httputil.GraphClient(),
		cb:       newBreaker("outlook-calendar"),
	}
}

var _ out.SourceCalendarProvider = (*OutlookCalendarAdapter)(nil)

func (a *OutlookCalendarAdapter) getClient(ctx context.Context, token *oauth2.Token) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
}

type outlookEventPage struct {
	Value    []domain.SourceEvent `json:"value"`
	NextLink string               `json:"@odata.nextLink"`
}

// FetchEvents returns every event instance in [from, to), following
// @odata.nextLink pages. Recurring series come back expanded.
func (a *OutlookCalendarAdapter) FetchEvents(ctx context.Context, token *oauth2.Token, from, to time.Time) ([]domain.SourceEvent, error) {
	client := a.getClient(ctx, token)

	q := url.Values{}
	q.Set("startDateTime", from.UTC().Format(outlookTimeFormat))
	q.Set("endDateTime", to.UTC().Format(outlookTimeFormat))
	q.Set("$select", outlookEventFields)
	q.Set("$top", fmt.Sprintf("%d", outlookPageSize))
	next := a.baseURL + "/me/calendarView?" + q.Encode()

	var events []domain.SourceEvent
	for page := 0; next != ""; page++ {
		if page >= outlookMaxPages {
			return nil, fmt.Errorf("calendar view exceeded %d pages", outlookMaxPages)
		}

		result, err := a.cb.Execute(func() (interface{}, error) {
			return a.fetchPage(ctx, client, next)
		})
		if err != nil {
			return nil, err
		}
		p := result.(*outlookEventPage)
		events = append(events, p.Value...)
		next = p.NextLink
	}
	return events, nil
}

func (a *OutlookCalendarAdapter) fetchPage(ctx context.Context, client *http.Client, endpoint string) (*outlookEventPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	// Start and end times come back in this zone, with no offset.
	req.Header.Set("Prefer", fmt.Sprintf("outlook.timezone=%q", a.timeZone))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar view: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{Op: "calendar view", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var page outlookEventPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &page, nil
}
