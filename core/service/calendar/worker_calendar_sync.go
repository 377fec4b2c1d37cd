package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/core/service/common"
	"calsync_server/pkg/apperr"
)

var errUserNotRun = errors.New("user sync did not run")

// SyncConfig holds the sync pass settings.
type SyncConfig struct {
	Keys          common.Keys
	WindowDays    int
	Concurrency   int
	LockName      string
	LockTTL       time.Duration
	UpdateRetries int
}

// SyncService mirrors Outlook events of every registered user into Google
// Calendar, booking a room for each.
type SyncService struct {
	cfg       SyncConfig
	store     out.DocumentStore
	source    out.SourceCalendarProvider
	target    out.TargetCalendarProvider
	tokens    out.TokenProvider
	rooms     *RoomAllocator
	mailer    out.Mailer
	lock      out.RunLock
	publisher out.ReportPublisher
	log       zerolog.Logger
	now       func() time.Time
}

var _ in.SyncService = (*SyncService)(nil)

// NewSyncService creates a new sync service.
func NewSyncService(
	cfg SyncConfig,
	store out.DocumentStore,
	source out.SourceCalendarProvider,
	target out.TargetCalendarProvider,
	tokens out.TokenProvider,
	rooms *RoomAllocator,
	mailer out.Mailer,
	log zerolog.Logger,
) *SyncService {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockName == "" {
		cfg.LockName = "calsync:sync"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &SyncService{
		cfg:    cfg,
		store:  store,
		source: source,
		target: target,
		tokens: tokens,
		rooms:  rooms,
		mailer: mailer,
		log:    log,
		now:    time.Now,
	}
}

// SetRunLock makes every pass hold the lock; a pass that cannot get it is
// skipped.
func (s *SyncService) SetRunLock(lock out.RunLock) { s.lock = lock }

// SetReportPublisher publishes each report after the pass.
func (s *SyncService) SetReportPublisher(p out.ReportPublisher) { s.publisher = p }

// pendingEvent is a new or changed event with everything needed to act on it.
type pendingEvent struct {
	ID          string
	User        string
	Info        *domain.User
	TargetToken *oauth2.Token
	Attendees   AttendeeIndex
	Event       domain.SourceEvent
}

type userResult struct {
	user    string
	fetched []domain.SourceEvent
	pending []pendingEvent
	err     error
}

// RunSync runs one pass. Per-user and per-event failures are logged and
// recorded in the report; only failures on the shared documents are returned.
func (s *SyncService) RunSync(ctx context.Context) (*domain.SyncReport, error) {
	report := &domain.SyncReport{
		RunID:        uuid.NewString(),
		StartedAt:    s.now(),
		FailedUsers:  []string{},
		FailedEvents: []string{},
	}
	log := s.log.With().Str("run_id", report.RunID).Logger()

	if s.lock != nil {
		release, ok, err := s.lock.Acquire(ctx, s.cfg.LockName, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			log.Info().Msg("another sync pass holds the lock, skipping")
			report.Skipped = true
			s.finish(ctx, log, report)
			return report, nil
		}
		defer func() {
			if err := release(context.Background()); err != nil {
				log.Warn().Err(err).Msg("failed to release run lock")
			}
		}()
	}

	keys := s.cfg.Keys

	children, err := s.store.ListChildKeys(ctx, keys.Bucket, keys.UserHome)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := common.UserNames(children, keys.UserHome)
	report.Users = len(users)

	var previous []domain.SourceEvent
	snapshotFound, err := common.ReadJSON(ctx, s.store, keys.Bucket, keys.ProcessedEvents, &previous)
	switch {
	case errors.Is(err, common.ErrUndecodable):
		// Overwritten below at the version read.
		log.Error().Err(err).Str("fallback", "empty_snapshot").Msg("processed events unreadable, treating every event as new")
		previous = nil
	case err != nil:
		return nil, fmt.Errorf("load processed events: %w", err)
	case !snapshotFound.Exists:
		log.Debug().Str("fallback", "empty_snapshot").Msg("no processed events yet")
	}

	// The registry is loaded before the snapshot moves forward, so a failed
	// read cannot mark events processed that were never booked.
	var registry []domain.CreatedEventRecord
	registryFound, err := common.ReadJSON(ctx, s.store, keys.Bucket, keys.CreatedEvents, &registry)
	if err != nil {
		return nil, fmt.Errorf("load created events: %w", err)
	}
	if !registryFound.Exists {
		log.Debug().Str("fallback", "empty_registry").Msg("no created events yet")
	}
	known := make(map[string]domain.CreatedEventRecord, len(registry))
	for _, r := range UniqueRecords(registry) {
		known[r.OutlookEventID] = r
	}

	results := s.collect(ctx, users, previous)

	var fetched []domain.SourceEvent
	var pending []pendingEvent
	for _, r := range results {
		if r.err != nil {
			report.FailedUsers = append(report.FailedUsers, r.user)
			continue
		}
		fetched = append(fetched, r.fetched...)
		pending = append(pending, r.pending...)
	}
	fetched = UniqueEvents(fetched)
	pending = uniqueBy(pending, func(p pendingEvent) string { return p.ID })
	report.Fetched = len(fetched)
	report.NewOrChanged = len(pending)

	// The snapshot is written before any target-side mutation so a failed
	// create is never retried into a double booking.
	snapshot := fetched
	if len(report.FailedUsers) > 0 {
		snapshot = UniqueEvents(append(append([]domain.SourceEvent{}, fetched...), previous...))
	}
	if snapshot == nil {
		snapshot = []domain.SourceEvent{}
	}
	if _, err := common.WriteJSON(ctx, s.store, keys.Bucket, keys.ProcessedEvents, snapshot, snapshotFound); err != nil {
		if errors.Is(err, out.ErrVersionConflict) {
			log.Warn().Msg("processed events changed during the pass, aborting before any change")
		}
		return nil, fmt.Errorf("persist processed events: %w", err)
	}

	var created []domain.CreatedEventRecord
	removed := make(map[string]struct{})

	for _, p := range pending {
		elog := log.With().Str("user", p.User).Str("ical_uid", p.ID).Logger()

		if p.Event.IsCancelled {
			rec, ok := known[p.ID]
			if !ok {
				continue
			}
			if err := s.deleteMirror(ctx, p, rec); err != nil {
				elog.Error().Err(err).Str("google_event_id", rec.GoogleEventID).Msg("failed to delete cancelled event")
				report.FailedEvents = append(report.FailedEvents, p.ID)
				continue
			}
			elog.Info().Str("google_event_id", rec.GoogleEventID).Msg("deleted cancelled event")
			removed[p.ID] = struct{}{}
			report.Cancelled++
			continue
		}

		// A rescheduled event is re-booked only once its old mirror is gone;
		// otherwise the old booking would lose its registry record.
		if rec, ok := known[p.ID]; ok {
			if err := s.deleteMirror(ctx, p, rec); err != nil {
				elog.Error().Err(err).Str("google_event_id", rec.GoogleEventID).Msg("failed to delete previous booking of rescheduled event, not re-booking")
				report.FailedEvents = append(report.FailedEvents, p.ID)
				continue
			}
			removed[p.ID] = struct{}{}
		}

		rec, err := s.book(ctx, elog, p)
		switch {
		case apperr.HasCode(err, apperr.CodeNoRoomAvailable):
			report.NoRoom++
			s.notifyNoRoom(ctx, elog, p)
		case err != nil:
			elog.Error().Err(err).Msg("failed to create event")
			report.FailedEvents = append(report.FailedEvents, p.ID)
		default:
			created = append(created, *rec)
			report.Created++
		}
	}

	if len(created) > 0 || len(removed) > 0 {
		if err := s.recordCreated(ctx, created, removed); err != nil {
			s.finish(ctx, log, report)
			return report, fmt.Errorf("persist created events: %w", err)
		}
	}

	s.finish(ctx, log, report)
	return report, nil
}

// collect runs the per-user stage over a bounded pool. Results keep the
// order of users.
func (s *SyncService) collect(ctx context.Context, users []string, previous []domain.SourceEvent) []userResult {
	results := make([]userResult, len(users))
	for i, u := range users {
		results[i] = userResult{user: u, err: errUserNotRun}
	}
	if len(users) == 0 {
		return results
	}

	workers := s.cfg.Concurrency
	if workers > len(users) {
		workers = len(users)
	}

	worker := pool.WorkerFunc[int](func(ctx context.Context, i int) error {
		results[i] = s.syncUser(ctx, users[i], previous)
		return nil
	})
	p := pool.New[int](workers, worker).WithContinueOnError()
	if err := p.Go(ctx); err != nil {
		s.log.Error().Err(err).Msg("failed to start user pool")
		return results
	}
	for i := range users {
		p.Submit(i)
	}
	if err := p.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("user pool finished with error")
	}
	return results
}

// syncUser loads one user's credentials and profile, fetches the window and
// diffs it against the snapshot.
func (s *SyncService) syncUser(ctx context.Context, user string, previous []domain.SourceEvent) userResult {
	res := userResult{user: user}
	log := s.log.With().Str("user", user).Logger()
	keys := s.cfg.Keys

	fail := func(stage string, err error) userResult {
		log.Warn().Err(err).Str("stage", stage).Msg("user sync abandoned")
		res.err = fmt.Errorf("%s: %w", stage, err)
		return res
	}

	sourceToken, err := s.tokens.Token(ctx, domain.ProviderOutlook, user)
	if err != nil {
		return fail("load outlook token", err)
	}
	targetToken, err := s.tokens.Token(ctx, domain.ProviderGoogle, user)
	if err != nil {
		return fail("load google token", err)
	}

	var info domain.User
	found, err := common.ReadJSON(ctx, s.store, keys.Bucket, keys.UserInfoKey(user), &info)
	if err != nil {
		return fail("load user info", err)
	}
	if !found.Exists {
		return fail("load user info", out.ErrDocumentNotFound)
	}
	if info.Name == "" {
		info.Name = user
	}

	var table []domain.AttendeeMapping
	found, err = common.ReadJSON(ctx, s.store, keys.Bucket, keys.AttendeesKey(user), &table)
	if err != nil {
		return fail("load attendees", err)
	}
	if !found.Exists {
		log.Debug().Str("fallback", "empty_attendees").Msg("no attendee mapping")
	}

	from := s.now()
	to := from.AddDate(0, 0, s.cfg.WindowDays)
	events, err := s.source.FetchEvents(ctx, sourceToken, from, to)
	if err != nil {
		return fail("fetch events", err)
	}

	valid := make([]domain.SourceEvent, 0, len(events))
	for _, e := range events {
		if strings.TrimSpace(e.ICalUID) == "" {
			log.Warn().Str("subject", e.Subject).Msg("skipping event without iCalUId")
			continue
		}
		valid = append(valid, e)
	}
	events = FilterSubjects(UniqueEvents(valid), info.Filters)

	diff := Diff(events, previous)
	idx := NewAttendeeIndex(table)
	for _, e := range diff.NewOrChanged {
		res.pending = append(res.pending, pendingEvent{
			ID:          e.ICalUID,
			User:        user,
			Info:        &info,
			TargetToken: targetToken,
			Attendees:   idx,
			Event:       e,
		})
	}
	res.fetched = events

	log.Debug().
		Int("fetched", len(events)).
		Int("new_or_changed", len(diff.NewOrChanged)).
		Int("unchanged", len(diff.Unchanged)).
		Msg("user diffed")
	return res
}

func (s *SyncService) book(ctx context.Context, log zerolog.Logger, p pendingEvent) (*domain.CreatedEventRecord, error) {
	room, err := s.rooms.Allocate(ctx, p.TargetToken, p.Info.Rooms, p.Event.Start, p.Event.End)
	if err != nil {
		return nil, err
	}

	event := toTargetEvent(p.Attendees, p.Event, *room)
	id, err := s.target.CreateEvent(ctx, p.TargetToken, &event)
	if err != nil {
		return nil, err
	}
	log.Info().Str("room", room.ID).Str("google_event_id", id).Msg("created event")

	return &domain.CreatedEventRecord{
		OutlookEventID: p.ID,
		User:           p.User,
		GoogleEventID:  id,
	}, nil
}

// deleteMirror deletes the target event of rec with the token of the user
// that created it.
func (s *SyncService) deleteMirror(ctx context.Context, p pendingEvent, rec domain.CreatedEventRecord) error {
	token := p.TargetToken
	if rec.User != "" && rec.User != p.User {
		t, err := s.tokens.Token(ctx, domain.ProviderGoogle, rec.User)
		if err != nil {
			return fmt.Errorf("load google token of %s: %w", rec.User, err)
		}
		token = t
	}
	return s.target.DeleteEvent(ctx, token, rec.GoogleEventID)
}

func (s *SyncService) notifyNoRoom(ctx context.Context, log zerolog.Logger, p pendingEvent) {
	attendees := p.Attendees.Map(p.Event.Attendees)
	to := make([]string, 0, len(attendees))
	for _, a := range uniqueBy(attendees, func(a domain.TargetAttendee) string { return strings.ToLower(a.Email) }) {
		to = append(to, a.Email)
	}
	if len(to) == 0 {
		log.Warn().Msg("no room available and no mapped attendee to notify")
		return
	}
	if s.mailer == nil {
		log.Warn().Msg("no room available, mailer not configured")
		return
	}

	subject := fmt.Sprintf("No meeting room available: %s", p.Event.Subject)
	body := fmt.Sprintf(
		"No meeting room is free for \"%s\" from %s to %s (%s).\nThe event was not added to Google Calendar.",
		p.Event.Subject, p.Event.Start.DateTime, p.Event.End.DateTime, p.Event.Start.TimeZone,
	)
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		log.Warn().Err(err).Strs("to", to).Msg("failed to send no-room notice")
		return
	}
	log.Info().Strs("to", to).Msg("sent no-room notice")
}

// recordCreated merges fresh records into the registry. Fresh records come
// first so a re-booked event replaces its old record; removed ids are dropped
// unless freshly re-created.
func (s *SyncService) recordCreated(ctx context.Context, created []domain.CreatedEventRecord, removed map[string]struct{}) error {
	keys := s.cfg.Keys
	_, err := common.UpdateJSON(ctx, s.store, keys.Bucket, keys.CreatedEvents, s.cfg.UpdateRetries,
		func(current []domain.CreatedEventRecord, _ bool) ([]domain.CreatedEventRecord, error) {
			merged := make([]domain.CreatedEventRecord, 0, len(created)+len(current))
			merged = append(merged, created...)
			for _, r := range current {
				if _, gone := removed[r.OutlookEventID]; gone {
					continue
				}
				merged = append(merged, r)
			}
			return UniqueRecords(merged), nil
		})
	return err
}

func (s *SyncService) finish(ctx context.Context, log zerolog.Logger, report *domain.SyncReport) {
	report.Duration = s.now().Sub(report.StartedAt)

	log.Info().
		Bool("skipped", report.Skipped).
		Int("users", report.Users).
		Int("failed_users", len(report.FailedUsers)).
		Int("fetched", report.Fetched).
		Int("new_or_changed", report.NewOrChanged).
		Int("created", report.Created).
		Int("cancelled", report.Cancelled).
		Int("no_room", report.NoRoom).
		Int("failed_events", len(report.FailedEvents)).
		Dur("duration", report.Duration).
		Msg("sync pass finished")

	if s.publisher != nil {
		if err := s.publisher.PublishReport(ctx, report); err != nil {
			log.Warn().Err(err).Msg("failed to publish sync report")
		}
	}
}
