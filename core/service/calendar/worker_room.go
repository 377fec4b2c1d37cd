package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"calsync_server/core/domain"
	"calsync_server/core/port/out"
	"calsync_server/pkg/apperr"
)

// sourceLayout parses Graph date-times, which carry up to seven fractional
// digits and no offset.
const sourceLayout = "2006-01-02T15:04:05.999999999"

// RoomAllocator picks the first free room for a time slot.
type RoomAllocator struct {
	target     out.TargetCalendarProvider
	targetZone *time.Location
	sourceZone *time.Location
}

// NewRoomAllocator creates an allocator. sourceZone is used when an event's
// own zone label cannot be loaded; targetZone is the zone free/busy queries
// are issued in.
func NewRoomAllocator(target out.TargetCalendarProvider, sourceZone, targetZone *time.Location) *RoomAllocator {
	if sourceZone == nil {
		sourceZone = time.UTC
	}
	if targetZone == nil {
		targetZone = time.UTC
	}
	return &RoomAllocator{target: target, sourceZone: sourceZone, targetZone: targetZone}
}

// Window converts a source start/end pair into the target zone. The instant
// is preserved; only the zone label changes.
func (a *RoomAllocator) Window(start, end domain.EventDateTime) (domain.FreeBusyWindow, error) {
	s, err := a.parse(start)
	if err != nil {
		return domain.FreeBusyWindow{}, fmt.Errorf("parse start: %w", err)
	}
	e, err := a.parse(end)
	if err != nil {
		return domain.FreeBusyWindow{}, fmt.Errorf("parse end: %w", err)
	}
	if !e.After(s) {
		return domain.FreeBusyWindow{}, fmt.Errorf("end %s not after start %s", end.DateTime, start.DateTime)
	}
	return domain.FreeBusyWindow{
		TimeMin:  s.In(a.targetZone).Format(time.RFC3339),
		TimeMax:  e.In(a.targetZone).Format(time.RFC3339),
		TimeZone: a.targetZone.String(),
	}, nil
}

func (a *RoomAllocator) parse(dt domain.EventDateTime) (time.Time, error) {
	value := strings.TrimSpace(dt.DateTime)
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	loc := a.sourceZone
	if dt.TimeZone != "" {
		if l, err := time.LoadLocation(dt.TimeZone); err == nil {
			loc = l
		}
	}
	return time.ParseInLocation(sourceLayout, value, loc)
}

// Allocate issues one batched free/busy query for all rooms and returns the
// first room, in the given order, with no busy interval in [start, end).
// Rooms the provider reports errors for count as unavailable.
func (a *RoomAllocator) Allocate(ctx context.Context, token *oauth2.Token, rooms []domain.RoomRef, start, end domain.EventDateTime) (*domain.RoomRef, error) {
	if len(rooms) == 0 {
		return nil, apperr.NoRoomAvailable(start.DateTime, end.DateTime)
	}

	window, err := a.Window(start, end)
	if err != nil {
		return nil, apperr.BadRequest(err.Error())
	}

	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}

	busy, err := a.target.QueryFreeBusy(ctx, token, window, ids)
	if err != nil {
		return nil, fmt.Errorf("query free/busy: %w", err)
	}

	for _, r := range rooms {
		cal, ok := busy[r.ID]
		if !ok || cal.Failed {
			continue
		}
		if len(cal.Busy) == 0 {
			room := r
			return &room, nil
		}
	}
	return nil, apperr.NoRoomAvailable(start.DateTime, end.DateTime)
}
