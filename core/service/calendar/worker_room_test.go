package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"calsync_server/core/domain"
	"calsync_server/pkg/apperr"
)

var testRooms = []domain.RoomRef{
	{ID: "room-a@resource", Title: "Room A"},
	{ID: "room-b@resource", Title: "Room B"},
	{ID: "room-c@resource", Title: "Room C"},
}

func slot(tz string) (domain.EventDateTime, domain.EventDateTime) {
	return domain.EventDateTime{DateTime: "2026-01-05T10:00:00.0000000", TimeZone: tz},
		domain.EventDateTime{DateTime: "2026-01-05T11:00:00.0000000", TimeZone: tz}
}

func TestAllocatePicksFirstFreeRoom(t *testing.T) {
	busy := []domain.BusyPeriod{{Start: "2026-01-05T10:00:00Z", End: "2026-01-05T10:30:00Z"}}

	tests := []struct {
		name   string
		busy   map[string][]domain.BusyPeriod
		failed map[string]bool
		want   string
	}{
		{"all free takes first", nil, nil, "room-a@resource"},
		{"first busy", map[string][]domain.BusyPeriod{"room-a@resource": busy}, nil, "room-b@resource"},
		{"first failed", nil, map[string]bool{"room-a@resource": true}, "room-b@resource"},
		{"only last free", map[string][]domain.BusyPeriod{"room-a@resource": busy, "room-b@resource": busy}, nil, "room-c@resource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := &fakeTarget{busy: tt.busy, failed: tt.failed}
			a := NewRoomAllocator(target, time.UTC, time.UTC)
			start, end := slot("UTC")

			room, err := a.Allocate(context.Background(), nil, testRooms, start, end)
			if err != nil {
				t.Fatalf("Allocate: %v", err)
			}
			if room.ID != tt.want {
				t.Errorf("room = %s, want %s", room.ID, tt.want)
			}
			if len(target.queries) != 1 {
				t.Errorf("queries = %d, want one batched query", len(target.queries))
			}
		})
	}
}

func TestAllocateNoRoom(t *testing.T) {
	busy := []domain.BusyPeriod{{Start: "x", End: "y"}}
	target := &fakeTarget{busy: map[string][]domain.BusyPeriod{
		"room-a@resource": busy, "room-b@resource": busy, "room-c@resource": busy,
	}}
	a := NewRoomAllocator(target, time.UTC, time.UTC)
	start, end := slot("UTC")

	room, err := a.Allocate(context.Background(), nil, testRooms, start, end)
	if room != nil {
		t.Errorf("room = %+v, want nil", room)
	}
	if !apperr.HasCode(err, apperr.CodeNoRoomAvailable) {
		t.Errorf("err = %v, want NO_ROOM_AVAILABLE", err)
	}

	_, err = a.Allocate(context.Background(), nil, nil, start, end)
	if !apperr.HasCode(err, apperr.CodeNoRoomAvailable) {
		t.Errorf("no rooms: err = %v, want NO_ROOM_AVAILABLE", err)
	}
}

func TestAllocateQueryError(t *testing.T) {
	target := &fakeTarget{queryErr: errBoom}
	a := NewRoomAllocator(target, time.UTC, time.UTC)
	start, end := slot("UTC")

	_, err := a.Allocate(context.Background(), nil, testRooms, start, end)
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want boom", err)
	}
	if apperr.HasCode(err, apperr.CodeNoRoomAvailable) {
		t.Error("infrastructure failure reported as no room")
	}
}

func TestWindowConvertsZone(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skip("tzdata not available")
	}
	a := NewRoomAllocator(&fakeTarget{}, time.UTC, seoul)
	start, end := slot("UTC")

	w, err := a.Window(start, end)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.TimeMin != "2026-01-05T19:00:00+09:00" || w.TimeMax != "2026-01-05T20:00:00+09:00" {
		t.Errorf("window = %+v", w)
	}
	if w.TimeZone != "Asia/Seoul" {
		t.Errorf("zone = %s", w.TimeZone)
	}
}

func TestWindowUnknownZoneFallsBackToSource(t *testing.T) {
	a := NewRoomAllocator(&fakeTarget{}, time.UTC, time.UTC)
	start, end := slot("Pacific Standard Time")

	w, err := a.Window(start, end)
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	if w.TimeMin != "2026-01-05T10:00:00Z" {
		t.Errorf("TimeMin = %s", w.TimeMin)
	}
}

func TestWindowRejectsInverted(t *testing.T) {
	a := NewRoomAllocator(&fakeTarget{}, time.UTC, time.UTC)
	start, end := slot("UTC")
	if _, err := a.Window(end, start); err == nil {
		t.Error("expected error for end before start")
	}
	if _, err := a.Window(domain.EventDateTime{DateTime: "garbage"}, end); err == nil {
		t.Error("expected parse error")
	}
}
