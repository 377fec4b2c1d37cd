package calendar

import (
	"reflect"
	"testing"

	"calsync_server/core/domain"
)

func TestToTargetEvent(t *testing.T) {
	table := []domain.AttendeeMapping{
		{Outlook: "a@o", Google: domain.TargetAddresses{"a@g"}},
	}
	ev := event("e1", "2026-01-05T10:00:00", "2026-01-05T11:00:00", false, "a@o", "stranger@o")
	ev.Subject = "Planning"
	room := domain.RoomRef{ID: "room-a@resource", Title: "Room A"}

	got := ToTargetEvent(table, ev, room)

	if got.Summary != "Planning" || got.Location != "Room A" || got.Description != "agenda" {
		t.Errorf("text fields = %q %q %q", got.Summary, got.Location, got.Description)
	}
	if got.Start != ev.Start || got.End != ev.End {
		t.Errorf("times changed: %+v %+v", got.Start, got.End)
	}
	if got.Recurrence == nil || len(got.Recurrence) != 0 {
		t.Errorf("recurrence = %#v, want empty", got.Recurrence)
	}
	if want := []string{"a@g", "room-a@resource"}; !reflect.DeepEqual(emails(got.Attendees), want) {
		t.Errorf("attendees = %v, want %v", emails(got.Attendees), want)
	}
	if got.Reminders.UseDefault {
		t.Error("reminders.useDefault = true")
	}
	if want := []domain.Reminder{{Method: "popup", Minutes: 10}}; !reflect.DeepEqual(got.Reminders.Overrides, want) {
		t.Errorf("overrides = %+v", got.Reminders.Overrides)
	}
	if !got.GuestsCanModify {
		t.Error("guestsCanModify = false")
	}
}
