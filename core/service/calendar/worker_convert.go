package calendar

import "calsync_server/core/domain"

// ReminderMinutes is the single popup reminder put on every mirrored event.
const ReminderMinutes = 10

// ToTargetEvent builds the Google event for a source event booked in room.
// The room is always appended as an attendee so the resource gets booked.
func ToTargetEvent(table []domain.AttendeeMapping, ev domain.SourceEvent, room domain.RoomRef) domain.TargetEvent {
	return toTargetEvent(NewAttendeeIndex(table), ev, room)
}

func toTargetEvent(idx AttendeeIndex, ev domain.SourceEvent, room domain.RoomRef) domain.TargetEvent {
	attendees := idx.Map(ev.Attendees)
	attendees = append(attendees, domain.TargetAttendee{Email: room.ID})

	return domain.TargetEvent{
		Summary:     ev.Subject,
		Location:    room.Title,
		Description: ev.BodyPreview,
		Start:       ev.Start,
		End:         ev.End,
		Recurrence:  []string{},
		Attendees:   attendees,
		Reminders: domain.Reminders{
			UseDefault: false,
			Overrides:  []domain.Reminder{{Method: "popup", Minutes: ReminderMinutes}},
		},
		GuestsCanModify: true,
	}
}
