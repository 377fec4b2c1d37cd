package calendar

import (
	"strings"

	"calsync_server/core/domain"
)

// AttendeeIndex resolves source addresses against a mapping table.
// Addresses compare case-insensitively; when the table repeats a source
// address only the first entry is used.
type AttendeeIndex map[string]domain.TargetAddresses

func NewAttendeeIndex(table []domain.AttendeeMapping) AttendeeIndex {
	idx := make(AttendeeIndex, len(table))
	for _, m := range table {
		key := normalizeAddress(m.Outlook)
		if key == "" {
			continue
		}
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = m.Google
	}
	return idx
}

// Lookup returns the target addresses for a source address.
func (idx AttendeeIndex) Lookup(address string) (domain.TargetAddresses, bool) {
	targets, ok := idx[normalizeAddress(address)]
	return targets, ok
}

// MapAttendees translates source attendees into target attendees, preserving
// input order and expanding one-to-many entries in place. Attendees with no
// mapping are dropped.
func MapAttendees(table []domain.AttendeeMapping, attendees []domain.SourceAttendee) []domain.TargetAttendee {
	return NewAttendeeIndex(table).Map(attendees)
}

func (idx AttendeeIndex) Map(attendees []domain.SourceAttendee) []domain.TargetAttendee {
	result := make([]domain.TargetAttendee, 0, len(attendees))
	for _, a := range attendees {
		targets, ok := idx.Lookup(a.EmailAddress.Address)
		if !ok {
			continue
		}
		for _, email := range targets {
			if email == "" {
				continue
			}
			result = append(result, domain.TargetAttendee{Email: email})
		}
	}
	return result
}

func normalizeAddress(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
