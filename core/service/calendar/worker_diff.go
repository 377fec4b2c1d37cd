package calendar

import (
	"strings"

	"calsync_server/core/domain"
)

// eventState is the part of an event that decides whether it was already
// processed.
type eventState struct {
	ICalUID     string
	Start       string
	End         string
	IsCancelled bool
}

func stateOf(e domain.SourceEvent) eventState {
	return eventState{
		ICalUID:     e.ICalUID,
		Start:       e.Start.DateTime,
		End:         e.End.DateTime,
		IsCancelled: e.IsCancelled,
	}
}

// DiffResult splits a fresh batch against the previous snapshot.
type DiffResult struct {
	NewOrChanged []domain.SourceEvent
	Unchanged    []domain.SourceEvent
}

// Diff classifies fresh events. An event is unchanged only when the snapshot
// holds an entry with the same iCalUId, start, end and cancellation flag;
// a difference in any of them makes it new or changed.
func Diff(fresh, previous []domain.SourceEvent) DiffResult {
	seen := make(map[eventState]struct{}, len(previous))
	for _, e := range previous {
		seen[stateOf(e)] = struct{}{}
	}

	var res DiffResult
	for _, e := range fresh {
		if _, ok := seen[stateOf(e)]; ok {
			res.Unchanged = append(res.Unchanged, e)
		} else {
			res.NewOrChanged = append(res.NewOrChanged, e)
		}
	}
	return res
}

// FilterSubjects drops events whose subject contains any of the filters,
// compared case-insensitively. Blank filters are ignored.
func FilterSubjects(events []domain.SourceEvent, filters []string) []domain.SourceEvent {
	needles := make([]string, 0, len(filters))
	for _, f := range filters {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			needles = append(needles, f)
		}
	}
	if len(needles) == 0 {
		return events
	}

	kept := make([]domain.SourceEvent, 0, len(events))
	for _, e := range events {
		subject := strings.ToLower(e.Subject)
		drop := false
		for _, n := range needles {
			if strings.Contains(subject, n) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, e)
		}
	}
	return kept
}

// uniqueBy keeps the first element for each key, preserving order.
func uniqueBy[T any, K comparable](items []T, key func(T) K) []T {
	seen := make(map[K]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, it := range items {
		k := key(it)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// UniqueEvents de-duplicates by iCalUId, keeping the first occurrence.
func UniqueEvents(events []domain.SourceEvent) []domain.SourceEvent {
	return uniqueBy(events, func(e domain.SourceEvent) string { return e.ICalUID })
}

// UniqueRecords de-duplicates registry records by source event id, keeping
// the first occurrence.
func UniqueRecords(records []domain.CreatedEventRecord) []domain.CreatedEventRecord {
	return uniqueBy(records, func(r domain.CreatedEventRecord) string { return r.OutlookEventID })
}
