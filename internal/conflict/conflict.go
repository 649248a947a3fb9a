// Package conflict decides whether a candidate time range collides with an
// already scheduled event on the same date.
//
// Times are "HH:MM" strings on a 24-hour clock, which order correctly under
// plain string comparison, so no parsing happens here.
package conflict

import "evsched/internal/model"

// HasConflict reports whether candidate overlaps any event in existing.
func HasConflict(candidate model.Interval, existing []model.Event) bool {
	_, ok := FindConflict(candidate, existing, "")
	return ok
}

// FindConflict returns the first event in existing that candidate collides
// with. If excludeID is non-empty, the event with that ID is skipped (used
// when updating an existing event).
func FindConflict(candidate model.Interval, existing []model.Event, excludeID string) (model.Event, bool) {
	for _, ev := range existing {
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		if ev.Date != candidate.Date {
			continue
		}
		if Overlaps(candidate, ev.Interval()) {
			return ev, true
		}
	}
	return model.Event{}, false
}

// Overlaps applies the three-clause rule to two intervals on the same date:
//   - a starts inside [b.start, b.end)
//   - a ends inside (b.start, b.end]
//   - a contains b entirely
func Overlaps(a, b model.Interval) bool {
	startsInside := a.StartTime >= b.StartTime && a.StartTime < b.EndTime
	endsInside := a.EndTime > b.StartTime && a.EndTime <= b.EndTime
	contains := a.StartTime <= b.StartTime && a.EndTime >= b.EndTime
	return startsInside || endsInside || contains
}
