package form

import "evsched/internal/model"

// Merge overlays the draft on the original event field by field: a
// non-empty draft field wins, an empty one keeps the original value.
// The ID always comes from the original.
func Merge(original model.Event, d model.Draft) model.Event {
	return model.Event{
		ID:        original.ID,
		Name:      orElse(d.Name, original.Name),
		Title:     orElse(d.Title, original.Title),
		Date:      orElse(d.Date, original.Date),
		StartTime: orElse(d.StartTime, original.StartTime),
		EndTime:   orElse(d.EndTime, original.EndTime),
	}
}

func orElse(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
