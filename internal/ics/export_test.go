package ics

import (
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"

	"evsched/internal/model"
)

func TestExportRoundTrip(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("KST", 9*60*60)
	events := []model.Event{
		{ID: "a1", Name: "Alice", Title: "Design review", Date: "2024-01-02", StartTime: "09:00", EndTime: "10:30"},
		{ID: "b2", Name: "Bob", Title: "Broken event", Date: "someday", StartTime: "09:00", EndTime: "10:00"},
	}

	out := Export(events, ExportConfig{
		CalendarName: "Team",
		Location:     loc,
		Stamp:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if !strings.Contains(out, "X-WR-CALNAME:Team") {
		t.Fatalf("expected calendar name in output:\n%s", out)
	}

	cal, err := ical.ParseCalendar(strings.NewReader(out))
	if err != nil {
		t.Fatalf("parse exported calendar: %v", err)
	}
	vevents := cal.Events()
	if len(vevents) != 1 {
		t.Fatalf("expected the unparsable event to be skipped, got %d events", len(vevents))
	}

	vev := vevents[0]
	if uid := vev.GetProperty(ical.ComponentPropertyUniqueId); uid == nil || uid.Value != "a1@evsched" {
		t.Fatalf("unexpected UID %+v", uid)
	}
	if s := vev.GetProperty(ical.ComponentPropertySummary); s == nil || s.Value != "Design review" {
		t.Fatalf("unexpected SUMMARY %+v", s)
	}

	start, err := vev.GetStartAt()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, loc)
	if !start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, start)
	}
	end, err := vev.GetEndAt()
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if end.Sub(start) != 90*time.Minute {
		t.Fatalf("expected 90m duration, got %v", end.Sub(start))
	}
}

func TestExportEmpty(t *testing.T) {
	t.Parallel()

	out := Export(nil, ExportConfig{})
	if !strings.HasPrefix(out, "BEGIN:VCALENDAR") {
		t.Fatalf("expected a VCALENDAR document, got:\n%s", out)
	}
}
