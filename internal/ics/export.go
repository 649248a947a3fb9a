package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "evsched/internal/log"
	"evsched/internal/model"
)

const productID = "-//evsched//evsched//EN"

// ExportConfig controls how cached events are turned into VEVENTs.
type ExportConfig struct {
	// CalendarName is written as X-WR-CALNAME.
	CalendarName string

	// Location is the zone event dates and times are interpreted in.
	// If nil, time.Local is used.
	Location *time.Location

	// Stamp is used for DTSTAMP. If zero, time.Now() is used.
	Stamp time.Time
}

// Export renders the events as an iCalendar document.
//
// Events whose date or times cannot be parsed are skipped and logged; the
// rest of the calendar is still produced. An event whose end is not after
// its start is exported with a zero duration.
func Export(events []model.Event, cfg ExportConfig) string {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Stamp.IsZero() {
		cfg.Stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if cfg.CalendarName != "" {
		cal.SetXWRCalName(cfg.CalendarName)
	}
	cal.SetXWRTimezone(cfg.Location.String())

	skipped := 0
	for _, ev := range events {
		start, end, err := eventSpan(ev, cfg.Location)
		if err != nil {
			skipped++
			appLog.Error("ics export: skipping event", err, "id", ev.ID)
			continue
		}

		vev := cal.AddEvent(uidFor(ev))
		vev.SetDtStampTime(cfg.Stamp)
		vev.SetStartAt(start)
		vev.SetEndAt(end)
		vev.SetSummary(ev.Title)
		if ev.Name != "" {
			vev.SetDescription("Scheduled by " + ev.Name)
		}
	}

	appLog.Debug("ics export completed", "event_count", len(events)-skipped, "skipped", skipped)
	return cal.Serialize()
}

// eventSpan resolves an event's date and HH:MM times into instants.
func eventSpan(ev model.Event, loc *time.Location) (time.Time, time.Time, error) {
	if ev.Date == "" || ev.StartTime == "" || ev.EndTime == "" {
		return time.Time{}, time.Time{}, errors.New("incomplete date or time")
	}
	const layout = model.DateLayout + " " + model.TimeLayout

	start, err := time.ParseInLocation(layout, ev.Date+" "+ev.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	end, err := time.ParseInLocation(layout, ev.Date+" "+ev.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if end.Before(start) {
		end = start
	}
	return start, end, nil
}

func uidFor(ev model.Event) string {
	id := strings.TrimSpace(ev.ID)
	if id == "" {
		id = ev.Date + "T" + strings.ReplaceAll(ev.StartTime, ":", "")
	}
	return id + "@evsched"
}
