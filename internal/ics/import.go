package ics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	appLog "evsched/internal/log"
	"evsched/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 500

	// maxSourceBytes caps how much of an ICS file or response is read.
	maxSourceBytes = 16 << 20
)

// ErrSourceTooLarge is returned when an ICS source exceeds maxSourceBytes.
var ErrSourceTooLarge = errors.New("ics source too large")

// ImportConfig controls how an iCalendar document is turned into drafts.
type ImportConfig struct {
	// Location is the zone dates and times are rendered in. If nil, time.Local.
	Location *time.Location

	// RangeStart / RangeEnd bound which occurrences are imported.
	RangeStart time.Time
	RangeEnd   time.Time

	// DefaultName is used when a VEVENT has no ORGANIZER common name.
	DefaultName string

	// MaxOccurrencesPerEvent caps recurrence expansion. Zero means 500.
	MaxOccurrencesPerEvent int
}

// sourceEvent is the part of a VEVENT that import cares about.
type sourceEvent struct {
	UID       string
	Summary   string
	Organizer string
	Start     time.Time
	End       time.Time
	AllDay    bool
	RawRRule  string
	ExDates   []time.Time
}

// Import parses an iCalendar body and returns one create draft per
// occurrence inside the configured range, sorted by date and start time.
//
// All-day events, events without DTEND and events spanning midnight are
// skipped: a scheduled event here lives on a single date with a time range.
// RRULE/EXDATE recurrences are expanded.
func Import(body []byte, cfg ImportConfig) ([]model.Draft, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("import: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}
	if cfg.DefaultName == "" {
		cfg.DefaultName = "Imported"
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	drafts := make([]model.Draft, 0)
	for _, comp := range cal.Events() {
		src, perr := parseVEvent(comp)
		if perr != nil {
			appLog.Error("ics import: vevent skipped", perr)
			continue
		}
		if src.AllDay {
			appLog.Debug("ics import: all-day event skipped", "uid", src.UID)
			continue
		}
		for _, start := range occurrences(src, cfg) {
			end := start.Add(src.End.Sub(src.Start))
			d, ok := draftFor(src, start, end, cfg)
			if !ok {
				appLog.Debug("ics import: multi-day occurrence skipped", "uid", src.UID)
				continue
			}
			drafts = append(drafts, d)
		}
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		if drafts[i].Date != drafts[j].Date {
			return drafts[i].Date < drafts[j].Date
		}
		return drafts[i].StartTime < drafts[j].StartTime
	})

	appLog.Info("ics import parsed", "draft_count", len(drafts))
	return drafts, nil
}

// ReadSource loads an iCalendar document from a local path or an http(s) URL.
func ReadSource(ctx context.Context, src string, timeout time.Duration) ([]byte, error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		f, err := os.Open(src)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return readLimited(f, maxSourceBytes)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout}

	appLog.Info("ics fetch start", "url", appLog.RedactURL(src))
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return readLimited(resp.Body, maxSourceBytes)
}

// readLimited reads r fully, failing instead of truncating past limit bytes.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, limit)
	}
	return body, nil
}

func parseVEvent(ve *ical.VEvent) (sourceEvent, error) {
	var out sourceEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil {
		if cns, ok := p.ICalParameters["CN"]; ok && len(cns) > 0 {
			out.Organizer = strings.TrimSpace(cns[0])
		}
	}

	if dtStartProp := ve.GetProperty(ical.ComponentPropertyDtStart); dtStartProp != nil {
		if vs, ok := dtStartProp.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			out.AllDay = true
		}
		if !strings.Contains(dtStartProp.Value, "T") {
			out.AllDay = true
		}
	} else {
		return out, fmt.Errorf("uid %s: missing DTSTART", out.UID)
	}
	if out.AllDay {
		return out, nil
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("uid %s: DTSTART: %w", out.UID, err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return out, fmt.Errorf("uid %s: DTEND: %w", out.UID, err)
	}
	out.Start = start
	out.End = end

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}
	return out, nil
}

// occurrences lists start instants of src inside the configured range.
func occurrences(src sourceEvent, cfg ImportConfig) []time.Time {
	if src.RawRRule == "" {
		if src.Start.Before(cfg.RangeStart) || src.Start.After(cfg.RangeEnd) {
			return nil
		}
		return []time.Time{src.Start}
	}

	r, err := rrule.StrToRRule(src.RawRRule)
	if err != nil {
		appLog.Error("ics import: failed to parse RRULE", err, "uid", src.UID, "rrule", src.RawRRule)
		return nil
	}
	r.DTStart(src.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range src.ExDates {
		set.ExDate(ex.In(src.Start.Location()))
	}

	starts := set.Between(cfg.RangeStart.In(src.Start.Location()), cfg.RangeEnd.In(src.Start.Location()), true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		appLog.Error("ics import: occurrences truncated", errors.New("max occurrences reached"),
			"uid", src.UID,
			"cap", cfg.MaxOccurrencesPerEvent,
		)
		starts = starts[:cfg.MaxOccurrencesPerEvent]
	}
	return starts
}

func draftFor(src sourceEvent, start, end time.Time, cfg ImportConfig) (model.Draft, bool) {
	startLocal := start.In(cfg.Location)
	endLocal := end.In(cfg.Location)
	if model.FormatDate(startLocal) != model.FormatDate(endLocal) {
		return model.Draft{}, false
	}

	name := src.Organizer
	if name == "" {
		name = cfg.DefaultName
	}
	return model.Draft{
		Mode:      model.ModeCreate,
		Name:      name,
		Title:     src.Summary,
		Date:      model.FormatDate(startLocal),
		StartTime: startLocal.Format(model.TimeLayout),
		EndTime:   endLocal.Format(model.TimeLayout),
	}, true
}

// parseICSTime parses a basic EXDATE value (UTC, floating or date-only).
func parseICSTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, time.Local)
	}
	return time.ParseInLocation("20060102", v, time.Local)
}
