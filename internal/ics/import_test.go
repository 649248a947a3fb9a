package ics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"evsched/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:weekly\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"SUMMARY:Weekly planning\r\n" +
	"ORGANIZER;CN=Alice:mailto:alice@example.com\r\n" +
	"DTSTART:20240108T090000Z\r\n" +
	"DTEND:20240108T100000Z\r\n" +
	"RRULE:FREQ=WEEKLY;COUNT=3\r\n" +
	"EXDATE:20240115T090000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:allday\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"SUMMARY:Holiday break\r\n" +
	"DTSTART;VALUE=DATE:20240110\r\n" +
	"DTEND;VALUE=DATE:20240111\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:single\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"SUMMARY:Dentist visit\r\n" +
	"DTSTART:20240111T130000Z\r\n" +
	"DTEND:20240111T133000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:overnight\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"SUMMARY:Night shift\r\n" +
	"DTSTART:20240112T220000Z\r\n" +
	"DTEND:20240113T060000Z\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:later\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"SUMMARY:Next year kickoff\r\n" +
	"DTSTART:20250111T130000Z\r\n" +
	"DTEND:20250111T133000Z\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestImport(t *testing.T) {
	t.Parallel()

	drafts, err := Import([]byte(sampleICS), ImportConfig{
		Location:   time.UTC,
		RangeStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []model.Draft{
		{Name: "Alice", Title: "Weekly planning", Date: "2024-01-08", StartTime: "09:00", EndTime: "10:00"},
		{Name: "Imported", Title: "Dentist visit", Date: "2024-01-11", StartTime: "13:00", EndTime: "13:30"},
		{Name: "Alice", Title: "Weekly planning", Date: "2024-01-22", StartTime: "09:00", EndTime: "10:00"},
	}
	if len(drafts) != len(want) {
		t.Fatalf("expected %d drafts, got %d: %+v", len(want), len(drafts), drafts)
	}
	for i := range want {
		if drafts[i] != want[i] {
			t.Fatalf("draft %d: expected %+v, got %+v", i, want[i], drafts[i])
		}
	}
}

func TestImportRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := Import(nil, ImportConfig{}); err == nil {
		t.Fatalf("expected error for empty body")
	}
	_, err := Import([]byte(sampleICS), ImportConfig{
		RangeStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err == nil {
		t.Fatalf("expected error for inverted range")
	}
}

func TestReadSource(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cal.ics")
	if err := os.WriteFile(path, []byte(sampleICS), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	body, err := ReadSource(context.Background(), path, 0)
	if err != nil || !strings.HasPrefix(string(body), "BEGIN:VCALENDAR") {
		t.Fatalf("file source: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, sampleICS)
	}))
	defer srv.Close()

	body, err = ReadSource(context.Background(), srv.URL+"/cal.ics", time.Second)
	if err != nil || len(body) != len(sampleICS) {
		t.Fatalf("http source: %v (len %d)", err, len(body))
	}
}

func TestReadLimited(t *testing.T) {
	t.Parallel()

	body, err := readLimited(strings.NewReader("12345678"), 8)
	if err != nil || string(body) != "12345678" {
		t.Fatalf("expected body at the limit to be read, got %q, %v", body, err)
	}

	if _, err := readLimited(strings.NewReader("123456789"), 8); !errors.Is(err, ErrSourceTooLarge) {
		t.Fatalf("expected ErrSourceTooLarge, got %v", err)
	}
}
