package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"evsched/internal/api"
	"evsched/internal/backend"
	"evsched/internal/model"
)

func newClient(t *testing.T) *api.Client {
	t.Helper()
	srv := httptest.NewServer(backend.NewServer(nil).Handler())
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, time.Second)
}

func input(title string) model.EventInput {
	return model.EventInput{Name: "Alice", Title: title, Date: "2024-01-02", StartTime: "09:00", EndTime: "10:00"}
}

func TestCreateAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t)

	events, err := c.ListEvents(ctx)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected empty list, got %v (err %v)", events, err)
	}

	if err := c.CreateEvent(ctx, input("Design review")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.CreateEvent(ctx, input("Retrospective")); err != nil {
		t.Fatalf("create: %v", err)
	}

	events, err = c.ListEvents(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "Design review" || events[1].Title != "Retrospective" {
		t.Fatalf("expected insertion order, got %+v", events)
	}
	for _, ev := range events {
		if _, err := uuid.Parse(ev.ID); err != nil {
			t.Fatalf("expected uuid id, got %q", ev.ID)
		}
	}
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t)

	if err := c.CreateEvent(ctx, input("Design review")); err != nil {
		t.Fatalf("create: %v", err)
	}
	events, _ := c.ListEvents(ctx)
	id := events[0].ID

	in := input("Design review v2")
	in.StartTime = "11:00"
	in.EndTime = "12:00"
	if err := c.UpdateEvent(ctx, id, in); err != nil {
		t.Fatalf("update: %v", err)
	}
	events, _ = c.ListEvents(ctx)
	want := model.Event{ID: id, Name: "Alice", Title: "Design review v2", Date: "2024-01-02", StartTime: "11:00", EndTime: "12:00"}
	if events[0] != want {
		t.Fatalf("expected %+v, got %+v", want, events[0])
	}

	err := c.UpdateEvent(ctx, "missing", in)
	var rerr *api.RemoteError
	if !errors.As(err, &rerr) || rerr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 RemoteError, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newClient(t)

	if err := c.CreateEvent(ctx, input("Design review")); err != nil {
		t.Fatalf("create: %v", err)
	}
	events, _ := c.ListEvents(ctx)

	msg, err := c.DeleteEvent(ctx, events[0].ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if msg != backend.DeletedMessage {
		t.Fatalf("expected %q, got %q", backend.DeletedMessage, msg)
	}
	events, _ = c.ListEvents(ctx)
	if len(events) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", events)
	}

	_, err = c.DeleteEvent(ctx, "missing")
	var rerr *api.RemoteError
	if !errors.As(err, &rerr) || rerr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 RemoteError, got %v", err)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	h := backend.NewServer(nil).Handler()
	req := httptest.NewRequest(http.MethodOptions, "/new_event", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", got)
	}
}

func TestBadBody(t *testing.T) {
	t.Parallel()

	h := backend.NewServer(nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/new_event", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
