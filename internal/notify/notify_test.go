package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"evsched/internal/api"
	"evsched/internal/backend"
	"evsched/internal/clock"
	"evsched/internal/controller"
	appLog "evsched/internal/log"
	"evsched/internal/model"
)

type published struct {
	channel string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	sent chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan struct{}, 16)}
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	f.msgs = append(f.msgs, published{channel: channel, payload: message.([]byte)})
	err := f.err
	f.mu.Unlock()
	f.sent <- struct{}{}
	return redis.NewIntResult(1, err)
}

func (f *fakePublisher) wait(t *testing.T, n int) []published {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.sent:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for publish %d", i+1)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]published, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func TestRedisObserverPublishesNotifications(t *testing.T) {
	pub := newFakePublisher()
	o := NewRedisObserver(pub, "evsched:test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	o.Notified(controller.Notification{Variant: controller.VariantSuccess, Message: controller.MsgCreated, At: at})

	msgs := pub.wait(t, 1)
	if msgs[0].channel != "evsched:test" {
		t.Fatalf("unexpected channel %q", msgs[0].channel)
	}

	var env struct {
		ID      string                  `json:"id"`
		Type    string                  `json:"type"`
		Payload controller.Notification `json:"payload"`
	}
	if err := json.Unmarshal(msgs[0].payload, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeNotification || env.ID == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Payload.Message != controller.MsgCreated || env.Payload.Variant != controller.VariantSuccess {
		t.Fatalf("unexpected payload %+v", env.Payload)
	}
}

func TestRedisObserverPublishesOnlyRevisionChanges(t *testing.T) {
	pub := newFakePublisher()
	o := NewRedisObserver(pub, "evsched:test")

	events := []model.Event{{ID: "a"}, {ID: "b"}}
	o.StateChanged(controller.Snapshot{Revision: 0, Events: events})
	o.StateChanged(controller.Snapshot{Revision: 1, Events: events})
	o.StateChanged(controller.Snapshot{Revision: 1, Events: events})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go o.Run(ctx)

	msgs := pub.wait(t, 1)
	var env struct {
		Type    string        `json:"type"`
		Payload EventsChanged `json:"payload"`
	}
	if err := json.Unmarshal(msgs[0].payload, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != TypeEventsChanged || env.Payload.Revision != 1 || env.Payload.Count != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}

	select {
	case <-pub.sent:
		t.Fatalf("expected a single publish")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisObserverCountsRefetchedListAfterCreate(t *testing.T) {
	remote := httptest.NewServer(backend.NewServer(backend.NewStore()).Handler())
	defer remote.Close()

	clk := clock.NewFixed(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	ctrl := controller.New(api.NewClient(remote.URL, time.Second), controller.WithClock(clk))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	pub := newFakePublisher()
	o := NewRedisObserver(pub, "evsched:test")
	ctrl.Subscribe(o)
	go o.Run(ctx)

	if err := ctrl.SetDraft(model.Draft{Name: "Alice", Title: "Design review", Date: "2024-01-01", StartTime: "09:00", EndTime: "10:00"}); err != nil {
		t.Fatalf("set draft: %v", err)
	}
	if err := ctrl.SubmitCreate(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	var changed []EventsChanged
	for _, msg := range pub.wait(t, 2) {
		var env struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(msg.payload, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type != TypeEventsChanged {
			continue
		}
		var p EventsChanged
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		changed = append(changed, p)
	}
	if len(changed) != 1 || changed[0].Revision != 1 || changed[0].Count != 1 {
		t.Fatalf("expected one events_changed with revision 1 and count 1, got %+v", changed)
	}
}

func TestRedisObserverPublishError(t *testing.T) {
	pub := newFakePublisher()
	pub.err = errors.New("connection refused")
	o := NewRedisObserver(pub, "evsched:test")

	err := o.publish(context.Background(), Envelope{Type: TypeNotification})
	if err == nil || !errors.Is(err, pub.err) {
		t.Fatalf("expected wrapped publish error, got %v", err)
	}
}

func TestLogObserver(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := appLog.Replace(zap.New(core))
	defer restore()

	obs := Log()
	obs.Notified(controller.Notification{Variant: controller.VariantWarning, Message: controller.MsgConflict})
	obs.Notified(controller.Notification{Variant: controller.VariantError, Message: controller.MsgFetchFailed})

	entries := logs.FilterMessage("notification").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[1].Level != zapcore.ErrorLevel {
		t.Fatalf("unexpected levels %v %v", entries[0].Level, entries[1].Level)
	}
	if entries[0].ContextMap()["message"] != controller.MsgConflict {
		t.Fatalf("unexpected fields %v", entries[0].ContextMap())
	}
}
