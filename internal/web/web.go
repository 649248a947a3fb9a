package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"sync"
	"time"

	"evsched/internal/clock"
	"evsched/internal/config"
	"evsched/internal/controller"
	"evsched/internal/ics"
	appLog "evsched/internal/log"
	"evsched/internal/model"
)

// maxFlashes bounds how many undisplayed notifications are kept.
const maxFlashes = 10

// Server renders the schedule page and turns form posts into controller
// operations. Every mutating route answers 303 See Other back to "/".
type Server struct {
	cfg   *config.Config
	ctrl  *controller.Controller
	clock clock.Clock
	loc   *time.Location
	mux   *http.ServeMux
	tmpl  *template.Template

	// Notifications waiting to be shown on the next page render.
	flashMu sync.Mutex
	flashes []controller.Notification

	unsubscribe func()
}

//go:embed templates/*.html
var embeddedTemplates embed.FS

// Option customizes a Server.
type Option func(*Server)

// WithClock overrides the clock used to decide "today" in the calendar.
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// NewServer constructs a new Server and subscribes it to ctrl's notifications.
// Call Close to unsubscribe.
func NewServer(cfg *config.Config, ctrl *controller.Controller, opts ...Option) (*Server, error) {
	tmpl, err := template.ParseFS(embeddedTemplates, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:  cfg,
		ctrl: ctrl,
		loc:  cfg.Location(),
		mux:  http.NewServeMux(),
		tmpl: tmpl,
	}
	s.clock = clock.NewSystem(s.loc)
	for _, opt := range opts {
		opt(s)
	}
	s.unsubscribe = ctrl.Subscribe(controller.ObserverFuncs{OnNotify: s.pushFlash})
	s.registerRoutes()
	return s, nil
}

// Close detaches the server from the controller.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="evsched", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /events.ics", s.handleICS)

	s.mux.HandleFunc("POST /date", s.handleSelectDate)
	s.mux.HandleFunc("POST /events", s.handleCreate)
	s.mux.HandleFunc("POST /events/{id}/edit", s.handleBeginEdit)
	s.mux.HandleFunc("POST /events/{id}/update", s.handleUpdate)
	s.mux.HandleFunc("POST /events/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("POST /events/{id}/delete", s.handleDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	today := s.clock.Now().In(s.loc)

	month := monthFor(r.URL.Query().Get("month"), snap.Draft.Date, today, s.loc)
	data := pageData{
		Calendar:      buildCalendar(month, today, snap.Draft.Date, s.cfg.WeekStart, snap.Events),
		Draft:         snap.Draft,
		Editing:       snap.Editing,
		EditingID:     snap.EditingID,
		Busy:          snap.State == controller.StateValidating || snap.State == controller.StateSubmitting,
		State:         snap.State.String(),
		Events:        sortedEvents(snap.Events),
		Notifications: s.takeFlashes(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		appLog.Error("failed to render index page", err)
	}
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events    []model.Event `json:"events"`
	State     string        `json:"state"`
	Editing   bool          `json:"editing"`
	EditingID string        `json:"editing_id,omitempty"`
	Revision  uint64        `json:"revision"`
	WeekStart string        `json:"week_start"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Snapshot()
	events := snap.Events
	if date := r.URL.Query().Get("date"); date != "" {
		filtered := make([]model.Event, 0, len(events))
		for _, ev := range events {
			if ev.Date == date {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	writeJSON(w, http.StatusOK, eventsResponse{
		Events:    sortedEvents(events),
		State:     snap.State.String(),
		Editing:   snap.Editing,
		EditingID: snap.EditingID,
		Revision:  snap.Revision,
		WeekStart: s.cfg.WeekStart,
	})
}

func (s *Server) handleICS(w http.ResponseWriter, _ *http.Request) {
	out := ics.Export(s.ctrl.Snapshot().Events, ics.ExportConfig{
		CalendarName: "evsched",
		Location:     s.loc,
		Stamp:        s.clock.Now(),
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	_, _ = w.Write([]byte(out))
}

func (s *Server) handleSelectDate(w http.ResponseWriter, r *http.Request) {
	day, err := time.ParseInLocation(model.DateLayout, r.FormValue("date"), s.loc)
	if err != nil {
		s.flash(controller.VariantWarning, "Invalid date selected.")
		s.redirect(w, r, "")
		return
	}
	s.report(s.ctrl.SelectDate(day))
	s.redirect(w, r, day.Format("2006-01"))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.SetDraft(draftFromForm(r)); err != nil {
		s.report(err)
		s.redirect(w, r, "")
		return
	}
	s.report(s.ctrl.SubmitCreate(r.Context()))
	s.redirect(w, r, "")
}

func (s *Server) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	s.report(s.ctrl.BeginEdit(r.PathValue("id")))
	s.redirect(w, r, "")
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if snap := s.ctrl.Snapshot(); !snap.Editing || snap.EditingID != id {
		if err := s.ctrl.BeginEdit(id); err != nil {
			s.report(err)
			s.redirect(w, r, "")
			return
		}
	}
	if err := s.ctrl.SetDraft(draftFromForm(r)); err != nil {
		s.report(err)
		s.redirect(w, r, "")
		return
	}
	s.report(s.ctrl.SubmitUpdate(r.Context()))
	s.redirect(w, r, "")
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.report(s.ctrl.CancelEdit())
	s.redirect(w, r, "")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.report(s.ctrl.SubmitDelete(r.Context(), r.PathValue("id")))
	s.redirect(w, r, "")
}

// report surfaces errors the controller does not notify about itself.
func (s *Server) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, controller.ErrBusy):
		s.flash(controller.VariantWarning, "A submission is already in progress.")
	case errors.Is(err, controller.ErrNotEditing):
		s.flash(controller.VariantWarning, "No event is being edited.")
	default:
		appLog.Debug("web: operation finished with error", "err", err.Error())
	}
}

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, month string) {
	target := "/"
	if month != "" {
		target = "/?month=" + month
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) pushFlash(n controller.Notification) {
	s.flashMu.Lock()
	defer s.flashMu.Unlock()
	s.flashes = append(s.flashes, n)
	if len(s.flashes) > maxFlashes {
		s.flashes = s.flashes[len(s.flashes)-maxFlashes:]
	}
}

func (s *Server) flash(v controller.Variant, msg string) {
	s.pushFlash(controller.Notification{Variant: v, Message: msg, At: s.clock.Now()})
}

// takeFlashes returns pending notifications and clears them: a page render
// is what dismisses them.
func (s *Server) takeFlashes() []controller.Notification {
	s.flashMu.Lock()
	defer s.flashMu.Unlock()
	out := s.flashes
	s.flashes = nil
	return out
}

func draftFromForm(r *http.Request) model.Draft {
	return model.Draft{
		Name:      r.FormValue("name"),
		Title:     r.FormValue("event"),
		Date:      r.FormValue("date"),
		StartTime: r.FormValue("startingTime"),
		EndTime:   r.FormValue("endingTime"),
	}
}

func sortedEvents(events []model.Event) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

// StartServer serves s on cfg.Listen until ctx is canceled, then shuts
// down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
