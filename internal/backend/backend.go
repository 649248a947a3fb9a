// Package backend is an in-memory implementation of the events REST API,
// for local runs and as the counterpart of the api client in tests.
// It stores whatever it is given: no validation, no conflict checks.
package backend

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	appLog "evsched/internal/log"
	"evsched/internal/model"
)

const maxRequestBytes = 1 << 20

// DeletedMessage is returned in {"message": ...} after a successful delete.
const DeletedMessage = "Event deleted successfully"

// Store holds events keyed by id. The zero value is not usable; use NewStore.
type Store struct {
	mu     sync.RWMutex
	events map[string]model.Event
	order  []string
	newID  func() string
}

// NewStore returns an empty store that assigns random UUIDs.
func NewStore() *Store {
	return &Store{
		events: make(map[string]model.Event),
		newID:  func() string { return uuid.New().String() },
	}
}

// List returns events in insertion order.
func (s *Store) List() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.events[id])
	}
	return out
}

// Create stores in under a fresh id and returns the stored event.
func (s *Store) Create(in model.EventInput) model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := eventFrom(s.newID(), in)
	s.events[ev.ID] = ev
	s.order = append(s.order, ev.ID)
	return ev
}

// Update replaces the event with the given id. It reports false if absent.
func (s *Store) Update(id string, in model.EventInput) (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return model.Event{}, false
	}
	ev := eventFrom(id, in)
	s.events[id] = ev
	return ev, true
}

// Delete removes the event with the given id. It reports false if absent.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return false
	}
	delete(s.events, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func eventFrom(id string, in model.EventInput) model.Event {
	return model.Event{
		ID:        id,
		Name:      in.Name,
		Title:     in.Title,
		Date:      in.Date,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
	}
}

// Server exposes a Store over HTTP.
type Server struct {
	store  *Store
	router *mux.Router
}

// NewServer builds the router for store. A nil store gets a fresh one.
func NewServer(store *Store) *Server {
	if store == nil {
		store = NewStore()
	}
	s := &Server{store: store, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/events", s.handleList).Methods(http.MethodGet)
	s.router.HandleFunc("/new_event", s.handleCreate).Methods(http.MethodPost)
	s.router.HandleFunc("/update_event/{id}", s.handleUpdate).Methods(http.MethodPut)
	s.router.HandleFunc("/delete_event/{id}", s.handleDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	s.router.Use(loggingMiddleware)
	s.router.Use(recoveryMiddleware)
}

// Handler returns the router wrapped with permissive CORS for browser clients.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(s.router)
}

type listResponse struct {
	Data []model.Event `json:"data"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Data: s.store.List()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeBody(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}
	ev := s.store.Create(in)
	appLog.Debug("backend: event created", "id", ev.ID, "date", ev.Date)
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in model.EventInput
	if err := decodeBody(r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
		return
	}
	ev, ok := s.store.Update(id, in)
	if !ok {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Event not found"})
		return
	}
	appLog.Debug("backend: event updated", "id", id)
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.store.Delete(id) {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: "Event not found"})
		return
	}
	appLog.Debug("backend: event deleted", "id", id)
	writeJSON(w, http.StatusOK, messageResponse{Message: DeletedMessage})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("backend: failed to write JSON response", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appLog.Debug("backend request", "remote", r.RemoteAddr, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				appLog.Error("backend: recovered from panic", errors.New("panic"), "value", rec)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
