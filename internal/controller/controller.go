// Package controller holds the event form state machine: it owns the draft
// and the cached event list, validates and conflict-checks submissions,
// issues the remote calls and refetches the list after every mutation.
//
// Renderers observe it through Subscribe instead of polling its fields.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"evsched/internal/clock"
	"evsched/internal/conflict"
	"evsched/internal/form"
	appLog "evsched/internal/log"
	"evsched/internal/model"
)

// Backend is the remote side of the four event operations.
type Backend interface {
	ListEvents(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, in model.EventInput) error
	UpdateEvent(ctx context.Context, id string, in model.EventInput) error
	DeleteEvent(ctx context.Context, id string) (string, error)
}

var (
	// ErrBusy is returned when a submit is attempted while another one is
	// being validated or is in flight.
	ErrBusy = errors.New("a submission is already in progress")
	// ErrNotEditing is returned by SubmitUpdate without a prior BeginEdit.
	ErrNotEditing = errors.New("no event is being edited")
	// ErrEventNotFound is returned when the targeted event is not in the cached list.
	ErrEventNotFound = errors.New("event not found")
	// ErrUnknownField is returned by SetField for names outside the form.
	ErrUnknownField = errors.New("unknown form field")
)

// ConflictError blocks a create or update whose interval collides with an
// already scheduled event.
type ConflictError struct {
	With model.Event
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicts with %q on %s %s-%s", e.With.Title, e.With.Date, e.With.StartTime, e.With.EndTime)
}

// User-facing notification texts.
const (
	MsgFetchFailed   = "Failed to fetch events."
	MsgCreated       = "Data submitted successfully!"
	MsgCreateFailed  = "Failed to submit data."
	MsgUpdated       = "Data updated successfully!"
	MsgUpdateFailed  = "Failed to update data."
	MsgDeleted       = "Event deleted."
	MsgDeleteFailed  = "Failed to delete event."
	MsgConflict      = "Conflict detected with another event!"
	MsgEventNotFound = "The selected event no longer exists."
)

// Controller is safe for concurrent use. The mutex is never held across a
// remote call or an observer callback.
type Controller struct {
	backend   Backend
	validator *form.Validator
	clock     clock.Clock

	excludeEdited bool

	mu       sync.Mutex
	state    State
	draft    model.Draft
	events   []model.Event
	revision uint64
	// refreshSeq numbers list fetches; appliedSeq is the newest one stored.
	refreshSeq uint64
	appliedSeq uint64

	obsMu     sync.RWMutex
	observers map[int]Observer
	nextObsID int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the clock used for validation and notification stamps.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithExcludeEditedEvent controls whether SubmitUpdate leaves the edited
// event out of the conflict check. Off by default.
func WithExcludeEditedEvent(exclude bool) Option {
	return func(c *Controller) {
		c.excludeEdited = exclude
	}
}

// New creates a Controller in the Idle state with an empty event list.
func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:   backend,
		clock:     clock.NewSystem(nil),
		state:     StateIdle,
		events:    []model.Event{},
		observers: make(map[int]Observer),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.validator = form.NewValidator(c.clock)
	return c
}

// Load resets the draft and performs the initial list fetch.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	c.draft = model.Draft{}
	c.state = StateIdle
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Refresh refetches the whole list. On failure the previous list is kept.
// A response is dropped when a fetch started later has already been stored.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.refreshSeq++
	seq := c.refreshSeq
	c.mu.Unlock()

	events, err := c.backend.ListEvents(ctx)
	if err != nil {
		appLog.Error("event list fetch failed", err)
		c.notify(VariantError, MsgFetchFailed)
		c.publishState()
		return fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.Event{}
	}

	c.mu.Lock()
	if applied := c.appliedSeq; seq < applied {
		c.mu.Unlock()
		appLog.Debug("stale event list dropped", "seq", seq, "applied", applied)
		return nil
	}
	c.events = events
	c.appliedSeq = seq
	c.mu.Unlock()

	appLog.Debug("event list refreshed", "count", len(events))
	c.publishState()
	return nil
}

// SetDraft replaces the draft fields with those of d. The mode and target
// stay as they are; use BeginEdit and CancelEdit to change them.
func (c *Controller) SetDraft(d model.Draft) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	d.Mode = c.draft.Mode
	d.TargetID = c.draft.TargetID
	c.draft = d
	c.state = c.restingState()
	c.mu.Unlock()

	c.publishState()
	return nil
}

// SetField updates a single draft field by its form name: name, event,
// date, startingTime or endingTime.
func (c *Controller) SetField(name, value string) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	switch name {
	case "name":
		c.draft.Name = value
	case "event":
		c.draft.Title = value
	case "date":
		c.draft.Date = value
	case "startingTime":
		c.draft.StartTime = value
	case "endingTime":
		c.draft.EndTime = value
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	c.state = c.restingState()
	c.mu.Unlock()

	c.publishState()
	return nil
}

// SelectDate is the calendar pick: it writes the day into the draft date.
func (c *Controller) SelectDate(day time.Time) error {
	return c.SetField("date", model.FormatDate(day))
}

// SubmitCreate validates the draft, checks it against the cached list and
// creates the event. On success the draft is cleared and the list is
// refetched; on failure the draft is kept for another attempt.
func (c *Controller) SubmitCreate(ctx context.Context) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateValidating
	draft := c.draft
	events := c.events
	c.mu.Unlock()

	if err := c.validator.Validate(draft); err != nil {
		c.rejectLocal(err)
		return err
	}
	if other, ok := conflict.FindConflict(draft.Interval(), events, ""); ok {
		err := &ConflictError{With: other}
		c.rejectLocal(err)
		return err
	}

	c.setState(StateSubmitting)

	if err := c.backend.CreateEvent(ctx, draft.Event().Input()); err != nil {
		appLog.Error("create event failed", err, "date", draft.Date)
		c.settle()
		c.notify(VariantError, MsgCreateFailed)
		return fmt.Errorf("create event: %w", err)
	}

	appLog.Info("event created", "date", draft.Date, "start", draft.StartTime, "end", draft.EndTime)
	c.completeMutation(MsgCreated)
	_ = c.Refresh(ctx)
	return nil
}

// BeginEdit switches to editing the cached event with the given id and
// seeds the draft from its current values.
func (c *Controller) BeginEdit(id string) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	ev, ok := c.findLocked(id)
	if !ok {
		c.mu.Unlock()
		c.notify(VariantError, MsgEventNotFound)
		return fmt.Errorf("begin edit %s: %w", id, ErrEventNotFound)
	}
	c.draft = model.DraftFrom(ev)
	c.state = StateDrafting
	c.mu.Unlock()

	c.publishState()
	return nil
}

// SubmitUpdate merges the draft over the edited event, checks the result
// and sends it. On success editing ends, the draft is cleared and the list
// is refetched.
func (c *Controller) SubmitUpdate(ctx context.Context) error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.draft.Mode != model.ModeEditing {
		c.mu.Unlock()
		return ErrNotEditing
	}
	original, ok := c.findLocked(c.draft.TargetID)
	if !ok {
		id := c.draft.TargetID
		c.mu.Unlock()
		c.notify(VariantError, MsgEventNotFound)
		return fmt.Errorf("update %s: %w", id, ErrEventNotFound)
	}
	c.state = StateValidating
	draft := c.draft
	events := c.events
	c.mu.Unlock()

	merged := form.Merge(original, draft)

	if err := c.validator.ValidateUpdate(merged, original); err != nil {
		c.rejectLocal(err)
		return err
	}

	excludeID := ""
	if c.excludeEdited {
		excludeID = original.ID
	}
	if other, ok := conflict.FindConflict(merged.Interval(), events, excludeID); ok {
		err := &ConflictError{With: other}
		c.rejectLocal(err)
		return err
	}

	c.setState(StateSubmitting)

	if err := c.backend.UpdateEvent(ctx, original.ID, merged.Input()); err != nil {
		appLog.Error("update event failed", err, "id", original.ID)
		c.settle()
		c.notify(VariantError, MsgUpdateFailed)
		return fmt.Errorf("update event %s: %w", original.ID, err)
	}

	appLog.Info("event updated", "id", original.ID)
	c.completeMutation(MsgUpdated)
	_ = c.Refresh(ctx)
	return nil
}

// SubmitDelete removes the event without asking for confirmation and shows
// the server's message. Deleting the event being edited also ends the edit.
func (c *Controller) SubmitDelete(ctx context.Context, id string) error {
	msg, err := c.backend.DeleteEvent(ctx, id)
	if err != nil {
		appLog.Error("delete event failed", err, "id", id)
		c.notify(VariantError, MsgDeleteFailed)
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	if msg == "" {
		msg = MsgDeleted
	}

	c.mu.Lock()
	if c.draft.Mode == model.ModeEditing && c.draft.TargetID == id && !c.state.busy() {
		c.draft = model.Draft{}
		c.state = StateIdle
	}
	c.revision++
	c.mu.Unlock()

	appLog.Info("event deleted", "id", id)
	c.notify(VariantSuccess, msg)
	_ = c.Refresh(ctx)
	return nil
}

// CancelEdit leaves editing mode and discards the draft. No remote call is made.
func (c *Controller) CancelEdit() error {
	c.mu.Lock()
	if c.state.busy() {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.draft.Mode != model.ModeEditing {
		c.mu.Unlock()
		return nil
	}
	c.draft = model.Draft{}
	c.state = StateIdle
	c.mu.Unlock()

	c.publishState()
	return nil
}

// Snapshot returns a copy of the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	events := make([]model.Event, len(c.events))
	copy(events, c.events)
	return Snapshot{
		State:     c.state,
		Draft:     c.draft,
		Editing:   c.draft.Mode == model.ModeEditing,
		EditingID: c.draft.TargetID,
		Events:    events,
		Revision:  c.revision,
	}
}

func (c *Controller) findLocked(id string) (model.Event, bool) {
	for _, ev := range c.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return model.Event{}, false
}

// restingState is Drafting while there is anything to submit, Idle otherwise.
// Caller holds c.mu.
func (c *Controller) restingState() State {
	if c.draft.Mode == model.ModeEditing || !c.draft.IsEmpty() {
		return StateDrafting
	}
	return StateIdle
}

func (c *Controller) setState(next State) {
	c.mu.Lock()
	c.state = next
	c.mu.Unlock()
	c.publishState()
}

// settle drops back to Idle or Drafting after a failed attempt.
func (c *Controller) settle() {
	c.mu.Lock()
	c.state = c.restingState()
	c.mu.Unlock()
	c.publishState()
}

// rejectLocal returns to an editable state after a validation or conflict
// failure and warns the user.
func (c *Controller) rejectLocal(err error) {
	c.settle()
	var cerr *ConflictError
	if errors.As(err, &cerr) {
		appLog.Info("submission blocked by conflict", "with", cerr.With.ID, "date", cerr.With.Date)
		c.notify(VariantWarning, MsgConflict)
		return
	}
	c.notify(VariantWarning, err.Error())
}

// completeMutation clears the draft, bumps the revision and reports success.
// The new state is published by the Refresh that follows.
func (c *Controller) completeMutation(msg string) {
	c.mu.Lock()
	c.draft = model.Draft{}
	c.state = StateIdle
	c.revision++
	c.mu.Unlock()

	c.notify(VariantSuccess, msg)
}
