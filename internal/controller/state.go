package controller

import "evsched/internal/model"

// State is the lifecycle position of the form.
type State int

const (
	StateIdle State = iota
	StateDrafting
	StateValidating
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StateDrafting:
		return "drafting"
	case StateValidating:
		return "validating"
	case StateSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

func (s State) busy() bool {
	return s == StateValidating || s == StateSubmitting
}

// Snapshot is a point-in-time copy of the controller, safe to keep.
type Snapshot struct {
	State State
	Draft model.Draft

	// Editing is the EditingExisting flag; EditingID names the target.
	Editing   bool
	EditingID string

	Events []model.Event

	// Revision increments after every successful create, update or delete.
	Revision uint64
}
