package model

import "time"

// DateLayout is the canonical calendar-date form carried in Event.Date.
const DateLayout = "2006-01-02"

// TimeLayout is the 24-hour clock form carried in StartTime/EndTime.
const TimeLayout = "15:04"

// Event is a scheduled event as owned by the remote backend. The JSON tags
// match the backend wire format.
type Event struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Title     string `json:"event"`
	Date      string `json:"date"`
	StartTime string `json:"startingTime"`
	EndTime   string `json:"endingTime"`
}

// Interval is the part of an Event that conflict detection looks at.
type Interval struct {
	Date      string
	StartTime string
	EndTime   string
}

// Interval returns the event's date and time range.
func (e Event) Interval() Interval {
	return Interval{Date: e.Date, StartTime: e.StartTime, EndTime: e.EndTime}
}

// Input returns the body sent on create/update (everything but the ID).
func (e Event) Input() EventInput {
	return EventInput{
		Name:      e.Name,
		Title:     e.Title,
		Date:      e.Date,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
	}
}

// EventInput is the request body for POST /new_event and PUT /update_event/{id}.
type EventInput struct {
	Name      string `json:"name"`
	Date      string `json:"date"`
	Title     string `json:"event"`
	StartTime string `json:"startingTime"`
	EndTime   string `json:"endingTime"`
}

// Mode tells whether a Draft will create a new event or edit an existing one.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEditing
)

func (m Mode) String() string {
	if m == ModeEditing {
		return "editing"
	}
	return "create"
}

// Draft is the unsaved form state. TargetID is only meaningful in ModeEditing.
type Draft struct {
	Mode     Mode
	TargetID string

	Name      string `validate:"required,min=3"`
	Title     string `validate:"required,min=6"`
	Date      string `validate:"required"`
	StartTime string `validate:"required"`
	EndTime   string `validate:"required"`
}

// DraftFrom seeds an editing draft from an existing event.
func DraftFrom(e Event) Draft {
	return Draft{
		Mode:      ModeEditing,
		TargetID:  e.ID,
		Name:      e.Name,
		Title:     e.Title,
		Date:      e.Date,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
	}
}

// IsEmpty reports whether no field has been filled in.
func (d Draft) IsEmpty() bool {
	return d.Name == "" && d.Title == "" && d.Date == "" && d.StartTime == "" && d.EndTime == ""
}

// Event returns the draft as an event without ID.
func (d Draft) Event() Event {
	return Event{
		Name:      d.Name,
		Title:     d.Title,
		Date:      d.Date,
		StartTime: d.StartTime,
		EndTime:   d.EndTime,
	}
}

// Interval returns the draft's date and time range.
func (d Draft) Interval() Interval {
	return Interval{Date: d.Date, StartTime: d.StartTime, EndTime: d.EndTime}
}

// FormatDate renders t as Event.Date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
