// Package form validates event drafts and merges edits over stored events.
package form

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"evsched/internal/clock"
	"evsched/internal/model"
)

// Reasons reported to the user, one per check. Only the first failing check
// of an attempt is reported.
const (
	ReasonNameRequired   = "name is a required field"
	ReasonNameTooShort   = "name must be at least 3 characters"
	ReasonTitleRequired  = "event is a required field"
	ReasonTitleTooShort  = "event must be at least 6 characters"
	ReasonDateMissing    = "date is not selected"
	ReasonTimeMissing    = "please fill in the timing"
	ReasonTimeFormat     = "timing must be in HH:MM format"
	ReasonDateFormat     = "date must be in YYYY-MM-DD format"
	ReasonDateInPast     = "date must not be in the past"
	ReasonEndBeforeStart = "ending time must be after starting time"
)

// ValidationError is a local, pre-submit failure. It never reaches the server.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validator checks drafts in a fixed order and stops at the first failure.
type Validator struct {
	v     *validator.Validate
	clock clock.Clock
}

// NewValidator returns a Validator that uses clk to decide what "today" is.
func NewValidator(clk clock.Clock) *Validator {
	return &Validator{
		v:     validator.New(validator.WithRequiredStructEnabled()),
		clock: clk,
	}
}

// Validate checks a draft about to be created. The order is:
// name presence, name length, event presence, event length, date presence,
// both times present, time format, date format, date not in the past,
// end after start.
func (val *Validator) Validate(d model.Draft) error {
	return val.check(d, true)
}

// ValidateUpdate checks the merged result of an edit. The past-date check
// only applies when the edit moves the event to a different date, so
// events that already lie in the past can still be corrected.
func (val *Validator) ValidateUpdate(merged, original model.Event) error {
	d := model.Draft{
		Mode:      model.ModeEditing,
		TargetID:  original.ID,
		Name:      merged.Name,
		Title:     merged.Title,
		Date:      merged.Date,
		StartTime: merged.StartTime,
		EndTime:   merged.EndTime,
	}
	return val.check(d, merged.Date != original.Date)
}

func (val *Validator) check(d model.Draft, checkPast bool) error {
	if err := val.v.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return reasonFor(verrs[0])
		}
		return err
	}

	if !validTime(d.StartTime) || !validTime(d.EndTime) {
		return &ValidationError{Field: "time", Reason: ReasonTimeFormat}
	}

	day, err := time.ParseInLocation(model.DateLayout, d.Date, time.UTC)
	if err != nil {
		return &ValidationError{Field: "date", Reason: ReasonDateFormat}
	}
	if checkPast {
		today := model.FormatDate(val.clock.Now())
		if model.FormatDate(day) < today {
			return &ValidationError{Field: "date", Reason: ReasonDateInPast}
		}
	}

	if d.EndTime <= d.StartTime {
		return &ValidationError{Field: "time", Reason: ReasonEndBeforeStart}
	}
	return nil
}

// reasonFor maps the first struct-tag failure to its user-facing reason.
// validator reports fields in declaration order and, per field, the first
// failing tag, which gives the required check ordering for free.
func reasonFor(fe validator.FieldError) *ValidationError {
	switch fe.Field() {
	case "Name":
		if fe.Tag() == "min" {
			return &ValidationError{Field: "name", Reason: ReasonNameTooShort}
		}
		return &ValidationError{Field: "name", Reason: ReasonNameRequired}
	case "Title":
		if fe.Tag() == "min" {
			return &ValidationError{Field: "event", Reason: ReasonTitleTooShort}
		}
		return &ValidationError{Field: "event", Reason: ReasonTitleRequired}
	case "Date":
		return &ValidationError{Field: "date", Reason: ReasonDateMissing}
	default:
		return &ValidationError{Field: "time", Reason: ReasonTimeMissing}
	}
}

func validTime(s string) bool {
	if len(s) != len(model.TimeLayout) {
		return false
	}
	_, err := time.Parse(model.TimeLayout, s)
	return err == nil
}
