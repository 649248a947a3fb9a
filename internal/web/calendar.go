package web

import (
	"strings"
	"time"

	"evsched/internal/controller"
	"evsched/internal/model"
)

// pageData is what templates/index.html renders.
type pageData struct {
	Calendar      calendarView
	Draft         model.Draft
	Editing       bool
	EditingID     string
	Busy          bool
	State         string
	Events        []model.Event
	Notifications []controller.Notification
}

type calendarView struct {
	Title     string
	PrevMonth string
	NextMonth string
	Weekdays  []string
	Weeks     [][]dayCell
}

type dayCell struct {
	Date       string
	Day        int
	InMonth    bool
	Past       bool
	Today      bool
	Selected   bool
	EventCount int
}

// monthFor picks the month to show: an explicit ?month=YYYY-MM, else the
// month of the selected date, else the current month.
func monthFor(param, selected string, today time.Time, loc *time.Location) time.Time {
	if m, err := time.ParseInLocation("2006-01", param, loc); err == nil {
		return m
	}
	if d, err := time.ParseInLocation(model.DateLayout, selected, loc); err == nil {
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, loc)
	}
	return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc)
}

// buildCalendar lays out six weeks around month. Days before today are
// marked Past and rendered disabled.
func buildCalendar(month, today time.Time, selected, weekStart string, events []model.Event) calendarView {
	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	todayStr := model.FormatDate(today)

	counts := make(map[string]int, len(events))
	for _, ev := range events {
		counts[ev.Date]++
	}

	sundayFirst := strings.EqualFold(weekStart, "sunday")
	offset := int(first.Weekday())
	weekdays := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	if !sundayFirst {
		offset = (offset + 6) % 7
		weekdays = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	}

	cursor := first.AddDate(0, 0, -offset)
	weeks := make([][]dayCell, 0, 6)
	for w := 0; w < 6; w++ {
		week := make([]dayCell, 0, 7)
		for d := 0; d < 7; d++ {
			date := model.FormatDate(cursor)
			week = append(week, dayCell{
				Date:       date,
				Day:        cursor.Day(),
				InMonth:    cursor.Month() == first.Month(),
				Past:       date < todayStr,
				Today:      date == todayStr,
				Selected:   date == selected,
				EventCount: counts[date],
			})
			cursor = cursor.AddDate(0, 0, 1)
		}
		weeks = append(weeks, week)
	}

	return calendarView{
		Title:     first.Format("January 2006"),
		PrevMonth: first.AddDate(0, -1, 0).Format("2006-01"),
		NextMonth: first.AddDate(0, 1, 0).Format("2006-01"),
		Weekdays:  weekdays,
		Weeks:     weeks,
	}
}
