package model

import (
	"fmt"
	"time"
)

// HolidayRange is an inclusive range of dates on which the restaurant is
// closed regardless of the weekly schedule.
type HolidayRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the date part of t falls inside the range.
func (h HolidayRange) Contains(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return !day.Before(h.Start) && !day.After(h.End)
}

// WeeklyScheduleConfig is the fixed weekly schedule. Times are fractional
// hours (20.5 = 20:30). Set once at startup and never mutated.
type WeeklyScheduleConfig struct {
	OpenTime      float64
	CloseTime     float64
	LastOrderTime float64
	ClosedWeekday time.Weekday
	Holidays      []HolidayRange
}

// Validate checks the windows are ordered and within a day.
func (c WeeklyScheduleConfig) Validate() error {
	if c.OpenTime < 0 || c.CloseTime > 24 {
		return fmt.Errorf("schedule times must be within 0..24, got open=%v close=%v", c.OpenTime, c.CloseTime)
	}
	if !(c.OpenTime < c.LastOrderTime && c.LastOrderTime <= c.CloseTime) {
		return fmt.Errorf("schedule requires open < last_order <= close, got %v < %v <= %v",
			c.OpenTime, c.LastOrderTime, c.CloseTime)
	}
	if c.ClosedWeekday < time.Sunday || c.ClosedWeekday > time.Saturday {
		return fmt.Errorf("closed_weekday must be 0..6, got %d", c.ClosedWeekday)
	}
	for _, h := range c.Holidays {
		if h.End.Before(h.Start) {
			return fmt.Errorf("holiday range ends before it starts: %s > %s",
				h.Start.Format("2006-01-02"), h.End.Format("2006-01-02"))
		}
	}
	return nil
}

// IsHoliday reports whether t falls in any fixed holiday range.
func (c WeeklyScheduleConfig) IsHoliday(t time.Time) bool {
	for _, h := range c.Holidays {
		if h.Contains(t) {
			return true
		}
	}
	return false
}

// FormatHour renders a fractional hour as HH:MM.
func FormatHour(h float64) string {
	hour := int(h)
	minute := int((h-float64(hour))*60 + 0.5)
	if minute == 60 {
		hour++
		minute = 0
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
