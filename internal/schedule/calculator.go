// Package schedule derives the automatic operating status from the fixed
// weekly configuration and a timestamp. Pure computation, no I/O.
package schedule

import (
	"fmt"
	"math"
	"time"

	"noren/internal/model"
)

// Compute maps now + the weekly configuration to an automatic status.
// Checks run in order: holiday, closed weekday, then the time-of-day
// windows. Windows are half-open: exactly lastOrderTime is already
// last-order, exactly closeTime is already closed.
func Compute(now time.Time, cfg model.WeeklyScheduleConfig) model.ResolvedStatus {
	if cfg.IsHoliday(now) {
		return model.ResolvedStatus{
			Type:    model.StatusHoliday,
			Message: "closed for holidays",
			Detail:  nextOpenDetail(now, cfg),
		}
	}

	if now.Weekday() == cfg.ClosedWeekday {
		return model.ResolvedStatus{
			Type:    model.StatusClosed,
			Message: "regular closing day",
			Detail:  nextOpenDetail(now, cfg),
		}
	}

	t := float64(now.Hour()) + float64(now.Minute())/60

	switch {
	case t >= cfg.OpenTime && t < cfg.LastOrderTime:
		remaining := roundMinutes(cfg.LastOrderTime - t)
		return model.ResolvedStatus{
			Type:             model.StatusOpen,
			Message:          "open",
			Detail:           fmt.Sprintf("last order at %s", model.FormatHour(cfg.LastOrderTime)),
			RemainingMinutes: &remaining,
		}
	case t >= cfg.LastOrderTime && t < cfg.CloseTime:
		return model.ResolvedStatus{
			Type:    model.StatusLastOrder,
			Message: "last order",
			Detail:  fmt.Sprintf("closing at %s", model.FormatHour(cfg.CloseTime)),
		}
	case t < cfg.OpenTime:
		toOpen := roundMinutes(cfg.OpenTime - t)
		return model.ResolvedStatus{
			Type:          model.StatusClosed,
			Message:       "preparing",
			Detail:        fmt.Sprintf("opening at %s", model.FormatHour(cfg.OpenTime)),
			MinutesToOpen: &toOpen,
		}
	default:
		return model.ResolvedStatus{
			Type:    model.StatusClosed,
			Message: "finished for today",
			Detail:  nextOpenDetail(now, cfg),
		}
	}
}

// NextOpen returns the next instant the restaurant opens, scanning forward
// from the day after now and skipping the closed weekday and holidays.
func NextOpen(now time.Time, cfg model.WeeklyScheduleConfig) time.Time {
	day := now.AddDate(0, 0, 1)
	for day.Weekday() == cfg.ClosedWeekday || cfg.IsHoliday(day) {
		day = day.AddDate(0, 0, 1)
	}

	hour := int(cfg.OpenTime)
	minute := int(math.Round((cfg.OpenTime - float64(hour)) * 60))
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
}

func nextOpenDetail(now time.Time, cfg model.WeeklyScheduleConfig) string {
	next := NextOpen(now, cfg)
	return fmt.Sprintf("opens %s at %s", next.Format("Mon Jan 2"), next.Format("15:04"))
}

func roundMinutes(hours float64) int {
	m := int(math.Round(hours * 60))
	if m < 0 {
		return 0
	}
	return m
}
