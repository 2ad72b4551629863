package model

import "time"

// StatusType identifies the operating status shown to a visitor.
type StatusType string

const (
	StatusOpen            StatusType = "open"
	StatusLastOrder       StatusType = "last-order"
	StatusClosed          StatusType = "closed"
	StatusHoliday         StatusType = "holiday"
	StatusEmergencyClosed StatusType = "emergency-closed"
	StatusShortHours      StatusType = "short-hours"
	StatusSpecial         StatusType = "special"
)

// ResolvedStatus is the output of a resolution pass: one concrete,
// always-displayable operating status.
type ResolvedStatus struct {
	Type    StatusType `json:"type"`
	Message string     `json:"message"`
	Detail  string     `json:"detail,omitempty"`

	IsManual bool `json:"is_manual"`
	// Set only when IsManual is true.
	OverrideID    string     `json:"override_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	CustomMessage string     `json:"custom_message,omitempty"`
	CustomHours   string     `json:"custom_hours,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`

	// Numeric hints for automatic states. Mutually exclusive: at most one
	// is non-nil, and only for the state it belongs to.
	RemainingMinutes *int `json:"remaining_minutes,omitempty"`
	MinutesToOpen    *int `json:"minutes_to_open,omitempty"`
}

// SameDisplay reports whether two statuses render identically. Resolution
// ticks that produce an equal display are suppressed downstream.
func (s ResolvedStatus) SameDisplay(other ResolvedStatus) bool {
	return s.Type == other.Type && s.Message == other.Message && s.IsManual == other.IsManual
}
