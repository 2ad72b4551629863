package model

import (
	"encoding/json"
	"time"
)

// OverrideKind classifies a manually declared operating exception.
type OverrideKind string

const (
	OverrideClosed     OverrideKind = "closed"
	OverrideShortHours OverrideKind = "short-hours"
	OverrideSpecial    OverrideKind = "special"
	// OverrideUnknown marks a kind the resolver does not recognize.
	// Resolution falls back to the automatic schedule for it.
	OverrideUnknown OverrideKind = "unknown"
)

// NormalizeKind maps a raw kind value from the Content Service onto a
// known OverrideKind. Unrecognized values become OverrideUnknown.
func NormalizeKind(raw string) OverrideKind {
	switch OverrideKind(raw) {
	case OverrideClosed, OverrideShortHours, OverrideSpecial:
		return OverrideKind(raw)
	default:
		return OverrideUnknown
	}
}

// DecodeKindField decodes the Content Service's `status` field, which may
// arrive either as a scalar string or as a single-element array depending
// on how the field was configured in the CMS.
func DecodeKindField(raw json.RawMessage) OverrideKind {
	if len(raw) == 0 {
		return OverrideUnknown
	}

	var scalar string
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return NormalizeKind(scalar)
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return NormalizeKind(list[0])
	}
	return OverrideUnknown
}

// OverrideRecord is a manual operating exception declared in the Content
// Service. Records are created, updated and deleted only there; this
// service selects and caches the currently active one.
type OverrideRecord struct {
	ID            string       `json:"id"`
	Kind          OverrideKind `json:"kind"`
	Reason        string       `json:"reason,omitempty"`
	CustomMessage string       `json:"custom_message,omitempty"`
	CustomHours   string       `json:"custom_hours,omitempty"`
	Priority      int          `json:"priority"`
	StartTime     *time.Time   `json:"start_time,omitempty"`
	EndTime       *time.Time   `json:"end_time,omitempty"`
	Published     bool         `json:"published"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// ActiveAt reports whether the record is eligible for selection at the
// given instant: published, started (or unbounded) and not yet ended.
func (r *OverrideRecord) ActiveAt(now time.Time) bool {
	if !r.Published {
		return false
	}
	if r.StartTime != nil && r.StartTime.After(now) {
		return false
	}
	if r.EndTime != nil && r.EndTime.Before(now) {
		return false
	}
	return true
}
