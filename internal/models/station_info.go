package models

import (
	"fmt"
	"time"
)

// StationInfo contains metadata about the monitoring channel the feed reports for
type StationInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	FieldName   string    `json:"field_name,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	LastEntryID int64     `json:"last_entry_id"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// Age returns how long ago the channel last received data
func (s *StationInfo) Age(now time.Time) time.Duration {
	if s.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.UpdatedAt)
}

// DisplayName prefers the channel name and falls back to its ID
func (s *StationInfo) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("channel %s", s.ID)
}
