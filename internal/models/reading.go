package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Reading represents a single water-level sample from the feed.
type Reading struct {
	ChannelID string    `json:"channel_id"`
	EntryID   int64     `json:"entry_id"`
	Timestamp time.Time `json:"timestamp"`
	Raw       string    `json:"raw"`
	Level     float64   `json:"level"`
	Valid     bool      `json:"valid"`
}

// ParseLevel converts a raw feed value into a level.
// ok is false for empty, non-numeric, NaN or infinite values.
// Negative numbers parse successfully; callers decide how to treat them.
func ParseLevel(raw string) (level float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// NewReading builds a Reading from a raw feed value.
func NewReading(channelID string, entryID int64, timestamp time.Time, raw string) *Reading {
	r := &Reading{
		ChannelID: channelID,
		EntryID:   entryID,
		Timestamp: timestamp,
		Raw:       raw,
	}
	if v, ok := ParseLevel(raw); ok {
		r.Level = v
		r.Valid = v >= 0
	}
	return r
}

// IsValid reports whether the reading carries a usable, non-negative level
// with enough metadata to be persisted.
func (r *Reading) IsValid() bool {
	if r.ChannelID == "" || r.Timestamp.IsZero() {
		return false
	}
	return r.Valid && r.Level >= 0
}

func (r *Reading) String() string {
	return fmt.Sprintf("Channel: %s, Entry: %d, Timestamp: %s, Level: %.2f (raw %q)",
		r.ChannelID,
		r.EntryID,
		r.Timestamp.Format(time.RFC3339),
		r.Level,
		r.Raw)
}

// Copy returns a deep copy of the Reading
func (r *Reading) Copy() *Reading {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Batch is one fetch worth of readings, oldest first.
type Batch struct {
	Station   StationInfo `json:"station"`
	Readings  []Reading   `json:"readings"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// RawValues returns the raw samples in feed order.
func (b *Batch) RawValues() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.Readings))
	for i, r := range b.Readings {
		out[i] = r.Raw
	}
	return out
}

// Latest returns the newest reading, or nil for an empty batch.
func (b *Batch) Latest() *Reading {
	if b == nil || len(b.Readings) == 0 {
		return nil
	}
	return b.Readings[len(b.Readings)-1].Copy()
}
