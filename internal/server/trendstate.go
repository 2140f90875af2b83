package server

import (
	"errors"
	"sync"
	"time"

	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/poller"
)

// ErrNoTrend is returned before the first successful poll.
var ErrNoTrend = errors.New("no trend computed yet")

// TrendView is the dashboard's picture of the latest projection.
type TrendView struct {
	Seq                 uint64             `json:"seq"`
	Station             models.StationInfo `json:"station"`
	Trend               models.Trend       `json:"trend"`
	SampleSize          int                `json:"sample_size"`
	LastUpdate          time.Time          `json:"last_update"`
	LastError           string             `json:"last_error,omitempty"`
	LastErrorAt         time.Time          `json:"last_error_at,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	Stale               bool               `json:"stale"`
	FloodRisk           bool               `json:"flood_risk"`
	Threshold           float64            `json:"threshold"`
}

// Message converts the view into the WebSocket payload.
func (v TrendView) Message() models.TrendMessage {
	return models.TrendMessage{
		Seq:        v.Seq,
		Station:    v.Station,
		Trend:      v.Trend,
		FloodRisk:  v.FloodRisk,
		Threshold:  v.Threshold,
		UpdatedAt:  v.LastUpdate,
		Stale:      v.Stale,
		LastError:  v.LastError,
		SampleSize: v.SampleSize,
	}
}

// TrendState holds the latest trend. A failed poll keeps the previous
// trend and marks it stale.
type TrendState struct {
	mu        sync.RWMutex
	view      TrendView
	hasTrend  bool
	threshold float64
}

// NewTrendState creates an empty state. A threshold <= 0 disables flood risk.
func NewTrendState(threshold float64) *TrendState {
	return &TrendState{
		threshold: threshold,
		view:      TrendView{Threshold: threshold},
	}
}

// Apply records a poll result. crossed is true when this update moved the
// predicted level above the flood threshold.
func (s *TrendState) Apply(u poller.Update) (view TrendView, crossed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// polls are serial, so this only guards against replays
	if u.Seq != 0 && u.Seq < s.view.Seq {
		return s.view, false
	}
	s.view.Seq = u.Seq

	if !u.OK() {
		s.view.LastError = u.Err.Error()
		s.view.LastErrorAt = u.CompletedAt
		s.view.ConsecutiveFailures++
		s.view.Stale = s.hasTrend
		return s.view, false
	}

	wasAtRisk := s.view.FloodRisk

	s.view.Station = u.Batch.Station
	s.view.Trend = u.Trend
	s.view.SampleSize = len(u.Batch.Readings)
	s.view.LastUpdate = u.CompletedAt
	s.view.LastError = ""
	s.view.LastErrorAt = time.Time{}
	s.view.ConsecutiveFailures = 0
	s.view.Stale = false
	s.view.FloodRisk = s.threshold > 0 && u.Trend.PredictedLevel > s.threshold
	s.hasTrend = true

	return s.view, s.view.FloodRisk && !wasAtRisk
}

// Current returns the latest view, or ErrNoTrend before the first success.
func (s *TrendState) Current() (TrendView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasTrend {
		return s.view, ErrNoTrend
	}
	return s.view, nil
}

// Threshold returns the configured flood threshold.
func (s *TrendState) Threshold() float64 {
	return s.threshold
}
