package poller

import (
	"time"

	"github.com/afroash/flood-monitor/internal/models"
)

// Update is the outcome of one poll. Exactly one of Err or Batch/Trend is set.
type Update struct {
	Seq         uint64
	StartedAt   time.Time
	CompletedAt time.Time

	Batch *models.Batch
	Trend models.Trend

	Err error
}

// OK reports whether the poll produced a fresh trend.
func (u Update) OK() bool {
	return u.Err == nil && u.Batch != nil
}

// Duration returns how long the fetch and prediction took.
func (u Update) Duration() time.Duration {
	return u.CompletedAt.Sub(u.StartedAt)
}
