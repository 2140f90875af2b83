package server

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/feed"
	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/observability"
	"github.com/afroash/flood-monitor/internal/poller"
	"github.com/afroash/flood-monitor/internal/storage"
)

// Broadcaster fans a message out to dashboard clients
// Hub implements this interface
type Broadcaster interface {
	Broadcast(msg *models.Message) int
}

// Monitor receives poll results and updates every presentation surface:
// the in-memory store, the trend state, persistence and WebSocket clients
type Monitor struct {
	readings ReadingStore
	state    *TrendState
	hub      Broadcaster
	logger   zerolog.Logger

	queue   PersistQueue
	history HistoricalStore
	metrics *observability.Metrics

	mu            sync.Mutex
	lastPersisted map[string]int64 // channel ID -> highest queued entry ID
}

var _ poller.Sink = (*Monitor)(nil)

// NewMonitor creates a monitor. hub may be nil.
func NewMonitor(readings ReadingStore, state *TrendState, hub Broadcaster, logger zerolog.Logger) *Monitor {
	return &Monitor{
		readings:      readings,
		state:         state,
		hub:           hub,
		logger:        logger.With().Str("component", "monitor").Logger(),
		lastPersisted: make(map[string]int64),
	}
}

// SetDBWriter enables persistence of new readings and trend snapshots.
// history, if set, seeds the last persisted entry ID per channel.
func (m *Monitor) SetDBWriter(queue PersistQueue, history HistoricalStore) {
	m.queue = queue
	m.history = history
}

// SetMetrics enables Prometheus instrumentation
func (m *Monitor) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// Publish implements poller.Sink
func (m *Monitor) Publish(u poller.Update) {
	if !u.OK() {
		m.handleFailure(u)
		return
	}

	m.readings.SetBatch(u.Batch)
	view, crossed := m.state.Apply(u)
	m.persist(u)
	m.observe(view)

	if crossed {
		m.logger.Warn().
			Str("station", u.Batch.Station.DisplayName()).
			Float64("predicted_level", view.Trend.PredictedLevel).
			Float64("threshold", view.Threshold).
			Str("time_to_peak", view.Trend.TimeToPeak).
			Msg("Predicted level above flood threshold")
		if m.metrics != nil {
			m.metrics.FloodAlerts.Inc()
		}
	}

	m.broadcast(models.MessageTypeTrend, view.Message())
}

func (m *Monitor) handleFailure(u poller.Update) {
	view, _ := m.state.Apply(u)

	m.logger.Warn().
		Err(u.Err).
		Uint64("seq", u.Seq).
		Int("consecutive_failures", view.ConsecutiveFailures).
		Bool("stale", view.Stale).
		Msg("Poll failed, keeping previous trend")

	m.broadcast(models.MessageTypeError, models.ErrorMessage{
		Code:    errorCode(u.Err),
		Message: u.Err.Error(),
	})
}

// persist queues readings newer than the last persisted entry plus a trend snapshot
func (m *Monitor) persist(u poller.Update) {
	if m.queue == nil {
		return
	}

	channelID := u.Batch.Station.ID
	last := m.lastEntryID(channelID)
	highest := last

	var queued, dropped int
	var lowestDropped int64
	for i := range u.Batch.Readings {
		r := &u.Batch.Readings[i]
		if !r.IsValid() || r.EntryID <= last {
			continue
		}
		if !m.queue.Write(r.Copy()) {
			dropped++
			if lowestDropped == 0 || r.EntryID < lowestDropped {
				lowestDropped = r.EntryID
			}
			continue
		}
		queued++
		if r.EntryID > highest {
			highest = r.EntryID
		}
	}
	// the next poll retries from the first dropped entry; inserts ignore duplicates
	if lowestDropped != 0 && highest >= lowestDropped {
		highest = lowestDropped - 1
	}

	m.mu.Lock()
	m.lastPersisted[channelID] = highest
	m.mu.Unlock()

	if !m.queue.WriteTrend(&storage.TrendRecord{
		ChannelID:  channelID,
		Trend:      u.Trend,
		ComputedAt: u.CompletedAt,
	}) {
		dropped++
	}

	if m.metrics != nil {
		m.metrics.ReadingsQueued.Add(float64(queued))
		m.metrics.ReadingsDropped.Add(float64(dropped))
	}
	if queued > 0 || dropped > 0 {
		m.logger.Debug().
			Str("channel_id", channelID).
			Int("queued", queued).
			Int("dropped", dropped).
			Int64("last_entry_id", highest).
			Msg("Readings queued for persistence")
	}
}

func (m *Monitor) lastEntryID(channelID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.lastPersisted[channelID]; ok {
		return id
	}
	var id int64
	if m.history != nil {
		var err error
		id, err = m.history.GetLastEntryID(channelID)
		if err != nil {
			m.logger.Error().Err(err).Str("channel_id", channelID).Msg("Failed to read last persisted entry")
			id = 0
		}
	}
	m.lastPersisted[channelID] = id
	return id
}

func (m *Monitor) observe(view TrendView) {
	if m.metrics == nil {
		return
	}
	m.metrics.CurrentLevel.Set(view.Trend.CurrentLevel)
	m.metrics.PredictedLevel.Set(view.Trend.PredictedLevel)
	m.metrics.AvgChange.Set(view.Trend.AvgChange)
	if view.FloodRisk {
		m.metrics.FloodRisk.Set(1)
	} else {
		m.metrics.FloodRisk.Set(0)
	}
}

func (m *Monitor) broadcast(msgType models.MessageType, payload interface{}) {
	if m.hub == nil {
		return
	}
	msg, err := models.NewMessage(msgType, payload)
	if err != nil {
		m.logger.Error().Err(err).Str("type", string(msgType)).Msg("Failed to build message")
		return
	}
	m.hub.Broadcast(msg)
}

// SnapshotMessage returns the message sent to a dashboard on connect, or
// nil before the first successful poll.
func (m *Monitor) SnapshotMessage() *models.Message {
	view, err := m.state.Current()
	if err != nil {
		return nil
	}
	msg, err := models.NewMessage(models.MessageTypeSnapshot, view.Message())
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to build snapshot")
		return nil
	}
	return msg
}

func errorCode(err error) string {
	var statusErr *feed.StatusError
	switch {
	case errors.Is(err, feed.ErrEmptyFeed):
		return "empty_feed"
	case errors.As(err, &statusErr):
		return "feed_status"
	default:
		return "fetch_failed"
	}
}
