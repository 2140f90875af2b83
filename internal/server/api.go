package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/preferences"
	"github.com/afroash/flood-monitor/internal/storage"
)

const (
	defaultReadingsLimit = 50
	defaultHistoryLimit  = 500
	maxHistoryLimit      = 5000
	defaultTrendsLimit   = 50
	defaultStatsDays     = 7
	maxStatsDays         = 366
	maxBroadcastBytes    = 4096
)

// RetentionStats reports cleaner statistics
// storage.RetentionCleaner implements this interface
type RetentionStats interface {
	Stats() storage.RetentionCleanerStats
}

// APIHandler handles HTTP API requests for the dashboard
type APIHandler struct {
	store     ReadingStore
	state     *TrendState
	history   HistoricalStore    // nil when the database is disabled
	prefs     PreferencesService // nil when the database is disabled
	writer    PersistQueue
	retention RetentionStats
	refresher Refresher
	notifier  Broadcaster
	hub       *Hub
	channelID string
	logger    zerolog.Logger
}

// NewAPIHandler creates a new API handler backed by memory only
func NewAPIHandler(store ReadingStore, state *TrendState, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:  store,
		state:  state,
		logger: logger.With().Str("component", "api").Logger(),
	}
}

// NewAPIHandlerWithHistory creates an API handler that also serves persisted data
func NewAPIHandlerWithHistory(store ReadingStore, state *TrendState, history HistoricalStore, logger zerolog.Logger) *APIHandler {
	api := NewAPIHandler(store, state, logger)
	api.history = history
	return api
}

// SetDefaultChannel sets the channel used when a request names none
func (api *APIHandler) SetDefaultChannel(channelID string) { api.channelID = channelID }

// SetPreferences enables the preferences endpoints
func (api *APIHandler) SetPreferences(prefs PreferencesService) { api.prefs = prefs }

// SetRefresher enables POST /api/refresh
func (api *APIHandler) SetRefresher(r Refresher) { api.refresher = r }

// SetBroadcaster enables POST /api/broadcast
func (api *APIHandler) SetBroadcaster(b Broadcaster) { api.notifier = b }

// SetStatsSources adds writer, retention and hub figures to /api/stats
func (api *APIHandler) SetStatsSources(writer PersistQueue, retention RetentionStats, hub *Hub) {
	api.writer = writer
	api.retention = retention
	api.hub = hub
}

// HandleTrend returns the current trend view
func (api *APIHandler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	view, err := api.state.Current()
	if errors.Is(err, ErrNoTrend) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), LastError: view.LastError})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleReadings returns the latest in-memory readings, newest first
func (api *APIHandler) HandleReadings(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, defaultReadingsLimit, maxHistoryLimit)
	channelID := api.resolveChannel(r)

	readings := api.store.GetLatest(channelID, limit)
	if readings == nil {
		readings = []*models.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

// HistoryResponse is the payload of /api/history
type HistoryResponse struct {
	ChannelID string            `json:"channel_id"`
	Start     time.Time         `json:"start,omitempty"`
	End       time.Time         `json:"end,omitempty"`
	Count     int               `json:"count"`
	Readings  []*models.Reading `json:"readings"`
}

// HandleHistory returns persisted readings. It accepts a start/end range
// (RFC3339, default the last 24 hours) or a before/after cursor.
func (api *APIHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "History not available: database disabled", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	limit := parseLimit(r, defaultHistoryLimit, maxHistoryLimit)
	resp := HistoryResponse{ChannelID: api.resolveChannel(r)}

	var (
		readings []*models.Reading
		err      error
	)
	switch {
	case q.Get("before") != "":
		before, perr := time.Parse(time.RFC3339, q.Get("before"))
		if perr != nil {
			http.Error(w, "Invalid 'before' time, expected RFC3339", http.StatusBadRequest)
			return
		}
		readings, err = api.history.GetReadingsBefore(resp.ChannelID, before, limit)
	case q.Get("after") != "":
		after, perr := time.Parse(time.RFC3339, q.Get("after"))
		if perr != nil {
			http.Error(w, "Invalid 'after' time, expected RFC3339", http.StatusBadRequest)
			return
		}
		readings, err = api.history.GetReadingsAfter(resp.ChannelID, after, limit)
	default:
		end := time.Now().UTC()
		start := end.Add(-24 * time.Hour)
		if s := q.Get("start"); s != "" {
			if start, err = time.Parse(time.RFC3339, s); err != nil {
				http.Error(w, "Invalid 'start' time, expected RFC3339", http.StatusBadRequest)
				return
			}
		}
		if e := q.Get("end"); e != "" {
			if end, err = time.Parse(time.RFC3339, e); err != nil {
				http.Error(w, "Invalid 'end' time, expected RFC3339", http.StatusBadRequest)
				return
			}
		}
		if end.Before(start) {
			http.Error(w, "'end' must not be before 'start'", http.StatusBadRequest)
			return
		}
		resp.Start, resp.End = start, end
		readings, err = api.history.GetReadingsInRange(resp.ChannelID, start, end, limit)
	}
	if err != nil {
		api.logger.Error().Err(err).Msg("History query failed")
		http.Error(w, "Failed to query history", http.StatusInternalServerError)
		return
	}

	if readings == nil {
		readings = []*models.Reading{}
	}
	resp.Readings = readings
	resp.Count = len(readings)
	writeJSON(w, http.StatusOK, resp)
}

// HandleTrends returns persisted trend snapshots for ?channel_id=, newest first
func (api *APIHandler) HandleTrends(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "Trend history not available: database disabled", http.StatusServiceUnavailable)
		return
	}

	trends, err := api.history.GetTrends(api.resolveChannel(r), parseLimit(r, defaultTrendsLimit, maxHistoryLimit))
	if err != nil {
		api.logger.Error().Err(err).Msg("Trend query failed")
		http.Error(w, "Failed to query trends", http.StatusInternalServerError)
		return
	}
	if trends == nil {
		trends = []*storage.TrendRecord{}
	}
	writeJSON(w, http.StatusOK, trends)
}

// HandleDailyStats returns daily min/max/avg levels
func (api *APIHandler) HandleDailyStats(w http.ResponseWriter, r *http.Request) {
	if api.history == nil {
		http.Error(w, "Daily stats not available: database disabled", http.StatusServiceUnavailable)
		return
	}

	days := defaultStatsDays
	if s := r.URL.Query().Get("days"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 || parsed > maxStatsDays {
			http.Error(w, "Invalid 'days'", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)
	stats, err := api.history.GetDailyStats(api.resolveChannel(r), start, end)
	if err != nil {
		api.logger.Error().Err(err).Msg("Daily stats query failed")
		http.Error(w, "Failed to query daily stats", http.StatusInternalServerError)
		return
	}
	if stats == nil {
		stats = []storage.DailyStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// StatsResponse is the payload of /api/stats
type StatsResponse struct {
	Feed             FeedStatus                     `json:"feed"`
	Memory           StoreStats                     `json:"memory"`
	Database         *storage.StorageStats          `json:"database,omitempty"`
	Writer           *storage.DBWriterStats         `json:"writer,omitempty"`
	Retention        *storage.RetentionCleanerStats `json:"retention,omitempty"`
	WebSocketClients int                            `json:"websocket_clients"`
	Clients          []ClientInfo                   `json:"clients,omitempty"`
}

// FeedStatus describes the monitored channel and how fresh its data is
type FeedStatus struct {
	ChannelID      string          `json:"channel_id"`
	Name           string          `json:"name,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at,omitempty"`
	AgeSeconds     int64           `json:"age_seconds"`
	FloodThreshold float64         `json:"flood_threshold"`
	LastPersisted  *models.Reading `json:"last_persisted,omitempty"`
}

// HandleStats returns store, writer and retention statistics
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Feed:   api.feedStatus(r),
		Memory: api.store.Stats(),
	}

	if api.history != nil {
		dbStats, err := api.history.GetStorageStats()
		if err != nil {
			api.logger.Warn().Err(err).Msg("Failed to read database stats")
		} else {
			resp.Database = dbStats
		}
	}
	if api.writer != nil {
		s := api.writer.Stats()
		resp.Writer = &s
	}
	if api.retention != nil {
		s := api.retention.Stats()
		resp.Retention = &s
	}
	if api.hub != nil {
		resp.Clients = api.hub.Clients()
		resp.WebSocketClients = len(resp.Clients)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (api *APIHandler) feedStatus(r *http.Request) FeedStatus {
	status := FeedStatus{
		ChannelID:      api.resolveChannel(r),
		FloodThreshold: api.state.Threshold(),
	}
	if view, err := api.state.Current(); err == nil {
		status.Name = view.Station.DisplayName()
		status.UpdatedAt = view.Station.UpdatedAt
		status.AgeSeconds = int64(view.Station.Age(time.Now()).Seconds())
	}
	if api.history != nil {
		latest, err := api.history.GetLatestReading(status.ChannelID)
		if err != nil {
			api.logger.Warn().Err(err).Msg("Failed to read latest persisted reading")
		}
		status.LastPersisted = latest
	}
	return status
}

// HandleGetPreferences returns the dashboard preferences for ?profile=
func (api *APIHandler) HandleGetPreferences(w http.ResponseWriter, r *http.Request) {
	if api.prefs == nil {
		http.Error(w, "Preferences not available: database disabled", http.StatusServiceUnavailable)
		return
	}

	p, err := api.prefs.Get(r.URL.Query().Get("profile"))
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to load preferences")
		http.Error(w, "Failed to load preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandlePostPreferences applies a preferences action and returns the new state
func (api *APIHandler) HandlePostPreferences(w http.ResponseWriter, r *http.Request) {
	if api.prefs == nil {
		http.Error(w, "Preferences not available: database disabled", http.StatusServiceUnavailable)
		return
	}

	var action preferences.Action
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&action); err != nil {
		http.Error(w, "Invalid action body", http.StatusBadRequest)
		return
	}

	p, err := api.prefs.Dispatch(r.URL.Query().Get("profile"), action)
	switch {
	case errors.Is(err, preferences.ErrInvalidAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		api.logger.Error().Err(err).Str("action", string(action.Type)).Msg("Failed to apply preferences action")
		http.Error(w, "Failed to save preferences", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleRefresh asks the poller for an immediate poll
func (api *APIHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if api.refresher == nil {
		http.Error(w, "Refresh not available", http.StatusServiceUnavailable)
		return
	}
	api.refresher.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}

// broadcastRequest is the body of POST /api/broadcast
type broadcastRequest struct {
	Message string `json:"message"`
}

// BroadcastResponse reports how many dashboards accepted a broadcast
type BroadcastResponse struct {
	Delivered int       `json:"delivered"`
	SentAt    time.Time `json:"sent_at"`
}

// HandleBroadcast sends an operator's emergency message to every dashboard
func (api *APIHandler) HandleBroadcast(w http.ResponseWriter, r *http.Request) {
	if api.notifier == nil {
		http.Error(w, "Broadcast not available", http.StatusServiceUnavailable)
		return
	}

	var req broadcastRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBroadcastBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, "Invalid broadcast body", http.StatusBadRequest)
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		http.Error(w, "Broadcast message must not be empty", http.StatusBadRequest)
		return
	}

	sentAt := time.Now().UTC()
	msg, err := models.NewMessage(models.MessageTypeBroadcast, models.BroadcastMessage{
		Message: text,
		SentAt:  sentAt,
	})
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode broadcast")
		http.Error(w, "Failed to encode broadcast", http.StatusInternalServerError)
		return
	}

	delivered := api.notifier.Broadcast(msg)
	api.logger.Warn().
		Str("remote_addr", r.RemoteAddr).
		Int("delivered", delivered).
		Msg("Emergency broadcast sent")
	writeJSON(w, http.StatusOK, BroadcastResponse{Delivered: delivered, SentAt: sentAt})
}

// resolveChannel picks ?channel_id=, then the configured channel, then the
// first channel in memory
func (api *APIHandler) resolveChannel(r *http.Request) string {
	if id := r.URL.Query().Get("channel_id"); id != "" {
		return id
	}
	if api.channelID != "" {
		return api.channelID
	}
	if ids := api.store.GetChannelIDs(); len(ids) > 0 {
		return ids[0]
	}
	return ""
}

type errorBody struct {
	Error     string `json:"error"`
	LastError string `json:"last_error,omitempty"`
}

func parseLimit(r *http.Request, def, max int) int {
	limit := def
	if s := r.URL.Query().Get("limit"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func encodeMessage(msg *models.Message) ([]byte, error) {
	return json.Marshal(msg)
}
