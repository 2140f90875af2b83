package server

import (
	"time"

	"github.com/afroash/flood-monitor/internal/models"
	"github.com/afroash/flood-monitor/internal/preferences"
	"github.com/afroash/flood-monitor/internal/storage"
)

// ReadingStore defines the interface for the latest in-memory readings
// MemoryStore implements this interface
type ReadingStore interface {
	// SetBatch replaces the channel's readings with a freshly fetched batch
	SetBatch(batch *models.Batch)

	// GetLatest returns the n most recent readings for a channel (newest first)
	GetLatest(channelID string, n int) []*models.Reading

	// GetCurrentReading returns the most recent reading for a channel
	GetCurrentReading(channelID string) *models.Reading

	// GetChannelIDs returns the channels that have data
	GetChannelIDs() []string

	// Stats returns statistics about the store
	Stats() StoreStats
}

// HistoricalStore defines the interface for persistent storage
// storage.SQLiteStore implements this interface
type HistoricalStore interface {
	// GetReadingsInRange returns readings within a time range
	GetReadingsInRange(channelID string, start, end time.Time, limit int) ([]*models.Reading, error)

	// GetReadingsBefore returns readings before a timestamp (for scrolling back)
	GetReadingsBefore(channelID string, before time.Time, limit int) ([]*models.Reading, error)

	// GetReadingsAfter returns readings after a timestamp (for scrolling forward)
	GetReadingsAfter(channelID string, after time.Time, limit int) ([]*models.Reading, error)

	// GetLatestReading returns the newest persisted reading, nil if none
	GetLatestReading(channelID string) (*models.Reading, error)

	// GetLastEntryID returns the highest persisted entry ID for a channel
	GetLastEntryID(channelID string) (int64, error)

	// GetTrends returns recent trend snapshots for a channel, newest first
	GetTrends(channelID string, limit int) ([]*storage.TrendRecord, error)

	// GetDailyStats returns aggregated daily statistics
	GetDailyStats(channelID string, start, end time.Time) ([]storage.DailyStat, error)

	// GetStorageStats returns database statistics
	GetStorageStats() (*storage.StorageStats, error)
}

// PersistQueue accepts readings and trend snapshots for async persistence
// storage.DBWriter implements this interface
type PersistQueue interface {
	Write(reading *models.Reading) bool
	WriteTrend(record *storage.TrendRecord) bool
	Stats() storage.DBWriterStats
}

// PreferencesService reads and changes dashboard preferences
// preferences.Service implements this interface
type PreferencesService interface {
	Get(profile string) (models.Preferences, error)
	Dispatch(profile string, a preferences.Action) (models.Preferences, error)
}

// Refresher requests an out-of-band poll
// poller.Handle implements this interface
type Refresher interface {
	Trigger()
}

// Compile-time interface checks
var (
	_ ReadingStore       = (*MemoryStore)(nil)
	_ HistoricalStore    = (*storage.SQLiteStore)(nil)
	_ PersistQueue       = (*storage.DBWriter)(nil)
	_ PreferencesService = (*preferences.Service)(nil)
)
