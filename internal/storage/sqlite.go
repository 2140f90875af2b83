package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
)

// Store defines the interface for water-level history storage
type Store interface {
	Close() error
	Migrate() error
	InsertBatch(readings []*models.Reading) error
	InsertTrend(record *TrendRecord) error
	GetReadingsInRange(channelID string, start, end time.Time, limit int) ([]*models.Reading, error)
	GetReadingsBefore(channelID string, before time.Time, limit int) ([]*models.Reading, error)
	GetReadingsAfter(channelID string, after time.Time, limit int) ([]*models.Reading, error)
	GetLatestReading(channelID string) (*models.Reading, error)
	GetLastEntryID(channelID string) (int64, error)
	GetTrends(channelID string, limit int) ([]*TrendRecord, error)
	GetDailyStats(channelID string, start, end time.Time) ([]DailyStat, error)
	DeleteOlderThan(days int) (int64, error)
	GetStorageStats() (*StorageStats, error)
	GetChannelIDs() ([]string, error)
	LoadPreferences(profile string) (models.Preferences, bool, error)
	SavePreferences(p models.Preferences) error
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)

// timeLayout is how timestamps are stored; always UTC.
const timeLayout = "2006-01-02 15:04:05"

// SQLiteStore handles persistent storage of readings, trend snapshots and
// dashboard preferences
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// TrendRecord is a persisted trend snapshot
type TrendRecord struct {
	ID        int64  `json:"id"`
	ChannelID string `json:"channel_id"`
	models.Trend
	ComputedAt time.Time `json:"computed_at"`
}

// DailyStat represents aggregated water levels for a single day
type DailyStat struct {
	Date         time.Time `json:"date"`
	ChannelID    string    `json:"channel_id"`
	MinLevel     float64   `json:"min_level"`
	MaxLevel     float64   `json:"max_level"`
	AvgLevel     float64   `json:"avg_level"`
	ReadingCount int       `json:"reading_count"`
}

// StorageStats contains information about the database
type StorageStats struct {
	TotalReadings  int64     `json:"total_readings"`
	TotalTrends    int64     `json:"total_trends"`
	OldestReading  time.Time `json:"oldest_reading,omitempty"`
	NewestReading  time.Time `json:"newest_reading,omitempty"`
	UniqueChannels int       `json:"unique_channels"`
	DatabaseSizeMB float64   `json:"database_size_mb"`
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=10000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite").Logger(),
	}

	if err := store.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	store.logger.Info().Str("path", dbPath).Msg("SQLite store initialized")

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate creates the database schema if it doesn't exist
func (s *SQLiteStore) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		entry_id INTEGER NOT NULL,
		level REAL NOT NULL,
		raw TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(channel_id, entry_id)
	);

	CREATE INDEX IF NOT EXISTS idx_readings_channel_time ON readings(channel_id, recorded_at DESC);
	CREATE INDEX IF NOT EXISTS idx_readings_time ON readings(recorded_at DESC);

	CREATE TABLE IF NOT EXISTS trends (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id TEXT NOT NULL,
		current_level REAL NOT NULL,
		predicted_level REAL NOT NULL,
		avg_change REAL NOT NULL,
		minutes_to_peak INTEGER NOT NULL,
		time_to_peak TEXT NOT NULL,
		direction TEXT NOT NULL,
		valid_samples INTEGER NOT NULL,
		computed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trends_time ON trends(computed_at DESC);

	CREATE TABLE IF NOT EXISTS preferences (
		profile TEXT PRIMARY KEY,
		theme TEXT NOT NULL,
		sidebar_open INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Debug().Msg("Database schema migrated")
	return nil
}

const insertReadingSQL = `
	INSERT OR IGNORE INTO readings (channel_id, entry_id, level, raw, recorded_at)
	VALUES (?, ?, ?, ?, ?)
`

// InsertBatch inserts multiple readings in a single transaction
func (s *SQLiteStore) InsertBatch(readings []*models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, reading := range readings {
		res, err := stmt.Exec(
			reading.ChannelID,
			reading.EntryID,
			reading.Level,
			reading.Raw,
			reading.Timestamp.UTC().Format(timeLayout),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading in batch: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().
		Int("count", len(readings)).
		Int64("inserted", inserted).
		Msg("Batch insert completed")
	return nil
}

// InsertTrend stores a trend snapshot
func (s *SQLiteStore) InsertTrend(record *TrendRecord) error {
	res, err := s.db.Exec(`
		INSERT INTO trends (channel_id, current_level, predicted_level, avg_change,
			minutes_to_peak, time_to_peak, direction, valid_samples, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ChannelID,
		record.CurrentLevel,
		record.PredictedLevel,
		record.AvgChange,
		record.MinutesToPeak,
		record.TimeToPeak,
		string(record.Direction),
		record.ValidSamples,
		record.ComputedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trend: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		record.ID = id
	}
	return nil
}

const selectReadingColumns = `SELECT id, channel_id, entry_id, level, raw, recorded_at, created_at FROM readings`

// GetReadingsInRange returns readings within a time range, newest first.
// An empty channelID matches every channel.
func (s *SQLiteStore) GetReadingsInRange(channelID string, start, end time.Time, limit int) ([]*models.Reading, error) {
	query := selectReadingColumns + ` WHERE recorded_at BETWEEN ? AND ?`
	args := []interface{}{start.UTC().Format(timeLayout), end.UTC().Format(timeLayout)}
	if channelID != "" {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY recorded_at DESC, entry_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// GetReadingsBefore returns readings before a specific time (for scrolling back)
func (s *SQLiteStore) GetReadingsBefore(channelID string, before time.Time, limit int) ([]*models.Reading, error) {
	query := selectReadingColumns + ` WHERE recorded_at < ?`
	args := []interface{}{before.UTC().Format(timeLayout)}
	if channelID != "" {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY recorded_at DESC, entry_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// GetReadingsAfter returns readings after a specific time (for scrolling forward)
func (s *SQLiteStore) GetReadingsAfter(channelID string, after time.Time, limit int) ([]*models.Reading, error) {
	query := selectReadingColumns + ` WHERE recorded_at > ?`
	args := []interface{}{after.UTC().Format(timeLayout)}
	if channelID != "" {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY recorded_at ASC, entry_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings, err := s.scanReadings(rows)
	if err != nil {
		return nil, err
	}

	// newest first, like the other queries
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}

	return readings, nil
}

// GetLatestReading returns the most recent reading for a channel, or nil
func (s *SQLiteStore) GetLatestReading(channelID string) (*models.Reading, error) {
	row := s.db.QueryRow(selectReadingColumns+`
		WHERE channel_id = ?
		ORDER BY recorded_at DESC, entry_id DESC
		LIMIT 1
	`, channelID)

	reading, err := s.scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reading: %w", err)
	}

	return reading, nil
}

// GetLastEntryID returns the highest stored entry ID for a channel, 0 if none
func (s *SQLiteStore) GetLastEntryID(channelID string) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRow(`SELECT MAX(entry_id) FROM readings WHERE channel_id = ?`, channelID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get last entry id: %w", err)
	}
	return id.Int64, nil
}

// GetTrends returns the most recent trend snapshots, newest first.
// An empty channelID matches every channel.
func (s *SQLiteStore) GetTrends(channelID string, limit int) ([]*TrendRecord, error) {
	query := `SELECT id, channel_id, current_level, predicted_level, avg_change,
		minutes_to_peak, time_to_peak, direction, valid_samples, computed_at
		FROM trends`
	var args []interface{}
	if channelID != "" {
		query += ` WHERE channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY computed_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trends: %w", err)
	}
	defer rows.Close()

	var records []*TrendRecord
	for rows.Next() {
		var rec TrendRecord
		var direction, computedAt string
		err := rows.Scan(
			&rec.ID,
			&rec.ChannelID,
			&rec.CurrentLevel,
			&rec.PredictedLevel,
			&rec.AvgChange,
			&rec.MinutesToPeak,
			&rec.TimeToPeak,
			&direction,
			&rec.ValidSamples,
			&computedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trend: %w", err)
		}
		rec.Direction = models.Direction(direction)
		rec.ComputedAt, err = s.parseTimestamp(computedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse computed_at: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetDailyStats returns min/max/avg level per day for a time range
func (s *SQLiteStore) GetDailyStats(channelID string, start, end time.Time) ([]DailyStat, error) {
	query := `
		SELECT
			date(recorded_at) as date,
			channel_id,
			MIN(level) as min_level,
			MAX(level) as max_level,
			AVG(level) as avg_level,
			COUNT(*) as reading_count
		FROM readings
		WHERE recorded_at BETWEEN ? AND ?`
	args := []interface{}{start.UTC().Format(timeLayout), end.UTC().Format(timeLayout)}
	if channelID != "" {
		query += ` AND channel_id = ?`
		args = append(args, channelID)
	}
	query += `
		GROUP BY date(recorded_at), channel_id
		ORDER BY date DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var stat DailyStat
		var dateStr string

		err := rows.Scan(
			&dateStr,
			&stat.ChannelID,
			&stat.MinLevel,
			&stat.MaxLevel,
			&stat.AvgLevel,
			&stat.ReadingCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}

		stat.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse date: %w", err)
		}

		stats = append(stats, stat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return stats, nil
}

// DeleteOlderThan removes readings and trend snapshots older than the given
// number of days and returns the total number of rows deleted.
// Readings are aged by recorded_at (feed timestamp), not insert time.
func (s *SQLiteStore) DeleteOlderThan(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	cutoffStr := cutoff.Format(timeLayout)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	readingsRes, err := tx.Exec("DELETE FROM readings WHERE recorded_at < ?", cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}
	trendsRes, err := tx.Exec("DELETE FROM trends WHERE computed_at < ?", cutoffStr)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old trends: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	readings, _ := readingsRes.RowsAffected()
	trends, _ := trendsRes.RowsAffected()

	s.logger.Info().
		Int("days", days).
		Int64("readings_deleted", readings).
		Int64("trends_deleted", trends).
		Time("cutoff", cutoff).
		Msg("Deleted old data")

	return readings + trends, nil
}

// GetStorageStats returns statistics about the database
func (s *SQLiteStore) GetStorageStats() (*StorageStats, error) {
	stats := &StorageStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM readings").Scan(&stats.TotalReadings); err != nil {
		return nil, fmt.Errorf("failed to count readings: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM trends").Scan(&stats.TotalTrends); err != nil {
		return nil, fmt.Errorf("failed to count trends: %w", err)
	}

	var pageCount, pageSize int64
	s.db.QueryRow("PRAGMA page_count").Scan(&pageCount)
	s.db.QueryRow("PRAGMA page_size").Scan(&pageSize)
	stats.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)

	if stats.TotalReadings == 0 {
		return stats, nil
	}

	var oldestStr, newestStr string
	err := s.db.QueryRow("SELECT MIN(recorded_at), MAX(recorded_at) FROM readings").
		Scan(&oldestStr, &newestStr)
	if err != nil {
		return nil, fmt.Errorf("failed to get timestamp range: %w", err)
	}

	stats.OldestReading, _ = s.parseTimestamp(oldestStr)
	stats.NewestReading, _ = s.parseTimestamp(newestStr)

	err = s.db.QueryRow("SELECT COUNT(DISTINCT channel_id) FROM readings").Scan(&stats.UniqueChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to count channels: %w", err)
	}

	return stats, nil
}

// GetChannelIDs returns a list of all channel IDs with stored readings
func (s *SQLiteStore) GetChannelIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT channel_id FROM readings ORDER BY channel_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query channel IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan channel ID: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return ids, nil
}

// LoadPreferences returns the saved preferences for a profile.
// ok is false when nothing has been saved yet.
func (s *SQLiteStore) LoadPreferences(profile string) (models.Preferences, bool, error) {
	var p models.Preferences
	var theme, updatedAt string
	var sidebarOpen int

	err := s.db.QueryRow(`
		SELECT profile, theme, sidebar_open, updated_at
		FROM preferences
		WHERE profile = ?
	`, profile).Scan(&p.Profile, &theme, &sidebarOpen, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Preferences{}, false, nil
	}
	if err != nil {
		return models.Preferences{}, false, fmt.Errorf("failed to load preferences: %w", err)
	}

	p.Theme = models.ThemeMode(theme)
	p.SidebarOpen = sidebarOpen != 0
	p.UpdatedAt, err = s.parseTimestamp(updatedAt)
	if err != nil {
		return models.Preferences{}, false, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	return p, true, nil
}

// SavePreferences upserts the preferences for p.Profile
func (s *SQLiteStore) SavePreferences(p models.Preferences) error {
	sidebar := 0
	if p.SidebarOpen {
		sidebar = 1
	}

	_, err := s.db.Exec(`
		INSERT INTO preferences (profile, theme, sidebar_open, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			theme = excluded.theme,
			sidebar_open = excluded.sidebar_open,
			updated_at = excluded.updated_at
	`, p.Profile, string(p.Theme), sidebar, p.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}

	return nil
}

// scanReading is a helper to scan a row into a Reading struct
func (s *SQLiteStore) scanReading(row interface{ Scan(...interface{}) error }) (*models.Reading, error) {
	var r models.Reading
	var id int64
	var recordedAt, createdAt string

	err := row.Scan(&id, &r.ChannelID, &r.EntryID, &r.Level, &r.Raw, &recordedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	r.Timestamp, err = s.parseTimestamp(recordedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	r.Valid = true

	return &r, nil
}

// scanReadings scans multiple rows into a slice of readings
func (s *SQLiteStore) scanReadings(rows *sql.Rows) ([]*models.Reading, error) {
	var readings []*models.Reading

	for rows.Next() {
		r, err := s.scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return readings, nil
}

// parseTimestamp tries multiple formats to parse a SQLite timestamp
func (s *SQLiteStore) parseTimestamp(ts string) (time.Time, error) {
	formats := []string{
		timeLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", ts)
}
