package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Pruner deletes rows older than a number of days
type Pruner interface {
	DeleteOlderThan(days int) (int64, error)
}

// RetentionCleaner removes old readings and trend snapshots on a cron schedule
type RetentionCleaner struct {
	store         Pruner
	logger        zerolog.Logger
	retentionDays int
	schedule      string
	cron          *cron.Cron
	runMu         sync.Mutex // serialises scheduled and manual runs
	stopOnce      sync.Once

	// Stats
	mu              sync.RWMutex
	totalDeleted    int64
	totalCleanups   int64
	totalErrors     int64
	lastCleanup     time.Time
	lastDeleteCount int64
}

// RetentionCleanerConfig holds configuration for the cleaner
type RetentionCleanerConfig struct {
	RetentionDays int    // Number of days to keep data (default: 30)
	Schedule      string // cron spec, e.g. "@every 1h" or "0 3 * * *" (default: @every 1h)
}

// DefaultRetentionCleanerConfig returns sensible defaults
func DefaultRetentionCleanerConfig() RetentionCleanerConfig {
	return RetentionCleanerConfig{
		RetentionDays: 30,
		Schedule:      "@every 1h",
	}
}

// RetentionCleanerStats contains statistics about the cleaner
type RetentionCleanerStats struct {
	TotalDeleted    int64     `json:"total_deleted"`
	TotalCleanups   int64     `json:"total_cleanups"`
	TotalErrors     int64     `json:"total_errors"`
	LastCleanup     time.Time `json:"last_cleanup,omitempty"`
	LastDeleteCount int64     `json:"last_delete_count"`
	RetentionDays   int       `json:"retention_days"`
	Schedule        string    `json:"schedule"`
}

// NewRetentionCleaner runs one cleanup immediately and then starts the schedule
func NewRetentionCleaner(store Pruner, config RetentionCleanerConfig, logger zerolog.Logger) (*RetentionCleaner, error) {
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionCleanerConfig().RetentionDays
	}
	if config.Schedule == "" {
		config.Schedule = DefaultRetentionCleanerConfig().Schedule
	}

	c := &RetentionCleaner{
		store:         store,
		logger:        logger.With().Str("component", "retention").Logger(),
		retentionDays: config.RetentionDays,
		schedule:      config.Schedule,
		cron:          cron.New(),
	}

	if _, err := c.cron.AddFunc(config.Schedule, c.runCleanup); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", config.Schedule, err)
	}

	c.runCleanup()
	c.cron.Start()

	c.logger.Info().
		Int("retention_days", config.RetentionDays).
		Str("schedule", config.Schedule).
		Msg("RetentionCleaner started")

	return c, nil
}

// runCleanup performs the actual cleanup operation
func (c *RetentionCleaner) runCleanup() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	deleted, err := c.store.DeleteOlderThan(c.retentionDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCleanups++
	c.lastCleanup = time.Now()

	if err != nil {
		c.totalErrors++
		c.logger.Error().Err(err).Msg("Retention cleanup failed")
		return
	}

	c.totalDeleted += deleted
	c.lastDeleteCount = deleted
	if deleted > 0 {
		c.logger.Info().
			Int64("deleted", deleted).
			Int("retention_days", c.retentionDays).
			Msg("Retention cleanup completed")
	} else {
		c.logger.Debug().
			Int("retention_days", c.retentionDays).
			Msg("Retention cleanup completed, no old data to delete")
	}
}

// Stop halts the schedule and waits for a running cleanup to finish
func (c *RetentionCleaner) Stop() {
	c.stopOnce.Do(func() {
		<-c.cron.Stop().Done()
		c.logger.Info().Msg("RetentionCleaner stopped")
	})
}

// Stats returns current cleaner statistics
func (c *RetentionCleaner) Stats() RetentionCleanerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return RetentionCleanerStats{
		TotalDeleted:    c.totalDeleted,
		TotalCleanups:   c.totalCleanups,
		TotalErrors:     c.totalErrors,
		LastCleanup:     c.lastCleanup,
		LastDeleteCount: c.lastDeleteCount,
		RetentionDays:   c.retentionDays,
		Schedule:        c.schedule,
	}
}

// RunNow triggers an immediate cleanup outside the schedule
func (c *RetentionCleaner) RunNow() {
	c.runCleanup()
}
