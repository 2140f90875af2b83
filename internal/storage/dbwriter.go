package storage

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
)

// DBWriter handles async batched writes to the database
type DBWriter struct {
	store       Store
	logger      zerolog.Logger
	writeChan   chan writeItem
	batchSize   int
	flushPeriod time.Duration
	stopChan    chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// Stats
	mu            sync.RWMutex
	totalWritten  int64
	totalTrends   int64
	totalBatches  int64
	totalErrors   int64
	totalDropped  int64
	lastWriteTime time.Time
}

// writeItem carries either a reading or a trend snapshot
type writeItem struct {
	reading *models.Reading
	trend   *TrendRecord
}

// DBWriterConfig holds configuration for the async writer
type DBWriterConfig struct {
	BatchSize   int           // Number of items to batch before writing (default: 100)
	FlushPeriod time.Duration // Max time between flushes (default: 5s)
	ChannelSize int           // Size of the write channel buffer (default: 1000)
}

// DefaultDBWriterConfig returns sensible defaults
func DefaultDBWriterConfig() DBWriterConfig {
	return DBWriterConfig{
		BatchSize:   100,
		FlushPeriod: 5 * time.Second,
		ChannelSize: 1000,
	}
}

// DBWriterStats contains statistics about the writer
type DBWriterStats struct {
	TotalWritten  int64     `json:"total_written"`
	TotalTrends   int64     `json:"total_trends"`
	TotalBatches  int64     `json:"total_batches"`
	TotalErrors   int64     `json:"total_errors"`
	TotalDropped  int64     `json:"total_dropped"`
	LastWriteTime time.Time `json:"last_write_time,omitempty"`
	QueueLength   int       `json:"queue_length"`
}

// NewDBWriter creates a new async database writer
func NewDBWriter(store Store, config DBWriterConfig, logger zerolog.Logger) *DBWriter {
	defaults := DefaultDBWriterConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.FlushPeriod <= 0 {
		config.FlushPeriod = defaults.FlushPeriod
	}
	if config.ChannelSize <= 0 {
		config.ChannelSize = defaults.ChannelSize
	}

	w := &DBWriter{
		store:       store,
		logger:      logger.With().Str("component", "dbwriter").Logger(),
		writeChan:   make(chan writeItem, config.ChannelSize),
		batchSize:   config.BatchSize,
		flushPeriod: config.FlushPeriod,
		stopChan:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.writerLoop()

	w.logger.Info().
		Int("batch_size", config.BatchSize).
		Dur("flush_period", config.FlushPeriod).
		Int("channel_size", config.ChannelSize).
		Msg("DBWriter started")

	return w
}

// Write queues a reading for async writing to the database
// Returns true if queued, false if dropped (channel full)
func (w *DBWriter) Write(reading *models.Reading) bool {
	return w.enqueue(writeItem{reading: reading})
}

// WriteTrend queues a trend snapshot. Same drop semantics as Write.
func (w *DBWriter) WriteTrend(record *TrendRecord) bool {
	return w.enqueue(writeItem{trend: record})
}

func (w *DBWriter) enqueue(item writeItem) bool {
	select {
	case w.writeChan <- item:
		return true
	default:
		w.mu.Lock()
		w.totalDropped++
		w.mu.Unlock()
		w.logger.Warn().Msg("DBWriter channel full, dropping item")
		return false
	}
}

// writerLoop is the background goroutine that batches and writes items
func (w *DBWriter) writerLoop() {
	defer w.wg.Done()

	batch := make([]writeItem, 0, w.batchSize)
	ticker := time.NewTicker(w.flushPeriod)
	defer ticker.Stop()

	for {
		select {
		case item := <-w.writeChan:
			batch = append(batch, item)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = make([]writeItem, 0, w.batchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(batch)
				batch = make([]writeItem, 0, w.batchSize)
			}

		case <-w.stopChan:
			// drain whatever is still queued
			draining := true
			for draining {
				select {
				case item := <-w.writeChan:
					batch = append(batch, item)
				default:
					draining = false
				}
			}
			if len(batch) > 0 {
				w.flush(batch)
			}
			w.logger.Info().Msg("DBWriter stopped")
			return
		}
	}
}

// flush writes a batch to the database: readings in one transaction,
// then trend snapshots one by one
func (w *DBWriter) flush(batch []writeItem) {
	if len(batch) == 0 {
		return
	}

	readings := make([]*models.Reading, 0, len(batch))
	var trends []*TrendRecord
	for _, item := range batch {
		switch {
		case item.reading != nil:
			readings = append(readings, item.reading)
		case item.trend != nil:
			trends = append(trends, item.trend)
		}
	}

	var errCount int64
	var trendsWritten int64

	err := w.store.InsertBatch(readings)
	if err != nil {
		errCount++
		w.logger.Error().Err(err).Int("batch_size", len(readings)).Msg("Failed to write batch")
	}
	for _, t := range trends {
		if terr := w.store.InsertTrend(t); terr != nil {
			errCount++
			w.logger.Error().Err(terr).Msg("Failed to write trend snapshot")
			continue
		}
		trendsWritten++
	}

	w.mu.Lock()
	w.totalErrors += errCount
	if err == nil {
		w.totalWritten += int64(len(readings))
	}
	w.totalTrends += trendsWritten
	w.totalBatches++
	w.lastWriteTime = time.Now()
	w.mu.Unlock()

	w.logger.Debug().
		Int("readings", len(readings)).
		Int64("trends", trendsWritten).
		Msg("Flushed batch")
}

// Stop gracefully stops the writer, flushing any remaining data
func (w *DBWriter) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.wg.Wait()
	})
}

// Stats returns current writer statistics
func (w *DBWriter) Stats() DBWriterStats {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return DBWriterStats{
		TotalWritten:  w.totalWritten,
		TotalTrends:   w.totalTrends,
		TotalBatches:  w.totalBatches,
		TotalErrors:   w.totalErrors,
		TotalDropped:  w.totalDropped,
		LastWriteTime: w.lastWriteTime,
		QueueLength:   len(w.writeChan),
	}
}
