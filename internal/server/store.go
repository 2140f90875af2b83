package server

import (
	"sort"
	"sync"
	"time"

	"github.com/afroash/flood-monitor/internal/models"
)

// MemoryStore keeps the readings of the latest batch per channel
type MemoryStore struct {
	capacity      int
	data          map[string][]*models.Reading
	mutex         sync.RWMutex
	totalReadings int64
	totalBatches  int64
}

// NewMemoryStore creates a new in-memory store holding at most capacity
// readings per channel
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryStore{
		capacity: capacity,
		data:     make(map[string][]*models.Reading),
	}
}

// SetBatch replaces a channel's readings with those of batch, keeping the
// newest capacity entries
func (ms *MemoryStore) SetBatch(batch *models.Batch) {
	if batch == nil {
		return
	}
	readings := batch.Readings
	if len(readings) > ms.capacity {
		readings = readings[len(readings)-ms.capacity:]
	}

	copies := make([]*models.Reading, len(readings))
	for i := range readings {
		copies[i] = readings[i].Copy()
	}

	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data[batch.Station.ID] = copies
	ms.totalReadings += int64(len(batch.Readings))
	ms.totalBatches++
}

// GetLatest returns the n most recent readings for a channel, newest first
func (ms *MemoryStore) GetLatest(channelID string, n int) []*models.Reading {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	readings := ms.data[channelID]
	if len(readings) == 0 || n <= 0 {
		return nil
	}

	start := len(readings) - n
	if start < 0 {
		start = 0
	}

	result := make([]*models.Reading, len(readings)-start)
	for i, j := len(readings)-1, 0; i >= start; i, j = i-1, j+1 {
		result[j] = readings[i].Copy()
	}
	return result
}

// GetCurrentReading returns the most recent reading for a channel
func (ms *MemoryStore) GetCurrentReading(channelID string) *models.Reading {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	readings := ms.data[channelID]
	if len(readings) == 0 {
		return nil
	}
	return readings[len(readings)-1].Copy()
}

// GetChannelIDs returns the channels that have data, sorted
func (ms *MemoryStore) GetChannelIDs() []string {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	keys := make([]string, 0, len(ms.data))
	for key := range ms.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns statistics about the store
func (ms *MemoryStore) Stats() StoreStats {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	stats := StoreStats{
		TotalReadings:  ms.totalReadings,
		TotalBatches:   ms.totalBatches,
		UniqueChannels: len(ms.data),
	}
	for _, readings := range ms.data {
		stats.CurrentReadings += len(readings)
		if len(readings) == 0 {
			continue
		}
		oldest := readings[0].Timestamp
		newest := readings[len(readings)-1].Timestamp
		if stats.OldestReading.IsZero() || oldest.Before(stats.OldestReading) {
			stats.OldestReading = oldest
		}
		if newest.After(stats.NewestReading) {
			stats.NewestReading = newest
		}
	}
	return stats
}

// StoreStats contains statistics about the memory store
type StoreStats struct {
	TotalReadings   int64     `json:"total_readings"` // seen across all batches
	TotalBatches    int64     `json:"total_batches"`
	UniqueChannels  int       `json:"unique_channels"`
	CurrentReadings int       `json:"current_readings"` // In memory now
	OldestReading   time.Time `json:"oldest_reading,omitempty"`
	NewestReading   time.Time `json:"newest_reading,omitempty"`
}

// Clear removes all data from the store
func (ms *MemoryStore) Clear() {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.data = make(map[string][]*models.Reading)
	ms.totalReadings = 0
	ms.totalBatches = 0
}
