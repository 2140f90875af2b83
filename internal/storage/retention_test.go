package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/flood-monitor/internal/models"
)

// countingPruner records calls instead of touching a database
type countingPruner struct {
	mu    sync.Mutex
	calls int
	days  int
	n     int64
	err   error
}

func (p *countingPruner) DeleteOlderThan(days int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.days = days
	return p.n, p.err
}

func (p *countingPruner) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestNewRetentionCleaner_RunsImmediately(t *testing.T) {
	pruner := &countingPruner{n: 4}
	cleaner, err := NewRetentionCleaner(pruner, RetentionCleanerConfig{RetentionDays: 7, Schedule: "@every 1h"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionCleaner failed: %v", err)
	}
	defer cleaner.Stop()

	if pruner.Calls() != 1 {
		t.Errorf("initial cleanups = %d, want 1", pruner.Calls())
	}
	if pruner.days != 7 {
		t.Errorf("retention days = %d, want 7", pruner.days)
	}

	stats := cleaner.Stats()
	if stats.TotalCleanups != 1 || stats.TotalDeleted != 4 || stats.LastDeleteCount != 4 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Schedule != "@every 1h" {
		t.Errorf("Schedule = %q", stats.Schedule)
	}
}

func TestNewRetentionCleaner_Defaults(t *testing.T) {
	pruner := &countingPruner{}
	cleaner, err := NewRetentionCleaner(pruner, RetentionCleanerConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionCleaner failed: %v", err)
	}
	defer cleaner.Stop()

	stats := cleaner.Stats()
	if stats.RetentionDays != 30 || stats.Schedule != "@every 1h" {
		t.Errorf("defaults not applied: %+v", stats)
	}
}

func TestNewRetentionCleaner_InvalidSchedule(t *testing.T) {
	pruner := &countingPruner{}
	_, err := NewRetentionCleaner(pruner, RetentionCleanerConfig{RetentionDays: 1, Schedule: "every now and then"}, zerolog.Nop())
	if err == nil {
		t.Fatal("Expected error for invalid schedule")
	}
	if pruner.Calls() != 0 {
		t.Errorf("cleanup should not run with an invalid schedule")
	}
}

func TestRetentionCleaner_Schedule(t *testing.T) {
	pruner := &countingPruner{}
	cleaner, err := NewRetentionCleaner(pruner, RetentionCleanerConfig{RetentionDays: 1, Schedule: "@every 1s"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionCleaner failed: %v", err)
	}
	defer cleaner.Stop()

	waitFor(t, 3*time.Second, func() bool { return pruner.Calls() >= 2 })
}

func TestRetentionCleaner_ErrorsCounted(t *testing.T) {
	pruner := &countingPruner{err: errors.New("database is locked")}
	cleaner, err := NewRetentionCleaner(pruner, RetentionCleanerConfig{RetentionDays: 1}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionCleaner failed: %v", err)
	}
	defer cleaner.Stop()

	cleaner.RunNow()

	stats := cleaner.Stats()
	if stats.TotalErrors != 2 || stats.TotalCleanups != 2 || stats.TotalDeleted != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRetentionCleaner_RunNow(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	cleaner, err := NewRetentionCleaner(store, RetentionCleanerConfig{RetentionDays: 30, Schedule: "@every 1h"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionCleaner failed: %v", err)
	}
	defer cleaner.Stop()

	now := time.Now().UTC()
	var readings []*models.Reading
	for i := 0; i < 10; i++ {
		readings = append(readings,
			createTestReading("2012345", int64(i+1), 1.0, now.AddDate(0, 0, -35).Add(-time.Duration(i)*time.Hour)),
			createTestReading("2012345", int64(i+100), 2.0, now.Add(-time.Duration(i)*time.Hour)),
		)
	}
	if err := store.InsertBatch(readings); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	cleaner.RunNow()

	stats, err := store.GetStorageStats()
	if err != nil {
		t.Fatalf("GetStorageStats failed: %v", err)
	}
	if stats.TotalReadings != 10 {
		t.Errorf("TotalReadings = %d, want 10", stats.TotalReadings)
	}
	if got := cleaner.Stats().LastDeleteCount; got != 10 {
		t.Errorf("LastDeleteCount = %d, want 10", got)
	}
}

func TestRetentionCleaner_StopIdempotent(t *testing.T) {
	cleaner, err := NewRetentionCleaner(&countingPruner{}, DefaultRetentionCleanerConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionCleaner failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		cleaner.Stop()
		cleaner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
