package metrics

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity is the number of recent records kept.
const DefaultHistoryCapacity = 100

// Store is an in-memory, thread-safe aggregation of stylization records.
//
// Usage:
//
//	store := NewStore(100, time.Now())
//	store.Record(rec)
//	summary := store.Summary()
type Store struct {
	mu sync.RWMutex

	// Recent history (circular buffer)
	history []StylizeRecord
	head    int
	size    int

	// Aggregation
	total         int64
	success       int64
	errors        int64
	totalDuration time.Duration
	byErrorKind   map[string]int64

	startTime time.Time
}

// NewStore creates a Store retaining up to capacity recent records.
// The startTime is used to calculate uptime.
func NewStore(capacity int, startTime time.Time) *Store {
	if capacity < 1 {
		capacity = DefaultHistoryCapacity
	}
	return &Store{
		history:     make([]StylizeRecord, capacity),
		byErrorKind: make(map[string]int64),
		startTime:   startTime,
	}
}

// Record adds a completed stylization.
func (s *Store) Record(rec StylizeRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = rec
	s.head = (s.head + 1) % len(s.history)
	if s.size < len(s.history) {
		s.size++
	}

	s.total++
	s.totalDuration += rec.Duration
	if rec.Status == StatusSuccess {
		s.success++
	} else {
		s.errors++
		if rec.ErrorKind != "" {
			s.byErrorKind[rec.ErrorKind]++
		}
	}
}

// Summary returns the aggregated counters.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Total:       s.total,
		Success:     s.success,
		Errors:      s.errors,
		ByErrorKind: make(map[string]int64, len(s.byErrorKind)),
		Uptime:      time.Since(s.startTime),
	}
	if s.total > 0 {
		sum.SuccessRate = float64(s.success) / float64(s.total) * 100
		sum.AvgDuration = s.totalDuration / time.Duration(s.total)
	}
	for k, v := range s.byErrorKind {
		sum.ByErrorKind[k] = v
	}
	return sum
}

// Recent returns up to limit records, oldest first.
func (s *Store) Recent(limit int) []StylizeRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []StylizeRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	capacity := len(s.history)
	result := make([]StylizeRecord, limit)
	for i := 0; i < limit; i++ {
		result[i] = s.history[(s.head-limit+i+capacity)%capacity]
	}
	return result
}
