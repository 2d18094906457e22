package pipeline

import (
	"sync"
	"time"
)

type StatsSnapshot struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	AvgProcessingTime  float64 `json:"avg_processing_time"`
}

// Stats are process lifetime counters. The average is kept as a running
// mean so it never sums a growing series.
type Stats struct {
	mu   sync.Mutex
	snap StatsSnapshot
}

func (s *Stats) Begin() {
	s.mu.Lock()
	s.snap.TotalRequests++
	s.mu.Unlock()
}

// Success records a completed or degraded run and returns the new average in seconds.
func (s *Stats) Success(elapsed time.Duration) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.SuccessfulRequests++
	x := elapsed.Seconds()
	s.snap.AvgProcessingTime += (x - s.snap.AvgProcessingTime) / float64(s.snap.SuccessfulRequests)
	return s.snap.AvgProcessingTime
}

func (s *Stats) Failure() {
	s.mu.Lock()
	s.snap.FailedRequests++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
