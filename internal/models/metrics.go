package models

import "time"

// SystemMetrics is a lightweight snapshot of runtime counters for the ops endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64          `json:"cache_hit_ratio"`
	CacheHits                uint64           `json:"cache_hits"`
	CacheMisses              uint64           `json:"cache_misses"`
	RequestsTotal            uint64           `json:"requests_total"`
	AverageRequestDurationMs float64          `json:"average_request_duration_ms"`
	BookingOutcomes          map[string]int64 `json:"booking_outcomes"`
	CascadeCancellations     uint64           `json:"cascade_cancellations"`
	Goroutines               int              `json:"goroutines"`
	GeneratedAt              time.Time        `json:"generated_at"`
}
