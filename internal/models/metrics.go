package models

import "time"

// SystemMetrics is a point-in-time summary of service counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	AppointmentsCreated      uint64    `json:"appointments_created"`
	AppointmentsRejected     uint64    `json:"appointments_rejected"`
	AppointmentsMoved        uint64    `json:"appointments_moved"`
	AppointmentsAutoRejected uint64    `json:"appointments_auto_rejected"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
