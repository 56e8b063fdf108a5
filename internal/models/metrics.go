package models

import "time"

// MetricsSnapshot summarises session and upstream activity for the gateway.
type MetricsSnapshot struct {
	UpstreamRequests          uint64    `json:"upstreamRequests"`
	AverageUpstreamDurationMs float64   `json:"averageUpstreamDurationMs"`
	RefreshSucceeded          uint64    `json:"refreshSucceeded"`
	RefreshFailed             uint64    `json:"refreshFailed"`
	RefreshShared             uint64    `json:"refreshShared"`
	Replays                   uint64    `json:"replays"`
	CacheHitRatio             float64   `json:"cacheHitRatio"`
	CacheHits                 uint64    `json:"cacheHits"`
	CacheMisses               uint64    `json:"cacheMisses"`
	Goroutines                int       `json:"goroutines"`
	GeneratedAt               time.Time `json:"generatedAt"`
}
