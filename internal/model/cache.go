package model

import "time"

// CacheEntry is a persisted ScoreResult keyed by canonical domain.
// Absence of an entry is a cache miss, not an error. No expiry is applied
// by the store itself; callers may purge by age.
type CacheEntry struct {
	Domain      string      `json:"domain"`
	Result      ScoreResult `json:"result"`
	LastUpdated time.Time   `json:"last_updated"`
}
