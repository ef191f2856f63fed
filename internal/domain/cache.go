package domain

import "time"

// CacheEntry stores the raw results of one upstream search under the
// normalized query key. A read past CreatedAt+TTL is a miss; the entry is
// physically removed only by the retention sweep.
type CacheEntry struct {
	Key       string         `json:"key"`
	Results   []RawCandidate `json:"results"`
	CreatedAt time.Time      `json:"createdAt"`
	TTL       time.Duration  `json:"ttl"`
}

// Expired reports whether the entry has outlived its TTL at the given time.
// An entry whose age equals its TTL exactly is already expired.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.CreatedAt.Add(e.TTL))
}
