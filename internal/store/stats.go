package store

import "context"

type counters struct {
	saves        int64
	loads        int64
	deletes      int64
	hits         int64
	misses       int64
	errors       int64
	backendBytes int64
}

// Stats is a snapshot of service activity
type Stats struct {
	Saves        int64   `json:"saves"`
	Loads        int64   `json:"loads"`
	Deletes      int64   `json:"deletes"`
	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
	Errors       int64   `json:"errors"`
	BackendBytes int64   `json:"backend_bytes"`
	HitRate      float64 `json:"hit_rate"`
	CacheSize    int     `json:"cache_size"`
	MaxCacheSize int     `json:"max_cache_size"`
}

// Snapshot returns counters without touching the backend.
// BackendBytes is the last value seen by StorageUsage or Stats.
func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Saves:        s.counters.saves,
		Loads:        s.counters.loads,
		Deletes:      s.counters.deletes,
		CacheHits:    s.counters.hits,
		CacheMisses:  s.counters.misses,
		Errors:       s.counters.errors,
		BackendBytes: s.counters.backendBytes,
		CacheSize:    s.cache.Len(),
		MaxCacheSize: s.cache.capacity,
	}
	if total := st.CacheHits + st.CacheMisses; total > 0 {
		st.HitRate = float64(st.CacheHits) / float64(total)
	}
	return st
}

// Stats refreshes BackendBytes from the backend and returns a snapshot
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if _, err := s.StorageUsage(ctx); err != nil {
		return s.Snapshot(), err
	}
	return s.Snapshot(), nil
}

// ResetStats zeroes the counters; the cache is kept
func (s *Service) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = counters{backendBytes: s.counters.backendBytes}
}
