package suppress

import (
	"time"
)

// Filter is a standing per-author hide rule: every non-system message by the
// author with timestamp >= CreatedAt is hidden.
type Filter struct {
	ThreadID  string `json:"threadId"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt"`
}

// Removal records a lifted filter. The previously filtered burst stays
// hidden via the suppression window the removal seeds, rather than suddenly
// reappearing. Removals expire on a retention schedule.
type Removal struct {
	ThreadID   string `json:"threadId"`
	Username   string `json:"username"`
	FilteredAt int64  `json:"filteredAt"`
	RemovedAt  int64  `json:"removedAt"`
}

// AddFilter installs (or refreshes) a standing filter. createdAtMs <= 0
// means "now".
func (s *Set) AddFilter(threadID, username string, createdAtMs int64) {
	if username == "" {
		return
	}
	if createdAtMs <= 0 {
		createdAtMs = time.Now().UnixMilli()
	}
	k := keyFor(threadID, username)
	s.mu.Lock()
	if _, exists := s.filters[k]; !exists {
		s.filters[k] = Filter{ThreadID: threadID, Username: username, CreatedAt: createdAtMs}
	}
	s.mu.Unlock()
}

// RemoveFilter lifts a standing filter. The filtered range
// [filteredAt, removedAt) is registered as a suppression window and a
// removal record is kept so the hide can later be confirmed as a permanent
// prune or expired. Returns the removal record and whether a filter existed.
func (s *Set) RemoveFilter(threadID, username string) (Removal, bool) {
	k := keyFor(threadID, username)
	now := time.Now().UnixMilli()
	s.mu.Lock()
	f, ok := s.filters[k]
	if !ok {
		s.mu.Unlock()
		return Removal{}, false
	}
	delete(s.filters, k)
	r := Removal{ThreadID: threadID, Username: username, FilteredAt: f.CreatedAt, RemovedAt: now}
	s.removals = append(s.removals, r)
	s.windows[k] = mergeWindows(append(s.windows[k], Window{Start: f.CreatedAt, End: now}))
	s.mu.Unlock()
	return r, true
}

// Filters returns a copy of the standing filters.
func (s *Set) Filters() []Filter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Filter, 0, len(s.filters))
	for _, f := range s.filters {
		out = append(out, f)
	}
	return out
}

// Removals returns a copy of the retained removal records.
func (s *Set) Removals() []Removal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Removal(nil), s.removals...)
}

// ExpireRemovals drops removal records older than cutoffMs and returns how
// many were dropped.
func (s *Set) ExpireRemovals(cutoffMs int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.removals[:0]
	dropped := 0
	for _, r := range s.removals {
		if r.RemovedAt < cutoffMs {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	s.removals = kept
	return dropped
}
