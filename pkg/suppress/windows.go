// Package suppress computes which messages are hidden from the rendered
// view: standing per-author filters (hide from creation time forward) and
// ad-hoc time windows that retroactively hide a past burst without touching
// stored data. It is a read-time filter over the thread store's output, not
// a second copy of the data.
package suppress

import (
	"sort"
	"strings"
	"sync"
)

// Window is a half-open [Start, End) millisecond range.
type Window struct {
	Start int64 `json:"startMs"`
	End   int64 `json:"endMs"`
}

type authorKey struct {
	threadID string
	username string
}

func keyFor(threadID, username string) authorKey {
	return authorKey{threadID: threadID, username: strings.ToLower(strings.TrimSpace(username))}
}

// Set holds all suppression state. Safe for concurrent use.
type Set struct {
	mu       sync.RWMutex
	windows  map[authorKey][]Window
	filters  map[authorKey]Filter
	removals []Removal

	// noticeToleranceMs collapses identical consecutive system notices
	// closer together than this. Zero disables collapsing.
	noticeToleranceMs int64
}

// NewSet creates an empty suppression set.
func NewSet(noticeToleranceMs int64) *Set {
	return &Set{
		windows:           make(map[authorKey][]Window),
		filters:           make(map[authorKey]Filter),
		noticeToleranceMs: noticeToleranceMs,
	}
}

// RegisterWindow merges a new [startMs, endMs) window into the author's
// window set. Overlapping and adjacent windows coalesce; the set stays
// sorted by start time.
func (s *Set) RegisterWindow(threadID, username string, startMs, endMs int64) {
	if endMs <= startMs || username == "" {
		return
	}
	k := keyFor(threadID, username)
	s.mu.Lock()
	s.windows[k] = mergeWindows(append(s.windows[k], Window{Start: startMs, End: endMs}))
	s.mu.Unlock()
}

// Windows returns a copy of the merged windows for an author.
func (s *Set) Windows(threadID, username string) []Window {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Window(nil), s.windows[keyFor(threadID, username)]...)
}

// DropWindowsBefore discards windows that end at or before cutoffMs.
// Called by the janitor together with removal expiry.
func (s *Set) DropWindowsBefore(cutoffMs int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for k, ws := range s.windows {
		kept := ws[:0]
		for _, w := range ws {
			if w.End <= cutoffMs {
				dropped++
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 {
			delete(s.windows, k)
		} else {
			s.windows[k] = kept
		}
	}
	return dropped
}

// mergeWindows sorts by start and coalesces overlapping/adjacent ranges.
func mergeWindows(ws []Window) []Window {
	if len(ws) < 2 {
		return ws
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].Start < ws[j].Start })
	out := ws[:1]
	for _, w := range ws[1:] {
		last := &out[len(out)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

// inWindow reports whether tsMs falls in any of the author's windows.
func inWindow(ws []Window, tsMs int64) bool {
	for _, w := range ws {
		if tsMs >= w.Start && tsMs < w.End {
			return true
		}
	}
	return false
}
