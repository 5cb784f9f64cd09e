// Package locator turns reply references and search hits into scroll and
// highlight actions against a virtualized message view. Resolution runs
// against the filtered view the user actually sees, so suppressed or pruned
// targets resolve to nothing and the request is dropped silently.
package locator

import (
	"sync"
	"time"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// ViewFunc returns the currently visible (filtered) messages for a thread.
type ViewFunc func(threadID string) []models.Message

// ScrollFunc moves the viewport so the message at index is on screen.
type ScrollFunc func(threadID string, index int)

// Options configures a Locator.
type Options struct {
	View   ViewFunc
	Scroll ScrollFunc
	// HighlightMs bounds how long a located message stays highlighted.
	HighlightMs int64
}

type window struct {
	start int
	size  int
}

// Locator coordinates scroll-to-message and transient highlighting.
type Locator struct {
	mu        sync.Mutex
	view      ViewFunc
	scroll    ScrollFunc
	highlight time.Duration
	windows   map[string]window
	lit       map[string]models.Identity
	timers    map[string]*time.Timer
}

const fallbackHighlightMs = 1_800

// New creates a Locator. View is required; Scroll may be nil when the
// embedding surface handles its own scrolling.
func New(opts Options) *Locator {
	hl := opts.HighlightMs
	if hl <= 0 {
		hl = fallbackHighlightMs
	}
	return &Locator{
		view:      opts.View,
		scroll:    opts.Scroll,
		highlight: time.Duration(hl) * time.Millisecond,
		windows:   make(map[string]window),
		lit:       make(map[string]models.Identity),
		timers:    make(map[string]*time.Timer),
	}
}

// SetWindow records the range of list indices currently rendered, so
// locating a message already on screen highlights without scrolling.
func (l *Locator) SetWindow(threadID string, start, size int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if size <= 0 {
		delete(l.windows, threadID)
		return
	}
	l.windows[threadID] = window{start: start, size: size}
}

// Locate resolves ident in the thread's visible view and scrolls plus
// highlights it. Unresolvable identities are a silent no-op; the target may
// have been deleted, suppressed, or pruned since the reference was made.
func (l *Locator) Locate(threadID string, ident models.Identity) bool {
	if !ident.Valid() || l.view == nil {
		return false
	}
	msgs := l.view(threadID)
	idx := -1
	for i := range msgs {
		if ident.Matches(&msgs[i]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		logger.Debug("locate_unresolved", "thread", threadID)
		return false
	}

	l.mu.Lock()
	w, onScreen := l.windows[threadID]
	inView := onScreen && idx >= w.start && idx < w.start+w.size
	l.lit[threadID] = ident
	if t := l.timers[threadID]; t != nil {
		t.Stop()
	}
	l.timers[threadID] = time.AfterFunc(l.highlight, func() {
		l.clearHighlight(threadID)
	})
	l.mu.Unlock()

	if !inView && l.scroll != nil {
		l.scroll(threadID, idx)
	}
	return true
}

// Highlighted reports the identity currently highlighted in a thread, if any.
func (l *Locator) Highlighted(threadID string) (models.Identity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ident, ok := l.lit[threadID]
	return ident, ok
}

func (l *Locator) clearHighlight(threadID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lit, threadID)
	delete(l.timers, threadID)
}
