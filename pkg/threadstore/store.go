// Package threadstore holds the authoritative in-memory conversation state.
// It is the single writer: every other component reads snapshots and
// re-derives its view on change notification. Mutations are atomic under one
// lock and never throw past the store boundary; an unresolvable target is a
// silent no-op because the server stays authoritative.
package threadstore

import (
	"sync"
	"time"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
)

// Mirror receives best-effort side effects of mutations: the current window
// of a thread and the derived inbox preview. Implementations must swallow
// their own failures.
type Mirror interface {
	SaveWindow(threadID string, msgs []models.Message)
	SavePreview(p models.Preview)
}

// Options configures a Store.
type Options struct {
	// MaxMessages bounds the retained window per thread; oldest entries are
	// dropped silently past the bound.
	MaxMessages int
	// Mirror is optional; nil disables offline mirroring.
	Mirror Mirror
}

// Store is the per-conversation message state container.
type Store struct {
	mu      sync.Mutex
	threads map[string][]models.Message
	max     int
	mirror  Mirror

	subMu sync.RWMutex
	subs  []func(threadID string)
}

// New creates a Store. MaxMessages <= 0 falls back to 300.
func New(opts Options) *Store {
	max := opts.MaxMessages
	if max <= 0 {
		max = 300
	}
	return &Store{
		threads: make(map[string][]models.Message),
		max:     max,
		mirror:  opts.Mirror,
	}
}

// Subscribe registers a change listener invoked with the mutated thread id
// after every applied mutation. Listeners run outside the store lock.
func (s *Store) Subscribe(fn func(threadID string)) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

func (s *Store) notify(threadID string) {
	s.subMu.RLock()
	subs := append([]func(string){}, s.subs...)
	s.subMu.RUnlock()
	for _, fn := range subs {
		fn(threadID)
	}
}

// Snapshot returns a deep copy of a thread's current window in arrival
// order. Returns nil for unknown threads.
func (s *Store) Snapshot(threadID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.threads[threadID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(list))
	for i := range list {
		out[i] = list[i].Clone()
	}
	return out
}

// Len reports the current window size of a thread.
func (s *Store) Len(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads[threadID])
}

// ThreadIDs lists the threads currently held.
func (s *Store) ThreadIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.threads))
	for id := range s.threads {
		out = append(out, id)
	}
	return out
}

// SetMessages replaces a thread's contents wholesale (initial hydration).
// The list is truncated to the retention window before storing.
func (s *Store) SetMessages(threadID string, list []models.Message) {
	s.mu.Lock()
	cp := make([]models.Message, len(list))
	for i := range list {
		cp[i] = list[i].Clone()
	}
	if len(cp) > s.max {
		cp = cp[len(cp)-s.max:]
	}
	s.threads[threadID] = cp
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
}

// AddMessage appends a message, or merges it onto an existing entry when any
// identity it carries (messageId, localId, username+timestamp) already
// resolves in the thread. Merging keeps the entry's list position, so a
// server echo collapses onto its optimistic counterpart instead of
// duplicating it. Returns true when the thread changed.
func (s *Store) AddMessage(threadID string, m models.Message) bool {
	s.mu.Lock()
	list := s.threads[threadID]
	ident := models.IdentityOf(&m)
	idx := -1
	for i := range list {
		if ident.Matches(&list[i]) {
			idx = i
			break
		}
	}
	if idx >= 0 {
		merge(&list[idx], &m)
	} else {
		list = append(list, m.Clone())
		if len(list) > s.max {
			list = list[len(list)-s.max:]
		}
	}
	s.threads[threadID] = list
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return true
}

// RemoveMessage drops an entry entirely. Used to roll back an optimistic
// send that failed or timed out. Silent no-op when unresolved.
func (s *Store) RemoveMessage(threadID string, ident models.Identity) bool {
	s.mu.Lock()
	list := s.threads[threadID]
	idx := -1
	for i := range list {
		if ident.Matches(&list[i]) {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.threads[threadID] = append(list[:idx], list[idx+1:]...)
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return true
}

// ClearThread removes one thread entirely.
func (s *Store) ClearThread(threadID string) {
	s.mu.Lock()
	delete(s.threads, threadID)
	s.mu.Unlock()
	s.notify(threadID)
}

// ClearAll removes all threads (logout / app reset).
func (s *Store) ClearAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	s.threads = make(map[string][]models.Message)
	s.mu.Unlock()
	for _, id := range ids {
		s.notify(id)
	}
}

// merge overlays incoming fields onto an existing entry. Fields absent on
// the incoming message do not erase existing ones; messageId is set once and
// never overwritten.
func merge(dst, src *models.Message) {
	if dst.MessageID == "" && src.MessageID != "" {
		dst.MessageID = src.MessageID
		// server identity replaces the local one
		dst.LocalID = ""
	}
	if src.ThreadID != "" {
		dst.ThreadID = src.ThreadID
	}
	if src.UserID != "" {
		dst.UserID = src.UserID
	}
	if src.Username != "" {
		dst.Username = src.Username
	}
	if src.Timestamp != 0 {
		dst.Timestamp = src.Timestamp
	}
	if src.Text != "" {
		dst.Text = src.Text
	}
	if src.Kind != "" {
		dst.Kind = src.Kind
	}
	if src.Media != nil {
		mc := *src.Media
		dst.Media = &mc
	}
	if src.Audio != nil {
		ac := *src.Audio
		dst.Audio = &ac
	}
	if src.ReplyTo != nil {
		rc := *src.ReplyTo
		dst.ReplyTo = &rc
	}
	if src.Reactions != nil {
		dst.Reactions = make(map[string]models.Reaction, len(src.Reactions))
		for k, v := range src.Reactions {
			dst.Reactions[k] = v
		}
	}
	if src.Edited {
		dst.Edited = true
		if src.LastEditedAt != 0 {
			dst.LastEditedAt = src.LastEditedAt
		}
		if len(src.Edits) > 0 {
			dst.Edits = append([]models.Edit(nil), src.Edits...)
		}
	}
	if src.Deleted {
		dst.Tombstone(src.DeletedAt)
	}
}

// sideEffects re-derives the preview and mirrors the window. Caller holds
// the store lock; mirror implementations must not call back into the store.
func (s *Store) sideEffects(threadID string) {
	if s.mirror == nil {
		return
	}
	list := s.threads[threadID]
	cp := make([]models.Message, len(list))
	for i := range list {
		cp[i] = list[i].Clone()
	}
	s.mirror.SaveWindow(threadID, cp)
	if p, ok := models.DerivePreview(threadID, list); ok {
		s.mirror.SavePreview(p)
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }

func debugNoop(op, threadID string, ident models.Identity) {
	logger.Debug("mutation_target_missing", "op", op, "thread", threadID,
		"msg_id", ident.MessageID, "username", ident.Username, "ts", ident.Timestamp.Ms())
}
