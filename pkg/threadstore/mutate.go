package threadstore

import (
	"strings"

	"chatsync/pkg/models"
)

// find locates a message index by identity. Caller holds the lock.
func (s *Store) find(threadID string, ident models.Identity) int {
	list := s.threads[threadID]
	for i := range list {
		if ident.Matches(&list[i]) {
			return i
		}
	}
	return -1
}

// EditMessageByID replaces a message's text by server id, recording the
// prior text in the edit history. editedAtMs <= 0 means "now" (optimistic);
// a server-confirmed timestamp later reconciles the same field.
func (s *Store) EditMessageByID(threadID, messageID, newText string, editedAtMs int64) bool {
	return s.edit(threadID, models.ByID(messageID), newText, editedAtMs)
}

// EditMessageLegacy is the (timestamp, username) addressed variant used by
// events that predate server ids.
func (s *Store) EditMessageLegacy(threadID string, ts models.Timestamp, username, newText string, editedAtMs int64) bool {
	return s.edit(threadID, models.ByUserTimestamp(username, ts), newText, editedAtMs)
}

func (s *Store) edit(threadID string, ident models.Identity, newText string, editedAtMs int64) bool {
	if editedAtMs <= 0 {
		editedAtMs = nowMs()
	}
	s.mu.Lock()
	idx := s.find(threadID, ident)
	if idx < 0 {
		s.mu.Unlock()
		debugNoop("edit", threadID, ident)
		return false
	}
	m := &s.threads[threadID][idx]
	// redelivered edit: the text and edit time already match, so appending
	// to history again would duplicate the entry
	if m.Edited && m.Text == newText && m.LastEditedAt == editedAtMs {
		s.mu.Unlock()
		return false
	}
	m.Edits = append(m.Edits, models.Edit{PreviousText: m.Text, EditedAt: editedAtMs})
	m.Text = newText
	m.Edited = true
	m.LastEditedAt = editedAtMs
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return true
}

// MarkDeletedByID tombstones a message and patches every reply snapshot in
// the thread that references it. Both effects happen atomically in one store
// call: a reply preview of a deleted message must not retain the original
// payload.
func (s *Store) MarkDeletedByID(threadID, messageID string, deletedAtMs int64) bool {
	return s.markDeleted(threadID, models.ByID(messageID), deletedAtMs)
}

// MarkDeletedLegacy is the (timestamp, username) addressed variant.
func (s *Store) MarkDeletedLegacy(threadID string, ts models.Timestamp, username string, deletedAtMs int64) bool {
	return s.markDeleted(threadID, models.ByUserTimestamp(username, ts), deletedAtMs)
}

func (s *Store) markDeleted(threadID string, ident models.Identity, deletedAtMs int64) bool {
	if deletedAtMs <= 0 {
		deletedAtMs = nowMs()
	}
	s.mu.Lock()
	idx := s.find(threadID, ident)
	if idx < 0 {
		s.mu.Unlock()
		debugNoop("delete", threadID, ident)
		return false
	}
	list := s.threads[threadID]
	target := &list[idx]
	// widen the identity with what the target itself carries so snapshots
	// that only hold (username, timestamp) still match
	full := models.IdentityOf(target)
	if ident.MessageID != "" {
		full.MessageID = ident.MessageID
	}
	target.Tombstone(deletedAtMs)
	for i := range list {
		r := list[i].ReplyTo
		if r == nil || r.Deleted {
			continue
		}
		if full.MatchesSnapshot(r) || ident.MatchesSnapshot(r) {
			r.Text = ""
			r.Media = nil
			r.Audio = nil
			r.Deleted = true
			r.DeletedAt = deletedAtMs
		}
	}
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return true
}

// UpdateReactionsByID replaces a message's reactions map wholesale; the
// server owns toggle semantics and the client mirrors the full set.
func (s *Store) UpdateReactionsByID(threadID, messageID string, reactions map[string]models.Reaction) bool {
	return s.updateReactions(threadID, models.ByID(messageID), reactions)
}

// UpdateReactionsLegacy is the (timestamp, username) addressed variant.
func (s *Store) UpdateReactionsLegacy(threadID string, ts models.Timestamp, username string, reactions map[string]models.Reaction) bool {
	return s.updateReactions(threadID, models.ByUserTimestamp(username, ts), reactions)
}

func (s *Store) updateReactions(threadID string, ident models.Identity, reactions map[string]models.Reaction) bool {
	s.mu.Lock()
	idx := s.find(threadID, ident)
	if idx < 0 {
		s.mu.Unlock()
		debugNoop("reactions", threadID, ident)
		return false
	}
	m := &s.threads[threadID][idx]
	if reactions == nil {
		m.Reactions = map[string]models.Reaction{}
	} else {
		m.Reactions = make(map[string]models.Reaction, len(reactions))
		for k, v := range reactions {
			m.Reactions[k] = v
		}
	}
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return true
}

// PruneUserMessagesBetween fully removes (not tombstones) one author's
// messages with timestamp in [startMs, endMs). Used when a retroactively
// hidden burst is confirmed forgotten, as opposed to the live suppression
// window which only hides.
func (s *Store) PruneUserMessagesBetween(threadID, username string, startMs, endMs int64) int {
	s.mu.Lock()
	list := s.threads[threadID]
	kept := list[:0]
	removed := 0
	for i := range list {
		m := &list[i]
		ts := m.Timestamp.Ms()
		if strings.EqualFold(m.Username, username) && ts >= startMs && ts < endMs {
			removed++
			continue
		}
		kept = append(kept, *m)
	}
	if removed == 0 {
		s.mu.Unlock()
		return 0
	}
	s.threads[threadID] = kept
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return removed
}

// SetAudioDuration patches a voice note's duration once known client-side
// after decode, and mirrors the deletion-cascade pattern by patching reply
// snapshots that reference the same message.
func (s *Store) SetAudioDuration(threadID string, ident models.Identity, durationMs int64) bool {
	s.mu.Lock()
	idx := s.find(threadID, ident)
	if idx < 0 {
		s.mu.Unlock()
		debugNoop("audio_duration", threadID, ident)
		return false
	}
	list := s.threads[threadID]
	target := &list[idx]
	if target.Audio == nil {
		s.mu.Unlock()
		return false
	}
	target.Audio.DurationMs = durationMs
	full := models.IdentityOf(target)
	for i := range list {
		r := list[i].ReplyTo
		if r == nil || r.Audio == nil {
			continue
		}
		if full.MatchesSnapshot(r) || ident.MatchesSnapshot(r) {
			r.Audio.DurationMs = durationMs
		}
	}
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return true
}

// BackfillReplies re-resolves reply snapshots with empty text against the
// thread's current contents. Returns the number of snapshots patched.
func (s *Store) BackfillReplies(threadID string) int {
	s.mu.Lock()
	list := s.threads[threadID]
	patched := 0
	for i := range list {
		r := list[i].ReplyTo
		if r == nil || r.Deleted || r.Text != "" {
			continue
		}
		ident := models.Identity{MessageID: r.MessageID, Username: r.Username, Timestamp: r.Timestamp}
		if !ident.Valid() {
			continue
		}
		idx := s.find(threadID, ident)
		if idx < 0 {
			continue
		}
		orig := &list[idx]
		if orig.Deleted {
			r.Deleted = true
			r.DeletedAt = orig.DeletedAt
			patched++
			continue
		}
		r.Text = orig.Text
		if r.Kind == "" {
			r.Kind = orig.Kind
		}
		if r.Media == nil && orig.Media != nil {
			mc := *orig.Media
			r.Media = &mc
		}
		if r.Audio == nil && orig.Audio != nil {
			ac := *orig.Audio
			r.Audio = &ac
		}
		patched++
	}
	if patched == 0 {
		s.mu.Unlock()
		return 0
	}
	s.sideEffects(threadID)
	s.mu.Unlock()
	s.notify(threadID)
	return patched
}
