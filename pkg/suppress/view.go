package suppress

import (
	"chatsync/pkg/models"
)

// Hidden reports whether a single message is suppressed in the given thread.
// System notices are never suppressed. A message with a missing timestamp is
// not suppressible by window rules (fails open) but remains subject to the
// standing author filter, whose author identity is always known.
func (s *Set) Hidden(threadID string, m *models.Message) bool {
	if m.IsSystem() {
		return false
	}
	k := keyFor(threadID, m.Username)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.filters[k]; ok {
		ts := m.Timestamp.Ms()
		if ts == 0 || ts >= f.CreatedAt {
			return true
		}
	}
	if ts := m.Timestamp.Ms(); ts != 0 && inWindow(s.windows[k], ts) {
		return true
	}
	return false
}

// Visible applies suppression and system-notice collapsing to a thread
// window, returning the render list. This is a presentation pass; the input
// is not mutated.
func (s *Set) Visible(threadID string, msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	var lastNotice *models.Message
	for i := range msgs {
		m := &msgs[i]
		if m.IsSystem() {
			// consecutive identical notices within the tolerance collapse
			if lastNotice != nil && s.noticeToleranceMs > 0 &&
				lastNotice.Text == m.Text &&
				absDiff(lastNotice.Timestamp.Ms(), m.Timestamp.Ms()) <= s.noticeToleranceMs {
				continue
			}
			out = append(out, *m)
			lastNotice = &out[len(out)-1]
			continue
		}
		lastNotice = nil
		if s.Hidden(threadID, m) {
			continue
		}
		out = append(out, *m)
	}
	return out
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
