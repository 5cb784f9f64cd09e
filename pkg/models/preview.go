package models

import (
	"sort"
	"strings"
)

// Preview is the lightweight inbox-list summary derived from the latest
// non-system, non-deleted message of a thread.
type Preview struct {
	ThreadID  string           `json:"threadId"`
	Username  string           `json:"username,omitempty"`
	Text      string           `json:"text"`
	Kind      Kind             `json:"kind,omitempty"`
	Timestamp Timestamp        `json:"timestamp,omitempty"`
	Media     *Media           `json:"media,omitempty"`
	Reactions *ReactionSummary `json:"reactions,omitempty"`
}

// DerivePreview scans from the newest end for the first non-system,
// non-deleted message. Returns false when the thread has nothing to show.
func DerivePreview(threadID string, msgs []Message) (Preview, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := &msgs[i]
		if m.Deleted || m.IsSystem() {
			continue
		}
		var reactions *ReactionSummary
		if len(m.Reactions) > 0 {
			sum := SummarizeReactions(m.Reactions)
			reactions = &sum
		}
		return Preview{
			ThreadID:  threadID,
			Username:  m.Username,
			Text:      m.Text,
			Kind:      m.Kind,
			Timestamp: m.Timestamp,
			Media:     m.Media,
			Reactions: reactions,
		}, true
	}
	return Preview{}, false
}

// ReactionSummary is the render-side digest of a reactions map.
type ReactionSummary struct {
	TotalCount int       `json:"totalCount"`
	MostRecent *Reaction `json:"mostRecent,omitempty"`
}

// SummarizeReactions counts entries and picks the most recent by At.
func SummarizeReactions(reactions map[string]Reaction) ReactionSummary {
	out := ReactionSummary{TotalCount: len(reactions)}
	for _, r := range reactions {
		if out.MostRecent == nil || r.At > out.MostRecent.At {
			rc := r
			out.MostRecent = &rc
		}
	}
	return out
}

// DMThreadID derives the conversation key for a direct-message pair. The
// pair is ordered so both participants derive the same key.
func DMThreadID(a, b string) string {
	users := []string{strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))}
	sort.Strings(users)
	return "dm:" + users[0] + ":" + users[1]
}
