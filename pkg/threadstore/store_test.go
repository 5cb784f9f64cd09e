package threadstore

import (
	"fmt"
	"testing"

	"chatsync/pkg/models"
)

func newStore(max int) *Store {
	return New(Options{MaxMessages: max})
}

func TestAddMessageIdempotent(t *testing.T) {
	s := newStore(0)
	m := models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi"}
	s.AddMessage("t1", m)
	s.AddMessage("t1", m)
	s.AddMessage("t1", m)
	if got := s.Len("t1"); got != 1 {
		t.Fatalf("redelivery duplicated: len=%d", got)
	}
}

func TestOptimisticEchoCollapse(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{LocalID: "l1", Username: "ana", Timestamp: 100, Text: "hi"})
	s.AddMessage("t1", models.Message{MessageID: "m0", Username: "bob", Timestamp: 90, Text: "other"})

	// server echo carries both ids; must merge onto the optimistic entry
	s.AddMessage("t1", models.Message{MessageID: "m1", LocalID: "l1", Username: "ana", Timestamp: 100, Text: "hi"})

	msgs := s.Snapshot("t1")
	if len(msgs) != 2 {
		t.Fatalf("echo duplicated: len=%d", len(msgs))
	}
	got := msgs[0]
	if got.MessageID != "m1" {
		t.Fatalf("server id not adopted: %+v", got)
	}
	if got.LocalID != "" {
		t.Fatal("local id must be cleared on confirm")
	}
	// position preserved: optimistic entry was first, stays first
	if msgs[1].MessageID != "m0" {
		t.Fatal("merge changed list order")
	}
}

func TestMessageIDSetOnce(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi"})
	// a buggy producer re-sends with matching (username, ts) but a new id;
	// the legacy identity resolves the entry and the original id must win
	s.AddMessage("t1", models.Message{Username: "ana", Timestamp: 100, Text: "hi again"})
	msgs := s.Snapshot("t1")
	if len(msgs) != 1 || msgs[0].MessageID != "m1" {
		t.Fatalf("unexpected state: %+v", msgs)
	}
	if msgs[0].Text != "hi again" {
		t.Fatal("non-identity fields should merge")
	}
}

func TestRetentionWindow(t *testing.T) {
	s := newStore(5)
	for i := 0; i < 12; i++ {
		s.AddMessage("t1", models.Message{MessageID: fmt.Sprintf("m%d", i), Username: "ana", Timestamp: models.Timestamp(i + 1), Text: "x"})
	}
	msgs := s.Snapshot("t1")
	if len(msgs) != 5 {
		t.Fatalf("window not bounded: len=%d", len(msgs))
	}
	if msgs[0].MessageID != "m7" || msgs[4].MessageID != "m11" {
		t.Fatalf("oldest not dropped: first=%s last=%s", msgs[0].MessageID, msgs[4].MessageID)
	}
}

func TestEditRecordsHistory(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "first"})
	if !s.EditMessageByID("t1", "m1", "second", 200) {
		t.Fatal("edit failed")
	}
	if !s.EditMessageLegacy("t1", 100, "ANA", "third", 300) {
		t.Fatal("legacy edit failed")
	}
	m := s.Snapshot("t1")[0]
	if m.Text != "third" || !m.Edited || m.LastEditedAt != 300 {
		t.Fatalf("edit state: %+v", m)
	}
	if len(m.Edits) != 2 || m.Edits[0].PreviousText != "first" || m.Edits[1].PreviousText != "second" {
		t.Fatalf("history: %+v", m.Edits)
	}
}

func TestEditRedeliveryIsNoop(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "first"})
	if !s.EditMessageByID("t1", "m1", "second", 200) {
		t.Fatal("edit failed")
	}
	if s.EditMessageByID("t1", "m1", "second", 200) {
		t.Fatal("redelivered edit must be a no-op")
	}
	m := s.Snapshot("t1")[0]
	if len(m.Edits) != 1 {
		t.Fatalf("redelivery duplicated history: %+v", m.Edits)
	}
	if m.Text != "second" || m.LastEditedAt != 200 {
		t.Fatalf("edit state: %+v", m)
	}
}

func TestEditUnknownTargetIsNoop(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi"})
	if s.EditMessageByID("t1", "nope", "x", 0) {
		t.Fatal("edit of unknown id must be a no-op")
	}
	if s.Snapshot("t1")[0].Text != "hi" {
		t.Fatal("no-op mutated state")
	}
}

func TestDeleteCascadesToReplySnapshots(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "original", Media: &models.Media{URL: "pic"}})
	s.AddMessage("t1", models.Message{
		MessageID: "m2", Username: "bob", Timestamp: 200, Text: "reply",
		ReplyTo: &models.ReplySnapshot{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "original", Media: &models.Media{URL: "pic"}},
	})
	// second reply addressed only by (username, timestamp)
	s.AddMessage("t1", models.Message{
		MessageID: "m3", Username: "cal", Timestamp: 300, Text: "me too",
		ReplyTo: &models.ReplySnapshot{Username: "ana", Timestamp: 100, Text: "original"},
	})

	if !s.MarkDeletedByID("t1", "m1", 999) {
		t.Fatal("delete failed")
	}

	msgs := s.Snapshot("t1")
	if !msgs[0].Deleted || msgs[0].Text != "" || msgs[0].Media != nil {
		t.Fatalf("tombstone incomplete: %+v", msgs[0])
	}
	for _, m := range msgs[1:] {
		r := m.ReplyTo
		if r == nil || !r.Deleted || r.Text != "" || r.Media != nil {
			t.Fatalf("snapshot not cascaded on %s: %+v", m.MessageID, r)
		}
		if r.DeletedAt != 999 {
			t.Fatalf("deletedAt not propagated: %+v", r)
		}
	}
	// the reply messages themselves stay intact
	if msgs[1].Text != "reply" || msgs[2].Text != "me too" {
		t.Fatal("cascade must not touch reply bodies")
	}
}

func TestReactionsReplacedWholesale(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi",
		Reactions: map[string]models.Reaction{"u1": {Emoji: "❤️", At: 1, UserID: "u1"}}})

	s.UpdateReactionsByID("t1", "m1", map[string]models.Reaction{
		"u2": {Emoji: "😂", At: 2, UserID: "u2"},
	})
	m := s.Snapshot("t1")[0]
	if len(m.Reactions) != 1 {
		t.Fatalf("reactions not replaced: %+v", m.Reactions)
	}
	if _, ok := m.Reactions["u1"]; ok {
		t.Fatal("stale reaction survived wholesale replacement")
	}

	// nil clears to empty, not nil (server says "none")
	s.UpdateReactionsLegacy("t1", 100, "ana", nil)
	m = s.Snapshot("t1")[0]
	if m.Reactions == nil || len(m.Reactions) != 0 {
		t.Fatalf("nil update should clear: %+v", m.Reactions)
	}
}

func TestPruneUserMessagesBetween(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "keep"})
	s.AddMessage("t1", models.Message{MessageID: "m2", Username: "Ana", Timestamp: 150, Text: "drop"})
	s.AddMessage("t1", models.Message{MessageID: "m3", Username: "bob", Timestamp: 160, Text: "keep"})
	s.AddMessage("t1", models.Message{MessageID: "m4", Username: "ana", Timestamp: 200, Text: "keep, end exclusive"})

	n := s.PruneUserMessagesBetween("t1", "ANA", 150, 200)
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	for _, m := range s.Snapshot("t1") {
		if m.MessageID == "m2" {
			t.Fatal("m2 should be gone")
		}
	}
	if s.Len("t1") != 3 {
		t.Fatalf("len=%d", s.Len("t1"))
	}
}

func TestSetAudioDurationPatchesSnapshots(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Kind: models.KindAudio, Audio: &models.Audio{URL: "a.ogg"}})
	s.AddMessage("t1", models.Message{
		MessageID: "m2", Username: "bob", Timestamp: 200, Text: "re",
		ReplyTo: &models.ReplySnapshot{MessageID: "m1", Kind: models.KindAudio, Text: "voice", Audio: &models.Audio{URL: "a.ogg"}},
	})

	if !s.SetAudioDuration("t1", models.ByID("m1"), 4200) {
		t.Fatal("patch failed")
	}
	msgs := s.Snapshot("t1")
	if msgs[0].Audio.DurationMs != 4200 {
		t.Fatalf("duration not set: %+v", msgs[0].Audio)
	}
	if msgs[1].ReplyTo.Audio.DurationMs != 4200 {
		t.Fatalf("snapshot not patched: %+v", msgs[1].ReplyTo.Audio)
	}
}

func TestBackfillReplies(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "original"})
	s.AddMessage("t1", models.Message{
		MessageID: "m2", Username: "bob", Timestamp: 200, Text: "re",
		ReplyTo: &models.ReplySnapshot{MessageID: "m1"},
	})
	n := s.BackfillReplies("t1")
	if n != 1 {
		t.Fatalf("backfilled %d, want 1", n)
	}
	if got := s.Snapshot("t1")[1].ReplyTo.Text; got != "original" {
		t.Fatalf("snapshot text: %q", got)
	}
}

func TestSubscribeNotifies(t *testing.T) {
	s := newStore(0)
	var seen []string
	s.Subscribe(func(threadID string) { seen = append(seen, threadID) })
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 1, Text: "x"})
	s.MarkDeletedByID("t1", "m1", 2)
	s.ClearThread("t1")
	if len(seen) != 3 {
		t.Fatalf("notifications: %v", seen)
	}
}

func TestSnapshotIsIsolated(t *testing.T) {
	s := newStore(0)
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 1, Text: "x", Media: &models.Media{URL: "u"}})
	snap := s.Snapshot("t1")
	snap[0].Text = "mutated"
	snap[0].Media.URL = "mutated"
	fresh := s.Snapshot("t1")
	if fresh[0].Text != "x" || fresh[0].Media.URL != "u" {
		t.Fatal("snapshot shares memory with store")
	}
}

type recordingMirror struct {
	windows  map[string]int
	previews []models.Preview
}

func (r *recordingMirror) SaveWindow(threadID string, msgs []models.Message) {
	if r.windows == nil {
		r.windows = map[string]int{}
	}
	r.windows[threadID] = len(msgs)
}

func (r *recordingMirror) SavePreview(p models.Preview) { r.previews = append(r.previews, p) }

func TestMirrorSideEffects(t *testing.T) {
	mir := &recordingMirror{}
	s := New(Options{Mirror: mir})
	s.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 1, Text: "hello"})
	if mir.windows["t1"] != 1 {
		t.Fatalf("window not mirrored: %+v", mir.windows)
	}
	if len(mir.previews) == 0 || mir.previews[len(mir.previews)-1].Text != "hello" {
		t.Fatalf("preview not mirrored: %+v", mir.previews)
	}
}

// Full lifecycle: optimistic send, echo, edit, reaction, delete with reply
// cascade, all against one thread.
func TestThreadLifecycle(t *testing.T) {
	s := newStore(0)

	s.AddMessage("t1", models.Message{LocalID: "l1", Username: "ana", Timestamp: 100, Text: "hey"})
	s.AddMessage("t1", models.Message{MessageID: "m1", LocalID: "l1", Username: "ana", Timestamp: 100, Text: "hey"})
	s.AddMessage("t1", models.Message{
		MessageID: "m2", Username: "bob", Timestamp: 200, Text: "hey back",
		ReplyTo: &models.ReplySnapshot{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hey"},
	})
	s.EditMessageByID("t1", "m2", "hey back!", 250)
	s.UpdateReactionsByID("t1", "m2", map[string]models.Reaction{"ana": {Emoji: "❤️", At: 260, UserID: "ana"}})
	s.MarkDeletedByID("t1", "m1", 300)

	msgs := s.Snapshot("t1")
	if len(msgs) != 2 {
		t.Fatalf("len=%d", len(msgs))
	}
	first, second := msgs[0], msgs[1]
	if !first.Deleted || first.Text != "" {
		t.Fatalf("first: %+v", first)
	}
	if second.Text != "hey back!" || !second.Edited || len(second.Reactions) != 1 {
		t.Fatalf("second: %+v", second)
	}
	if !second.ReplyTo.Deleted || second.ReplyTo.Text != "" {
		t.Fatalf("reply snapshot: %+v", second.ReplyTo)
	}
}
