package cache

import (
	"testing"

	"chatsync/pkg/models"
)

func openTestBridge(t *testing.T) *Bridge {
	t.Helper()
	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestWindowRoundTrip(t *testing.T) {
	b := openTestBridge(t)

	msgs := []models.Message{
		{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi"},
		{MessageID: "m2", Username: "bob", Timestamp: 200, Text: "yo", Media: &models.Media{URL: "pic"}},
	}
	b.SaveWindow("t1", msgs)
	b.FlushDirty()

	got := b.LoadWindow("t1")
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if got[0].MessageID != "m1" || got[1].Media == nil || got[1].Media.URL != "pic" {
		t.Fatalf("round trip mangled: %+v", got)
	}
}

func TestLoadMissingWindowIsNil(t *testing.T) {
	b := openTestBridge(t)
	if got := b.LoadWindow("absent"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestPreviewsRoundTrip(t *testing.T) {
	b := openTestBridge(t)
	b.SavePreview(models.Preview{ThreadID: "t1", Username: "ana", Text: "hi", Timestamp: 100})
	b.SavePreview(models.Preview{ThreadID: "t2", Username: "bob", Text: "yo", Timestamp: 200})
	b.FlushDirty()

	got := b.ListPreviews()
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	seen := map[string]string{}
	for _, p := range got {
		seen[p.ThreadID] = p.Text
	}
	if seen["t1"] != "hi" || seen["t2"] != "yo" {
		t.Fatalf("previews: %+v", seen)
	}
}

func TestBurstWritesCoalesce(t *testing.T) {
	b := openTestBridge(t)
	// well past the limiter burst; later snapshots must win after flush
	for i := 0; i < 50; i++ {
		b.SaveWindow("t1", []models.Message{{MessageID: "m", Username: "ana", Timestamp: models.Timestamp(i)}})
	}
	b.FlushDirty()
	got := b.LoadWindow("t1")
	if len(got) != 1 || got[0].Timestamp != 49 {
		t.Fatalf("latest snapshot lost: %+v", got)
	}
}

func TestClosedBridgeSwallowsOperations(t *testing.T) {
	b, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// none of these may panic or error after close
	b.SaveWindow("t1", []models.Message{{MessageID: "m1"}})
	b.SavePreview(models.Preview{ThreadID: "t1"})
	b.FlushDirty()
	if got := b.LoadWindow("t1"); got != nil {
		t.Fatalf("expected nil after close, got %+v", got)
	}
	if got := b.ListPreviews(); got != nil {
		t.Fatalf("expected nil after close, got %+v", got)
	}
}
