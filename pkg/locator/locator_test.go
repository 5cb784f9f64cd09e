package locator

import (
	"testing"
	"time"

	"chatsync/pkg/models"
)

func fixedView(msgs []models.Message) ViewFunc {
	return func(string) []models.Message { return msgs }
}

func TestLocateScrollsWhenOffScreen(t *testing.T) {
	msgs := []models.Message{
		{MessageID: "m1", Username: "ana", Timestamp: 1},
		{MessageID: "m2", Username: "bob", Timestamp: 2},
		{MessageID: "m3", Username: "cal", Timestamp: 3},
	}
	var scrolledTo []int
	l := New(Options{
		View:   fixedView(msgs),
		Scroll: func(_ string, idx int) { scrolledTo = append(scrolledTo, idx) },
	})
	l.SetWindow("t1", 0, 2)

	if !l.Locate("t1", models.ByID("m3")) {
		t.Fatal("locate failed")
	}
	if len(scrolledTo) != 1 || scrolledTo[0] != 2 {
		t.Fatalf("scroll calls: %v", scrolledTo)
	}
	if _, lit := l.Highlighted("t1"); !lit {
		t.Fatal("target not highlighted")
	}
}

func TestLocateSkipsScrollWhenInWindow(t *testing.T) {
	msgs := []models.Message{
		{MessageID: "m1", Username: "ana", Timestamp: 1},
		{MessageID: "m2", Username: "bob", Timestamp: 2},
	}
	scrolls := 0
	l := New(Options{
		View:   fixedView(msgs),
		Scroll: func(string, int) { scrolls++ },
	})
	l.SetWindow("t1", 0, 2)

	if !l.Locate("t1", models.ByID("m2")) {
		t.Fatal("locate failed")
	}
	if scrolls != 0 {
		t.Fatal("must not scroll to a message already on screen")
	}
	if _, lit := l.Highlighted("t1"); !lit {
		t.Fatal("in-window target still highlights")
	}
}

func TestLocateUnresolvedIsNoop(t *testing.T) {
	scrolls := 0
	l := New(Options{
		View:   fixedView([]models.Message{{MessageID: "m1", Username: "ana", Timestamp: 1}}),
		Scroll: func(string, int) { scrolls++ },
	})
	if l.Locate("t1", models.ByID("missing")) {
		t.Fatal("unknown target must not locate")
	}
	if l.Locate("t1", models.Identity{}) {
		t.Fatal("invalid identity must not locate")
	}
	if scrolls != 0 {
		t.Fatal("no-op must not scroll")
	}
	if _, lit := l.Highlighted("t1"); lit {
		t.Fatal("no-op must not highlight")
	}
}

func TestHighlightExpires(t *testing.T) {
	l := New(Options{
		View:        fixedView([]models.Message{{MessageID: "m1", Username: "ana", Timestamp: 1}}),
		HighlightMs: 20,
	})
	if !l.Locate("t1", models.ByID("m1")) {
		t.Fatal("locate failed")
	}
	if _, lit := l.Highlighted("t1"); !lit {
		t.Fatal("expected highlight")
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, lit := l.Highlighted("t1"); !lit {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("highlight never expired")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLocateByLegacyIdentity(t *testing.T) {
	l := New(Options{
		View: fixedView([]models.Message{{MessageID: "m1", Username: "Ana", Timestamp: 777}}),
	})
	if !l.Locate("t1", models.ByUserTimestamp("ana", 777)) {
		t.Fatal("legacy identity should resolve")
	}
}
