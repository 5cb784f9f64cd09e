package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chatsync/pkg/httpx"
	"chatsync/pkg/locator"
	"chatsync/pkg/models"
	"chatsync/pkg/reconcile"
	"chatsync/pkg/suppress"
	"chatsync/pkg/threadstore"
)

type fixture struct {
	store  *threadstore.Store
	engine *reconcile.Engine
	sup    *suppress.Set
	srv    *httptest.Server
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := threadstore.New(threadstore.Options{})
	sup := suppress.NewSet(3000)
	engine := reconcile.New(store, reconcile.Options{QueueCapacity: 16, SendTimeoutMs: 60_000})

	stop := make(chan struct{})
	engine.Start(stop)
	t.Cleanup(func() { close(stop) })

	loc := locator.New(locator.Options{
		View: func(threadID string) []models.Message {
			return sup.Visible(threadID, store.Snapshot(threadID))
		},
	})

	router := NewRouter(Deps{Store: store, Engine: engine, Suppress: sup, Locator: loc})
	srv := httptest.NewServer(httpx.NetHTTPAdapter(router.Handler()))
	t.Cleanup(srv.Close)
	return &fixture{store: store, engine: engine, sup: sup, srv: srv}
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func waitForLen(t *testing.T, store *threadstore.Store, threadID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for store.Len(threadID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("thread %s never reached %d messages (have %d)", threadID, want, store.Len(threadID))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	res, err := http.Get(f.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %s", res.Status)
	}
}

func TestEventInjectionAndView(t *testing.T) {
	f := setup(t)

	res := postJSON(t, f.srv.URL+"/v1/events", map[string]interface{}{
		"type": "message:new", "threadId": "t1", "messageId": "m1",
		"username": "ana", "timestamp": 100, "text": "hello",
	})
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status: %s", res.Status)
	}
	waitForLen(t, f.store, "t1", 1)

	res2, err := http.Get(f.srv.URL + "/v1/threads/t1/messages")
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Body.Close()
	var out struct {
		ThreadID string           `json:"threadId"`
		Messages []models.Message `json:"messages"`
	}
	if err := json.NewDecoder(res2.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Messages) != 1 || out.Messages[0].Text != "hello" {
		t.Fatalf("view: %+v", out)
	}
}

func TestRawVersusFilteredView(t *testing.T) {
	f := setup(t)
	f.store.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi"})
	f.sup.AddFilter("t1", "ana", 1)

	get := func(url string) int {
		res, err := http.Get(url)
		if err != nil {
			t.Fatal(err)
		}
		defer res.Body.Close()
		var out struct {
			Messages []models.Message `json:"messages"`
		}
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return len(out.Messages)
	}
	if n := get(f.srv.URL + "/v1/threads/t1/messages"); n != 0 {
		t.Fatalf("filtered view should hide: %d", n)
	}
	if n := get(f.srv.URL + "/v1/threads/t1/messages?raw=1"); n != 1 {
		t.Fatalf("raw view should show: %d", n)
	}
}

func TestFilterLifecycleOverHTTP(t *testing.T) {
	f := setup(t)

	res := postJSON(t, f.srv.URL+"/v1/filters", map[string]interface{}{
		"threadId": "t1", "username": "ana", "createdAt": 500,
	})
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %s", res.Status)
	}

	body, _ := json.Marshal(map[string]string{"threadId": "t1", "username": "ana"})
	req, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/v1/filters", bytes.NewReader(body))
	res2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("delete status: %s", res2.Status)
	}
	var out struct {
		Removal suppress.Removal `json:"removal"`
	}
	if err := json.NewDecoder(res2.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Removal.FilteredAt != 500 {
		t.Fatalf("removal: %+v", out.Removal)
	}
	// the removal seeded a window covering the filtered span
	if ws := f.sup.Windows("t1", "ana"); len(ws) != 1 || ws[0].Start != 500 {
		t.Fatalf("windows: %+v", ws)
	}

	// deleting again finds nothing
	req2, _ := http.NewRequest(http.MethodDelete, f.srv.URL+"/v1/filters", bytes.NewReader(body))
	res3, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatal(err)
	}
	res3.Body.Close()
	if res3.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status: %s", res3.Status)
	}
}

func TestWindowRegistrationWithPrune(t *testing.T) {
	f := setup(t)
	f.store.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 150, Text: "burst"})
	f.store.AddMessage("t1", models.Message{MessageID: "m2", Username: "ana", Timestamp: 999, Text: "keep"})

	res := postJSON(t, f.srv.URL+"/v1/windows", map[string]interface{}{
		"threadId": "t1", "username": "ana", "start": 100, "end": 200, "prune": true,
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status: %s", res.Status)
	}
	var out struct {
		Pruned int `json:"pruned"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Pruned != 1 {
		t.Fatalf("pruned: %d", out.Pruned)
	}
	if f.store.Len("t1") != 1 {
		t.Fatalf("store len: %d", f.store.Len("t1"))
	}
}

func TestSendEndpoint(t *testing.T) {
	f := setup(t)
	res := postJSON(t, f.srv.URL+"/v1/threads/t1/send", map[string]interface{}{
		"username": "ana", "text": "hello",
	})
	defer res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("status: %s", res.Status)
	}
	var out struct {
		LocalID   string `json:"localId"`
		Submitted bool   `json:"submitted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.LocalID == "" || !out.Submitted {
		t.Fatalf("send: %+v", out)
	}
	if f.store.Len("t1") != 1 {
		t.Fatal("optimistic entry missing")
	}
}

func TestResolveDMThread(t *testing.T) {
	f := setup(t)

	resolve := func(a, b string) string {
		res := postJSON(t, f.srv.URL+"/v1/threads/resolve", map[string]interface{}{
			"usernames": []string{a, b},
		})
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status: %s", res.Status)
		}
		var out struct {
			ThreadID string `json:"threadId"`
		}
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		return out.ThreadID
	}

	if got := resolve("Bob", "alice"); got != "dm:alice:bob" {
		t.Fatalf("key: %q", got)
	}
	if resolve("alice", "Bob") != resolve("Bob", "alice") {
		t.Fatal("pair key must not depend on argument order")
	}

	res := postJSON(t, f.srv.URL+"/v1/threads/resolve", map[string]interface{}{
		"usernames": []string{"only-one"},
	})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("single username: %s", res.Status)
	}
}

func TestPreviews(t *testing.T) {
	f := setup(t)
	f.store.AddMessage("t1", models.Message{MessageID: "m1", Username: "ana", Timestamp: 100, Text: "hi"})

	res, err := http.Get(f.srv.URL + "/v1/previews")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out struct {
		Previews []models.Preview `json:"previews"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Previews) != 1 || out.Previews[0].Text != "hi" {
		t.Fatalf("previews: %+v", out.Previews)
	}
}

func TestQueueFullReturns503(t *testing.T) {
	store := threadstore.New(threadstore.Options{})
	engine := reconcile.New(store, reconcile.Options{QueueCapacity: 1})
	// no worker started: the queue fills immediately
	router := NewRouter(Deps{Store: store, Engine: engine, Suppress: suppress.NewSet(0)})
	srv := httptest.NewServer(httpx.NetHTTPAdapter(router.Handler()))
	defer srv.Close()

	ev := map[string]interface{}{"type": "message:new", "threadId": "t1", "messageId": "m1"}
	res1 := postJSON(t, srv.URL+"/v1/events", ev)
	res1.Body.Close()
	if res1.StatusCode != http.StatusAccepted {
		t.Fatalf("first: %s", res1.Status)
	}
	res2 := postJSON(t, srv.URL+"/v1/events", ev)
	res2.Body.Close()
	if res2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("second: %s", res2.Status)
	}
}
