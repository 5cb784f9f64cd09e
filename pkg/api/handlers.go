package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"chatsync/pkg/httpx"
	"chatsync/pkg/models"
	"chatsync/pkg/reconcile"
	"chatsync/pkg/utils"
)

// handleEvents injects a raw transport event into the engine queue. The
// body is the same JSON shape the websocket feed delivers.
func (rt *Router) handleEvents(w httpx.ResponseWriter, r *httpx.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		utils.JSONError(w, http.StatusBadRequest, "empty body")
		return
	}
	if err := rt.deps.Engine.Queue().TryEnqueue(raw); err != nil {
		if errors.Is(err, reconcile.ErrQueueFull) {
			utils.JSONError(w, http.StatusServiceUnavailable, "queue full")
			return
		}
		utils.JSONError(w, http.StatusServiceUnavailable, "queue closed")
		return
	}
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleThread serves /v1/threads/{id}/messages, /v1/threads/{id}/send and
// /v1/threads/{id}/locate.
func (rt *Router) handleThread(w httpx.ResponseWriter, r *httpx.Request) {
	rest := strings.TrimPrefix(r.Path, "/v1/threads/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		utils.JSONError(w, http.StatusNotFound, "not found")
		return
	}
	threadID, op := parts[0], parts[1]
	switch {
	case op == "messages" && r.Method == http.MethodGet:
		rt.threadMessages(w, r, threadID)
	case op == "send" && r.Method == http.MethodPost:
		rt.threadSend(w, r, threadID)
	case op == "locate" && r.Method == http.MethodPost:
		rt.threadLocate(w, r, threadID)
	default:
		utils.JSONError(w, http.StatusNotFound, "not found")
	}
}

func (rt *Router) threadMessages(w httpx.ResponseWriter, r *httpx.Request, threadID string) {
	msgs := rt.deps.Store.Snapshot(threadID)
	if r.Query.Get("raw") != "1" {
		msgs = rt.deps.Suppress.Visible(threadID, msgs)
	}
	if s := r.Query.Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(msgs) {
			msgs = msgs[len(msgs)-n:]
		}
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
		"threadId": threadID,
		"messages": msgs,
	})
}

func (rt *Router) threadSend(w httpx.ResponseWriter, r *httpx.Request, threadID string) {
	var m models.Message
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid message")
		return
	}
	if m.Username == "" || (m.Text == "" && m.Media == nil && m.Audio == nil) {
		utils.JSONError(w, http.StatusBadRequest, "username and content required")
		return
	}
	localID, submitted := rt.deps.Engine.Send(threadID, m)
	_ = utils.JSONWrite(w, http.StatusAccepted, map[string]interface{}{
		"localId":   localID,
		"submitted": submitted,
	})
}

func (rt *Router) threadLocate(w httpx.ResponseWriter, r *httpx.Request, threadID string) {
	var ident models.Identity
	if err := json.NewDecoder(r.Body).Decode(&ident); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid identity")
		return
	}
	found := false
	if rt.deps.Locator != nil {
		found = rt.deps.Locator.Locate(threadID, ident)
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"located": found})
}

type resolveReq struct {
	Usernames []string `json:"usernames"`
}

// handleResolve derives the canonical conversation key for a direct-message
// pair. Both participants get the same key regardless of argument order.
func (rt *Router) handleResolve(w httpx.ResponseWriter, r *httpx.Request) {
	var req resolveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Usernames) != 2 ||
		req.Usernames[0] == "" || req.Usernames[1] == "" {
		utils.JSONError(w, http.StatusBadRequest, "exactly two usernames required")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
		"threadId": models.DMThreadID(req.Usernames[0], req.Usernames[1]),
	})
}

// handlePreviews merges live previews with cached ones for threads not yet
// hydrated in memory.
func (rt *Router) handlePreviews(w httpx.ResponseWriter, _ *httpx.Request) {
	seen := make(map[string]bool)
	var out []models.Preview
	for _, threadID := range rt.deps.Store.ThreadIDs() {
		if p, ok := models.DerivePreview(threadID, rt.deps.Store.Snapshot(threadID)); ok {
			out = append(out, p)
			seen[threadID] = true
		}
	}
	if rt.deps.Cache != nil {
		for _, p := range rt.deps.Cache.ListPreviews() {
			if !seen[p.ThreadID] {
				out = append(out, p)
			}
		}
	}
	if out == nil {
		out = []models.Preview{}
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"previews": out})
}

type filterReq struct {
	ThreadID  string `json:"threadId"`
	Username  string `json:"username"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// handleFilters manages standing author filters. Removing a filter seeds a
// suppression window covering the filtered span and records a removal.
func (rt *Router) handleFilters(w httpx.ResponseWriter, r *httpx.Request) {
	switch r.Method {
	case http.MethodGet:
		_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{
			"filters":  rt.deps.Suppress.Filters(),
			"removals": rt.deps.Suppress.Removals(),
		})
	case http.MethodPost:
		var req filterReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ThreadID == "" || req.Username == "" {
			utils.JSONError(w, http.StatusBadRequest, "threadId and username required")
			return
		}
		rt.deps.Suppress.AddFilter(req.ThreadID, req.Username, req.CreatedAt)
		_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"status": "created"})
	case http.MethodDelete:
		var req filterReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ThreadID == "" || req.Username == "" {
			utils.JSONError(w, http.StatusBadRequest, "threadId and username required")
			return
		}
		removal, ok := rt.deps.Suppress.RemoveFilter(req.ThreadID, req.Username)
		if !ok {
			utils.JSONError(w, http.StatusNotFound, "filter not found")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]interface{}{"removal": removal})
	default:
		utils.JSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type windowReq struct {
	ThreadID string `json:"threadId"`
	Username string `json:"username"`
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	// Prune also removes the author's retained messages inside the window.
	Prune bool `json:"prune,omitempty"`
}

// handleWindows registers an ad-hoc suppression window for an author.
func (rt *Router) handleWindows(w httpx.ResponseWriter, r *httpx.Request) {
	var req windowReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ThreadID == "" || req.Username == "" || req.End <= req.Start {
		utils.JSONError(w, http.StatusBadRequest, "threadId, username and a non-empty window required")
		return
	}
	rt.deps.Suppress.RegisterWindow(req.ThreadID, req.Username, req.Start, req.End)
	pruned := 0
	if req.Prune {
		pruned = rt.deps.Store.PruneUserMessagesBetween(req.ThreadID, req.Username, req.Start, req.End)
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]interface{}{"status": "created", "pruned": pruned})
}
