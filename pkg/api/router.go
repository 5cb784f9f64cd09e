// Package api exposes the sync core over a small inspection and injection
// HTTP surface: event injection, rendered thread views, inbox previews, and
// suppression management.
package api

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatsync/pkg/cache"
	"chatsync/pkg/httpx"
	"chatsync/pkg/locator"
	"chatsync/pkg/reconcile"
	"chatsync/pkg/suppress"
	"chatsync/pkg/threadstore"
	"chatsync/pkg/utils"
)

// Deps carries the wired components handlers operate on.
type Deps struct {
	Store    *threadstore.Store
	Engine   *reconcile.Engine
	Suppress *suppress.Set
	Locator  *locator.Locator
	Cache    *cache.Bridge
}

// Router dispatches requests to handlers. Paths are matched manually; the
// surface is small enough that a mux dependency buys nothing.
type Router struct {
	deps    Deps
	metrics http.Handler
}

// NewRouter builds the router for the given components.
func NewRouter(deps Deps) *Router {
	return &Router{deps: deps, metrics: promhttp.Handler()}
}

// Handler returns the engine-independent entry point.
func (rt *Router) Handler() httpx.HandlerFunc {
	return func(w httpx.ResponseWriter, r *httpx.Request) {
		switch {
		case r.Path == "/healthz":
			rt.handleHealthz(w, r)
		case r.Path == "/metrics":
			rt.handleMetrics(w, r)
		case r.Path == "/v1/events" && r.Method == http.MethodPost:
			rt.handleEvents(w, r)
		case r.Path == "/v1/previews" && r.Method == http.MethodGet:
			rt.handlePreviews(w, r)
		case r.Path == "/v1/filters":
			rt.handleFilters(w, r)
		case r.Path == "/v1/windows" && r.Method == http.MethodPost:
			rt.handleWindows(w, r)
		case r.Path == "/v1/threads/resolve" && r.Method == http.MethodPost:
			rt.handleResolve(w, r)
		case strings.HasPrefix(r.Path, "/v1/threads/"):
			rt.handleThread(w, r)
		default:
			utils.JSONError(w, http.StatusNotFound, "not found")
		}
	}
}

// handleMetrics bridges the prometheus handler onto the engine-independent
// writer. httpx.ResponseWriter carries the same method set net/http expects,
// so the writer passes through unwrapped.
func (rt *Router) handleMetrics(w httpx.ResponseWriter, r *httpx.Request) {
	req, err := http.NewRequestWithContext(r.Ctx, r.Method, r.Path, nil)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	req.Header = r.Header
	rt.metrics.ServeHTTP(w, req)
}

func (rt *Router) handleHealthz(w httpx.ResponseWriter, _ *httpx.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
}
