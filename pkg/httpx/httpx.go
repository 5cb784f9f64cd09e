// Package httpx abstracts the HTTP engine so the debug surface can run on
// either net/http or fasthttp, selected by config.
package httpx

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Request is the unified request shape handlers receive.
type Request struct {
	Ctx        context.Context
	Method     string
	Path       string
	Query      url.Values
	Header     http.Header
	Body       io.ReadCloser
	RemoteAddr string
	// Raw exposes the engine-specific request for escape hatches.
	Raw interface{}
}

// ResponseWriter is the subset of http.ResponseWriter semantics adapters
// must provide.
type ResponseWriter interface {
	Header() http.Header
	Write([]byte) (int, error)
	WriteHeader(status int)
}

// HandlerFunc is the engine-independent handler signature.
type HandlerFunc func(w ResponseWriter, r *Request)
