package app

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"

	"chatsync/pkg/api"
	"chatsync/pkg/httpx"
	"chatsync/pkg/logger"
)

// startHTTP builds the router, starts the configured HTTP engine in a
// goroutine and returns a channel carrying any server error.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	router := api.NewRouter(api.Deps{
		Store:    a.store,
		Engine:   a.engine,
		Suppress: a.suppress,
		Locator:  a.locator,
		Cache:    a.cache,
	})
	handler := router.Handler()

	cert := a.cfg.Server.TLS.CertFile
	key := a.cfg.Server.TLS.KeyFile
	errCh := make(chan error, 1)

	switch a.cfg.Server.Engine {
	case "fasthttp":
		srv := &fasthttp.Server{Handler: httpx.FastHTTPAdapter(handler)}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown()
		}()
		go func() {
			logger.Info("http_listening", "addr", a.addr, "engine", "fasthttp")
			if cert != "" && key != "" {
				errCh <- srv.ListenAndServeTLS(a.addr, cert, key)
			} else {
				errCh <- srv.ListenAndServe(a.addr)
			}
		}()
	default:
		srv := &http.Server{Addr: a.addr, Handler: httpx.NetHTTPAdapter(handler)}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		go func() {
			logger.Info("http_listening", "addr", a.addr, "engine", "nethttp")
			if cert != "" && key != "" {
				errCh <- srv.ListenAndServeTLS(cert, key)
			} else {
				errCh <- srv.ListenAndServe()
			}
		}()
	}
	return errCh
}
