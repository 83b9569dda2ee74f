package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Xiaohua-Shen/ttyd/internal/ttysrv"
)

//go:embed static/index.html
var staticFS embed.FS

// serveOptions are the ambient, non-core knobs cmd/ttyd layers on top of
// ttysrv.Config: the listen address and optional TLS material. None of
// this is read by the core package.
type serveOptions struct {
	addr            string
	tlsCert         string
	tlsKey          string
	shutdownTimeout time.Duration
}

// routes builds the HTTP mux: the embedded xterm.js client at "/" and the
// session engine mounted at ttysrv.WebSocketPath.
func routes(cfg *ttysrv.Config, registry *ttysrv.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		data, err := staticFS.ReadFile("static/index.html")
		if err != nil {
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		w.Write(data)
	})

	handler := ttysrv.NewHandler(cfg, registry)
	r.Handle(ttysrv.WebSocketPath, handler)

	return r
}

// runServe builds the session registry and HTTP server and blocks until the
// process receives SIGINT/SIGTERM, a once-mode session drains, or the
// server fails to start: build, wire graceful shutdown off a
// signal-cancelled context, serve, then unwind.
func runServe(cfg *ttysrv.Config, opts serveOptions) error {
	ctx, cancel := contextWithSignal(context.Background())
	defer cancel()

	if cfg.Once {
		registryCancel := cancel
		registry := ttysrv.NewRegistry(cfg, registryCancel)
		return serveWithRegistry(ctx, cfg, registry, opts)
	}
	return serveWithRegistry(ctx, cfg, ttysrv.NewRegistry(cfg, nil), opts)
}

func serveWithRegistry(ctx context.Context, cfg *ttysrv.Config, registry *ttysrv.Registry, opts serveOptions) error {
	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           routes(cfg, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.shutdownTimeout)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	scheme := "http"
	if opts.tlsCert != "" {
		scheme = "https"
	}
	log.Printf("ttyd: listening on %s://%s, command: %v", scheme, opts.addr, cfg.Argv)

	var err error
	if opts.tlsCert != "" || opts.tlsKey != "" {
		if opts.tlsCert == "" || opts.tlsKey == "" {
			return fmt.Errorf("ttyd: both --tls-cert and --tls-key must be set")
		}
		err = httpServer.ListenAndServeTLS(opts.tlsCert, opts.tlsKey)
	} else {
		err = httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ttyd: serve: %w", err)
	}
	return nil
}
