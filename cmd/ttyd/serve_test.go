package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Xiaohua-Shen/ttyd/internal/ttysrv"
)

func TestRoutesServesStaticIndexAndMountsWebSocket(t *testing.T) {
	cfg := &ttysrv.Config{Argv: []string{"cat"}}
	registry := ttysrv.NewRegistry(cfg, nil)
	r := routes(cfg, registry)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("GET / content-type = %q, want text/html prefix", ct)
	}

	resp2, err := http.Get(srv.URL + "/not-ws")
	if err != nil {
		t.Fatalf("GET /not-ws: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("GET /not-ws status = %d, want %d (the router has no route for it)", resp2.StatusCode, http.StatusNotFound)
	}

	resp3, err := http.Get(srv.URL + ttysrv.WebSocketPath)
	if err != nil {
		t.Fatalf("GET %s: %v", ttysrv.WebSocketPath, err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusBadRequest {
		t.Errorf("GET %s status = %d, want %d (the mounted WebSocket handler rejects a non-upgrade request)", ttysrv.WebSocketPath, resp3.StatusCode, http.StatusBadRequest)
	}
}
