package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/hannalabs/hanna/pkg/gateway/config"
	gatewayserver "github.com/hannalabs/hanna/pkg/gateway/server"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openDB: func(ctx context.Context, dsn string) (*sql.DB, error) {
			t.Fatalf("openDB should not be called when config load fails")
			return nil, nil
		},
		newServer: func(cfg config.Config, logger *slog.Logger, deps gatewayserver.Dependencies) (*gatewayserver.Server, error) {
			t.Fatalf("newServer should not be called when config load fails")
			return nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if got := stderr.String(); got == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestRunGateway_FailsWhenStoreUnreachable(t *testing.T) {
	t.Parallel()

	err := runGateway(context.Background(), nil, gatewayDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:        "127.0.0.1:0",
				PostgresDSN: "postgres://localhost/hanna",
			}, nil
		},
		openDB: func(ctx context.Context, dsn string) (*sql.DB, error) {
			return nil, errors.New("connection refused")
		},
		newServer: func(cfg config.Config, logger *slog.Logger, deps gatewayserver.Dependencies) (*gatewayserver.Server, error) {
			t.Fatalf("newServer should not be called when the store is unreachable")
			return nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       3 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
	if srv.ReadTimeout != cfg.ReadTimeout {
		t.Fatalf("ReadTimeout=%v, want %v", srv.ReadTimeout, cfg.ReadTimeout)
	}
}
