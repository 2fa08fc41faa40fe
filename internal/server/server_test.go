package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestServer_ShutdownOrder(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(http.NotFoundHandler(), Options{Port: 0, ShutdownTimeout: time.Second}, logger)

	var mu sync.Mutex
	var order []string
	record := func(name string, err error) ShutdownFunc {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return err
		}
	}
	srv.OnShutdown("postgres", record("postgres", nil))
	srv.OnShutdown("redis", record("redis", errors.New("already closed")))
	srv.OnShutdown("events", record("events", nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "redis: already closed") {
			t.Errorf("Run error = %v, want the redis failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if want := []string{"events", "redis", "postgres"}; !slices.Equal(order, want) {
		t.Errorf("shutdown order = %v, want %v", order, want)
	}
}
