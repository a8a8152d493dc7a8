package infra

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/cronos-sched/cronos/internal/config"
	"github.com/cronos-sched/cronos/internal/logging"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []config.Config{
		{StoreDriver: config.DriverMemory},
		{StoreDriver: config.DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "data", "cronos.db")},
	} {
		s, closeFn, err := OpenStore(ctx, cfg, logging.Discard())
		if err != nil {
			t.Fatalf("%s: %v", cfg.StoreDriver, err)
		}
		if err := s.Ping(ctx); err != nil {
			t.Fatalf("%s ping: %v", cfg.StoreDriver, err)
		}
		closeFn()
	}
}

func TestNewRedisClient(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(ctx, "", logging.Discard())
	if err != nil || client != nil {
		t.Fatalf("empty url should disable redis, got %v %v", client, err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client, err = NewRedisClient(ctx, "redis://"+mr.Addr(), logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	client.Close()

	if _, err := NewRedisClient(ctx, "not a url", logging.Discard()); err == nil {
		t.Fatalf("expected parse error")
	}
}
