package capability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/config"
	"github.com/parlalabs/parla-core/internal/natsserver"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRegistry(t *testing.T, cfg config.CapabilityConfig) *Registry {
	t.Helper()

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	busClient, err := bus.Connect(config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(busClient.Close)

	registry, err := NewRegistry(context.Background(), cfg, busClient, newLogger())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(registry.Close)
	return registry
}

func TestAnnounceAndQuery(t *testing.T) {
	registry := newTestRegistry(t, config.CapabilityConfig{
		HeartbeatInterval: 50,
		HeartbeatTimeout:  5000,
	})

	if err := registry.Announce("recognition", true, ""); err != nil {
		t.Fatalf("announce: %v", err)
	}
	if err := registry.Announce("synthesis", false, "no engine configured"); err != nil {
		t.Fatalf("announce: %v", err)
	}

	if !registry.Available("recognition") {
		t.Fatal("recognition must be available")
	}
	if registry.Available("synthesis") {
		t.Fatal("synthesis was announced unavailable")
	}
	if registry.Available("translation") {
		t.Fatal("unknown capability must not report available")
	}
	if !registry.Healthy() {
		t.Fatal("registry with live local capabilities must be healthy")
	}
	if len(registry.Snapshot()) != 2 {
		t.Fatalf("expected 2 known capabilities, got %d", len(registry.Snapshot()))
	}
}

func TestStaleCapabilityGoesDead(t *testing.T) {
	registry := newTestRegistry(t, config.CapabilityConfig{
		HeartbeatInterval: 60_000, // no automatic heartbeats during the test
		HeartbeatTimeout:  1,
	})

	if err := registry.Announce("recognition", true, ""); err != nil {
		t.Fatalf("announce: %v", err)
	}

	// The announce echoed over the bus may land after the first evaluation;
	// with no heartbeats the capability must converge to dead.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		registry.evaluateHealth()
		if !registry.Available("recognition") && !registry.Healthy() {
			return
		}
	}
	t.Fatal("capability without heartbeats must be marked dead")
}

func TestHeartbeatKeepsCapabilityLive(t *testing.T) {
	registry := newTestRegistry(t, config.CapabilityConfig{
		HeartbeatInterval: 20,
		HeartbeatTimeout:  200,
	})

	if err := registry.Announce("clipboard", true, ""); err != nil {
		t.Fatalf("announce: %v", err)
	}

	// Several heartbeat intervals pass; the capability must stay live.
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		registry.evaluateHealth()
		if !registry.Available("clipboard") {
			t.Fatal("heartbeats must keep the capability live")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
