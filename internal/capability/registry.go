package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/config"
	"github.com/parlalabs/parla-core/internal/protocol"
)

// Info is the registry's view of one platform capability.
type Info struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Detail    string    `json:"detail,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	Live      bool      `json:"live"`
}

// Registry tracks which platform capabilities (speech recognition, speech
// synthesis, translation, clipboard) are present and live. Capabilities
// announce themselves on the bus and are kept alive by heartbeats; a
// capability whose heartbeats stop is marked dead, which feeds readiness.
type Registry struct {
	cfg config.CapabilityConfig
	log *slog.Logger
	bus *bus.Client

	mu           sync.RWMutex
	capabilities map[string]*Info
	local        []string

	heartbeat *time.Ticker
	cancel    context.CancelFunc
	subs      []*nats.Subscription

	meter metric.Meter
}

func NewRegistry(ctx context.Context, cfg config.CapabilityConfig, busClient *bus.Client, log *slog.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(ctx)
	r := &Registry{
		cfg:          cfg,
		log:          log.With(slog.String("component", "capability-registry")),
		bus:          busClient,
		capabilities: make(map[string]*Info),
		meter:        otel.Meter("github.com/parlalabs/parla-core/runtime"),
		cancel:       cancel,
	}

	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}

	if err := r.subscribe(); err != nil {
		r.cancel()
		return nil, err
	}

	r.heartbeat = time.NewTicker(time.Duration(cfg.HeartbeatInterval) * time.Millisecond)
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)

	return r, nil
}

func (r *Registry) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.heartbeat != nil {
		r.heartbeat.Stop()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
}

// Announce publishes a capability's availability and registers it for
// heartbeating by this process.
func (r *Registry) Announce(name string, available bool, detail string) error {
	msg := protocol.CapabilityAnnounce{
		Name:      name,
		Available: available,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := r.bus.Conn().Publish(protocol.SubjectCapabilityAnnounce, payload); err != nil {
		return err
	}

	r.mu.Lock()
	found := false
	for _, existing := range r.local {
		if existing == name {
			found = true
			break
		}
	}
	if !found {
		r.local = append(r.local, name)
	}
	r.mu.Unlock()

	r.update(msg.Name, msg.Available, msg.Detail, msg.Timestamp)
	return nil
}

func (r *Registry) subscribe() error {
	conn := r.bus.Conn()

	announceSub, err := conn.Subscribe(protocol.SubjectCapabilityAnnounce, r.handleAnnounce)
	if err != nil {
		return fmt.Errorf("subscribe announce: %w", err)
	}
	r.subs = append(r.subs, announceSub)

	heartbeatSub, err := conn.Subscribe(protocol.SubjectCapabilityHeartbeat+".*", r.handleHeartbeat)
	if err != nil {
		return fmt.Errorf("subscribe heartbeat: %w", err)
	}
	r.subs = append(r.subs, heartbeatSub)

	return nil
}

func (r *Registry) runHeartbeat(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.heartbeat.C:
			if err := r.publishHeartbeats(); err != nil {
				r.log.Warn("failed to publish heartbeats", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Registry) publishHeartbeats() error {
	r.mu.RLock()
	names := append([]string(nil), r.local...)
	r.mu.RUnlock()

	for _, name := range names {
		msg := protocol.CapabilityHeartbeat{Name: name, Timestamp: time.Now().UTC()}
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("%s.%s", protocol.SubjectCapabilityHeartbeat, name)
		if err := r.bus.Conn().Publish(subject, payload); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

func (r *Registry) handleAnnounce(msg *nats.Msg) {
	var announcement protocol.CapabilityAnnounce
	if err := json.Unmarshal(msg.Data, &announcement); err != nil {
		r.log.Warn("invalid announce message", slog.String("error", err.Error()))
		return
	}
	if announcement.Timestamp.IsZero() {
		announcement.Timestamp = time.Now().UTC()
	}
	r.update(announcement.Name, announcement.Available, announcement.Detail, announcement.Timestamp)
}

func (r *Registry) handleHeartbeat(msg *nats.Msg) {
	var hb protocol.CapabilityHeartbeat
	if err := json.Unmarshal(msg.Data, &hb); err != nil {
		r.log.Warn("invalid heartbeat message", slog.String("error", err.Error()))
		return
	}
	timestamp := hb.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if info, ok := r.capabilities[hb.Name]; ok {
		info.LastSeen = timestamp
		info.Live = true
	}
}

func (r *Registry) update(name string, available bool, detail string, timestamp time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.capabilities[name]
	if !ok {
		info = &Info{Name: name}
		r.capabilities[name] = info
	}
	info.Available = available
	info.Detail = detail
	info.LastSeen = timestamp
	info.Live = true
}

func (r *Registry) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()

	timeout := time.Duration(r.cfg.HeartbeatTimeout) * time.Millisecond
	now := time.Now()
	for _, info := range r.capabilities {
		if now.Sub(info.LastSeen) > timeout {
			info.Live = false
		}
	}
}

// Available reports whether the named capability is both advertised and live.
func (r *Registry) Available(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.capabilities[name]
	return ok && info.Available && info.Live
}

// Healthy reports whether every locally announced capability that advertised
// itself as available is still live.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.local {
		info, ok := r.capabilities[name]
		if !ok {
			return false
		}
		if info.Available && !info.Live {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of every known capability.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.capabilities))
	for _, info := range r.capabilities {
		infos = append(infos, *info)
	}
	return infos
}

func (r *Registry) initMetrics() error {
	if r.meter == nil {
		return nil
	}
	known, err := r.meter.Int64ObservableGauge("parla.capabilities.known",
		metric.WithDescription("Number of known platform capabilities"))
	if err != nil {
		return err
	}
	available, err := r.meter.Int64ObservableGauge("parla.capabilities.available",
		metric.WithDescription("Number of capabilities advertised as available and live"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		total, live := r.snapshotCounts()
		obs.ObserveInt64(known, total)
		obs.ObserveInt64(available, live)
		return nil
	}, known, available)
	return err
}

func (r *Registry) snapshotCounts() (int64, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total, live int64
	for _, info := range r.capabilities {
		total++
		if info.Available && info.Live {
			live++
		}
	}
	return total, live
}
