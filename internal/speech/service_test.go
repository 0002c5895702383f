package speech

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/parlalabs/parla-core/internal/bus"
	"github.com/parlalabs/parla-core/internal/config"
	"github.com/parlalabs/parla-core/internal/natsserver"
	"github.com/parlalabs/parla-core/internal/protocol"
)

func newTestBus(t *testing.T) *bus.Client {
	t.Helper()

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, testLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, testLogger())
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestServiceBroadcastsPlaybackStatus(t *testing.T) {
	busClient := newTestBus(t)

	controller := NewController(NewMockSynth(10*time.Millisecond), 0.8, 1.0, testLogger())
	service := NewService(context.Background(), controller, busClient, testLogger())
	if err := service.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(service.Close)

	statuses := make(chan protocol.SpeechStatus, 4)
	sub, err := busClient.Conn().Subscribe(protocol.SubjectSpeechStatus, func(msg *nats.Msg) {
		var status protocol.SpeechStatus
		if err := json.Unmarshal(msg.Data, &status); err == nil {
			statuses <- status
		}
	})
	if err != nil {
		t.Fatalf("subscribe status: %v", err)
	}
	defer sub.Drain()

	request := protocol.SpeechRequest{
		ConversationID: "conv-1",
		Text:           "สวัสดี",
		Language:       "th",
	}
	data, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	if err := busClient.Conn().Publish(protocol.SubjectSpeechRequest, data); err != nil {
		t.Fatalf("publish request: %v", err)
	}

	want := []string{protocol.SpeechPhaseStarted, protocol.SpeechPhaseEnded}
	for _, phase := range want {
		select {
		case status := <-statuses:
			if status.Phase != phase {
				t.Fatalf("expected phase %q, got %+v", phase, status)
			}
			if status.ConversationID != "conv-1" {
				t.Fatalf("status must carry the requesting conversation, got %+v", status)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("phase %q never arrived", phase)
		}
	}
}
