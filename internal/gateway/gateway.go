package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/parlalabs/parla-core/internal/languages"
	"github.com/parlalabs/parla-core/internal/protocol"
	"github.com/parlalabs/parla-core/internal/session"
)

// Gateway exposes conversations over a websocket endpoint. Each connection
// owns exactly one conversation: commands flow in, view state snapshots flow
// out after every transition.
type Gateway struct {
	factory  *session.Factory
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func New(factory *session.Factory, allowAnyOrigin bool, log *slog.Logger) *Gateway {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if allowAnyOrigin {
		upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &Gateway{
		factory:  factory,
		upgrader: upgrader,
		log:      log.With(slog.String("component", "gateway")),
	}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller, err := g.factory.Open(ctx)
	if err != nil {
		g.log.Error("failed to open conversation", slog.String("error", err.Error()))
		return
	}
	defer controller.Close()

	client := &client{conn: conn}
	log := g.log.With(slog.String("conversation_id", controller.ID()))
	log.Info("conversation opened")
	defer log.Info("conversation closed")

	snapshot := controller.Snapshot()
	if err := client.send(Envelope{
		Type:           EnvelopeHello,
		ConversationID: controller.ID(),
		Languages:      languages.Supported(),
		State:          &snapshot,
	}); err != nil {
		return
	}

	// State pushes are coalesced through a one-slot channel so a slow client
	// never blocks a view state transition; it always gets the newest snapshot.
	updates := make(chan session.State, 1)
	controller.Subscribe(func(state session.State) {
		for {
			select {
			case updates <- state:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})

	go func() {
		for {
			select {
			case state := <-updates:
				if err := client.send(Envelope{Type: EnvelopeState, State: &state}); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		g.dispatch(ctx, client, controller, cmd, log)
	}
}

func (g *Gateway) dispatch(ctx context.Context, client *client, controller *session.Controller, cmd Command, log *slog.Logger) {
	var err error
	switch cmd.Type {
	case CommandStart:
		err = controller.StartListening()
	case CommandStop:
		err = controller.StopListening()
	case CommandSetLanguages:
		err = controller.SetLanguages(cmd.Input, cmd.Output)
	case CommandSetReply:
		controller.SetReply(cmd.Text)
	case CommandSpeak:
		err = controller.Speak(cmd.Slot)
	case CommandCopy:
		err = controller.Copy(cmd.Slot)
	case CommandHistory:
		var history []protocol.Utterance
		history, err = controller.History(ctx, cmd.Limit)
		if err == nil {
			err = client.send(Envelope{Type: EnvelopeHistory, History: history})
		}
	default:
		err = fmt.Errorf("unknown command %q", cmd.Type)
	}

	if err != nil {
		log.Warn("command failed",
			slog.String("command", cmd.Type),
			slog.String("error", err.Error()))
		_ = client.send(Envelope{Type: EnvelopeError, Error: err.Error()})
	}
}

// client serializes writes; gorilla allows only one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(envelope Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(envelope)
}
