package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/banuni/haxor-mk2/internal/chat/domain"
	"github.com/banuni/haxor-mk2/internal/chat/presence"
	"github.com/banuni/haxor-mk2/internal/chat/protocol"
	apperrors "github.com/banuni/haxor-mk2/internal/errors"
	"github.com/banuni/haxor-mk2/internal/platform/id"
	"github.com/banuni/haxor-mk2/internal/storage"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
	"golang.org/x/net/websocket"
)

const maxDecodeErrorsPerConn = 5

// TaskLister exposes the task snapshot included in the initial frame.
type TaskLister interface {
	List(ctx context.Context, filter storage.TaskFilter) ([]tasksdomain.Task, error)
}

// Gateway owns the per-connection session protocol: a state snapshot on
// open, a decode-dispatch loop while the connection lives, and presence
// cleanup on close. Identity is caller-asserted on join; the privileged
// master id may additionally rename other participants.
type Gateway struct {
	messages     storage.MessageStore
	tasks        TaskLister
	registry     *presence.Registry
	hub          *Hub
	masterID     string
	historyLimit int
}

// NewGateway wires a gateway over the given collaborators. An empty masterID
// defaults to "master"; a non-positive historyLimit defaults to 50.
func NewGateway(messages storage.MessageStore, tasks TaskLister, registry *presence.Registry, hub *Hub, masterID string, historyLimit int) *Gateway {
	if masterID == "" {
		masterID = "master"
	}
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Gateway{
		messages:     messages,
		tasks:        tasks,
		registry:     registry,
		hub:          hub,
		masterID:     masterID,
		historyLimit: historyLimit,
	}
}

// Handler adapts the gateway to the websocket endpoint.
func (g *Gateway) Handler() websocket.Handler {
	return websocket.Handler(g.HandleConn)
}

// HandleConn runs one connection's session until the peer disconnects.
func (g *Gateway) HandleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	if request := conn.Request(); request != nil {
		ctx = request.Context()
	}

	connID, err := id.NewID()
	if err != nil {
		log.Printf("chat: mint connection id: %v", err)
		return
	}

	peer := NewPeer(conn)
	if err := g.sendSnapshot(ctx, peer); err != nil {
		log.Printf("chat: initial snapshot: %v", err)
		return
	}
	g.hub.Register(peer)

	var joined *domain.Participant
	defer func() {
		g.hub.Unregister(peer)
		if joined == nil {
			return
		}
		if left, ok := g.registry.Leave(connID); ok {
			g.hub.Broadcast(protocol.EventUserLeft, protocol.UserLeft{
				Username: left.Username,
				Message:  left.Username + " left the chat",
			})
			g.hub.Broadcast(protocol.EventActiveUsers, g.registry.List())
		}
	}()

	decodeErrors := 0
	for {
		// Whole websocket frames, so one malformed payload is dropped
		// without corrupting later reads.
		var raw []byte
		if err := websocket.Message.Receive(conn, &raw); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("chat: read frame: %v", err)
			}
			return
		}

		var frame protocol.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			decodeErrors++
			g.hub.SendTo(peer, protocol.EventError, protocol.ErrorPayload{
				Code:    string(apperrors.CodeDecodeError),
				Message: "invalid frame payload",
			})
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		cmd, err := protocol.ParseCommand(frame)
		if err != nil {
			g.hub.SendTo(peer, protocol.EventError, protocol.ErrorFrom(err))
			continue
		}

		switch cmd := cmd.(type) {
		case protocol.JoinChat:
			joined = g.handleJoin(connID, cmd)
		case protocol.SendMessage:
			if !g.requireJoin(peer, joined) {
				continue
			}
			g.handleSend(ctx, peer, *joined, cmd)
		case protocol.UpdateUsername:
			if !g.requireJoin(peer, joined) {
				continue
			}
			g.handleRename(peer, joined, cmd)
		case protocol.ClearMessages:
			if !g.requireJoin(peer, joined) {
				continue
			}
			g.handleClear(ctx, peer)
		}
	}
}

// sendSnapshot delivers the one-time initial frame before the connection
// enters the hub, so no broadcast can precede it.
func (g *Gateway) sendSnapshot(ctx context.Context, peer *Peer) error {
	messages, err := g.messages.RecentMessages(ctx, g.historyLimit)
	if err != nil {
		return fmt.Errorf("load recent messages: %w", err)
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	tasks, err := g.tasks.List(ctx, storage.TaskFilter{})
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	if tasks == nil {
		tasks = []tasksdomain.Task{}
	}

	frame, ok := encodeFrame(protocol.EventInitialData, protocol.InitialData{
		Messages:    messages,
		ActiveUsers: g.registry.List(),
		Tasks:       tasks,
	})
	if !ok {
		return errors.New("encode initial snapshot")
	}
	return peer.WriteFrame(frame)
}

func (g *Gateway) requireJoin(peer *Peer, joined *domain.Participant) bool {
	if joined != nil {
		return true
	}
	g.hub.SendTo(peer, protocol.EventError, protocol.ErrorFrom(
		apperrors.New(apperrors.CodeJoinRequired, "join_chat is required before other commands")))
	return false
}

func (g *Gateway) handleJoin(connID string, cmd protocol.JoinChat) *domain.Participant {
	participant := g.registry.Join(connID, domain.Participant{
		ID:       cmd.UserID,
		Username: cmd.Username,
		Role:     cmd.Role,
	})
	g.hub.Broadcast(protocol.EventUserJoined, protocol.UserJoined{
		User:    participant,
		Message: participant.Username + " joined the chat",
	})
	g.hub.Broadcast(protocol.EventActiveUsers, g.registry.List())
	return &participant
}

func (g *Gateway) handleSend(ctx context.Context, peer *Peer, from domain.Participant, cmd protocol.SendMessage) {
	message, err := g.messages.AppendMessage(ctx, from.Username, string(from.Role), cmd.Text)
	if err != nil {
		log.Printf("chat: append message from %q: %v", from.Username, err)
		g.hub.SendTo(peer, protocol.EventError, protocol.ErrorFrom(err))
		return
	}
	g.hub.Broadcast(protocol.EventNewMessage, message)
}

func (g *Gateway) handleRename(peer *Peer, joined *domain.Participant, cmd protocol.UpdateUsername) {
	if joined.ID != cmd.UserID && joined.ID != g.masterID {
		g.hub.SendTo(peer, protocol.EventError, protocol.ErrorFrom(
			apperrors.New(apperrors.CodeUnauthorized, "only the participant or the master may rename")))
		return
	}

	oldName, updated, err := g.registry.Rename(cmd.UserID, cmd.Username)
	if err != nil {
		g.hub.SendTo(peer, protocol.EventError, protocol.ErrorFrom(err))
		return
	}
	if joined.ID == updated.ID {
		*joined = updated
	}

	g.hub.Broadcast(protocol.EventUserUpdated, protocol.UserUpdated{
		User:        updated,
		OldUsername: oldName,
	})
	g.hub.Broadcast(protocol.EventActiveUsers, g.registry.List())
}

func (g *Gateway) handleClear(ctx context.Context, peer *Peer) {
	if err := g.messages.SoftClearAll(ctx); err != nil {
		log.Printf("chat: clear messages: %v", err)
		g.hub.SendTo(peer, protocol.EventError, protocol.ErrorFrom(err))
		return
	}
	g.hub.Broadcast(protocol.EventMessagesCleared, protocol.MessagesCleared{
		Messages: []domain.ChatMessage{},
	})
}
