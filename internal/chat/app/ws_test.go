package app

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/banuni/haxor-mk2/internal/chat/protocol"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server, err := NewServer(context.Background(), Config{
		HTTPAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "app.db"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(server.Close)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got protocol.Frame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

// readUntil skips frames until one with the wanted event arrives.
func readUntil(t *testing.T, conn *websocket.Conn, event string) protocol.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := readFrame(t, conn)
		if got.Event == event {
			return got
		}
	}
	t.Fatalf("no %q frame arrived", event)
	return protocol.Frame{}
}

func join(t *testing.T, conn *websocket.Conn, userID, username, role string) {
	t.Helper()
	writeFrame(t, conn, protocol.EventJoinChat, map[string]any{
		"user_id":  userID,
		"username": username,
		"role":     role,
	})
	readUntil(t, conn, protocol.EventUserJoined)
}

func TestWebSocketInitialDataArrivesFirst(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)

	got := readFrame(t, conn)
	if got.Event != protocol.EventInitialData {
		t.Fatalf("first frame = %q, want %q", got.Event, protocol.EventInitialData)
	}

	var snapshot protocol.InitialData
	if err := json.Unmarshal(got.Data, &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Messages == nil || snapshot.ActiveUsers == nil || snapshot.Tasks == nil {
		t.Fatalf("snapshot arrays must be present, got %s", got.Data)
	}
}

func TestWebSocketJoinBroadcastsPresence(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn) // initial_data

	writeFrame(t, conn, protocol.EventJoinChat, map[string]any{
		"user_id":  "u1",
		"username": "nuni",
		"role":     "player",
	})

	joined := readUntil(t, conn, protocol.EventUserJoined)
	var payload protocol.UserJoined
	if err := json.Unmarshal(joined.Data, &payload); err != nil {
		t.Fatalf("decode user_joined: %v", err)
	}
	if payload.User.Username != "nuni" || payload.Message != "nuni joined the chat" {
		t.Fatalf("unexpected user_joined payload: %s", joined.Data)
	}

	users := readUntil(t, conn, protocol.EventActiveUsers)
	if !strings.Contains(string(users.Data), "nuni") {
		t.Fatalf("active_users = %s, expected nuni", users.Data)
	}

	// A later connection sees the participant in its snapshot.
	second := dialWS(t, srv)
	snapshot := readFrame(t, second)
	var data protocol.InitialData
	if err := json.Unmarshal(snapshot.Data, &data); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(data.ActiveUsers) != 1 || data.ActiveUsers[0].ID != "u1" {
		t.Fatalf("unexpected snapshot users: %s", snapshot.Data)
	}
}

func TestWebSocketSendBeforeJoinReturnsError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn)

	writeFrame(t, conn, protocol.EventSendMessage, map[string]any{"text": "hi"})

	got := readUntil(t, conn, protocol.EventError)
	if !strings.Contains(string(got.Data), "JOIN_REQUIRED") {
		t.Fatalf("error payload = %s, expected JOIN_REQUIRED", got.Data)
	}
}

func TestWebSocketSendMessagePersistsAndBroadcasts(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn)
	join(t, conn, "u1", "nuni", "player")

	writeFrame(t, conn, protocol.EventSendMessage, map[string]any{"text": "breach the relay"})

	got := readUntil(t, conn, protocol.EventNewMessage)
	if !strings.Contains(string(got.Data), "breach the relay") {
		t.Fatalf("new_message = %s", got.Data)
	}

	second := dialWS(t, srv)
	snapshot := readFrame(t, second)
	var data protocol.InitialData
	if err := json.Unmarshal(snapshot.Data, &data); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(data.Messages) != 1 || data.Messages[0].Content != "breach the relay" {
		t.Fatalf("unexpected snapshot messages: %s", snapshot.Data)
	}
}

func TestWebSocketUnknownEventReturnsDecodeError(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn)

	writeFrame(t, conn, "warp_drive", map[string]any{})

	got := readUntil(t, conn, protocol.EventError)
	if !strings.Contains(string(got.Data), "DECODE_ERROR") {
		t.Fatalf("error payload = %s, expected DECODE_ERROR", got.Data)
	}
}

func TestWebSocketMalformedFrameKeepsConnection(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn)

	if err := websocket.Message.Send(conn, "not json at all"); err != nil {
		t.Fatalf("send garbage frame: %v", err)
	}
	got := readUntil(t, conn, protocol.EventError)
	if !strings.Contains(string(got.Data), "DECODE_ERROR") {
		t.Fatalf("error payload = %s, expected DECODE_ERROR", got.Data)
	}

	// The connection survives and later frames are processed normally.
	join(t, conn, "u1", "nuni", "player")
	writeFrame(t, conn, protocol.EventSendMessage, map[string]any{"text": "still alive"})
	msg := readUntil(t, conn, protocol.EventNewMessage)
	if !strings.Contains(string(msg.Data), "still alive") {
		t.Fatalf("new_message = %s", msg.Data)
	}
}

func TestWebSocketRenameRequiresSelfOrMaster(t *testing.T) {
	srv := newTestServer(t)

	player := dialWS(t, srv)
	readFrame(t, player)
	join(t, player, "u1", "nuni", "player")

	other := dialWS(t, srv)
	readFrame(t, other)
	join(t, other, "u2", "budner", "player")

	// A non-master participant cannot rename someone else.
	writeFrame(t, other, protocol.EventUpdateUsername, map[string]any{
		"user_id":  "u1",
		"username": "hijacked",
	})
	got := readUntil(t, other, protocol.EventError)
	if !strings.Contains(string(got.Data), "UNAUTHORIZED") {
		t.Fatalf("error payload = %s, expected UNAUTHORIZED", got.Data)
	}

	// The master can rename anyone.
	master := dialWS(t, srv)
	readFrame(t, master)
	join(t, master, "master", "overseer", "master")

	writeFrame(t, master, protocol.EventUpdateUsername, map[string]any{
		"user_id":  "u1",
		"username": "ghost",
	})
	updated := readUntil(t, master, protocol.EventUserUpdated)
	var payload protocol.UserUpdated
	if err := json.Unmarshal(updated.Data, &payload); err != nil {
		t.Fatalf("decode user_updated: %v", err)
	}
	if payload.User.Username != "ghost" || payload.OldUsername != "nuni" {
		t.Fatalf("unexpected user_updated payload: %s", updated.Data)
	}
}

func TestWebSocketRenameSelf(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn)
	join(t, conn, "u1", "nuni", "player")

	writeFrame(t, conn, protocol.EventUpdateUsername, map[string]any{
		"user_id":  "u1",
		"username": "shadow",
	})
	updated := readUntil(t, conn, protocol.EventUserUpdated)
	if !strings.Contains(string(updated.Data), "shadow") {
		t.Fatalf("unexpected user_updated payload: %s", updated.Data)
	}
}

func TestWebSocketClearMessagesEmptiesFeed(t *testing.T) {
	srv := newTestServer(t)
	conn := dialWS(t, srv)
	readFrame(t, conn)
	join(t, conn, "u1", "nuni", "player")

	writeFrame(t, conn, protocol.EventSendMessage, map[string]any{"text": "wipe me"})
	readUntil(t, conn, protocol.EventNewMessage)

	writeFrame(t, conn, protocol.EventClearMessages, map[string]any{})
	cleared := readUntil(t, conn, protocol.EventMessagesCleared)
	var payload protocol.MessagesCleared
	if err := json.Unmarshal(cleared.Data, &payload); err != nil {
		t.Fatalf("decode messages_cleared: %v", err)
	}
	if len(payload.Messages) != 0 {
		t.Fatalf("expected empty feed, got %s", cleared.Data)
	}

	second := dialWS(t, srv)
	snapshot := readFrame(t, second)
	var data protocol.InitialData
	if err := json.Unmarshal(snapshot.Data, &data); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(data.Messages) != 0 {
		t.Fatalf("cleared messages leaked into snapshot: %s", snapshot.Data)
	}
}

func TestWebSocketDisconnectBroadcastsUserLeft(t *testing.T) {
	srv := newTestServer(t)

	leaver := dialWS(t, srv)
	readFrame(t, leaver)
	join(t, leaver, "u1", "nuni", "player")

	watcher := dialWS(t, srv)
	readFrame(t, watcher)
	join(t, watcher, "u2", "budner", "player")

	_ = leaver.Close()

	left := readUntil(t, watcher, protocol.EventUserLeft)
	var payload protocol.UserLeft
	if err := json.Unmarshal(left.Data, &payload); err != nil {
		t.Fatalf("decode user_left: %v", err)
	}
	if payload.Username != "nuni" || payload.Message != "nuni left the chat" {
		t.Fatalf("unexpected user_left payload: %s", left.Data)
	}
}

func TestWebSocketRejoinSupersedesOldConnection(t *testing.T) {
	srv := newTestServer(t)

	stale := dialWS(t, srv)
	readFrame(t, stale)
	join(t, stale, "u1", "nuni", "player")

	fresh := dialWS(t, srv)
	readFrame(t, fresh)
	join(t, fresh, "u1", "nuni", "player")

	// Closing the superseded connection must not evict the live entry.
	_ = stale.Close()
	time.Sleep(100 * time.Millisecond)

	observer := dialWS(t, srv)
	snapshot := readFrame(t, observer)
	var data protocol.InitialData
	if err := json.Unmarshal(snapshot.Data, &data); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(data.ActiveUsers) != 1 || data.ActiveUsers[0].ID != "u1" {
		t.Fatalf("participant should survive stale close, got %s", snapshot.Data)
	}
}
