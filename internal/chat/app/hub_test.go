package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/banuni/haxor-mk2/internal/chat/protocol"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func decodeFrames(t *testing.T, buf *bytes.Buffer) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	decoder := json.NewDecoder(buf)
	for decoder.More() {
		var frame protocol.Frame
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestBroadcastReachesEveryPeer(t *testing.T) {
	hub := NewHub()
	var first, second bytes.Buffer
	hub.Register(NewPeer(&first))
	hub.Register(NewPeer(&second))

	hub.Broadcast(protocol.EventNewMessage, map[string]string{"content": "hi"})

	for _, buf := range []*bytes.Buffer{&first, &second} {
		frames := decodeFrames(t, buf)
		if len(frames) != 1 || frames[0].Event != protocol.EventNewMessage {
			t.Fatalf("unexpected frames: %+v", frames)
		}
	}
}

func TestBroadcastSurvivesFailingPeer(t *testing.T) {
	hub := NewHub()
	var healthy bytes.Buffer
	hub.Register(NewPeer(failingWriter{}))
	hub.Register(NewPeer(&healthy))

	hub.Broadcast(protocol.EventActiveUsers, []string{})

	if frames := decodeFrames(t, &healthy); len(frames) != 1 {
		t.Fatalf("healthy peer should still receive, got %+v", frames)
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	var buf bytes.Buffer
	peer := NewPeer(&buf)
	hub.Register(peer)
	hub.Unregister(peer)

	hub.Broadcast(protocol.EventNewMessage, map[string]string{"content": "gone"})

	if buf.Len() != 0 {
		t.Fatalf("unregistered peer received data: %s", buf.String())
	}
}

func TestSendToTargetsOnePeer(t *testing.T) {
	hub := NewHub()
	var target, bystander bytes.Buffer
	targetPeer := NewPeer(&target)
	hub.Register(targetPeer)
	hub.Register(NewPeer(&bystander))

	hub.SendTo(targetPeer, protocol.EventError, protocol.ErrorPayload{Code: "NOT_FOUND", Message: "nope"})

	if frames := decodeFrames(t, &target); len(frames) != 1 || frames[0].Event != protocol.EventError {
		t.Fatalf("unexpected target frames: %+v", frames)
	}
	if bystander.Len() != 0 {
		t.Fatalf("bystander received unicast: %s", bystander.String())
	}
}
