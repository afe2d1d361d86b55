package app

import (
	"encoding/json"
	"io"
	"log"
	"sync"

	"github.com/banuni/haxor-mk2/internal/chat/protocol"
)

// Peer serializes outbound frames onto one connection. The write mutex keeps
// frames from interleaving when broadcasts and unicasts race.
type Peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewPeer wraps a connection's write side.
func NewPeer(w io.Writer) *Peer {
	return &Peer{encoder: json.NewEncoder(w)}
}

// WriteFrame encodes one frame onto the connection.
func (p *Peer) WriteFrame(frame protocol.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Hub maintains the set of live connections and fans out event frames.
// Membership changes concurrently with broadcasts; fan-out snapshots the set
// before iterating.
type Hub struct {
	mu    sync.Mutex
	peers map[*Peer]struct{}

	// sendMu serializes broadcasts so frames reach every connection in
	// hub-submission order even when handlers submit concurrently.
	sendMu sync.Mutex
}

// NewHub creates an empty broadcast hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[*Peer]struct{})}
}

// Register adds a connection to the fan-out set.
func (h *Hub) Register(peer *Peer) {
	if peer == nil {
		return
	}
	h.mu.Lock()
	h.peers[peer] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a connection from the fan-out set.
func (h *Hub) Unregister(peer *Peer) {
	h.mu.Lock()
	delete(h.peers, peer)
	h.mu.Unlock()
}

// Broadcast serializes the event once and delivers it to every registered
// connection. A send failure on one connection never aborts delivery to the
// others and is not surfaced to the caller.
func (h *Hub) Broadcast(event string, payload any) {
	frame, ok := encodeFrame(event, payload)
	if !ok {
		return
	}

	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	h.mu.Lock()
	peers := make([]*Peer, 0, len(h.peers))
	for peer := range h.peers {
		peers = append(peers, peer)
	}
	h.mu.Unlock()

	for _, peer := range peers {
		if err := peer.WriteFrame(frame); err != nil {
			log.Printf("broadcast %s: drop unwritable connection: %v", event, err)
		}
	}
}

// SendTo delivers the event to a single connection.
func (h *Hub) SendTo(peer *Peer, event string, payload any) {
	if peer == nil {
		return
	}
	frame, ok := encodeFrame(event, payload)
	if !ok {
		return
	}
	if err := peer.WriteFrame(frame); err != nil {
		log.Printf("send %s: %v", event, err)
	}
}

func encodeFrame(event string, payload any) (protocol.Frame, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("marshal %s payload: %v", event, err)
		return protocol.Frame{}, false
	}
	return protocol.Frame{Event: event, Data: data}, true
}
