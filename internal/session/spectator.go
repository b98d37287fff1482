package session

import (
	"sync"

	"github.com/unixthat/beer/internal/board"
	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

// SpectatorHub fans a match out to onlookers: broadcast text, periodic
// board snapshots, and promotion into a vacated player slot, grounded on
// spectator_hub.py.
type SpectatorHub struct {
	mu   sync.Mutex
	list []*transport.Endpoint
}

// NewSpectatorHub returns an empty hub.
func NewSpectatorHub() *SpectatorHub { return &SpectatorHub{} }

// Add registers a new spectator and welcomes them.
func (h *SpectatorHub) Add(ep *transport.Endpoint) {
	h.mu.Lock()
	h.list = append(h.list, ep)
	h.mu.Unlock()
	_ = ep.Send(wire.PacketGame, map[string]string{"msg": "INFO YOU ARE NOW SPECTATING"})
}

// Broadcast sends a plain informational message to every spectator,
// dropping any whose connection has failed.
func (h *SpectatorHub) Broadcast(msg string) {
	h.forEach(func(ep *transport.Endpoint) error {
		return ep.Send(wire.PacketGame, map[string]string{"msg": msg})
	})
}

// BroadcastPayload sends a structured payload (e.g. a chat mirror or shot
// event) to every spectator.
func (h *SpectatorHub) BroadcastPayload(payload map[string]interface{}) {
	h.forEach(func(ep *transport.Endpoint) error {
		return ep.Send(wire.PacketGame, payload)
	})
}

// Snapshot sends a full dual-board reveal to every spectator.
func (h *SpectatorHub) Snapshot(p1, p2 *board.Board) {
	payload := map[string]interface{}{
		"type":    "spec_grid",
		"rows_p1": p1.Rows(true),
		"rows_p2": p2.Rows(true),
	}
	h.BroadcastPayload(payload)
}

func (h *SpectatorHub) forEach(send func(*transport.Endpoint) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	alive := h.list[:0]
	for _, ep := range h.list {
		if err := send(ep); err != nil {
			_ = ep.Close()
			continue
		}
		alive = append(alive, ep)
	}
	h.list = alive
}

// Empty reports whether there are no waiting spectators.
func (h *SpectatorHub) Empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.list) == 0
}

// Promote pops the longest-waiting spectator off the hub and returns it; it
// sends no notices itself. The caller is responsible for notifying both
// players, rebinding its own slot bookkeeping and restarting the match
// handshake, since SpectatorHub has no knowledge of Match internals.
func (h *SpectatorHub) Promote() (*transport.Endpoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.list) == 0 {
		return nil, false
	}
	ep := h.list[0]
	h.list = h.list[1:]
	return ep, true
}
