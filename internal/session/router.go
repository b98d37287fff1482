package session

import (
	"github.com/sirupsen/logrus"

	"github.com/unixthat/beer/internal/wire"
)

// frameSender is the subset of transport.Endpoint the router needs; a
// narrow interface keeps this package independent of net.Conn for testing.
type frameSender interface {
	Send(ptype wire.PacketType, v interface{}) error
}

// EventRouter translates Match events into wire GAME frames, living
// outside Match so translation rules are declared in one place, grounded
// on the reference's router.py.
type EventRouter struct {
	log     *logrus.Entry
	sinks   func(player int) frameSender
	players [2]int // slot numbers, always 1 and 2
}

// NewEventRouter builds a router that resolves "which endpoint is slot N"
// via sinkFor, so Match can swap endpoints on reconnect without the router
// holding stale references.
func NewEventRouter(log *logrus.Entry, sinkFor func(player int) frameSender) *EventRouter {
	return &EventRouter{log: log, sinks: sinkFor, players: [2]int{1, 2}}
}

// Route dispatches ev to the appropriate handler, matching router.py's
// __call__/dispatch split: routing failures are logged, never fatal.
func (r *EventRouter) Route(ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("event", ev.Type).Errorf("event routing panicked: %v", rec)
		}
	}()

	switch ev.Category {
	case CategoryTurn:
		r.handleTurn(ev)
	case CategoryChat:
		r.handleChat(ev)
	case CategorySystem:
		// No dedicated SYSTEM packets today; reserved for future metrics hooks.
	default:
		r.log.WithField("event", ev.Type).Debug("ignoring event with unknown category")
	}
}

func (r *EventRouter) handleTurn(ev Event) {
	switch ev.Type {
	case "shot":
		r.broadcast(map[string]interface{}{
			"type":   "shot",
			"player": ev.Payload["attacker"],
			"coord":  ev.Payload["coord"],
			"result": ev.Payload["result"],
			"sunk":   ev.Payload["sunk"],
		})
	case "start":
		// Legacy START frames already cover this; no structured packet needed.
	case "end":
		r.broadcast(map[string]interface{}{
			"type":   "end",
			"winner": ev.Payload["winner"],
			"reason": ev.Payload["reason"],
			"shots":  ev.Payload["shots"],
		})
	case "prompt":
		player, _ := ev.Payload["player"].(int)
		r.unicast(player, map[string]interface{}{"type": "turn_prompt", "player": player})
	default:
		r.log.WithField("event", ev.Type).Debug("unhandled turn event")
	}
}

func (r *EventRouter) handleChat(ev Event) {
	if ev.Type != "line" {
		return
	}
	r.log.WithFields(logrus.Fields{
		"player": ev.Payload["player"],
	}).Infof("chat: %v", ev.Payload["msg"])
}

func (r *EventRouter) broadcast(payload map[string]interface{}) {
	for _, slot := range r.players {
		if sink := r.sinks(slot); sink != nil {
			if err := sink.Send(wire.PacketGame, payload); err != nil {
				r.log.WithError(err).WithField("slot", slot).Warn("broadcast send failed")
			}
		}
	}
}

func (r *EventRouter) unicast(player int, payload map[string]interface{}) {
	if sink := r.sinks(player); sink != nil {
		if err := sink.Send(wire.PacketGame, payload); err != nil {
			r.log.WithError(err).WithField("slot", player).Warn("unicast send failed")
		}
	}
}
