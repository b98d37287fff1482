package session

import (
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unixthat/beer/internal/board"
	"github.com/unixthat/beer/internal/command"
	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

// Result is what a concluded Match reports to the lobby for requeue
// decisions.
type Result struct {
	Winner int // 1 or 2
	Reason string
	Shots  int
}

// Match runs a single two-player game from handshake to conclusion. One
// Match owns exactly two player slots and, transiently, a SpectatorHub of
// onlookers waiting to be promoted into either slot, grounded on
// session.py's GameSession.
type Match struct {
	log *logrus.Entry

	endpoints [2]*transport.Endpoint
	boards    [2]*board.Board
	tokens    [2]string
	fleet     []board.ShipSpec

	recon      *ReconnectController
	spectators *SpectatorHub
	router     *EventRouter
	subs       []Subscriber

	shots [2]int
	fired [2]map[[2]int]struct{}

	current int // 1 or 2

	turnTimeout time.Duration
}

// NewMatch wires up a fresh match between p1 and p2. fleet defaults to
// board.StandardFleet when nil, letting --one-ship substitute a shorter
// roster.
func NewMatch(log *logrus.Entry, p1, p2 *transport.Endpoint, token1, token2 string, fleet []board.ShipSpec, registry *TokenRegistry, turnTimeout, reconnectWindow time.Duration) *Match {
	if fleet == nil {
		fleet = board.StandardFleet
	}
	m := &Match{
		log:         log,
		endpoints:   [2]*transport.Endpoint{p1, p2},
		boards:      [2]*board.Board{board.New(board.Size), board.New(board.Size)},
		tokens:      [2]string{token1, token2},
		fleet:       fleet,
		spectators:  NewSpectatorHub(),
		fired:       [2]map[[2]int]struct{}{{}, {}},
		turnTimeout: turnTimeout,
	}
	m.recon = NewReconnectController(reconnectWindow, m.notifySlot, token1, token2, registry)
	m.router = NewEventRouter(log, func(player int) frameSender { return m.endpoints[player-1] })
	return m
}

// Subscribe registers cb to receive every Event the match emits.
func (m *Match) Subscribe(cb Subscriber) { m.subs = append(m.subs, cb) }

// Spectators exposes the match's SpectatorHub so the lobby can enqueue
// onlookers who arrive while this match is in progress.
func (m *Match) Spectators() *SpectatorHub { return m.spectators }

// Tokens returns the two players' reconnect tokens in slot order.
func (m *Match) Tokens() (string, string) { return m.tokens[0], m.tokens[1] }

// Endpoints returns the two players' current endpoints in slot order, for
// the lobby to requeue after the match concludes.
func (m *Match) Endpoints() (*transport.Endpoint, *transport.Endpoint) {
	return m.endpoints[0], m.endpoints[1]
}

func (m *Match) emit(ev Event) {
	m.router.Route(ev)
	for _, s := range m.subs {
		safeSubscriberCall(s, ev)
	}
}

func safeSubscriberCall(s Subscriber, ev Event) {
	defer func() { _ = recover() }()
	s(ev)
}

func (m *Match) endpoint(slot int) *transport.Endpoint { return m.endpoints[slot-1] }
func (m *Match) myBoard(slot int) *board.Board         { return m.boards[slot-1] }
func (m *Match) opponentBoard(slot int) *board.Board   { return m.boards[otherSlot(slot)-1] }

func (m *Match) notify(slot int, msg string) {
	_ = m.endpoint(slot).Send(wire.PacketGame, map[string]string{"msg": msg})
}

func (m *Match) notifySlot(slot int, text string) { m.notify(slot, text) }

// beginMatch runs the start-of-match handshake: legacy START frames,
// random ship placement, initial own/opponent views, the cheat reveal
// channel, and a spectator snapshot.
func (m *Match) beginMatch() error {
	m.emit(Event{Category: CategoryTurn, Type: "start", Payload: map[string]interface{}{
		"token_p1": m.tokens[0], "token_p2": m.tokens[1],
	}})
	m.notify(1, "INFO New game: you are Player 1")
	m.notify(2, "INFO New game: you are Player 2")
	if err := m.endpoint(1).Send(wire.PacketGame, map[string]string{"msg": "START you", "opponent": m.tokens[1]}); err != nil {
		return err
	}
	if err := m.endpoint(2).Send(wire.PacketGame, map[string]string{"msg": "START opp", "opponent": m.tokens[0]}); err != nil {
		return err
	}

	for _, b := range m.boards {
		if err := b.PlaceShipsRandomly(m.fleet); err != nil {
			return err
		}
	}

	if err := m.refreshViews(); err != nil {
		return err
	}
	if err := m.sendOppGrid(1); err != nil {
		return err
	}
	if err := m.sendOppGrid(2); err != nil {
		return err
	}
	m.spectators.Snapshot(m.boards[0], m.boards[1])
	return nil
}

// sendOppGrid delivers the always-on cheat/reveal channel: the true
// opponent board on a separate packet type a normal client never parses.
func (m *Match) sendOppGrid(slot int) error {
	opp := m.opponentBoard(slot)
	return m.endpoint(slot).Send(wire.PacketOppGrid, map[string]interface{}{
		"type": "opp_grid",
		"rows": opp.Rows(true),
	})
}

// refreshViews sends each player their own fleet reveal and the
// fog-of-war view of their opponent.
func (m *Match) refreshViews() error {
	for slot := 1; slot <= 2; slot++ {
		own := m.myBoard(slot)
		opp := m.opponentBoard(slot)
		if err := m.endpoint(slot).Send(wire.PacketGame, map[string]interface{}{"type": "grid", "rows": own.Rows(true)}); err != nil {
			return err
		}
		if err := m.endpoint(slot).Send(wire.PacketGame, map[string]interface{}{"type": "grid", "rows": opp.Rows(false)}); err != nil {
			return err
		}
	}
	return nil
}

// Run drives the match to conclusion: handshake, then alternating turns
// until one fleet is destroyed, a player concedes, or a dropped (or
// timed-out) player is neither reattached within the reconnect window nor
// replaced by a promoted spectator. It blocks the calling goroutine for the
// lifetime of the match.
func (m *Match) Run() Result {
	defer m.recon.Deregister()

	if err := m.beginMatch(); err != nil {
		m.log.WithError(err).Error("match handshake failed")
		return Result{Winner: 2, Reason: "handshake-error"}
	}
	m.current = 1

	for {
		m.notify(m.current, "INFO YOUR TURN - FIRE <coord> or QUIT")
		m.emit(Event{Category: CategoryTurn, Type: "prompt", Payload: map[string]interface{}{"player": m.current}})

		result, done := m.awaitOneCommand()
		if done {
			return result
		}
	}
}

// awaitOneCommand multiplexes across both player streams so a QUIT or CHAT
// from the idle player is handled immediately rather than stalling behind
// the shot clock; a FIRE from the idle player is rejected as out-of-turn.
// This is the Go select-based replacement for the reference's blocking
// single-stream read.
func (m *Match) awaitOneCommand() (Result, bool) {
	clock := time.NewTimer(m.turnTimeout)
	defer clock.Stop()

	select {
	case in := <-m.endpoint(1).Inbox:
		return m.handleInbound(1, in)
	case in := <-m.endpoint(2).Inbox:
		return m.handleInbound(2, in)
	case <-clock.C:
		return m.handleTimeout()
	}
}

func (m *Match) handleTimeout() (Result, bool) {
	m.log.WithField("slot", m.current).Info("shot clock expired")
	return m.handleDisconnect(m.current)
}

func (m *Match) handleInbound(slot int, in transport.Inbound) (Result, bool) {
	if in.Err != nil {
		return m.handleDisconnect(slot)
	}

	var body struct {
		Msg string `json:"msg"`
	}
	_ = in.Frame.Decode(&body)
	cmd, err := command.Parse(body.Msg)
	if err != nil {
		m.notify(slot, "ERR "+err.Error())
		return Result{}, false
	}

	switch cmd.Kind {
	case command.KindQuit:
		m.log.WithField("slot", slot).Info("player conceded")
		return m.dropAndConclude(slot, "concession"), true

	case command.KindChat:
		m.emit(Event{Category: CategoryChat, Type: "line", Payload: map[string]interface{}{"player": slot, "msg": cmd.Text}})
		other := otherSlot(slot)
		_ = m.endpoint(other).Send(wire.PacketChat, map[string]interface{}{"name": playerName(slot), "msg": cmd.Text})
		m.spectators.BroadcastPayload(map[string]interface{}{"type": "chat", "name": playerName(slot), "msg": cmd.Text})
		return Result{}, false

	case command.KindFire:
		if slot != m.current {
			m.notify(slot, "ERR Not your turn")
			return Result{}, false
		}
		return m.resolveShot(slot, cmd.Row, cmd.Col)
	}
	return Result{}, false
}

func playerName(slot int) string {
	if slot == 1 {
		return "P1"
	}
	return "P2"
}

func (m *Match) resolveShot(slot, row, col int) (Result, bool) {
	key := [2]int{row, col}
	if _, already := m.fired[slot-1][key]; already {
		m.notify(slot, "ERR Already fired at "+board.FormatCoordinate(row, col)+", choose another")
		return Result{}, false
	}
	m.fired[slot-1][key] = struct{}{}

	defender := otherSlot(slot)
	result, sunk := m.opponentBoard(slot).FireAt(row, col)
	m.shots[slot-1]++

	coord := board.FormatCoordinate(row, col)
	switch result {
	case board.ShotHit:
		m.notify(slot, "YOU HIT at "+coord)
		m.notify(defender, "OPPONENT HIT your ship at "+coord)
	case board.ShotMiss:
		m.notify(slot, "YOU MISSED at "+coord)
		m.notify(defender, "OPPONENT MISSED at "+coord)
	default:
		// unreachable: duplicate shots are rejected above
		m.notify(slot, "ERR Already fired at "+coord)
		return Result{}, false
	}
	if sunk != "" {
		m.notify(slot, "YOU SUNK opponent's "+sunk+" at "+coord)
		m.notify(defender, "OPPONENT SUNK your "+sunk+" at "+coord)
	}

	m.emit(Event{Category: CategoryTurn, Type: "shot", Payload: map[string]interface{}{
		"attacker": slot, "coord": coord, "result": string(result), "sunk": sunk,
	}})

	if err := m.refreshViews(); err != nil {
		m.log.WithError(err).Warn("refresh views failed after shot")
	}
	if (m.shots[0]+m.shots[1])%2 == 0 {
		m.spectators.Snapshot(m.boards[0], m.boards[1])
	}

	if m.opponentBoard(slot).AllShipsSunk() {
		return m.conclude(slot, "fleet destroyed"), true
	}

	m.current = otherSlot(slot)
	return Result{}, false
}

// conclude announces the winner/loser and emits the end-of-match event. It
// does not close connections; callers that need to drop a socket (a
// concession) do so via dropAndConclude.
func (m *Match) conclude(winner int, reason string) Result {
	loser := otherSlot(winner)
	shots := m.shots[winner-1]
	m.notify(winner, "YOU HAVE WON WITH "+strconv.Itoa(shots)+" SHOTS")
	m.notify(loser, "YOU HAVE LOST - opponent won with "+strconv.Itoa(shots)+" shots")
	if reason == "concession" {
		m.notify(winner, "INFO Opponent has forfeited - match over")
	}
	m.log.WithFields(logrus.Fields{"winner": winner, "reason": reason, "shots": shots}).Info("match finished")
	m.emit(Event{Category: CategoryTurn, Type: "end", Payload: map[string]interface{}{
		"winner": winner, "reason": reason, "shots": shots,
	}})
	m.spectators.Snapshot(m.boards[0], m.boards[1])
	return Result{Winner: winner, Reason: reason, Shots: shots}
}

func (m *Match) dropAndConclude(slot int, reason string) Result {
	winner := otherSlot(slot)
	result := m.conclude(winner, reason)
	_ = m.endpoint(slot).Close()
	return result
}

// handleDisconnect runs the reconnect -> spectator-promotion -> abandonment
// escalation for a single dropped slot. It blocks for up to the reconnect
// window, matching the reference's synchronous wait.
func (m *Match) handleDisconnect(slot int) (Result, bool) {
	m.log.WithField("slot", slot).Info("player disconnected, awaiting reconnect")
	if m.recon.Wait(slot) {
		ep, ok := m.recon.TakeNewSocket(slot)
		if ok {
			m.rebindSlot(slot, ep)
			return Result{}, false
		}
	}

	if promoted, ok := m.spectators.Promote(); ok {
		other := otherSlot(slot)
		m.notify(other, "INFO Opponent disconnected - starting new game (you remain "+playerName(other)+")")
		m.rebindSlot(slot, promoted)
		_ = promoted.Send(wire.PacketGame, map[string]string{"msg": "INFO YOU ARE NOW PLAYING - you've replaced the disconnected opponent"})
		m.boards = [2]*board.Board{board.New(board.Size), board.New(board.Size)}
		m.shots = [2]int{}
		m.fired = [2]map[[2]int]struct{}{{}, {}}
		if err := m.beginMatch(); err != nil {
			m.log.WithError(err).Error("restart after promotion failed")
		}
		m.current = 1
		return Result{}, false
	}

	return Result{Winner: otherSlot(slot), Reason: "timeout/disconnect"}, true
}

// rebindSlot swaps in a freshly (re)connected endpoint and pushes it the
// current board state: own reveal, opponent cheat grid, then opponent fog.
func (m *Match) rebindSlot(slot int, ep *transport.Endpoint) {
	m.endpoints[slot-1] = ep
	own := m.myBoard(slot)
	opp := m.opponentBoard(slot)
	_ = ep.Send(wire.PacketGame, map[string]interface{}{"type": "grid", "rows": own.Rows(true)})
	_ = m.sendOppGrid(slot)
	_ = ep.Send(wire.PacketGame, map[string]interface{}{"type": "grid", "rows": opp.Rows(false)})
}
