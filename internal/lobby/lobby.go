// Package lobby accepts incoming connections, pairs waiting clients into
// matches, and requeues players once a match concludes, grounded on
// server.py's accept loop / _try_pair_lobby / requeue_players.
package lobby

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/unixthat/beer/internal/board"
	"github.com/unixthat/beer/internal/metrics"
	"github.com/unixthat/beer/internal/session"
	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

// entry is one client waiting in the queue: its endpoint and the reconnect
// token it presented (or was minted) at handshake time.
type entry struct {
	ep    *transport.Endpoint
	token string
}

// Options configures a Lobby's match behavior.
type Options struct {
	Secure          bool
	OneShip         bool
	TurnTimeout     time.Duration
	ReconnectWindow time.Duration
}

// Lobby accepts connections on a listener, queues waiting clients, and
// keeps exactly one match running at a time, chaining the next match as
// soon as the current one concludes.
type Lobby struct {
	log      *logrus.Entry
	opts     Options
	registry *session.TokenRegistry

	mu      sync.Mutex
	waiting []entry
	current *session.Match
}

// New constructs a Lobby ready to Serve connections.
func New(log *logrus.Entry, opts Options) *Lobby {
	return &Lobby{
		log:      log,
		opts:     opts,
		registry: session.NewTokenRegistry(),
	}
}

// Serve accepts connections from ln until it returns an error (typically
// because the listener was closed during shutdown).
func (l *Lobby) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go l.handleConn(conn)
	}
}

func (l *Lobby) handleConn(conn net.Conn) {
	log := l.log.WithField("addr", conn.RemoteAddr())
	metrics.ConnectionsTotal.Inc()

	codec, rekeyMaterial, err := transport.ServerHandshake(conn, transport.SecureMode(l.opts.Secure))
	if err != nil {
		log.WithError(err).Warn("handshake failed")
		_ = conn.Close()
		return
	}
	ep := transport.New(conn, codec)
	ep.EnableRekey(rekeyMaterial, true)

	in, ok := <-ep.Inbox
	if !ok || in.Err != nil {
		log.Warn("connection dropped before sending handshake frame")
		_ = ep.Close()
		return
	}
	var body struct {
		Token string `json:"token"`
	}
	_ = in.Frame.Decode(&body)
	log.WithField("token", body.Token).Debug("received handshake token")

	if body.Token != "" {
		if ctrl, found := l.registry.Lookup(body.Token); found {
			if ctrl.AttachPlayer(body.Token, ep) {
				log.WithField("token", body.Token).Info("reattached via reconnect token")
			}
			return
		}
	}

	l.enqueue(ep, body.Token)
}

func (l *Lobby) enqueue(ep *transport.Endpoint, token string) {
	if token == "" {
		token = "PID" + xid.New().String()
	}

	l.mu.Lock()
	l.waiting = append(l.waiting, entry{ep: ep, token: token})
	pos := len(l.waiting)
	current := l.current
	l.mu.Unlock()
	metrics.LobbyQueueDepth.Set(float64(pos))

	if current != nil {
		_ = ep.Send(wire.PacketGame, map[string]string{"msg": "INFO You are now spectating"})
		current.Spectators().Add(ep)
	}
	_ = ep.Send(wire.PacketGame, map[string]string{"msg": "INFO You are currently number " + strconv.Itoa(pos) + " in the queue to play"})

	l.tryPair()
}

// tryPair launches a new match if two clients are waiting and no match is
// currently running.
func (l *Lobby) tryPair() {
	l.mu.Lock()
	if l.current != nil || len(l.waiting) < 2 {
		l.mu.Unlock()
		return
	}
	p1 := l.waiting[0]
	p2 := l.waiting[1]
	l.waiting = l.waiting[2:]
	l.mu.Unlock()

	if p1.token != "" && p1.token == p2.token {
		l.log.WithField("token", p1.token).Warn("duplicate token in lobby, resetting second slot")
		p2.token = "PID" + xid.New().String()
	}

	fleet := []board.ShipSpec(nil)
	if l.opts.OneShip {
		fleet = board.OneShipFleet
	}

	match := session.NewMatch(l.log, p1.ep, p2.ep, p1.token, p2.token, fleet, l.registry, l.opts.TurnTimeout, l.opts.ReconnectWindow)

	l.mu.Lock()
	l.current = match
	depth := len(l.waiting)
	l.mu.Unlock()
	metrics.MatchesInProgress.Set(1)
	metrics.LobbyQueueDepth.Set(float64(depth))

	l.log.Info("launching new match")
	go l.runMatch(match)
}

func (l *Lobby) runMatch(match *session.Match) {
	result := match.Run()
	token1, token2 := match.Tokens()
	ep1, ep2 := match.Endpoints()

	winnerToken, loserToken := token1, token2
	winnerEp, loserEp := ep1, ep2
	if result.Winner == 2 {
		winnerToken, loserToken = token2, token1
		winnerEp, loserEp = ep2, ep1
	}
	l.log.WithFields(logrus.Fields{"winner": winnerToken, "reason": result.Reason, "shots": result.Shots}).Info("match completed")

	l.broadcastWaiting("INFO " + winnerToken + " BEAT " + loserToken + " IN " + strconv.Itoa(result.Shots) + " SHOTS")

	l.mu.Lock()
	l.current = nil
	l.waiting = append([]entry{{ep: winnerEp, token: winnerToken}}, l.waiting...)
	if result.Reason != "timeout/disconnect" && result.Reason != "concession" {
		l.waiting = append(l.waiting, entry{ep: loserEp, token: loserToken})
	}
	waitingCopy := append([]entry(nil), l.waiting...)
	l.mu.Unlock()
	metrics.MatchesInProgress.Set(0)
	metrics.LobbyQueueDepth.Set(float64(len(waitingCopy)))

	for pos, e := range waitingCopy {
		if pos < 2 {
			continue
		}
		_ = e.ep.Send(wire.PacketGame, map[string]string{"msg": "INFO You are number " + strconv.Itoa(pos-1) + " in the queue to play"})
	}

	l.tryPair()
}

func (l *Lobby) broadcastWaiting(msg string) {
	l.mu.Lock()
	waitingCopy := append([]entry(nil), l.waiting...)
	l.mu.Unlock()
	for _, e := range waitingCopy {
		_ = e.ep.Send(wire.PacketGame, map[string]string{"msg": msg})
	}
}
