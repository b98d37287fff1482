package lobby

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

func testLobby() *Lobby {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return New(log.WithField("test", true), Options{
		TurnTimeout:     5 * time.Second,
		ReconnectWindow: 5 * time.Second,
	})
}

// dialPeer hands handleConn one side of an in-memory pipe and wraps the
// other side in a transport.Endpoint, exactly as internal/client does, so
// the peer's Inbox already has ACK/NAK frames filtered out.
func dialPeer(t *testing.T, l *Lobby, token string) *transport.Endpoint {
	t.Helper()
	serverConn, peerConn := net.Pipe()
	t.Cleanup(func() { _ = peerConn.Close() })

	go l.handleConn(serverConn)

	peer := transport.New(peerConn, wire.NewLegacyCodec())
	t.Cleanup(func() { _ = peer.Close() })
	require.NoError(t, peer.Send(wire.PacketGame, map[string]string{"token": token}))
	return peer
}

func readMsg(t *testing.T, peer *transport.Endpoint) string {
	t.Helper()
	select {
	case in := <-peer.Inbox:
		require.NoError(t, in.Err)
		var body struct {
			Msg string `json:"msg"`
		}
		require.NoError(t, in.Frame.Decode(&body))
		return body.Msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

func TestEnqueueReportsQueuePosition(t *testing.T) {
	l := testLobby()
	peer := dialPeer(t, l, "solo-player")

	msg := readMsg(t, peer)
	require.Equal(t, "INFO You are currently number 1 in the queue to play", msg)
}

func TestTwoPlayersStartAMatch(t *testing.T) {
	l := testLobby()
	peer1 := dialPeer(t, l, "p1")

	msg := readMsg(t, peer1)
	require.Equal(t, "INFO You are currently number 1 in the queue to play", msg)

	peer2 := dialPeer(t, l, "p2")

	queueMsg2 := readMsg(t, peer2)
	require.Equal(t, "INFO You are currently number 2 in the queue to play", queueMsg2)

	// Pairing fires as soon as player 2 is enqueued; both sides should
	// receive the opening turn-system message before the legacy START frame.
	msg1 := readMsg(t, peer1)
	require.Equal(t, "INFO New game: you are Player 1", msg1)

	msg2 := readMsg(t, peer2)
	require.Equal(t, "INFO New game: you are Player 2", msg2)
}
