package session

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unixthat/beer/internal/board"
	"github.com/unixthat/beer/internal/transport"
	"github.com/unixthat/beer/internal/wire"
)

func newPipeEndpoint(t *testing.T) (*transport.Endpoint, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })
	return transport.New(a, wire.NewLegacyCodec()), b
}

func TestSpectatorHubAddSendsWelcome(t *testing.T) {
	hub := NewSpectatorHub()
	ep, peer := newPipeEndpoint(t)
	peerCodec := wire.NewLegacyCodec()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f, err := peerCodec.ReadFrame(peer)
		require.NoError(t, err)
		var body struct {
			Msg string `json:"msg"`
		}
		require.NoError(t, f.Decode(&body))
		require.Equal(t, "INFO YOU ARE NOW SPECTATING", body.Msg)
	}()

	hub.Add(ep)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for welcome message")
	}
	require.False(t, hub.Empty())
}

func TestSpectatorHubPromoteIsFIFO(t *testing.T) {
	hub := NewSpectatorHub()
	ep1, peer1 := newPipeEndpoint(t)
	ep2, peer2 := newPipeEndpoint(t)
	go drainFrames(peer1)
	go drainFrames(peer2)

	hub.Add(ep1)
	hub.Add(ep2)

	promoted, ok := hub.Promote()
	require.True(t, ok)
	require.Equal(t, ep1, promoted)
	require.False(t, hub.Empty())

	promoted, ok = hub.Promote()
	require.True(t, ok)
	require.Equal(t, ep2, promoted)
	require.True(t, hub.Empty())

	_, ok = hub.Promote()
	require.False(t, ok)
}

func TestSpectatorHubSnapshotBroadcastsBothBoards(t *testing.T) {
	hub := NewSpectatorHub()
	ep, peer := newPipeEndpoint(t)
	peerCodec := wire.NewLegacyCodec()

	b1, b2 := board.New(board.Size), board.New(board.Size)
	require.NoError(t, b1.PlaceShipsRandomly(board.OneShipFleet))
	require.NoError(t, b2.PlaceShipsRandomly(board.OneShipFleet))

	snapshotFrame := make(chan wire.Frame, 1)
	go func() {
		// First frame is the Add() welcome, second is the snapshot.
		_, err := peerCodec.ReadFrame(peer)
		if err != nil {
			return
		}
		f, err := peerCodec.ReadFrame(peer)
		if err != nil {
			return
		}
		snapshotFrame <- f
	}()

	hub.Add(ep)
	hub.Snapshot(b1, b2)

	select {
	case f := <-snapshotFrame:
		var body map[string]interface{}
		require.NoError(t, f.Decode(&body))
		require.Equal(t, "spec_grid", body["type"])
		require.NotNil(t, body["rows_p1"])
		require.NotNil(t, body["rows_p2"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
}

func drainFrames(conn net.Conn) {
	codec := wire.NewLegacyCodec()
	for {
		if _, err := codec.ReadFrame(conn); err != nil {
			return
		}
	}
}
