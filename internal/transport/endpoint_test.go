package transport

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unixthat/beer/internal/wire"
)

func TestSendRecvRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	server := New(serverConn, wire.NewLegacyCodec())
	client := New(clientConn, wire.NewLegacyCodec())
	defer server.Close()
	defer client.Close()

	require.NoError(t, server.Send(wire.PacketGame, map[string]string{"msg": "hello"}))

	select {
	case in := <-client.Inbox:
		require.NoError(t, in.Err)
		require.Equal(t, wire.PacketGame, in.Frame.Type)
		var body struct {
			Msg string `json:"msg"`
		}
		require.NoError(t, in.Frame.Decode(&body))
		require.Equal(t, "hello", body.Msg)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestDuplicateFrameDroppedByReplayWindow(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	server := New(serverConn, wire.NewLegacyCodec())
	client := New(clientConn, wire.NewLegacyCodec())
	defer server.Close()
	defer client.Close()

	f, err := wire.Encode(wire.PacketGame, 0, map[string]string{"msg": "first"})
	require.NoError(t, err)
	require.NoError(t, server.codec.WriteFrame(serverConn, f))

	select {
	case in := <-client.Inbox:
		require.NoError(t, in.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first frame")
	}

	// Re-send the identical sequence number; the replay window on the
	// client side must drop it rather than deliver it twice.
	require.NoError(t, server.codec.WriteFrame(serverConn, f))

	select {
	case in := <-client.Inbox:
		t.Fatalf("unexpected second delivery: %+v", in)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCrcErrorTriggersNakAndContinues(t *testing.T) {
	serverConn, peerConn := net.Pipe()
	defer serverConn.Close()
	defer peerConn.Close()

	server := New(serverConn, wire.NewLegacyCodec())
	defer server.Close()

	peerCodec := wire.NewLegacyCodec()
	received := make(chan wire.Frame, 4)
	go func() {
		for {
			f, err := peerCodec.ReadFrame(peerConn)
			if err != nil {
				return
			}
			received <- f
		}
	}()

	f, err := wire.Encode(wire.PacketGame, 5, map[string]string{"msg": "corrupt me"})
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, peerCodec.WriteFrame(&buf, f))
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = peerConn.Write(corrupted)
	require.NoError(t, err)

	select {
	case nak := <-received:
		require.Equal(t, wire.PacketNAK, nak.Type)
		require.Equal(t, uint32(5), nak.Seq)
		require.Empty(t, nak.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for NAK")
	}

	// The reader goroutine must still be alive: a good frame sent right
	// after the corrupted one is delivered normally.
	good, err := wire.Encode(wire.PacketGame, 6, map[string]string{"msg": "hello"})
	require.NoError(t, err)
	require.NoError(t, peerCodec.WriteFrame(peerConn, good))

	select {
	case in := <-server.Inbox:
		require.NoError(t, in.Err)
		require.Equal(t, uint32(6), in.Frame.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame after recovery")
	}

	// Drain the ACK the server sent for the good frame so its write
	// doesn't block.
	select {
	case ack := <-received:
		require.Equal(t, wire.PacketACK, ack.Type)
		require.Equal(t, uint32(6), ack.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ACK")
	}
}

func TestRepeatedCorruptionEscalatesToDisconnect(t *testing.T) {
	serverConn, peerConn := net.Pipe()
	defer serverConn.Close()
	defer peerConn.Close()

	server := New(serverConn, wire.NewLegacyCodec())
	defer server.Close()

	peerCodec := wire.NewLegacyCodec()
	received := make(chan wire.Frame, maxConsecutiveCorruption+2)
	go func() {
		for {
			f, err := peerCodec.ReadFrame(peerConn)
			if err != nil {
				return
			}
			received <- f
		}
	}()

	var stream bytes.Buffer
	for i := 0; i < maxConsecutiveCorruption+1; i++ {
		f, err := wire.Encode(wire.PacketGame, uint32(i), map[string]string{"msg": "x"})
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, peerCodec.WriteFrame(&buf, f))
		corrupted := buf.Bytes()
		corrupted[len(corrupted)-1] ^= 0xFF
		stream.Write(corrupted)
	}
	_, err := peerConn.Write(stream.Bytes())
	require.NoError(t, err)

	for i := 0; i < maxConsecutiveCorruption; i++ {
		select {
		case nak := <-received:
			require.Equal(t, wire.PacketNAK, nak.Type)
			require.Equal(t, uint32(i), nak.Seq)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for NAK #%d", i)
		}
	}

	select {
	case in := <-server.Inbox:
		require.Error(t, in.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for disconnect after repeated corruption")
	}
}

func TestCloseStopsReaderGoroutine(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	server := New(serverConn, wire.NewLegacyCodec())
	require.NoError(t, server.Close())

	// Inbox may carry one buffered error from the closed read before it's
	// closed; drain until the channel itself closes.
	closed := false
	for !closed {
		select {
		case _, ok := <-server.Inbox:
			if !ok {
				closed = true
			}
		case <-time.After(time.Second):
			t.Fatal("Inbox never closed")
		}
	}
}
