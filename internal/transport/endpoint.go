// Package transport wraps a net.Conn with the frame codec, replay window,
// and retransmit buffer, presenting a Send method and an Inbox channel to
// the session layer above it. Each Endpoint owns a background reader goroutine
// that feeds a channel, the Go analogue of the spec's "reader task with a
// mailbox" model.
package transport

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	ourcrypto "github.com/unixthat/beer/internal/crypto"
	"github.com/unixthat/beer/internal/metrics"
	"github.com/unixthat/beer/internal/reliability"
	"github.com/unixthat/beer/internal/wire"
)

// maxConsecutiveCorruption bounds how many CrcError/AeadAuthError frames in
// a row get a NAK-and-continue before the connection is treated as dead.
// A run this long past a handful of retransmits means the link itself is
// broken, not just one unlucky frame.
const maxConsecutiveCorruption = 8

// Inbound is a frame delivered by the reader goroutine, or a terminal error
// if the connection died.
type Inbound struct {
	Frame wire.Frame
	Err   error
}

// Endpoint is one side of a framed connection: codec, sequencing, replay
// protection, and a bounded retransmit buffer for resend-on-NAK.
type Endpoint struct {
	conn       net.Conn
	codec      *wire.Codec
	replay     *reliability.ReplayWindow
	retransmit *reliability.RetransmitBuffer
	sendSeq    uint32

	rekeyMaterial *RekeyMaterial
	rekeyTracker  *ourcrypto.RekeyTracker

	Inbox chan Inbound
	done  chan struct{}
}

// New wraps conn with codec and starts its reader goroutine.
func New(conn net.Conn, codec *wire.Codec) *Endpoint {
	e := &Endpoint{
		conn:       conn,
		codec:      codec,
		replay:     reliability.NewReplayWindow(reliability.DefaultWindowSize),
		retransmit: reliability.NewRetransmitBuffer(reliability.DefaultBufferSize),
		Inbox:      make(chan Inbound, 8),
		done:       make(chan struct{}),
	}
	go e.readLoop()
	return e
}

// SwapCodec replaces the active codec, used after a rekey or handshake
// upgrade from legacy CRC framing to AEAD framing. Safe to call only
// between frames (the reader goroutine reads the pointer once per frame).
func (e *Endpoint) SwapCodec(codec *wire.Codec) { e.codec = codec }

// EnableRekey arms in-session key rotation once a secure handshake has
// completed. Only the server side (initiator true) ever rotates its own
// keypair and counts packets toward the threshold; the client side just
// holds onto material so it can recompute the shared secret when a REKEY
// frame names the server's new public key.
func (e *Endpoint) EnableRekey(material *RekeyMaterial, initiator bool) {
	if material == nil {
		return
	}
	e.rekeyMaterial = material
	if initiator {
		e.rekeyTracker = ourcrypto.NewRekeyTracker()
	}
}

// Conn exposes the underlying connection, e.g. for address logging.
func (e *Endpoint) Conn() net.Conn { return e.conn }

func (e *Endpoint) readLoop() {
	defer close(e.Inbox)
	var corruption int
	for {
		f, err := e.codec.ReadFrame(e.conn)
		if err != nil {
			if seq, ok := recoverableSeq(err); ok {
				corruption++
				if corruption <= maxConsecutiveCorruption {
					if nakErr := e.sendNak(seq); nakErr != nil {
						select {
						case e.Inbox <- Inbound{Err: nakErr}:
						case <-e.done:
						}
						return
					}
					continue
				}
				// Repeated corruption past the threshold: give up on
				// this link rather than NAK forever.
			}
			select {
			case e.Inbox <- Inbound{Err: err}:
			case <-e.done:
			}
			return
		}
		corruption = 0

		metrics.FramesReceived.WithLabelValues(f.Type.String()).Inc()

		switch f.Type {
		case wire.PacketACK:
			e.retransmit.Ack(f.Seq)
			continue
		case wire.PacketNAK:
			e.resend(f.Seq)
			continue
		case wire.PacketRekey:
			e.handleRekeyFrame(f)
			continue
		}

		if !e.replay.Check(f.Seq) {
			metrics.ReplayRejected.Inc()
			continue // duplicate or stale, silently dropped per the replay window
		}
		e.replay.Update(f.Seq)

		if err := e.sendAck(f.Seq); err != nil {
			select {
			case e.Inbox <- Inbound{Err: err}:
			case <-e.done:
			}
			return
		}

		select {
		case e.Inbox <- Inbound{Frame: f}:
		case <-e.done:
			return
		}
	}
}

// recoverableSeq reports whether err is a corrupted-but-identifiable frame
// (bad CRC or failed AEAD authentication) and, if so, the seq to NAK. Both
// kinds read the header successfully before the corruption was detected, so
// the seq survives even though the payload didn't.
func recoverableSeq(err error) (uint32, bool) {
	var crcErr *wire.CrcError
	if errors.As(err, &crcErr) {
		return crcErr.Seq, true
	}
	var aeadErr *wire.AeadAuthError
	if errors.As(err, &aeadErr) {
		return aeadErr.Seq, true
	}
	return 0, false
}

// handleRekeyFrame applies a peer-announced public key: the receiving side
// never generates a key pair of its own here, it just re-derives the shared
// secret against its own static private key and swaps codecs.
func (e *Endpoint) handleRekeyFrame(f wire.Frame) {
	if e.rekeyMaterial == nil {
		return
	}
	var body struct {
		Pubkey string `json:"pubkey"`
	}
	if err := f.Decode(&body); err != nil {
		return
	}
	peerNewPub, err := hex.DecodeString(body.Pubkey)
	if err != nil {
		return
	}
	key, err := ourcrypto.DeriveSessionKey(e.rekeyMaterial.OwnPrivate, peerNewPub)
	if err != nil {
		return
	}
	aead, err := ourcrypto.NewAEAD(key)
	if err != nil {
		return
	}
	e.SwapCodec(wire.NewSecureCodec(aead))
}

// maybeRekey runs after a frame goes out under the current key: if the
// tracker decides it's time, it announces the tracker's new public key to
// the peer (still under the old codec, so the peer can decrypt it), then
// swaps our own codec to the new key derived against the peer's unchanging
// public key. Only the initiating (server) side carries a tracker.
func (e *Endpoint) maybeRekey() {
	if e.rekeyTracker == nil {
		return
	}
	newPub, err := e.rekeyTracker.RecordPacket()
	if err != nil || newPub == nil {
		return
	}

	seq := e.nextSeq()
	f, err := wire.Encode(wire.PacketRekey, seq, struct {
		Pubkey string `json:"pubkey"`
	}{Pubkey: hex.EncodeToString(newPub)})
	if err != nil {
		return
	}
	var buf bytes.Buffer
	if err := e.codec.WriteFrame(&buf, f); err != nil {
		return
	}
	if _, err := e.conn.Write(buf.Bytes()); err != nil {
		return
	}

	key, err := e.rekeyTracker.CompleteRekey(e.rekeyMaterial.PeerPublic)
	if err != nil {
		return
	}
	aead, err := ourcrypto.NewAEAD(key)
	if err != nil {
		return
	}
	e.SwapCodec(wire.NewSecureCodec(aead))
}

func (e *Endpoint) resend(seq uint32) {
	raw, ok := e.retransmit.Get(seq)
	if !ok {
		return
	}
	_, _ = e.conn.Write(raw)
}

// sendAck and sendNak carry the referenced frame's seq directly in the
// header, with no payload. They are not new frames of the sender's own
// stream, so they bypass nextSeq() and Send's retransmit bookkeeping.
func (e *Endpoint) sendAck(seq uint32) error {
	return e.codec.WriteFrame(e.conn, wire.Frame{Type: wire.PacketACK, Seq: seq})
}

func (e *Endpoint) sendNak(seq uint32) error {
	return e.codec.WriteFrame(e.conn, wire.Frame{Type: wire.PacketNAK, Seq: seq})
}

func (e *Endpoint) nextSeq() uint32 {
	return atomic.AddUint32(&e.sendSeq, 1) - 1
}

// Send encodes v as the JSON payload of a ptype frame and writes it,
// stashing the raw bytes for retransmission if a NAK arrives.
func (e *Endpoint) Send(ptype wire.PacketType, v interface{}) error {
	seq := e.nextSeq()
	f, err := wire.Encode(ptype, seq, v)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", ptype, err)
	}

	var buf bytes.Buffer
	if err := e.codec.WriteFrame(&buf, f); err != nil {
		return fmt.Errorf("write %s frame: %w", ptype, err)
	}
	e.retransmit.Store(seq, buf.Bytes())
	_, err = e.conn.Write(buf.Bytes())
	if err != nil {
		return err
	}
	metrics.FramesSent.WithLabelValues(ptype.String()).Inc()
	if ptype != wire.PacketRekey {
		e.maybeRekey()
	}
	return nil
}

// Close stops the reader goroutine and closes the underlying connection.
func (e *Endpoint) Close() error {
	close(e.done)
	return e.conn.Close()
}
