package crypto

import (
	"crypto/ecdh"
	"sync"
	"time"
)

// Rekey thresholds, matching the reference implementation's
// REKEY_PACKET_THRESHOLD / REKEY_TIME_THRESHOLD.
const (
	RekeyPacketThreshold = 1024
	RekeyTimeThreshold   = time.Hour
)

// RekeyTracker decides when a session should rotate its AEAD key and holds
// the ephemeral private key staged for an in-flight rekey. The server side
// is the sole initiator (see DESIGN.md's Open Question resolution); clients
// only re-derive the key when a REKEY frame arrives and send nothing back.
type RekeyTracker struct {
	mu            sync.Mutex
	packetCount   int
	lastRekey     time.Time
	pendingPriv   *ecdh.PrivateKey
	pendingPublic []byte
}

// NewRekeyTracker starts a tracker with its clock reset to now.
func NewRekeyTracker() *RekeyTracker {
	return &RekeyTracker{lastRekey: time.Now()}
}

// RecordPacket counts one more packet sent under the current key, and
// reports a fresh public key to send in a REKEY frame once either
// threshold is crossed. A non-nil return means a rekey is now in flight;
// call CompleteRekey with the peer's public key to finish it.
func (t *RekeyTracker) RecordPacket() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.packetCount++
	if t.packetCount < RekeyPacketThreshold && time.Since(t.lastRekey) < RekeyTimeThreshold {
		return nil, nil
	}
	pair, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	t.pendingPriv = pair.Private
	t.pendingPublic = pair.Public
	t.packetCount = 0
	t.lastRekey = time.Now()
	return pair.Public, nil
}

// CompleteRekey derives the new session key from the staged private key and
// the peer's public key bytes, clearing the in-flight state.
func (t *RekeyTracker) CompleteRekey(peerPublic []byte) ([]byte, error) {
	t.mu.Lock()
	priv := t.pendingPriv
	t.mu.Unlock()

	if priv == nil {
		return nil, errNoRekeyInProgress
	}
	key, err := DeriveSessionKey(priv, peerPublic)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.pendingPriv = nil
	t.pendingPublic = nil
	t.mu.Unlock()
	return key, nil
}

type rekeyError string

func (e rekeyError) Error() string { return string(e) }

const errNoRekeyInProgress = rekeyError("no rekey in progress: missing staged private key")
