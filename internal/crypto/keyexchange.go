// Package crypto implements the session's ECDH(P-256)+HKDF-SHA256 key
// exchange and the AES-GCM AEAD that rides on top of the derived key. Both
// are "platform" primitives per the wire protocol's mandate: no bespoke
// cryptography is implemented here, only standard library and
// golang.org/x/crypto building blocks wired together.
package crypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sessionKeyInfo is the HKDF info label, matching the reference
// implementation's derive_session_key.
const sessionKeyInfo = "beer-session"

// sessionKeyLen is the AES-256-GCM key size HKDF is asked to produce.
const sessionKeyLen = 32

// KeyPair is an ephemeral ECDH key pair used for the initial handshake and
// for in-session rekeying.
type KeyPair struct {
	Private *ecdh.PrivateKey
	Public  []byte // uncompressed point encoding
}

// GenerateKeyPair creates a fresh P-256 ECDH key pair.
func GenerateKeyPair() (KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Private: priv, Public: priv.PublicKey().Bytes()}, nil
}

// DeriveSessionKey runs ECDH against peerPublic using priv, then HKDF-SHA256
// over the shared secret to produce a 32-byte AES-GCM key.
func DeriveSessionKey(priv *ecdh.PrivateKey, peerPublic []byte) ([]byte, error) {
	peerKey, err := ecdh.P256().NewPublicKey(peerPublic)
	if err != nil {
		return nil, err
	}
	shared, err := priv.ECDH(peerKey)
	if err != nil {
		return nil, err
	}
	kdf := hkdf.New(sha256.New, shared, nil, []byte(sessionKeyInfo))
	key := make([]byte, sessionKeyLen)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}
