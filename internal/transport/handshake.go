package transport

import (
	"bufio"
	"crypto/ecdh"
	"encoding/hex"
	"fmt"
	"net"

	ourcrypto "github.com/unixthat/beer/internal/crypto"
	"github.com/unixthat/beer/internal/wire"
)

// SecureMode selects whether a handshake negotiates AEAD framing or leaves
// the legacy CRC32 codec in place.
type SecureMode bool

const (
	Secure   SecureMode = true
	Insecure SecureMode = false
)

// readHelloLine reads exactly one "HELLO <hex>\n" line without
// over-reading into the framed bytes that follow, mirroring the reference
// handshake's one-shot recv().
func readHelloLine(conn net.Conn) (string, error) {
	line, err := bufio.NewReaderSize(singleByteReader{conn}, 1).ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

// singleByteReader forces bufio to pull one byte per Read call so it never
// buffers bytes past the newline, which would otherwise be lost to the
// frame codec reading from conn directly afterward.
type singleByteReader struct{ net.Conn }

func (r singleByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return r.Conn.Read(p[:1])
}

// RekeyMaterial is the ECDH state an Endpoint needs to carry a session past
// its initial handshake: our own private key and the peer's original public
// key, both fixed for the life of the connection. A server rotates its own
// ephemeral key on rekey and derives the new shared secret unilaterally
// against the client's unchanging public key, so only the server side ever
// needs to generate a second key pair; the client just needs this pair held
// onto so it can recompute the same shared secret when a REKEY frame
// arrives. Nil for connections running the legacy codec.
type RekeyMaterial struct {
	OwnPrivate *ecdh.PrivateKey
	PeerPublic []byte
}

// ClientHandshake performs the HELLO exchange as the connecting side and
// returns a codec for subsequent frames: secure negotiates AES-GCM AEAD,
// insecure keeps CRC32 framing with no key exchange at all.
func ClientHandshake(conn net.Conn, secure SecureMode) (*wire.Codec, *RekeyMaterial, error) {
	if !secure {
		return wire.NewLegacyCodec(), nil, nil
	}
	pair, err := ourcrypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	if _, err := fmt.Fprintf(conn, "HELLO %s\n", hex.EncodeToString(pair.Public)); err != nil {
		return nil, nil, err
	}
	line, err := readHelloLine(conn)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake failed waiting for server HELLO: %w", err)
	}
	peerPub, err := parseHelloLine(line)
	if err != nil {
		return nil, nil, err
	}
	key, err := ourcrypto.DeriveSessionKey(pair.Private, peerPub)
	if err != nil {
		return nil, nil, err
	}
	aead, err := ourcrypto.NewAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	return wire.NewSecureCodec(aead), &RekeyMaterial{OwnPrivate: pair.Private, PeerPublic: peerPub}, nil
}

// ServerHandshake performs the HELLO exchange as the accepting side.
func ServerHandshake(conn net.Conn, secure SecureMode) (*wire.Codec, *RekeyMaterial, error) {
	if !secure {
		return wire.NewLegacyCodec(), nil, nil
	}
	line, err := readHelloLine(conn)
	if err != nil {
		return nil, nil, fmt.Errorf("handshake failed waiting for client HELLO: %w", err)
	}
	peerPub, err := parseHelloLine(line)
	if err != nil {
		return nil, nil, err
	}
	pair, err := ourcrypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	if _, err := fmt.Fprintf(conn, "HELLO %s\n", hex.EncodeToString(pair.Public)); err != nil {
		return nil, nil, err
	}
	key, err := ourcrypto.DeriveSessionKey(pair.Private, peerPub)
	if err != nil {
		return nil, nil, err
	}
	aead, err := ourcrypto.NewAEAD(key)
	if err != nil {
		return nil, nil, err
	}
	return wire.NewSecureCodec(aead), &RekeyMaterial{OwnPrivate: pair.Private, PeerPublic: peerPub}, nil
}

func parseHelloLine(line string) ([]byte, error) {
	const prefix = "HELLO "
	if len(line) <= len(prefix) || line[:len(prefix)] != prefix {
		return nil, fmt.Errorf("handshake failed: expected HELLO line, got %q", line)
	}
	hexPart := line[len(prefix):]
	for len(hexPart) > 0 && (hexPart[len(hexPart)-1] == '\n' || hexPart[len(hexPart)-1] == '\r') {
		hexPart = hexPart[:len(hexPart)-1]
	}
	return hex.DecodeString(hexPart)
}
