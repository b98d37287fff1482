package wire

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
)

const (
	magic      uint16 = 0xBEEF
	version    uint8  = 1
	headerSize        = 12 // magic(2) + version(1) + ptype(1) + seq(4) + length(4)
	crcSize           = 4
	nonceSize         = 12
)

// Frame is a single unit of the wire protocol: a packet type, a monotonic
// per-direction sequence number, and a JSON payload.
type Frame struct {
	Type    PacketType
	Seq     uint32
	Payload []byte // decoded JSON payload bytes
}

// Encode marshals v as the frame's JSON payload.
func Encode(ptype PacketType, seq uint32, v interface{}) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: ptype, Seq: seq, Payload: b}, nil
}

// Decode unmarshals the frame's payload into v.
func (f Frame) Decode(v interface{}) error {
	return json.Unmarshal(f.Payload, v)
}

// Codec packs and unpacks frames in either legacy (CRC32) or secure (AEAD)
// mode, matching the reference implementation's dual framing.
type Codec struct {
	AEAD cipher.AEAD // nil selects legacy CRC32 mode
}

// NewLegacyCodec returns a codec using CRC32-checksummed plaintext frames.
func NewLegacyCodec() *Codec { return &Codec{} }

// NewSecureCodec returns a codec that seals every frame body with aead.
func NewSecureCodec(aead cipher.AEAD) *Codec { return &Codec{AEAD: aead} }

func header(ptype PacketType, seq uint32, bodyLen uint32) []byte {
	h := make([]byte, headerSize)
	binary.BigEndian.PutUint16(h[0:2], magic)
	h[2] = version
	h[3] = byte(ptype)
	binary.BigEndian.PutUint32(h[4:8], seq)
	binary.BigEndian.PutUint32(h[8:12], bodyLen)
	return h
}

// WriteFrame serializes f onto w.
func (c *Codec) WriteFrame(w io.Writer, f Frame) error {
	if c.AEAD != nil {
		return c.writeSecure(w, f)
	}
	return c.writeLegacy(w, f)
}

func (c *Codec) writeLegacy(w io.Writer, f Frame) error {
	bodyLen := uint32(len(f.Payload))
	h := header(f.Type, f.Seq, bodyLen)
	sum := crc32.ChecksumIEEE(append(append([]byte{}, h...), f.Payload...))
	buf := bytes.NewBuffer(nil)
	buf.Write(h)
	var crcBytes [crcSize]byte
	binary.BigEndian.PutUint32(crcBytes[:], sum)
	buf.Write(crcBytes[:])
	buf.Write(f.Payload)
	_, err := w.Write(buf.Bytes())
	return err
}

func (c *Codec) writeSecure(w io.Writer, f Frame) error {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	bodyLen := uint32(nonceSize + len(f.Payload) + c.AEAD.Overhead())
	h := header(f.Type, f.Seq, bodyLen)
	ciphertext := c.AEAD.Seal(nil, nonce, f.Payload, nil)
	buf := bytes.NewBuffer(nil)
	buf.Write(h)
	buf.Write(nonce)
	buf.Write(ciphertext)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFrame deserializes one frame from r.
func (c *Codec) ReadFrame(r io.Reader) (Frame, error) {
	h := make([]byte, headerSize)
	if _, err := io.ReadFull(r, h); err != nil {
		return Frame{}, &IncompleteError{Want: headerSize, Got: 0}
	}
	gotMagic := binary.BigEndian.Uint16(h[0:2])
	if gotMagic != magic {
		return Frame{}, &BadMagicError{Got: gotMagic}
	}
	if h[2] != version {
		return Frame{}, &FrameError{Reason: "unsupported version"}
	}
	ptype := PacketType(h[3])
	seq := binary.BigEndian.Uint32(h[4:8])
	bodyLen := binary.BigEndian.Uint32(h[8:12])

	if c.AEAD != nil {
		// length is the nonce+ciphertext+tag size for secure frames.
		body := make([]byte, bodyLen)
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, &IncompleteError{Want: int(bodyLen), Got: 0}
		}
		return c.decodeSecure(h, ptype, seq, body)
	}

	// length is the plaintext payload size only; the CRC is a separate
	// 4-byte field ahead of it on the wire.
	trailer := crcSize + int(bodyLen)
	body := make([]byte, trailer)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, &IncompleteError{Want: trailer, Got: 0}
	}
	return c.decodeLegacy(h, ptype, seq, body)
}

func (c *Codec) decodeLegacy(h []byte, ptype PacketType, seq uint32, body []byte) (Frame, error) {
	if len(body) < crcSize {
		return Frame{}, &IncompleteError{Want: crcSize, Got: len(body)}
	}
	want := binary.BigEndian.Uint32(body[:crcSize])
	payload := body[crcSize:]
	got := crc32.ChecksumIEEE(append(append([]byte{}, h...), payload...))
	if got != want {
		return Frame{}, &CrcError{Want: want, Got: got, Seq: seq}
	}
	return Frame{Type: ptype, Seq: seq, Payload: payload}, nil
}

func (c *Codec) decodeSecure(h []byte, ptype PacketType, seq uint32, body []byte) (Frame, error) {
	if len(body) < nonceSize {
		return Frame{}, &IncompleteError{Want: nonceSize, Got: len(body)}
	}
	nonce := body[:nonceSize]
	ciphertext := body[nonceSize:]
	plaintext, err := c.AEAD.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Frame{}, &AeadAuthError{Seq: seq}
	}
	return Frame{Type: ptype, Seq: seq, Payload: plaintext}, nil
}
