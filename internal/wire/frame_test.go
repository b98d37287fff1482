package wire

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLegacyRoundTrip(t *testing.T) {
	codec := NewLegacyCodec()
	f, err := Encode(PacketChat, 7, map[string]string{"msg": "hello"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, f))

	out, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, PacketChat, out.Type)
	require.Equal(t, uint32(7), out.Seq)

	var payload map[string]string
	require.NoError(t, out.Decode(&payload))
	require.Equal(t, "hello", payload["msg"])
}

func TestLegacyCrcMismatchRejected(t *testing.T) {
	codec := NewLegacyCodec()
	f, err := Encode(PacketGame, 1, map[string]int{"x": 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, f))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = codec.ReadFrame(bytes.NewReader(corrupted))
	require.Error(t, err)
	var crcErr *CrcError
	require.ErrorAs(t, err, &crcErr)
	require.Equal(t, uint32(1), crcErr.Seq)
}

func newTestAEAD(t *testing.T) cipher.AEAD {
	t.Helper()
	key := bytes.Repeat([]byte{0x42}, 32)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)
	return aead
}

func TestSecureRoundTrip(t *testing.T) {
	aead := newTestAEAD(t)
	codec := NewSecureCodec(aead)

	f, err := Encode(PacketGame, 42, map[string]string{"type": "shot", "coord": "B5"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, f))
	require.NotContains(t, buf.String(), "shot")

	out, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, f.Seq, out.Seq)
	require.Equal(t, f.Payload, out.Payload)
}

func TestSecureTamperedCiphertextRejected(t *testing.T) {
	aead := newTestAEAD(t)
	codec := NewSecureCodec(aead)

	f, err := Encode(PacketGame, 1, map[string]int{"x": 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codec.WriteFrame(&buf, f))
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = codec.ReadFrame(bytes.NewReader(corrupted))
	require.Error(t, err)
	var aeadErr *AeadAuthError
	require.ErrorAs(t, err, &aeadErr)
	require.Equal(t, uint32(1), aeadErr.Seq)
}

func TestBadMagicRejected(t *testing.T) {
	codec := NewLegacyCodec()
	_, err := codec.ReadFrame(bytes.NewReader(make([]byte, headerSize)))
	require.Error(t, err)
	var magicErr *BadMagicError
	require.ErrorAs(t, err, &magicErr)
}
