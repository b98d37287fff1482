package crypto

import (
	"crypto/aes"
	"crypto/cipher"
)

// NewAEAD wraps a derived session key in an AES-GCM cipher.AEAD, the form
// internal/wire.NewSecureCodec consumes.
func NewAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
