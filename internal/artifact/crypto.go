package artifact

// crypto.go provides at-rest encryption for stored artifacts using
// XChaCha20-Poly1305. Sealed blobs are nonce || ciphertext; the random
// 24-byte nonce makes nonce reuse a non-issue at this volume.

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the required encryption key length in bytes.
const KeySize = chacha20poly1305.KeySize

type cipherBox struct {
	aead cipher.AEAD
}

func newCipherBox(key []byte) (*cipherBox, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &cipherBox{aead: aead}, nil
}

// seal encrypts plain and prepends the nonce.
func (b *cipherBox) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plain)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return b.aead.Seal(nonce, nonce, plain, nil), nil
}

// open decrypts a sealed blob. Fails if the blob is truncated, was sealed
// with a different key, or was modified on disk.
func (b *cipherBox) open(blob []byte) ([]byte, error) {
	if len(blob) < b.aead.NonceSize() {
		return nil, fmt.Errorf("sealed blob too short: %d bytes", len(blob))
	}
	nonce, ciphertext := blob[:b.aead.NonceSize()], blob[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting artifact: %w", err)
	}
	return plain, nil
}
