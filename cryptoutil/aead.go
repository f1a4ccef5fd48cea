package cryptoutil

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrAEADOpenFailed is returned when an authentication tag fails to verify.
// Per spec.md §4.1, this must be distinguishable from a decode failure: the
// caller's contract is "drop and never retry this bytes," not "retry."
var ErrAEADOpenFailed = errors.New("cryptoutil: AEAD authentication failed")

// SealChaCha20Poly1305 encrypts plaintext with ChaCha20-Poly1305, appending
// the 16-byte authentication tag. key must be 32 bytes, nonce 12 bytes.
func SealChaCha20Poly1305(key, nonce, aad, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: init AEAD: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("cryptoutil: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenChaCha20Poly1305 decrypts and authenticates ciphertext. Any failure is
// reported as ErrAEADOpenFailed regardless of the underlying cause, so
// callers cannot distinguish "bad key" from "bit flip" — both mean drop.
func OpenChaCha20Poly1305(key, nonce, aad, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: init AEAD: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("cryptoutil: nonce must be %d bytes, got %d", aead.NonceSize(), len(nonce))
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrAEADOpenFailed
	}
	return plaintext, nil
}

// PacketNumNonce builds the 12-byte nonce SSU2 derives from a packet number:
// zero bytes except a little-endian uint32 at offset 4 (spec.md §4.7).
func PacketNumNonce(packetNum uint32) [12]byte {
	var n [12]byte
	n[4] = byte(packetNum)
	n[5] = byte(packetNum >> 8)
	n[6] = byte(packetNum >> 16)
	n[7] = byte(packetNum >> 24)
	return n
}

// RecordIndexNonce builds the 12-byte nonce used for short tunnel build
// records: zero bytes except byte 4 set to the record index (spec.md §4.5).
func RecordIndexNonce(index byte) [12]byte {
	var n [12]byte
	n[4] = index
	return n
}
