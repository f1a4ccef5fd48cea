package cryptoutil

import (
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// ChaCha20XOR applies the raw ChaCha20 keystream (no authentication) to src,
// writing to a freshly allocated output. Used for SSU2 header masking and
// the LS2 two-layer encryption scheme in spec.md §4.4, neither of which
// carries a Poly1305 tag of its own (the outer AEAD / signature covers
// integrity instead).
func ChaCha20XOR(key []byte, nonce []byte, counter uint32, src []byte) ([]byte, error) {
	c, err := chacha20.NewUnauthenticatedCipher(key, nonce)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: init chacha20: %w", err)
	}
	c.SetCounter(counter)
	dst := make([]byte, len(src))
	c.XORKeyStream(dst, src)
	return dst, nil
}

// ChaCha20Keystream returns n bytes of raw ChaCha20 keystream, used for
// header-protection masks which only ever need a handful of bytes.
func ChaCha20Keystream(key []byte, nonce []byte, n int) ([]byte, error) {
	zero := make([]byte, n)
	return ChaCha20XOR(key, nonce, 0, zero)
}
