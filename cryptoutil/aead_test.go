package cryptoutil

import (
	"bytes"
	"testing"
)

// TestChaCha20Vector checks the golden keystream vector from spec.md §8.1:
// key = 32 zero bytes, nonce = 12 zero bytes, input = 64 zero bytes.
func TestChaCha20Vector(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 12)
	input := make([]byte, 64)

	ks, err := ChaCha20XOR(key, nonce, 0, input)
	if err != nil {
		t.Fatalf("ChaCha20XOR: %v", err)
	}

	want := []byte{
		0x76, 0xb8, 0xe0, 0xad, 0xa0, 0xf1, 0x3d, 0x90,
		0x40, 0x5d, 0x6a, 0xe5, 0x53, 0x86, 0xbd, 0x28,
	}
	if !bytes.Equal(ks[:16], want) {
		t.Fatalf("keystream[:16] = %x, want %x", ks[:16], want)
	}
}

func TestAEADRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := bytes.Repeat([]byte{0x01}, 12)
	aad := []byte("associated")
	pt := []byte("hello, tunnel")

	ct, err := SealChaCha20Poly1305(key, nonce, aad, pt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	got, err := OpenChaCha20Poly1305(key, nonce, aad, ct)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, pt) {
		t.Fatalf("open() = %q, want %q", got, pt)
	}
}

func TestAEADBitFlipsFail(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := bytes.Repeat([]byte{0x01}, 12)
	aad := []byte("associated")
	pt := []byte("hello, tunnel")

	ct, err := SealChaCha20Poly1305(key, nonce, aad, pt)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(key, nonce, aad, ct []byte) ([]byte, []byte, []byte, []byte)
	}{
		{"ciphertext", func(k, n, a, c []byte) ([]byte, []byte, []byte, []byte) {
			c2 := append([]byte(nil), c...)
			c2[0] ^= 0x01
			return k, n, a, c2
		}},
		{"nonce", func(k, n, a, c []byte) ([]byte, []byte, []byte, []byte) {
			n2 := append([]byte(nil), n...)
			n2[0] ^= 0x01
			return k, n2, a, c
		}},
		{"aad", func(k, n, a, c []byte) ([]byte, []byte, []byte, []byte) {
			a2 := append([]byte(nil), a...)
			a2[0] ^= 0x01
			return k, n, a2, c
		}},
		{"key", func(k, n, a, c []byte) ([]byte, []byte, []byte, []byte) {
			k2 := append([]byte(nil), k...)
			k2[0] ^= 0x01
			return k2, n, a, c
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k, n, a, c := tc.mutate(key, nonce, aad, ct)
			if _, err := OpenChaCha20Poly1305(k, n, a, c); err != ErrAEADOpenFailed {
				t.Fatalf("expected ErrAEADOpenFailed, got %v", err)
			}
		})
	}
}
