package cryptoutil

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// X25519KeyPair is a generated Curve25519 key pair.
type X25519KeyPair struct {
	Private [32]byte
	Public  [32]byte
}

// GenerateX25519 produces a fresh ephemeral key pair, used for Noise `e`
// values throughout SSU2/NTCP2 handshakes and short tunnel build records.
func GenerateX25519() (*X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate X25519 private key: %w", err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: derive X25519 public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// X25519PublicKey derives the public key for an existing private scalar,
// used when a caller holds a long-term static private key (rather than
// generating a fresh ephemeral pair via GenerateX25519) and needs the
// matching public key to run a Noise handshake step.
func X25519PublicKey(priv [32]byte) ([32]byte, error) {
	var pub [32]byte
	out, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("cryptoutil: derive X25519 public key: %w", err)
	}
	copy(pub[:], out)
	return pub, nil
}

// X25519Agree performs a Diffie-Hellman agreement, returning the raw shared
// secret. An all-zero result (low-order point attack) is returned as an error.
func X25519Agree(priv, pub [32]byte) ([32]byte, error) {
	var shared [32]byte
	out, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return shared, fmt.Errorf("cryptoutil: X25519 agree: %w", err)
	}
	copy(shared[:], out)
	if isAllZero(shared[:]) {
		return shared, fmt.Errorf("cryptoutil: X25519 agreement produced all-zero output")
	}
	return shared, nil
}

func isAllZero(b []byte) bool {
	var acc byte
	for _, v := range b {
		acc |= v
	}
	return acc == 0
}
