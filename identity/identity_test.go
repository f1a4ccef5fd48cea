package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func buildEdDSAIdentity(t *testing.T) (*Identity, ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, StandardIdentitySize+4)
	// encryption key left zero (not exercised here)
	copy(buf[256:384], make([]byte, 96)) // pad
	copy(buf[256+96:384], pub)           // last 32 bytes of the 128-byte field
	buf[384] = 5                         // KEY cert
	buf[385] = 0
	buf[386] = 4
	buf[387] = 0
	buf[388] = 7 // EdDSA25519
	buf[389] = 0
	buf[390] = 4 // CryptoECIESX25519
	id, n, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != 391 {
		t.Fatalf("consumed %d bytes, want 391", n)
	}
	return id, pub, priv
}

func TestParseAndVerifyEdDSAIdentity(t *testing.T) {
	id, _, priv := buildEdDSAIdentity(t)
	msg := []byte("router descriptor bytes")
	sig := ed25519.Sign(priv, msg)
	ok, err := id.Verify(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("valid signature rejected")
	}
	if ok, _ := id.Verify([]byte("tampered"), sig); ok {
		t.Fatal("tampered message accepted")
	}
}

func TestIdentityHashStable(t *testing.T) {
	id, _, _ := buildEdDSAIdentity(t)
	h1 := id.Hash()
	h2 := id.Hash()
	if h1 != h2 {
		t.Fatal("hash not stable across calls")
	}
}

func TestHashBitAndXor(t *testing.T) {
	var a, b Hash
	a[0] = 0b10000000
	b[0] = 0b00000000
	if a.Bit(0) != 1 {
		t.Fatalf("Bit(0) = %d, want 1", a.Bit(0))
	}
	if b.Bit(0) != 0 {
		t.Fatalf("Bit(0) = %d, want 0", b.Bit(0))
	}
	x := a.Xor(b)
	if x[0] != 0b10000000 {
		t.Fatalf("xor = %08b", x[0])
	}
}
