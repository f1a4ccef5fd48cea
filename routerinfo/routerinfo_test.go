package routerinfo

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

func buildTestIdentity(t *testing.T) (*identity.Identity, *identity.PrivateKeys) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	encKey := make([]byte, 256)
	sigKey := make([]byte, 128)
	copy(sigKey[128-32:], pub) // EdDSA25519 fits the standard field; no cert extension needed

	raw := make([]byte, 0, 387+4)
	raw = append(raw, encKey...)
	raw = append(raw, sigKey...)
	certLen := 4
	raw = append(raw, 5, byte(certLen>>8), byte(certLen)) // KEY cert
	raw = append(raw, byte(cryptoutil.SigEdDSA25519>>8), byte(cryptoutil.SigEdDSA25519))
	raw = append(raw, byte(identity.CryptoElGamal>>8), byte(identity.CryptoElGamal))

	id, n, err := identity.Parse(raw)
	if err != nil {
		t.Fatalf("parse built identity: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}

	pk := &identity.PrivateKeys{Identity: id, SigningPrivateKey: priv, EncryptionPrivateKey: make([]byte, 256)}
	return id, pk
}

func TestLocalRouterInfoSignAndParseRoundTrip(t *testing.T) {
	_, keys := buildTestIdentity(t)
	l := NewLocalRouterInfo(keys, 2, "0.9.65")
	l.SetCapabilities(Capabilities{BandwidthTier: 'L', Reachable: true})

	var staticKey, introKey [32]byte
	copy(staticKey[:], []byte("0123456789abcdef0123456789abcdef"))
	copy(introKey[:], []byte("fedcba9876543210fedcba9876543210"))
	l.AddSSU2Address("203.0.113.5", 12345, staticKey, introKey)

	ri, wire, err := l.Sign(time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(wire) > MaxDescriptorSize {
		t.Fatalf("descriptor too large: %d", len(wire))
	}
	if !ri.Reachable {
		t.Fatal("freshly signed descriptor should be reachable")
	}
	if len(ri.Addresses) != 1 || ri.Addresses[0].TransportStyle != "SSU2" {
		t.Fatalf("unexpected addresses: %+v", ri.Addresses)
	}
	if !ri.Addresses[0].Valid() {
		t.Fatal("SSU2 address missing required keys")
	}

	reparsed, err := Parse(wire, 2)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if reparsed.Hash() != ri.Hash() {
		t.Fatal("hash mismatch across re-parse")
	}
	ok, err := reparsed.VerifySignature()
	if err != nil || !ok {
		t.Fatalf("signature verification failed: ok=%v err=%v", ok, err)
	}
}

func TestParseRejectsOversizedDescriptor(t *testing.T) {
	huge := make([]byte, MaxDescriptorSize+1)
	if _, err := Parse(huge, 2); err == nil {
		t.Fatal("expected error for oversized descriptor")
	}
}

func TestParseMarksWrongNetIDUnreachable(t *testing.T) {
	_, keys := buildTestIdentity(t)
	l := NewLocalRouterInfo(keys, 2, "0.9.65")
	l.SetCapabilities(Capabilities{BandwidthTier: 'L'})
	var staticKey, introKey [32]byte
	l.AddSSU2Address("203.0.113.5", 12345, staticKey, introKey)
	_, wire, err := l.Sign(time.Now())
	if err != nil {
		t.Fatal(err)
	}

	ri, err := Parse(wire, 99) // wrong expected netId
	if err != nil {
		t.Fatalf("parse should still succeed: %v", err)
	}
	if ri.Reachable {
		t.Fatal("descriptor with mismatched netId should be marked unreachable")
	}
}

func TestParseCapabilitiesReadsFloodfillFlag(t *testing.T) {
	// Checks only that 'f' sets Floodfill; the DSA-SHA1 floodfill
	// downgrade in enforceInvariants is not exercised here.
	cap := ParseCapabilities("fL", time.Now())
	if !cap.Floodfill {
		t.Fatal("expected floodfill flag parsed")
	}
}

func TestIntroducerChurnCapsAtThree(t *testing.T) {
	_, keys := buildTestIdentity(t)
	l := NewLocalRouterInfo(keys, 2, "0.9.65")
	var staticKey, introKey [32]byte
	l.AddSSU2Address("203.0.113.5", 12345, staticKey, introKey)

	for i := 0; i < 5; i++ {
		var h identity.Hash
		h[0] = byte(i)
		if err := l.AddIntroducer("v4", Introducer{Tag: uint32(i), Hash: h, Expires: 1000}); err != nil {
			t.Fatal(err)
		}
	}
	if len(l.addresses[0].Introducers) != 3 {
		t.Fatalf("expected introducer set capped at 3, got %d", len(l.addresses[0].Introducers))
	}
	// oldest entries (tag 0, 1) should have been evicted
	if l.addresses[0].Introducers[0].Tag != 2 {
		t.Fatalf("expected oldest introducer evicted, got tag %d first", l.addresses[0].Introducers[0].Tag)
	}
}
