package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func TestEd25519VerifierRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := NewEd25519Signer(priv)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := signer.Sign([]byte("routerinfo bytes"))
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := NewEd25519Verifier(pub)
	if err != nil {
		t.Fatal(err)
	}
	if !verifier.Verify([]byte("routerinfo bytes"), sig) {
		t.Fatal("valid signature rejected")
	}
	if verifier.Verify([]byte("tampered bytes"), sig) {
		t.Fatal("tampered message accepted")
	}
}

func TestECDSAP256VerifierRoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := NewECDSASigner(SigECDSA_P256, priv)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := signer.Sign([]byte("descriptor"))
	if err != nil {
		t.Fatal(err)
	}
	verifier, err := NewECDSAVerifier(SigECDSA_P256, priv.X, priv.Y)
	if err != nil {
		t.Fatal(err)
	}
	if !verifier.Verify([]byte("descriptor"), sig) {
		t.Fatal("valid ECDSA signature rejected")
	}
}

func TestNewVerifierRejectsRSA(t *testing.T) {
	if _, err := NewVerifier(SigRSA_SHA256, make([]byte, 256)); err == nil {
		t.Fatal("expected RSA signing algorithm to be rejected")
	}
}
