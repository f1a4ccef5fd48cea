package ssu

import (
	"bytes"
	"crypto/rand"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var key SessionKey
	rand.Read(key.CipherKey[:])
	rand.Read(key.MACKey[:])
	var iv [16]byte
	rand.Read(iv[:])

	plaintext := make([]byte, 32)
	rand.Read(plaintext)

	ciphertext, mac, err := EncryptPacket(key, iv, 2, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptPacket(key, iv, 2, ciphertext, mac)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecryptRejectsBadMAC(t *testing.T) {
	var key SessionKey
	rand.Read(key.CipherKey[:])
	rand.Read(key.MACKey[:])
	var iv [16]byte
	rand.Read(iv[:])
	plaintext := make([]byte, 16)

	ciphertext, mac, err := EncryptPacket(key, iv, 2, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	mac[0] ^= 0xFF
	if _, err := DecryptPacket(key, iv, 2, ciphertext, mac); err == nil {
		t.Fatal("expected MAC verification failure")
	}
}

func TestUnimplementedFeaturesReportError(t *testing.T) {
	if _, err := Fragment(nil); err != ErrNotImplemented {
		t.Fatal("expected ErrNotImplemented from Fragment")
	}
}
