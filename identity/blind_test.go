package identity

import "testing"

func TestBlindedPublicKeyRotatesDaily(t *testing.T) {
	id, _, _ := buildEdDSAIdentity(t)

	b1, err := BlindedPublicKey(id, "20240101")
	if err != nil {
		t.Fatal(err)
	}
	b2, err := BlindedPublicKey(id, "20240102")
	if err != nil {
		t.Fatal(err)
	}
	if b1 == b2 {
		t.Fatal("blinded key identical across different dates")
	}

	// Deterministic for the same date.
	b1Again, err := BlindedPublicKey(id, "20240101")
	if err != nil {
		t.Fatal(err)
	}
	if b1 != b1Again {
		t.Fatal("blinded key not deterministic for the same date")
	}
}

func TestSubcredentialDiffersPerBlindedKey(t *testing.T) {
	id, _, _ := buildEdDSAIdentity(t)
	b1, _ := BlindedPublicKey(id, "20240101")
	b2, _ := BlindedPublicKey(id, "20240102")

	s1, err := GetSubcredential(id, b1)
	if err != nil {
		t.Fatal(err)
	}
	s2, err := GetSubcredential(id, b2)
	if err != nil {
		t.Fatal(err)
	}
	if s1 == s2 {
		t.Fatal("subcredential identical for different blinded keys")
	}
}
