package cryptoutil

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDF derives outLen bytes of key material from salt/ikm/info using
// HKDF-SHA256, the construction spec.md §4.1 requires throughout (RouterInfo
// family-signature checks aside, every derived key in this repo traces back
// to this function, following the teacher's use of the same primitive in
// ntor/ntor.go for its own key schedule).
func HKDF(salt, ikm, info []byte, outLen int) ([]byte, error) {
	kdf := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, outLen)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("cryptoutil: HKDF: %w", err)
	}
	return out, nil
}

// HKDFExtractAndExpand splits the derivation into the two NoiseSymmetricState
// steps: Extract (PRK) and then Expand(PRK, info) -> out. Several SSU2/tunnel
// key schedules need the intermediate PRK (the Noise chaining key) rather
// than a single combined call.
func HKDFExtractAndExpand(salt, ikm, info []byte, outLen int) (prk []byte, okm []byte, err error) {
	prk = hkdfExtract(salt, ikm)
	kdf := hkdf.Expand(sha256.New, prk, info)
	okm = make([]byte, outLen)
	if _, err = io.ReadFull(kdf, okm); err != nil {
		return nil, nil, fmt.Errorf("cryptoutil: HKDF expand: %w", err)
	}
	return prk, okm, nil
}

func hkdfExtract(salt, ikm []byte) []byte {
	return hkdf.Extract(sha256.New, ikm, salt)
}
