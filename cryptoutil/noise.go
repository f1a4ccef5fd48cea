package cryptoutil

import (
	"crypto/sha256"
	"fmt"
)

// NoiseSymmetricState implements the symmetric-crypto half of the Noise
// Protocol Framework used by SSU2/NTCP2 (pattern XK) and tunnel build
// records (pattern N). It generalizes the HKDF/HMAC key-schedule idiom the
// teacher's ntor package hand-rolls for Tor's one-shot ntor handshake
// (ntor/ntor.go) into the reusable MixHash/MixKey primitive Noise needs for
// a multi-message handshake.
type NoiseSymmetricState struct {
	h  [32]byte
	ck [32]byte
	k  [32]byte
	hasKey bool
	n  uint64
}

const protocolNameXK = "Noise_XK_25519_ChaChaPoly_SHA256"
const protocolNameN = "Noise_N_25519_ChaChaPoly_SHA256"

func newState(protocolName string) *NoiseSymmetricState {
	s := &NoiseSymmetricState{}
	name := []byte(protocolName)
	if len(name) <= 32 {
		copy(s.h[:], name)
	} else {
		s.h = sha256.Sum256(name)
	}
	s.ck = s.h
	return s
}

// InitNoiseXK initializes h,ck for the XK(s,rs) pattern with the
// responder's static public key already known (pre-message "<- s").
func InitNoiseXK(peerStaticPub [32]byte) *NoiseSymmetricState {
	s := newState(protocolNameXK)
	s.MixHash(nil) // empty prologue
	s.MixHash(peerStaticPub[:])
	return s
}

// InitNoiseN initializes h,ck for the N(rs) pattern used by short tunnel
// build records (spec.md §4.5).
func InitNoiseN(peerStaticPub [32]byte) *NoiseSymmetricState {
	s := newState(protocolNameN)
	s.MixHash(nil)
	s.MixHash(peerStaticPub[:])
	return s
}

// MixHash folds data into the running transcript hash: h = SHA256(h || data).
func (s *NoiseSymmetricState) MixHash(data []byte) {
	h := sha256.New()
	h.Write(s.h[:])
	h.Write(data)
	copy(s.h[:], h.Sum(nil))
}

// MixKey runs HKDF(ck, ikm) -> (ck', k'), per Noise §5.1. It updates the
// chaining key and sets the current cipher key.
func (s *NoiseSymmetricState) MixKey(ikm []byte) error {
	prk, okm, err := HKDFExtractAndExpand(s.ck[:], ikm, nil, 64)
	if err != nil {
		return fmt.Errorf("cryptoutil: noise MixKey: %w", err)
	}
	_ = prk
	copy(s.ck[:], okm[:32])
	copy(s.k[:], okm[32:64])
	s.hasKey = true
	s.n = 0
	return nil
}

// EncryptAndHash seals plaintext under the current key (if any) with AD=h,
// then mixes the ciphertext into h, per Noise §5.1 EncryptAndHash.
func (s *NoiseSymmetricState) EncryptAndHash(plaintext []byte) ([]byte, error) {
	if !s.hasKey {
		s.MixHash(plaintext)
		return plaintext, nil
	}
	nonce := nonceFromCounter(s.n)
	ct, err := SealChaCha20Poly1305(s.k[:], nonce[:], s.h[:], plaintext)
	if err != nil {
		return nil, err
	}
	s.n++
	s.MixHash(ct)
	return ct, nil
}

// DecryptAndHash is the inverse of EncryptAndHash.
func (s *NoiseSymmetricState) DecryptAndHash(ciphertext []byte) ([]byte, error) {
	if !s.hasKey {
		s.MixHash(ciphertext)
		return ciphertext, nil
	}
	nonce := nonceFromCounter(s.n)
	pt, err := OpenChaCha20Poly1305(s.k[:], nonce[:], s.h[:], ciphertext)
	if err != nil {
		return nil, err
	}
	s.n++
	s.MixHash(ciphertext)
	return pt, nil
}

// Split derives the two one-way transport keys at the end of a handshake,
// per Noise §5.1 Split: HKDF(ck, zerolen) -> (k1, k2).
func (s *NoiseSymmetricState) Split() (k1, k2 [32]byte) {
	_, okm, err := HKDFExtractAndExpand(s.ck[:], nil, nil, 64)
	if err != nil {
		// HKDF with a 32-byte PRK and zero-length info cannot fail.
		panic(fmt.Sprintf("cryptoutil: noise Split: %v", err))
	}
	copy(k1[:], okm[:32])
	copy(k2[:], okm[32:64])
	return k1, k2
}

// ChainingKey exposes ck, needed by short tunnel build records to derive
// reply/layer/IV keys via successive HKDF steps (spec.md §4.5).
func (s *NoiseSymmetricState) ChainingKey() [32]byte { return s.ck }

// Hash exposes h, used as AEAD associated data by callers managing their
// own framing instead of going through EncryptAndHash/DecryptAndHash.
func (s *NoiseSymmetricState) Hash() [32]byte { return s.h }

func nonceFromCounter(n uint64) [12]byte {
	var nonce [12]byte
	nonce[4] = byte(n)
	nonce[5] = byte(n >> 8)
	nonce[6] = byte(n >> 16)
	nonce[7] = byte(n >> 24)
	nonce[8] = byte(n >> 32)
	nonce[9] = byte(n >> 40)
	nonce[10] = byte(n >> 48)
	nonce[11] = byte(n >> 56)
	return nonce
}
