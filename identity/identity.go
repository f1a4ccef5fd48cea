// Package identity implements I2P router and destination identities: the
// encryption/signing public-key pair plus certificate trailer described in
// spec.md §3 ("Identity"), and the private-key bundle with optional
// offline-signature delegation (spec.md §3 "PrivateKeys").
package identity

import (
	"crypto/sha256"
	"fmt"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
)

const (
	// StandardEncryptionKeySize is the padded ElGamal-compatible encryption
	// public key size carried in every identity, extended forms included.
	StandardEncryptionKeySize = 256
	// StandardSigningKeySize is the padded legacy DSA-compatible signing
	// public key size; extended signing algorithms place excess bytes in
	// the certificate body (spec.md §3).
	StandardSigningKeySize = 128
	// StandardIdentitySize is the fixed 387-byte layout before any
	// certificate-body extension.
	StandardIdentitySize = StandardEncryptionKeySize + StandardSigningKeySize + 3
)

// CryptoAlgo is the encryption-key algorithm tag carried in the certificate.
type CryptoAlgo uint16

const (
	CryptoElGamal      CryptoAlgo = 0
	CryptoECIESX25519  CryptoAlgo = 4
)

// Hash is a 32-byte SHA-256 IdentHash (spec.md §3).
type Hash [32]byte

// String renders the hash as hex for logging.
func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// Less orders two hashes lexicographically, used as an XOR-distance
// tie-break and for deterministic trie traversal in package kademlia.
func (h Hash) Less(o Hash) bool {
	for i := range h {
		if h[i] != o[i] {
			return h[i] < o[i]
		}
	}
	return false
}

// Xor computes the bytewise XOR distance between two hashes.
func (h Hash) Xor(o Hash) Hash {
	var out Hash
	for i := range h {
		out[i] = h[i] ^ o[i]
	}
	return out
}

// Bit returns bit `level` of the hash, counting from the most significant
// bit of byte 0, as used by the Kademlia trie descent (spec.md §4.9).
func (h Hash) Bit(level int) int {
	byteIdx := level / 8
	bitIdx := 7 - uint(level%8)
	if byteIdx >= len(h) {
		return 0
	}
	return int((h[byteIdx] >> bitIdx) & 1)
}

// Identity is a parsed router or destination identity.
type Identity struct {
	EncryptionKey []byte // 256 bytes, padded
	SigningKey    []byte // 128 bytes, padded (or extended into Cert)
	CryptoAlgo    CryptoAlgo
	SigningAlgo   cryptoutil.SigningAlgo
	// raw is the full serialized identity, kept so Hash() is reproducible
	// and so callers that just need "the bytes" don't need to re-encode.
	raw []byte
}

// Hash returns SHA-256 of the full serialized identity (spec.md §3
// invariant: "the identity's full-length serialization hashed yields the
// identity's hash").
func (id *Identity) Hash() Hash {
	return sha256.Sum256(id.raw)
}

// Bytes returns the full serialized identity.
func (id *Identity) Bytes() []byte { return id.raw }

// Parse reads an identity from a caller-supplied byte window, returning the
// identity and the number of bytes consumed, per spec.md §4.2.
func Parse(b []byte) (*Identity, int, error) {
	if len(b) < StandardIdentitySize {
		return nil, 0, fmt.Errorf("identity: buffer too short: %d < %d", len(b), StandardIdentitySize)
	}
	encKey := append([]byte(nil), b[0:256]...)
	sigKey := append([]byte(nil), b[256:384]...)

	certType := b[384]
	certLen := int(b[385])<<8 | int(b[386])
	certEnd := 387 + certLen
	if certEnd > len(b) {
		return nil, 0, fmt.Errorf("identity: certificate extends past buffer")
	}
	certBody := b[387:certEnd]

	id := &Identity{
		EncryptionKey: encKey,
		SigningKey:    sigKey,
		CryptoAlgo:    CryptoElGamal,
		SigningAlgo:   cryptoutil.SigDSA_SHA1,
	}

	switch certType {
	case 0: // NULL cert
		// Legacy DSA/ElGamal identity, no extension.
	case 5: // KEY cert: {signingAlgo(2), cryptoAlgo(2), extra key bytes...}
		if len(certBody) < 4 {
			return nil, 0, fmt.Errorf("identity: KEY certificate too short")
		}
		id.SigningAlgo = cryptoutil.SigningAlgo(int(certBody[0])<<8 | int(certBody[1]))
		id.CryptoAlgo = CryptoAlgo(int(certBody[2])<<8 | int(certBody[3]))
		extra := certBody[4:]
		id.extendKeys(extra)
	default:
		// Other certificate types (HIDDEN, SIGNED, MULTIPLE) are rare and
		// not required for the signing/crypto algorithm negotiation this
		// repo needs; callers that must parse them can re-slice certBody.
	}

	id.raw = append([]byte(nil), b[:certEnd]...)
	return id, certEnd, nil
}

// extendKeys places excess signing/encryption key bytes (beyond the
// standard 128/256-byte fields) from the certificate body into the
// identity's key fields, per spec.md §3 "Extended forms place excess key
// bytes in the certificate body."
func (id *Identity) extendKeys(extra []byte) {
	sigExtraLen := signingKeyExtraLen(id.SigningAlgo)
	if sigExtraLen > 0 && len(extra) >= sigExtraLen {
		id.SigningKey = append(append([]byte(nil), id.SigningKey...), extra[:sigExtraLen]...)
		extra = extra[sigExtraLen:]
	}
	cryptoExtraLen := cryptoKeyExtraLen(id.CryptoAlgo)
	if cryptoExtraLen > 0 && len(extra) >= cryptoExtraLen {
		id.EncryptionKey = append([]byte(nil), extra[:cryptoExtraLen]...)
	}
}

func sigPaddedLen(algo cryptoutil.SigningAlgo) int {
	switch algo {
	case cryptoutil.SigEdDSA25519, cryptoutil.SigRedDSA25519:
		return 32
	case cryptoutil.SigECDSA_P256:
		return 64
	case cryptoutil.SigECDSA_P384:
		return 96
	case cryptoutil.SigECDSA_P521:
		return 132
	default:
		return StandardSigningKeySize
	}
}

func signingKeyExtraLen(algo cryptoutil.SigningAlgo) int {
	full := sigPaddedLen(algo)
	if full <= StandardSigningKeySize {
		return 0
	}
	return full - StandardSigningKeySize
}

func cryptoKeyExtraLen(algo CryptoAlgo) int {
	switch algo {
	case CryptoECIESX25519:
		return 32 // replaces the 256-byte ElGamal field entirely; handled by caller padding rules
	default:
		return 0
	}
}

// EffectiveSigningKey returns the actual (unpadded) signing public key
// bytes for the negotiated algorithm, trimming or re-slicing the padded
// StandardSigningKeySize field as needed.
func (id *Identity) EffectiveSigningKey() []byte {
	want := sigPaddedLen(id.SigningAlgo)
	if want <= StandardSigningKeySize && len(id.SigningKey) >= StandardSigningKeySize {
		// Real key bytes live at the tail of the padded field (I2P pads
		// short keys with leading zero bytes).
		return id.SigningKey[StandardSigningKeySize-want:]
	}
	return id.SigningKey // already extended in Parse to the full length
}

// NewVerifier builds a Verifier dispatched by this identity's signing
// algorithm, per spec.md §4.2 and the polymorphism design in spec.md §9.
func (id *Identity) NewVerifier() (cryptoutil.Verifier, error) {
	return cryptoutil.NewVerifier(id.SigningAlgo, id.EffectiveSigningKey())
}

// Verify checks sig over msg using this identity's signing key. RSA tags
// are rejected by cryptoutil.NewVerifier before reaching this point.
func (id *Identity) Verify(msg, sig []byte) (bool, error) {
	v, err := id.NewVerifier()
	if err != nil {
		return false, err
	}
	return v.Verify(msg, sig), nil
}
