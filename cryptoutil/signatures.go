package cryptoutil

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"
)

// SigningAlgo replaces a class hierarchy of signer/verifier types with a
// single enum tag dispatched through Verifier/Signer, per spec.md §9
// ("Polymorphism over crypto algorithms").
type SigningAlgo uint16

const (
	SigDSA_SHA1    SigningAlgo = 0
	SigECDSA_P256  SigningAlgo = 1
	SigECDSA_P384  SigningAlgo = 2
	SigECDSA_P521  SigningAlgo = 3
	SigRSA_SHA256  SigningAlgo = 4 // recognized, never accepted
	SigRSA_SHA384  SigningAlgo = 5
	SigRSA_SHA512  SigningAlgo = 6
	SigEdDSA25519  SigningAlgo = 7
	SigRedDSA25519 SigningAlgo = 11
)

// IsRSA reports whether the algorithm is one of the rejected legacy RSA tags.
func (a SigningAlgo) IsRSA() bool {
	return a == SigRSA_SHA256 || a == SigRSA_SHA384 || a == SigRSA_SHA512
}

// Verifier dispatches signature verification by algorithm, built lazily on
// first use per spec.md §9.
type Verifier interface {
	Verify(msg, sig []byte) bool
}

// Signer dispatches signing by algorithm.
type Signer interface {
	Sign(msg []byte) ([]byte, error)
}

// --- EdDSA25519 ---

type ed25519Verifier struct{ pub ed25519.PublicKey }

func NewEd25519Verifier(pub []byte) (Verifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("cryptoutil: EdDSA25519 public key must be %d bytes", ed25519.PublicKeySize)
	}
	return &ed25519Verifier{pub: ed25519.PublicKey(pub)}, nil
}

func (v *ed25519Verifier) Verify(msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.pub, msg, sig)
}

type ed25519Signer struct{ priv ed25519.PrivateKey }

func NewEd25519Signer(priv []byte) (Signer, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("cryptoutil: EdDSA25519 private key must be %d bytes", ed25519.PrivateKeySize)
	}
	return &ed25519Signer{priv: ed25519.PrivateKey(priv)}, nil
}

func (s *ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.priv, msg), nil
}

// --- ECDSA P-256/P-384/P-521 ---

type ecdsaVerifier struct {
	pub  *ecdsa.PublicKey
	hash crypto.Hash
}

func NewECDSAVerifier(algo SigningAlgo, x, y *big.Int) (Verifier, error) {
	curve, h, err := ecdsaCurveAndHash(algo)
	if err != nil {
		return nil, err
	}
	return &ecdsaVerifier{pub: &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, hash: h}, nil
}

func (v *ecdsaVerifier) Verify(msg, sig []byte) bool {
	if len(sig)%2 != 0 || len(sig) == 0 {
		return false
	}
	half := len(sig) / 2
	r := new(big.Int).SetBytes(sig[:half])
	s := new(big.Int).SetBytes(sig[half:])
	digest := hashWith(v.hash, msg)
	return ecdsa.Verify(v.pub, digest, r, s)
}

type ecdsaSigner struct {
	priv *ecdsa.PrivateKey
	hash crypto.Hash
}

func NewECDSASigner(algo SigningAlgo, priv *ecdsa.PrivateKey) (Signer, error) {
	_, h, err := ecdsaCurveAndHash(algo)
	if err != nil {
		return nil, err
	}
	return &ecdsaSigner{priv: priv, hash: h}, nil
}

func (s *ecdsaSigner) Sign(msg []byte) ([]byte, error) {
	digest := hashWith(s.hash, msg)
	r, sVal, err := ecdsa.Sign(rand.Reader, s.priv, digest)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: ECDSA sign: %w", err)
	}
	size := (s.priv.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	sVal.FillBytes(out[size:])
	return out, nil
}

func ecdsaCurveAndHash(algo SigningAlgo) (elliptic.Curve, crypto.Hash, error) {
	switch algo {
	case SigECDSA_P256:
		return elliptic.P256(), crypto.SHA256, nil
	case SigECDSA_P384:
		return elliptic.P384(), crypto.SHA384, nil
	case SigECDSA_P521:
		return elliptic.P521(), crypto.SHA512, nil
	default:
		return nil, 0, fmt.Errorf("cryptoutil: unsupported ECDSA algorithm %d", algo)
	}
}

func hashWith(h crypto.Hash, msg []byte) []byte {
	switch h {
	case crypto.SHA384:
		sum := sha512.Sum384(msg)
		return sum[:]
	case crypto.SHA512:
		sum := sha512.Sum512(msg)
		return sum[:]
	default:
		sum := sha256.Sum256(msg)
		return sum[:]
	}
}

// --- DSA (legacy, verify-only) ---
//
// No example repo in the pack supplies a third-party DSA implementation;
// Go's standard library crypto/dsa is the canonical (if deprecated)
// implementation and there is nothing in the ecosystem to prefer over it
// for a verify-only legacy path. See DESIGN.md.

type dsaVerifier struct{ pub *dsa.PublicKey }

func NewDSAVerifier(pub *dsa.PublicKey) Verifier {
	return &dsaVerifier{pub: pub}
}

func (v *dsaVerifier) Verify(msg, sig []byte) bool {
	if len(sig) != 40 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:20])
	s := new(big.Int).SetBytes(sig[20:])
	digest := sha1.Sum(msg)
	return dsa.Verify(v.pub, digest[:], r, s)
}

// NewVerifier builds the Verifier appropriate to algo from a raw public-key
// window, as identities carry it (spec.md §9: "lazily build a verifier on
// first use"). RSA tags are recognized but always rejected (spec.md §4.2).
func NewVerifier(algo SigningAlgo, pubKeyBytes []byte) (Verifier, error) {
	if algo.IsRSA() {
		return nil, fmt.Errorf("cryptoutil: RSA signing algorithm %d is rejected", algo)
	}
	switch algo {
	case SigEdDSA25519, SigRedDSA25519:
		return NewEd25519Verifier(pubKeyBytes)
	case SigECDSA_P256, SigECDSA_P384, SigECDSA_P521:
		curve, _, err := ecdsaCurveAndHash(algo)
		if err != nil {
			return nil, err
		}
		size := (curve.Params().BitSize + 7) / 8
		if len(pubKeyBytes) < 2*size {
			return nil, fmt.Errorf("cryptoutil: ECDSA public key too short")
		}
		x := new(big.Int).SetBytes(pubKeyBytes[:size])
		y := new(big.Int).SetBytes(pubKeyBytes[size : 2*size])
		return NewECDSAVerifier(algo, x, y)
	case SigDSA_SHA1:
		return nil, fmt.Errorf("cryptoutil: DSA verifier requires structured parameters, use NewDSAVerifier directly")
	default:
		return nil, fmt.Errorf("cryptoutil: unknown signing algorithm %d", algo)
	}
}
