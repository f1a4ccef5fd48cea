package ssu2

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
)

// Token lifetimes (spec.md §4.7).
const (
	RetryTokenLifetime = 9 * time.Second
	NextTokenLifetime  = 52 * time.Minute
)

// ClockSkew thresholds (spec.md §4.7).
const (
	ClockSkewRejectThreshold    = 60 * time.Second
	ClockSkewAdjustThreshold    = 15 * time.Second
)

// HandshakeState carries the Noise XK transcript plus the ephemeral/static
// key material exchanged across TokenRequest/SessionRequest/
// SessionCreated/SessionConfirmed, grounded on ntor/ntor.go's pattern of
// collecting a handshake's key material into one struct progressively
// filled in across message steps.
type HandshakeState struct {
	noise *cryptoutil.NoiseSymmetricState

	LocalStatic   cryptoutil.X25519KeyPair
	LocalEphem    cryptoutil.X25519KeyPair
	RemoteStatic  [32]byte
	RemoteEphem   [32]byte

	Token       uint64
	TokenExpiry time.Time

	SendKey, RecvKey [32]byte // data-phase transport keys, set by Finish

	initiator bool // client side; selects which half of the data keys it sends under
}

// NewClientHandshake begins a client-side Noise XK transcript against the
// server's known static public key (as advertised in its RouterInfo SSU2
// address block).
func NewClientHandshake(serverStatic [32]byte, localStatic cryptoutil.X25519KeyPair) (*HandshakeState, error) {
	ephem, err := cryptoutil.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("ssu2: generate ephemeral: %w", err)
	}
	return &HandshakeState{
		noise:        cryptoutil.InitNoiseXK(serverStatic),
		LocalStatic:  localStatic,
		LocalEphem:   *ephem,
		RemoteStatic: serverStatic,
		initiator:    true,
	}, nil
}

// NewServerHandshake begins a server-side transcript; the server's own
// static key pair stands in for the XK pattern's pre-known responder key.
func NewServerHandshake(localStatic cryptoutil.X25519KeyPair) *HandshakeState {
	return &HandshakeState{
		noise:       cryptoutil.InitNoiseXK(localStatic.Public),
		LocalStatic: localStatic,
	}
}

// SessionRequestPayload builds the client's "e, es" message: the
// ephemeral public key, followed by an AEAD-sealed block payload (spec.md
// §4.7 lists a DateTime block and optional relay-tag-request among its
// contents; block encoding lives in blocks.go).
func (h *HandshakeState) SessionRequestPayload(blockPayload []byte) (ephemeral [32]byte, sealed []byte, err error) {
	h.noise.MixHash(h.LocalEphem.Public[:])
	es, err := cryptoutil.X25519Agree(h.LocalEphem.Private, h.RemoteStatic)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("ssu2: es DH: %w", err)
	}
	if err := h.noise.MixKey(es[:]); err != nil {
		return [32]byte{}, nil, err
	}
	sealed, err = h.noise.EncryptAndHash(blockPayload)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return h.LocalEphem.Public, sealed, nil
}

// ConsumeSessionRequest is the server-side counterpart, recovering the
// client's block payload and mixing in its ephemeral key.
func (h *HandshakeState) ConsumeSessionRequest(clientEphem [32]byte, sealed []byte) ([]byte, error) {
	h.RemoteEphem = clientEphem
	h.noise.MixHash(clientEphem[:])
	es, err := cryptoutil.X25519Agree(h.LocalStatic.Private, clientEphem)
	if err != nil {
		return nil, fmt.Errorf("ssu2: es DH: %w", err)
	}
	if err := h.noise.MixKey(es[:]); err != nil {
		return nil, err
	}
	return h.noise.DecryptAndHash(sealed)
}

// SessionCreatedPayload builds the server's "e, ee" message.
func (h *HandshakeState) SessionCreatedPayload(blockPayload []byte) (ephemeral [32]byte, sealed []byte, err error) {
	ephem, err := cryptoutil.GenerateX25519()
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("ssu2: generate ephemeral: %w", err)
	}
	h.LocalEphem = *ephem
	h.noise.MixHash(ephem.Public[:])
	ee, err := cryptoutil.X25519Agree(ephem.Private, h.RemoteEphem)
	if err != nil {
		return [32]byte{}, nil, fmt.Errorf("ssu2: ee DH: %w", err)
	}
	if err := h.noise.MixKey(ee[:]); err != nil {
		return [32]byte{}, nil, err
	}
	sealed, err = h.noise.EncryptAndHash(blockPayload)
	if err != nil {
		return [32]byte{}, nil, err
	}
	return ephem.Public, sealed, nil
}

// ConsumeSessionCreated is the client-side counterpart.
func (h *HandshakeState) ConsumeSessionCreated(serverEphem [32]byte, sealed []byte) ([]byte, error) {
	h.RemoteEphem = serverEphem
	h.noise.MixHash(serverEphem[:])
	ee, err := cryptoutil.X25519Agree(h.LocalEphem.Private, serverEphem)
	if err != nil {
		return nil, fmt.Errorf("ssu2: ee DH: %w", err)
	}
	if err := h.noise.MixKey(ee[:]); err != nil {
		return nil, err
	}
	return h.noise.DecryptAndHash(sealed)
}

// SessionConfirmedPart1 seals the client's static key ("s"), the first of
// SessionConfirmed's two AEAD parts.
func (h *HandshakeState) SessionConfirmedPart1() ([]byte, error) {
	return h.noise.EncryptAndHash(h.LocalStatic.Public[:])
}

// ConsumeSessionConfirmedPart1 recovers the client's static key and mixes
// the "se" DH into the transcript.
func (h *HandshakeState) ConsumeSessionConfirmedPart1(sealed []byte) error {
	pt, err := h.noise.DecryptAndHash(sealed)
	if err != nil {
		return fmt.Errorf("ssu2: decrypt SessionConfirmed part 1: %w", err)
	}
	if len(pt) != 32 {
		return fmt.Errorf("ssu2: SessionConfirmed part 1 wrong length %d", len(pt))
	}
	copy(h.RemoteStatic[:], pt)
	se, err := cryptoutil.X25519Agree(h.LocalStatic.Private, h.RemoteStatic)
	if err != nil {
		return fmt.Errorf("ssu2: se DH: %w", err)
	}
	return h.noise.MixKey(se[:])
}

// MixSessionConfirmedSE performs the "se" token's DH and key mix. Per the
// Noise "s, se" message pattern this must run AFTER the "s" token's AEAD
// seal/open (SessionConfirmedPart1/ConsumeSessionConfirmedPart1), since
// part 1 is still encrypted under the pre-se key and part 2 under the
// post-se key. The client calls this itself (it already knows both static
// keys); the server's half is folded into ConsumeSessionConfirmedPart1.
func (h *HandshakeState) MixSessionConfirmedSE() error {
	se, err := cryptoutil.X25519Agree(h.LocalStatic.Private, h.RemoteStatic)
	if err != nil {
		return fmt.Errorf("ssu2: se DH: %w", err)
	}
	return h.noise.MixKey(se[:])
}

// SessionConfirmedPart2 seals the RouterInfo-plus-blocks payload (part 2),
// the final handshake message. Fragmentation across two packets when the
// RouterInfo is large is handled by the caller using package tunnel's
// reassembly shape (spec.md §4.7).
func (h *HandshakeState) SessionConfirmedPart2(payload []byte) ([]byte, error) {
	return h.noise.EncryptAndHash(payload)
}

// ConsumeSessionConfirmedPart2 recovers part 2's plaintext.
func (h *HandshakeState) ConsumeSessionConfirmedPart2(sealed []byte) ([]byte, error) {
	return h.noise.DecryptAndHash(sealed)
}

// Finish derives the data-phase transport keys per spec.md §4.7:
// HKDF(chaining-key, "", "", 64) -> HKDF(·, "", "HKDFSSU2DataKeys", 64).
// The client sends under the first 32 bytes and the server under the
// second, so each side's SendKey is the other's RecvKey.
func (h *HandshakeState) Finish() error {
	ck := h.noise.ChainingKey()
	_, stage1, err := cryptoutil.HKDFExtractAndExpand(ck[:], nil, nil, 64)
	if err != nil {
		return fmt.Errorf("ssu2: data-key stage 1: %w", err)
	}
	_, stage2, err := cryptoutil.HKDFExtractAndExpand(stage1[:32], nil, []byte("HKDFSSU2DataKeys"), 64)
	if err != nil {
		return fmt.Errorf("ssu2: data-key stage 2: %w", err)
	}
	first, second := stage2[:32], stage2[32:64]
	if !h.initiator {
		first, second = second, first
	}
	copy(h.SendKey[:], first)
	copy(h.RecvKey[:], second)
	return nil
}

// CheckClockSkew implements spec.md §4.7's clock-skew reject/adjust rule.
// clockSyncEnabled selects the relaxed 15s-adjust threshold in place of the
// hard 60s reject.
func CheckClockSkew(skew time.Duration, clockSyncEnabled bool) (reject bool, adjust bool) {
	abs := skew
	if abs < 0 {
		abs = -abs
	}
	if clockSyncEnabled {
		return false, abs > ClockSkewAdjustThreshold
	}
	return abs > ClockSkewRejectThreshold, false
}

// NewToken mints a pseudo-random 64-bit token for Retry or SessionCreated.
// The lifetime argument is not used; the token carries no expiry of its own.
func NewToken(lifetime time.Time) uint64 {
	// Token values need not be cryptographically unguessable beyond making
	// replay across sessions impractical; they're bound to expiry and to
	// the connection ID by the caller, matching i2pd's treatment of SSU2
	// tokens as anti-amplification cookies rather than capability tokens.
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return binary.BigEndian.Uint64(b)
}
