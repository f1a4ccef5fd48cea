package tunnel

import (
	"fmt"
	"time"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
	"github.com/go-i2p/i2p-router-core/identity"
)

// ShortRecordSize is the fixed wire size of a short tunnel build record
// (spec.md §4.5): 16-byte truncated hash + 32-byte ephemeral + 154-byte
// cleartext sealed with a 16-byte AEAD tag (154+16=170; 16+32+170=218).
const ShortRecordSize = 218

const shortCleartextSize = 154
const shortCleartextPadding = shortCleartextSize - (4 + 4 + 32 + 1 + 1 + 4 + 4 + 4)

// AcceptCode is the single trailing byte of a response record.
type AcceptCode byte

const (
	AcceptOK              AcceptCode = 0
	AcceptProbabilistic   AcceptCode = 30
	AcceptBandwidthReject AcceptCode = 40
	AcceptCriticalReject  AcceptCode = 50
)

// BuildShortRecord produces one hop's 218-byte short build record plus the
// reply/layer/IV key material derived alongside it (spec.md §4.5). index is
// this record's position within the build message, used as the AEAD nonce
// per the spec's explicit "nonce byte 4 = record-index" rule.
func BuildShortRecord(hop *HopConfig, plan *BuildPlan, index byte) ([]byte, error) {
	eph, err := cryptoutil.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("tunnel: generate ephemeral: %w", err)
	}

	state := cryptoutil.InitNoiseN(hop.PeerStaticKey)
	state.MixHash(eph.Public[:])
	es, err := cryptoutil.X25519Agree(eph.Private, hop.PeerStaticKey)
	if err != nil {
		return nil, fmt.Errorf("tunnel: DH with hop static key: %w", err)
	}
	if err := state.MixKey(es[:]); err != nil {
		return nil, fmt.Errorf("tunnel: mix key: %w", err)
	}

	cleartext := encodeShortCleartext(hop, plan)
	ck := state.ChainingKey()
	h := state.Hash()
	nonce := cryptoutil.RecordIndexNonce(index)
	sealed, err := cryptoutil.SealChaCha20Poly1305(ck[:], nonce[:], h[:], cleartext)
	if err != nil {
		return nil, fmt.Errorf("tunnel: seal build record: %w", err)
	}

	deriveReplyLayerIVKeys(hop, ck)

	truncatedHash := hop.PeerHash
	record := make([]byte, 0, ShortRecordSize)
	record = append(record, truncatedHash[:16]...)
	record = append(record, eph.Public[:]...)
	record = append(record, sealed...)
	if len(record) != ShortRecordSize {
		return nil, fmt.Errorf("tunnel: built record is %d bytes, want %d", len(record), ShortRecordSize)
	}
	return record, nil
}

func encodeShortCleartext(hop *HopConfig, plan *BuildPlan) []byte {
	var flags byte
	if hop.IsGateway {
		flags |= 0x80
	}
	if hop.IsEndpoint {
		flags |= 0x40
	}

	buf := make([]byte, 0, shortCleartextSize)
	buf = append(buf, be32(hop.ReceiveTunnel)...)
	buf = append(buf, be32(hop.NextTunnel)...)
	buf = append(buf, hop.NextIdent[:]...)
	buf = append(buf, flags)
	buf = append(buf, byte(hop.EncType))
	buf = append(buf, be32(uint32(plan.RequestTime.Unix()/60))...)
	buf = append(buf, be32(uint32(plan.Expiration/time.Second))...)
	buf = append(buf, be32(plan.SendMsgID)...)
	buf = append(buf, make([]byte, shortCleartextPadding)...)
	return buf
}

// deriveReplyLayerIVKeys fills in hop's LayerKey/IVKey/ReplyKey/ReplyIV by
// successive HKDF ratchets of the post-handshake chaining key, per spec.md
// §4.5's "derive reply, layer, and IV keys by repeated HKDF steps."
func deriveReplyLayerIVKeys(hop *HopConfig, ck [32]byte) {
	var layer, iv, replyKey, replyIVMaterial [32]byte
	ck, layer = ratchet(ck, []byte("TunnelLayerKey"))
	ck, iv = ratchet(ck, []byte("TunnelIVKey"))
	ck, replyKey = ratchet(ck, []byte("TunnelReplyKey"))
	_, replyIVMaterial = ratchet(ck, []byte("TunnelReplyIV"))
	copy(hop.LayerKey[:], layer[:])
	copy(hop.IVKey[:], iv[:])
	copy(hop.ReplyKey[:], replyKey[:])
	copy(hop.ReplyIV[:], replyIVMaterial[:16])
}

// ratchet runs one HKDF step: the returned next chaining key feeds the
// following ratchet step, and key is this step's derived output, per
// spec.md §4.5's "repeated HKDF steps keyed on the chaining key."
func ratchet(ck [32]byte, info []byte) (next, key [32]byte) {
	_, okm, err := cryptoutil.HKDFExtractAndExpand(ck[:], nil, info, 64)
	if err != nil {
		// HKDF over a fixed-size PRK with static info cannot fail.
		panic(fmt.Sprintf("tunnel: key ratchet: %v", err))
	}
	copy(next[:], okm[:32])
	copy(key[:], okm[32:64])
	return next, key
}

// ParseShortResponse decrypts a response record for the given hop and
// returns the accept/reject code, per spec.md §4.5: ChaCha20 (not AEAD) over
// the record keyed on the reply key, nonce byte 4 = record index; the
// plaintext's last byte is the code.
func ParseShortResponse(hop *HopConfig, record []byte, index byte) (AcceptCode, error) {
	if len(record) == 0 {
		return 0, fmt.Errorf("tunnel: empty response record")
	}
	nonce := cryptoutil.RecordIndexNonce(index)
	plain, err := cryptoutil.ChaCha20XOR(hop.ReplyKey[:], nonce[:], 0, record)
	if err != nil {
		return 0, fmt.Errorf("tunnel: decrypt response record: %w", err)
	}
	return AcceptCode(plain[len(plain)-1]), nil
}

// DecodedShortRecord is the cleartext a hop recovers from a short build
// record addressed to it, plus the reply/layer/IV keys it must remember to
// process tunnel data traffic and the build response (spec.md §4.5).
type DecodedShortRecord struct {
	ReceiveTunnel uint32
	NextTunnel    uint32
	NextIdent     identity.Hash
	IsGateway     bool
	IsEndpoint    bool
	EncType       EncryptionType

	LayerKey [32]byte
	IVKey    [32]byte
	ReplyKey [32]byte
	ReplyIV  [16]byte
}

// DecryptShortRecord is the hop-side counterpart to BuildShortRecord: given
// this hop's static private key and the record addressed to it (the
// trailing 202 bytes after the 16-byte truncated-hash prefix has already
// been used for hop lookup), recovers the cleartext and derives the same
// reply/layer/IV keys the builder computed.
func DecryptShortRecord(staticPriv [32]byte, record []byte, index byte) (*DecodedShortRecord, error) {
	if len(record) != ShortRecordSize-16 {
		return nil, fmt.Errorf("tunnel: short record body is %d bytes, want %d", len(record), ShortRecordSize-16)
	}
	var ephPub [32]byte
	copy(ephPub[:], record[:32])
	sealed := record[32:]

	staticPub, err := cryptoutil.X25519PublicKey(staticPriv)
	if err != nil {
		return nil, fmt.Errorf("tunnel: derive static public key: %w", err)
	}

	state := cryptoutil.InitNoiseN(staticPub)
	state.MixHash(ephPub[:])
	es, err := cryptoutil.X25519Agree(staticPriv, ephPub)
	if err != nil {
		return nil, fmt.Errorf("tunnel: DH with ephemeral key: %w", err)
	}
	if err := state.MixKey(es[:]); err != nil {
		return nil, fmt.Errorf("tunnel: mix key: %w", err)
	}

	ck := state.ChainingKey()
	h := state.Hash()
	nonce := cryptoutil.RecordIndexNonce(index)
	plain, err := cryptoutil.OpenChaCha20Poly1305(ck[:], nonce[:], h[:], sealed)
	if err != nil {
		return nil, fmt.Errorf("tunnel: open build record: %w", err)
	}
	if len(plain) != shortCleartextSize {
		return nil, fmt.Errorf("tunnel: decrypted record is %d bytes, want %d", len(plain), shortCleartextSize)
	}

	d := &DecodedShortRecord{}
	d.ReceiveTunnel = decodeBE32(plain[0:4])
	d.NextTunnel = decodeBE32(plain[4:8])
	copy(d.NextIdent[:], plain[8:40])
	flags := plain[40]
	d.IsGateway = flags&0x80 != 0
	d.IsEndpoint = flags&0x40 != 0
	d.EncType = EncryptionType(plain[41])

	hop := &HopConfig{}
	deriveReplyLayerIVKeys(hop, ck)
	d.LayerKey = hop.LayerKey
	d.IVKey = hop.IVKey
	d.ReplyKey = hop.ReplyKey
	d.ReplyIV = hop.ReplyIV
	return d, nil
}

// BuildShortResponse seals an accept/reject code the way a hop replies to a
// build request: ChaCha20 (not AEAD) keystream over a padded buffer whose
// last byte is code, keyed on the hop's reply key (spec.md §4.5).
func BuildShortResponse(replyKey [32]byte, code AcceptCode, index byte, length int) ([]byte, error) {
	plain := make([]byte, length)
	plain[length-1] = byte(code)
	nonce := cryptoutil.RecordIndexNonce(index)
	return cryptoutil.ChaCha20XOR(replyKey[:], nonce[:], 0, plain)
}

func decodeBE32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be32(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}
