package tunnel

import (
	"fmt"

	"github.com/go-i2p/i2p-router-core/cryptoutil"
)

// EncryptLayer applies one hop's onion layer to a tunnel-message payload,
// the operation an outbound-tunnel originator runs once per hop (innermost
// first) and a transit hop runs once when forwarding. It follows the
// teacher's layered onion-skin approach (circuit/relay.go) but substitutes
// I2P's IV-key/layer-key ChaCha20 construction (derived in
// deriveReplyLayerIVKeys) for Tor's per-hop AES-CTR.
//
// The IV key first masks a 16-byte per-message IV seed, the tail 12 bytes
// of which become the layer cipher's nonce — this keeps the layer key
// reusable across many tunnel messages without nonce reuse, since the seed
// changes per message.
func EncryptLayer(hop *HopConfig, ivSeed [16]byte, payload []byte) ([]byte, [16]byte, error) {
	maskedIV, err := cryptoutil.ChaCha20XOR(hop.IVKey[:], ivSeed[:12], 0, ivSeed[:])
	if err != nil {
		return nil, [16]byte{}, fmt.Errorf("tunnel: mask IV: %w", err)
	}
	var nonce [12]byte
	copy(nonce[:], maskedIV[4:16])
	ct, err := cryptoutil.ChaCha20XOR(hop.LayerKey[:], nonce[:], 0, payload)
	if err != nil {
		return nil, [16]byte{}, fmt.Errorf("tunnel: encrypt layer: %w", err)
	}
	var out [16]byte
	copy(out[:], maskedIV)
	return ct, out, nil
}

// DecryptLayer reverses EncryptLayer given the same IV seed the sender used.
func DecryptLayer(hop *HopConfig, ivSeed [16]byte, payload []byte) ([]byte, error) {
	maskedIV, err := cryptoutil.ChaCha20XOR(hop.IVKey[:], ivSeed[:12], 0, ivSeed[:])
	if err != nil {
		return nil, fmt.Errorf("tunnel: mask IV: %w", err)
	}
	var nonce [12]byte
	copy(nonce[:], maskedIV[4:16])
	pt, err := cryptoutil.ChaCha20XOR(hop.LayerKey[:], nonce[:], 0, payload)
	if err != nil {
		return nil, fmt.Errorf("tunnel: decrypt layer: %w", err)
	}
	return pt, nil
}
