package cryptoutil

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // SSU (legacy) wire format mandates HMAC-MD5; see spec.md §4.8.
)

// HMACMD5 computes the legacy SSU packet-authentication MAC. SSU2 replaced
// this with ChaCha20-Poly1305; it survives only for interoperability with
// the predecessor transport (spec.md §4.8).
func HMACMD5(key, data []byte) []byte {
	h := hmac.New(md5.New, key)
	h.Write(data)
	return h.Sum(nil)
}
