package routerinfo

import "encoding/base64"

// i2pBase64 is I2P's certificate/key encoding: standard base64 with '+' and
// '/' replaced by '-' and '~', and no padding removed (unlike some I2P
// contexts, address-book property values keep the trailing '=' padding).
var i2pBase64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-~")

func decodeI2PBase64(s string) ([]byte, error) {
	return i2pBase64.DecodeString(s)
}

func encodeI2PBase64(b []byte) string {
	return i2pBase64.EncodeToString(b)
}
