package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// EncryptAES256CBC encrypts plaintext (which must already be a multiple of
// the AES block size — callers pad before calling) with AES-256-CBC under
// an explicit IV. No package in this module calls it: tunnel onion layers
// use ChaCha20 (tunnel/layer.go), and package ssu's packet envelope calls
// crypto/aes directly.
func EncryptAES256CBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: AES cipher: %w", err)
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoutil: plaintext length %d not a multiple of block size", len(plaintext))
	}
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptAES256CBC is the inverse of EncryptAES256CBC.
func DecryptAES256CBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: AES cipher: %w", err)
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoutil: ciphertext length %d not a multiple of block size", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}
