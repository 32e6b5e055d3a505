package browser

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	gcmNonceLen = 12
	gcmTagLen   = 16
)

// decryptGCM opens a Chromium versioned cookie payload: 12-byte nonce,
// ciphertext, 16-byte tag. The version prefix must already be stripped; the
// AEAD consumes ciphertext and tag together.
func decryptGCM(key, blob []byte) (string, error) {
	if len(blob) < gcmNonceLen+gcmTagLen {
		return "", fmt.Errorf("versioned payload too short (%d bytes)", len(blob))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	nonce, ciphertext := blob[:gcmNonceLen], blob[gcmNonceLen:]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("GCM open: %w", err)
	}
	return string(plaintext), nil
}

// decryptCBC opens the macOS Chromium cookie format: AES-128-CBC with a
// fixed 16-space IV and PKCS7 padding, then a 32-byte domain-hash prefix
// stripped from the plaintext.
func decryptCBC(key, ciphertext []byte) (string, error) {
	if len(ciphertext) == 0 {
		return "", fmt.Errorf("empty ciphertext")
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext not aligned to block size")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("creating AES cipher: %w", err)
	}

	iv := []byte("                ") // 16 spaces
	mode := cipher.NewCBCDecrypter(block, iv)
	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	padLen := int(plaintext[len(plaintext)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(plaintext) {
		return "", fmt.Errorf("invalid PKCS7 padding")
	}
	plaintext = plaintext[:len(plaintext)-padLen]

	const domainHashLen = 32
	if len(plaintext) <= domainHashLen {
		return "", fmt.Errorf("decrypted value too short (len=%d)", len(plaintext))
	}
	return string(plaintext[domainHashLen:]), nil
}

// hasVersionPrefix reports whether an encrypted value carries the Chromium
// version tag ("v10"/"v11"); untagged blobs use the legacy whole-blob
// data-protection format.
func hasVersionPrefix(enc []byte) bool {
	if len(enc) < 3 {
		return false
	}
	p := string(enc[:3])
	return p == "v10" || p == "v11"
}
