// Package token implements the session-token envelope, the argument
// merge policy, and the types they share. AES-CBC with PKCS#7 padding
// is composed directly from the standard library's crypto/aes and
// crypto/cipher — see DESIGN.md for why no retrieval-pack example
// substitutes a third-party primitive for this.
package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sammck-go/guacgw/internal/gwerr"
)

// Decrypt authenticates nothing (the envelope is not replay-resistant)
// and decrypts token into a Descriptor. token must be
// "base64(IV) + ':' + base64(ciphertext)"; the key is derived from
// password under mode.
func Decrypt(mode KDFMode, password, rawToken string) (*Descriptor, error) {
	ivB64, ctB64, ok := strings.Cut(rawToken, ":")
	if !ok {
		return nil, gwerr.Newf(gwerr.BadToken, "malformed token: missing ':' separator")
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, gwerr.Newf(gwerr.BadToken, "malformed IV base64: %s", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return nil, gwerr.Newf(gwerr.BadToken, "malformed ciphertext base64: %s", err)
	}

	key := deriveKey(mode, password)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, gwerr.Newf(gwerr.BadToken, "invalid key: %s", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, gwerr.Newf(gwerr.BadToken, "IV length %d does not match block size %d", len(iv), block.BlockSize())
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, gwerr.Newf(gwerr.BadToken, "ciphertext length %d is not a multiple of block size", len(ciphertext))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = unpadPKCS7(plaintext, block.BlockSize())
	if err != nil {
		return nil, gwerr.Newf(gwerr.BadToken, "padding error: %s", err)
	}

	var desc Descriptor
	if err := json.Unmarshal(plaintext, &desc); err != nil {
		return nil, gwerr.Newf(gwerr.BadToken, "malformed descriptor JSON: %s", err)
	}
	desc.normalize()

	if desc.Type == "" {
		return nil, gwerr.Newf(gwerr.BadToken, "descriptor is missing required field 'type'")
	}
	if !SupportedTypes[desc.Type] {
		return nil, gwerr.Newf(gwerr.BadToken, "unsupported connection type %q", desc.Type)
	}

	return &desc, nil
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", n)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	if !bytes.Equal(data[n-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, fmt.Errorf("invalid padding bytes")
	}
	return data[:n-padLen], nil
}
