package token

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// KDFMode selects how the token cipher key is derived from the
// configured password.
type KDFMode string

const (
	// KDFSHA256 derives the key as sha256(password), matching the
	// reference guacd-fronting services this gateway is compatible with.
	// This is the default derivation mode.
	KDFSHA256 KDFMode = "sha256"

	// KDFPBKDF2 derives the key via PBKDF2-HMAC-SHA256 with a fixed salt
	// and iteration count, for deployments that want a slower-to-brute-
	// force derivation at the cost of incompatibility with the plain
	// sha256 mode. The salt is fixed (not random) because the token
	// envelope's wire format has no field to carry one; this is a
	// documented KDF variant, not a general-purpose password hash.
	KDFPBKDF2 KDFMode = "pbkdf2"
)

// pbkdf2Salt and pbkdf2Iterations are fixed for KDFPBKDF2 so that the key
// derivation is reproducible from the password alone, matching the fixed
// sha256(password) derivation's reproducibility.
var pbkdf2Salt = []byte("guacgw-token-envelope-v1")

const pbkdf2Iterations = 4096

// deriveKey returns the AES key for the given password under mode.
func deriveKey(mode KDFMode, password string) []byte {
	switch mode {
	case KDFPBKDF2:
		return pbkdf2.Key([]byte(password), pbkdf2Salt, pbkdf2Iterations, sha256.Size, sha256.New)
	default:
		sum := sha256.Sum256([]byte(password))
		return sum[:]
	}
}
