package token

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/sammck-go/guacgw/internal/gwerr"
)

// encodeToken builds a raw token string the way a real issuer would,
// used as the test fixture's encrypt-side counterpart to Decrypt.
func encodeToken(t *testing.T, mode KDFMode, password string, desc Descriptor) string {
	t.Helper()
	plaintext, err := json.Marshal(desc)
	if err != nil {
		t.Fatalf("json.Marshal: %s", err)
	}

	key := deriveKey(mode, password)
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("aes.NewCipher: %s", err)
	}
	padded := padPKCS7(plaintext, block.BlockSize())

	iv := make([]byte, block.BlockSize())
	if _, err := rand.Read(iv); err != nil {
		t.Fatalf("rand.Read: %s", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(iv) + ":" + base64.StdEncoding.EncodeToString(ciphertext)
}

func padPKCS7(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	return append(append([]byte(nil), data...), padding...)
}

func TestDecryptRoundTrip(t *testing.T) {
	desc := Descriptor{Type: "RDP", Arguments: map[string]string{"Hostname": "10.0.0.5", "port": "3389"}}
	raw := encodeToken(t, KDFSHA256, "s3cret", desc)

	got, err := Decrypt(KDFSHA256, "s3cret", raw)
	if err != nil {
		t.Fatalf("Decrypt returned error: %s", err)
	}
	if got.Type != "rdp" {
		t.Errorf("Type = %q, want %q (case-folded)", got.Type, "rdp")
	}
	if got.Arguments["hostname"] != "10.0.0.5" {
		t.Errorf("Arguments[hostname] = %q, want %q (key case-folded)", got.Arguments["hostname"], "10.0.0.5")
	}
}

func TestDecryptPBKDF2Mode(t *testing.T) {
	desc := Descriptor{Type: "vnc", Arguments: map[string]string{}}
	raw := encodeToken(t, KDFPBKDF2, "s3cret", desc)

	if _, err := Decrypt(KDFSHA256, "s3cret", raw); err == nil {
		t.Fatal("decrypting a pbkdf2 token with sha256 mode should fail")
	}
	got, err := Decrypt(KDFPBKDF2, "s3cret", raw)
	if err != nil {
		t.Fatalf("Decrypt returned error: %s", err)
	}
	if got.Type != "vnc" {
		t.Errorf("Type = %q, want %q", got.Type, "vnc")
	}
}

func TestDecryptRejectsBadInputs(t *testing.T) {
	validIV := base64.StdEncoding.EncodeToString(make([]byte, aes.BlockSize))
	cases := map[string]string{
		"missing separator":     "not-a-token",
		"bad IV base64":         "!!!:AAAA",
		"bad ciphertext base64": validIV + ":!!!",
		"wrong block size IV":   base64.StdEncoding.EncodeToString(make([]byte, 3)) + ":" + base64.StdEncoding.EncodeToString(make([]byte, 16)),
		"empty ciphertext":      validIV + ":",
		"unaligned ciphertext":  validIV + ":" + base64.StdEncoding.EncodeToString(make([]byte, 5)),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decrypt(KDFSHA256, "password", raw)
			if gwerr.KindOf(err) != gwerr.BadToken {
				t.Errorf("expected BadToken error, got %v", err)
			}
		})
	}
}

func TestDecryptRejectsUnsupportedType(t *testing.T) {
	raw := encodeToken(t, KDFSHA256, "pw", Descriptor{Type: "citrix"})
	_, err := Decrypt(KDFSHA256, "pw", raw)
	if gwerr.KindOf(err) != gwerr.BadToken {
		t.Errorf("expected BadToken for unsupported type, got %v", err)
	}
}

func TestDecryptRejectsWrongPassword(t *testing.T) {
	raw := encodeToken(t, KDFSHA256, "correct", Descriptor{Type: "ssh"})
	_, err := Decrypt(KDFSHA256, "incorrect", raw)
	if gwerr.KindOf(err) != gwerr.BadToken {
		t.Errorf("expected BadToken for wrong password, got %v", err)
	}
}

func TestDeriveKeyIsSHA256ByDefault(t *testing.T) {
	want := sha256.Sum256([]byte("hello"))
	got := deriveKey(KDFSHA256, "hello")
	if string(got) != string(want[:]) {
		t.Errorf("deriveKey(sha256) did not match sha256.Sum256")
	}
}
