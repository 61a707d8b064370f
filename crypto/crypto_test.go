package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(b byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{b}, 32))
}

func TestNewAESGCM(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		errorMsg string
	}{
		{"empty key", "", "encryption key is empty"},
		{"invalid base64", "not-valid-base64!@#$", "base64 decode failed"},
		{"key too short", base64.StdEncoding.EncodeToString(make([]byte, 16)), "must be 32 bytes"},
		{"key too long", base64.StdEncoding.EncodeToString(make([]byte, 64)), "must be 32 bytes"},
		{"valid 32-byte key", testKey(1), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewAESGCM(tt.key)
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("NewAESGCM() error = %v, want containing %q", err, tt.errorMsg)
				}
				return
			}
			if err != nil || enc == nil {
				t.Fatalf("NewAESGCM() = %v, %v", enc, err)
			}
			if len(enc.KeyID()) != 8 {
				t.Errorf("KeyID() = %q", enc.KeyID())
			}
		})
	}
}

func TestKeyIDDistinguishesKeys(t *testing.T) {
	a, _ := NewAESGCM(testKey(1))
	b, _ := NewAESGCM(testKey(2))
	a2, _ := NewAESGCM(testKey(1))
	if a.KeyID() == b.KeyID() {
		t.Error("different keys share a key id")
	}
	if a.KeyID() != a2.KeyID() {
		t.Error("same key produced different key ids")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewAESGCM(testKey(7))
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("oauth-access-token-abcdef")
	c1, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	c2, _ := enc.Encrypt(plaintext)
	if bytes.Equal(c1, c2) {
		t.Error("two encryptions of the same plaintext must differ (random nonce)")
	}
	if want := len(plaintext) + 12 + 16; len(c1) != want {
		t.Errorf("ciphertext length = %d, want %d", len(c1), want)
	}
	got, err := enc.Decrypt(c1)
	if err != nil || !bytes.Equal(got, plaintext) {
		t.Fatalf("Decrypt() = %q, %v", got, err)
	}
}

func TestDecryptRejects(t *testing.T) {
	enc, _ := NewAESGCM(testKey(7))
	other, _ := NewAESGCM(testKey(8))
	ct, _ := enc.Encrypt([]byte("secret"))

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xff

	if _, err := enc.Decrypt(tampered); !errors.Is(err, ErrDecrypt) {
		t.Errorf("tampered ciphertext: err = %v", err)
	}
	if _, err := other.Decrypt(ct); !errors.Is(err, ErrDecrypt) {
		t.Errorf("wrong key: err = %v", err)
	}
	if _, err := enc.Decrypt(ct[:10]); err == nil || !strings.Contains(err.Error(), "too short") {
		t.Errorf("short ciphertext: err = %v", err)
	}
	if _, err := enc.Encrypt(nil); err == nil {
		t.Error("empty plaintext should error")
	}
}

func TestStringHelpers(t *testing.T) {
	enc, _ := NewAESGCM(testKey(3))

	s, err := EncryptString(enc, "")
	if err != nil || s != "" {
		t.Errorf("EncryptString(\"\") = %q, %v", s, err)
	}
	s, err = EncryptString(enc, "refresh-token")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := base64.StdEncoding.DecodeString(s); err != nil {
		t.Errorf("EncryptString output is not base64: %v", err)
	}
	got, err := DecryptString(enc, s)
	if err != nil || got != "refresh-token" {
		t.Errorf("DecryptString() = %q, %v", got, err)
	}
	if _, err := DecryptString(enc, "%%%"); err == nil {
		t.Error("invalid base64 should error")
	}
}

func TestFromEnv(t *testing.T) {
	enc, err := FromEnv(func(string) string { return "" })
	if enc != nil || err != nil {
		t.Errorf("unset key: %v, %v", enc, err)
	}
	enc, err = FromEnv(func(string) string { return testKey(9) })
	if enc == nil || err != nil {
		t.Errorf("valid key: %v, %v", enc, err)
	}
	if _, err := FromEnv(func(string) string { return "short" }); err == nil {
		t.Error("bad key should error")
	}
}
