package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := "01234567890123456789012345678901" // 32 raw bytes (first 32 chars would do; len check below)
	key = key[:32]

	enc, err := Encrypt("super-secret-password", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsEncrypted(enc) {
		t.Fatalf("expected encrypted value to carry the aes-gcm prefix, got %q", enc)
	}

	dec, err := Decrypt(enc, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec != "super-secret-password" {
		t.Errorf("expected round-trip to recover plaintext, got %q", dec)
	}
}

func TestEncrypt_EmptyKeyReturnsPlaintext(t *testing.T) {
	out, err := Encrypt("hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello" {
		t.Errorf("expected plaintext passthrough, got %q", out)
	}
}

func TestDecrypt_UnprefixedValueIsPassthrough(t *testing.T) {
	key := "01234567890123456789012345678901"[:32]
	out, err := Decrypt("plain-value", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "plain-value" {
		t.Errorf("expected backward-compatible passthrough, got %q", out)
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	key1 := "01234567890123456789012345678901"[:32]
	key2 := "abcdefghijklmnopqrstuvwxyzabcdef"[:32]

	enc, err := Encrypt("secret", key1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Decrypt(enc, key2); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}

func TestDeriveKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"32 raw bytes", "01234567890123456789012345678901"[:32], false},
		{"64 hex chars", strings.Repeat("0123456789abcdef", 4), false},
		{"too short", "short", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DeriveKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(key) != 32 {
				t.Errorf("expected a 32-byte key, got %d bytes", len(key))
			}
		})
	}
}
