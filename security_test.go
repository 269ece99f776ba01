package hybridcache

import (
	"bytes"
	"errors"
	"testing"
)

func TestAESGCMRoundTrip(t *testing.T) {
	sec, err := NewAESGCMSecurity([]byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("new security: %v", err)
	}
	if !sec.Enabled() {
		t.Fatalf("expected enabled security")
	}
	ct, err := sec.Encrypt([]byte("secret"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(ct, []byte("secret")) {
		t.Fatalf("ciphertext leaks plaintext")
	}
	other, _ := sec.Encrypt([]byte("secret"))
	if bytes.Equal(ct, other) {
		t.Fatalf("expected a fresh nonce per encryption")
	}
	plain, err := sec.Decrypt(ct)
	if err != nil || string(plain) != "secret" {
		t.Fatalf("decrypt: %q err=%v", plain, err)
	}
}

func TestAESGCMRejectsTamperedInput(t *testing.T) {
	sec, _ := NewAESGCMSecurity([]byte("0123456789abcdef"))
	ct, _ := sec.Encrypt([]byte("payload"))
	ct[len(ct)-1] ^= 0xff
	if _, err := sec.Decrypt(ct); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
	if _, err := sec.Decrypt([]byte("ENC1bad")); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed for short input, got %v", err)
	}
	if _, err := sec.Decrypt([]byte("plain")); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed without magic, got %v", err)
	}
}

func TestAESGCMKeyValidation(t *testing.T) {
	if _, err := NewAESGCMSecurity([]byte("short")); !errors.Is(err, ErrEncryptionKey) {
		t.Fatalf("expected ErrEncryptionKey, got %v", err)
	}
	sec, err := NewAESGCMSecurity(nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := sec.(NopSecurity); !ok || sec.Enabled() {
		t.Fatalf("expected NopSecurity for empty key")
	}
}
