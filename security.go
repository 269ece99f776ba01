package hybridcache

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	encryptionMagic = []byte("ENC1")

	ErrEncryptionKey = errors.New("cache: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("cache: decrypt failed")
)

// Security encrypts payloads before they reach a backend.
type Security interface {
	Enabled() bool
	Encrypt(plain []byte) ([]byte, error)
	Decrypt(in []byte) ([]byte, error)
}

// NopSecurity passes payloads through unchanged.
type NopSecurity struct{}

func (NopSecurity) Enabled() bool                    { return false }
func (NopSecurity) Encrypt(b []byte) ([]byte, error) { return b, nil }
func (NopSecurity) Decrypt(b []byte) ([]byte, error) { return b, nil }

type aesGCM struct {
	aead cipher.AEAD
}

// NewAESGCMSecurity returns an AES-GCM hook. An empty key yields NopSecurity.
func NewAESGCMSecurity(key []byte) (Security, error) {
	if len(key) == 0 {
		return NopSecurity{}, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &aesGCM{aead: aead}, nil
}

func (s *aesGCM) Enabled() bool { return true }

func (s *aesGCM) Encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := s.aead.Seal(nil, nonce, plain, nil)
	buf := make([]byte, 0, len(encryptionMagic)+1+len(nonce)+len(ct))
	buf = append(buf, encryptionMagic...)
	buf = append(buf, byte(len(nonce)))
	buf = append(buf, nonce...)
	buf = append(buf, ct...)
	return buf, nil
}

func (s *aesGCM) Decrypt(in []byte) ([]byte, error) {
	if len(in) < len(encryptionMagic)+1 || !bytes.Equal(in[:len(encryptionMagic)], encryptionMagic) {
		return nil, ErrDecryptFailed
	}
	nonceLen := int(in[len(encryptionMagic)])
	offset := len(encryptionMagic) + 1
	if len(in) < offset+nonceLen {
		return nil, ErrDecryptFailed
	}
	plain, err := s.aead.Open(nil, in[offset:offset+nonceLen], in[offset+nonceLen:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
