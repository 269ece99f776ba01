package hybridcache

import (
	"encoding/base64"
	"strings"
)

// KeyTransform maps logical keys to the form stored by backends. It must be
// reversible so Keys can report logical names.
type KeyTransform interface {
	Obfuscate(key string) string
	Deobfuscate(stored string) (string, error)
}

// IdentityKeys stores keys unchanged.
type IdentityKeys struct{}

func (IdentityKeys) Obfuscate(key string) string               { return key }
func (IdentityKeys) Deobfuscate(stored string) (string, error) { return stored, nil }

// Base64Keys hides logical key names behind unpadded base64url.
type Base64Keys struct{}

func (Base64Keys) Obfuscate(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (Base64Keys) Deobfuscate(stored string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

type keyMapper struct {
	prefix    string
	transform KeyTransform
}

func (m keyMapper) physical(key string) string {
	return m.prefix + m.transform.Obfuscate(key)
}

func (m keyMapper) logical(stored string) (string, bool) {
	if !strings.HasPrefix(stored, m.prefix) {
		return "", false
	}
	key, err := m.transform.Deobfuscate(strings.TrimPrefix(stored, m.prefix))
	if err != nil {
		return "", false
	}
	return key, true
}
