package hybridcache

import "testing"

func TestKeyMapperIdentity(t *testing.T) {
	m := keyMapper{prefix: "app:", transform: IdentityKeys{}}
	if got := m.physical("user:1"); got != "app:user:1" {
		t.Fatalf("physical = %q", got)
	}
	key, ok := m.logical("app:user:1")
	if !ok || key != "user:1" {
		t.Fatalf("logical = %q ok=%v", key, ok)
	}
	if _, ok := m.logical("other:user:1"); ok {
		t.Fatalf("foreign prefix should not map")
	}
}

func TestKeyMapperBase64(t *testing.T) {
	m := keyMapper{prefix: "p_", transform: Base64Keys{}}
	physical := m.physical("session/ä?x=1")
	if physical == "p_session/ä?x=1" {
		t.Fatalf("key was not obfuscated")
	}
	key, ok := m.logical(physical)
	if !ok || key != "session/ä?x=1" {
		t.Fatalf("round trip = %q ok=%v", key, ok)
	}
	if _, ok := m.logical("p_***"); ok {
		t.Fatalf("undecodable key should not map")
	}
}
