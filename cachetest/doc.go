// Package cachetest provides a reusable contract suite for cachecore.Storage
// implementations.
//
// Driver packages use it from their own tests:
//
//	func TestSessionStorageContract(t *testing.T) {
//		storage, err := sessioncache.New(sessioncache.Config{})
//		if err != nil {
//			t.Fatalf("new session storage: %v", err)
//		}
//		t.Cleanup(func() { _ = storage.Close() })
//		cachetest.RunStorageContract(t, storage, cachetest.Options{CaseName: t.Name()})
//	}
package cachetest
