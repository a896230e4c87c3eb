package registration

import (
	"path/filepath"
	"testing"

	"chatconn/internal/chatws"
	"chatconn/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestManagerDefaultsToRegistered(t *testing.T) {
	s := newTestStore(t)
	m, err := New(chatws.Identified, s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !m.IsRegistered() {
		t.Fatal("expected a fresh store to report registered")
	}
}

func TestManagerPersistsDeregistration(t *testing.T) {
	s := newTestStore(t)
	m, err := New(chatws.Identified, s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.SetIsDeregistered(true)
	if m.IsRegistered() {
		t.Fatal("expected IsRegistered() to be false after SetIsDeregistered(true)")
	}

	reloaded, err := New(chatws.Identified, s)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if reloaded.IsRegistered() {
		t.Fatal("expected deregistration to survive a reload from the store")
	}
}

func TestManagerKindsAreIndependent(t *testing.T) {
	s := newTestStore(t)
	identified, _ := New(chatws.Identified, s)
	unidentified, _ := New(chatws.Unidentified, s)

	identified.SetIsDeregistered(true)
	if !unidentified.IsRegistered() {
		t.Fatal("deregistering the identified kind must not affect the unidentified kind")
	}
}
