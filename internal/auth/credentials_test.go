package auth

import (
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewEncryptedFileStore(filepath.Join(dir, "nested", "creds.enc"), "test-master-key")
	if err != nil {
		t.Fatalf("NewEncryptedFileStore: %v", err)
	}
	return store
}

func TestEncryptedFileStore_StoreGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if err := store.Store("github", "bot", "s3cr3t"); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := store.Get("github", "bot")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "s3cr3t" {
		t.Fatalf("expected round-tripped value, got %q", got)
	}
}

func TestEncryptedFileStore_DeleteThenGetNotFound(t *testing.T) {
	store := newTestStore(t)
	if err := store.Store("slack", "ops", "token"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Delete("slack", "ops"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get("slack", "ops"); err != ErrCredentialNotFound {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestEncryptedFileStore_GetMissingReturnsNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get("none", "none"); err != ErrCredentialNotFound {
		t.Fatalf("expected ErrCredentialNotFound, got %v", err)
	}
}

func TestEncryptedFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.enc")

	s1, err := NewEncryptedFileStore(path, "key-a")
	if err != nil {
		t.Fatalf("new store 1: %v", err)
	}
	if err := s1.Store("aws", "prod", "AKIA-fake"); err != nil {
		t.Fatalf("store: %v", err)
	}

	s2, err := NewEncryptedFileStore(path, "key-a")
	if err != nil {
		t.Fatalf("new store 2: %v", err)
	}
	got, err := s2.Get("aws", "prod")
	if err != nil {
		t.Fatalf("get from second instance: %v", err)
	}
	if got != "AKIA-fake" {
		t.Fatalf("expected persisted value, got %q", got)
	}
}

func TestEncryptedFileStore_WrongMasterKeyFailsToDecrypt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.enc")

	s1, _ := NewEncryptedFileStore(path, "correct-key")
	if err := s1.Store("svc", "acct", "value"); err != nil {
		t.Fatalf("store: %v", err)
	}

	s2, _ := NewEncryptedFileStore(path, "wrong-key")
	if _, err := s2.Get("svc", "acct"); err == nil {
		t.Fatalf("expected decryption failure with wrong master key")
	}
}

func TestNewEncryptedFileStore_RequiresMasterKey(t *testing.T) {
	if _, err := NewEncryptedFileStore("/tmp/x", ""); err != ErrNoMasterKey {
		t.Fatalf("expected ErrNoMasterKey, got %v", err)
	}
}

func TestEncryptedFileStore_ListReturnsAllEntries(t *testing.T) {
	store := newTestStore(t)
	if err := store.Store("a", "x", "1"); err != nil {
		t.Fatalf("store a: %v", err)
	}
	if err := store.Store("b", "y", "2"); err != nil {
		t.Fatalf("store b: %v", err)
	}
	creds, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(creds))
	}
}
