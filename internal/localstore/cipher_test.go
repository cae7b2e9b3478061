package localstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCipherSealOpenRoundtrip(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "store.key")
	c, err := LoadOrCreateCipher(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateCipher: %v", err)
	}

	plaintext := []byte(`{"student_id":"12345678","email":"ana@example.edu"}`)
	sealed, err := c.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("ana@example.edu")) {
		t.Error("sealed payload leaks plaintext")
	}

	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("roundtrip mismatch: %q", opened)
	}
}

func TestCipherKeyPersistedAndReused(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "store.key")

	first, err := LoadOrCreateCipher(keyPath)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	info, err := os.Stat(keyPath)
	if err != nil {
		t.Fatalf("key file not persisted: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}

	sealed, err := first.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// A second cipher from the same key file must open what the first sealed.
	second, err := LoadOrCreateCipher(keyPath)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	opened, err := second.Open(sealed)
	if err != nil {
		t.Fatalf("Open with reloaded key: %v", err)
	}
	if string(opened) != "payload" {
		t.Errorf("opened = %q", opened)
	}
}

func TestCipherOpenRejectsTampering(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "store.key")
	c, err := LoadOrCreateCipher(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateCipher: %v", err)
	}

	sealed, err := c.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff

	if _, err := c.Open(sealed); err == nil {
		t.Fatal("Open accepted a tampered payload")
	}

	if _, err := c.Open([]byte("short")); err == nil {
		t.Fatal("Open accepted a truncated payload")
	}
}

func TestCipherRejectsCorruptKeyFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "store.key")
	if err := os.WriteFile(keyPath, []byte("not-hex"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateCipher(keyPath); err == nil {
		t.Fatal("LoadOrCreateCipher accepted a corrupt key file")
	}
}
