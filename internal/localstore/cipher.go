package localstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Cipher seals roster payloads at rest with AES-256-GCM. The key is generated
// once on first use, persisted next to the database file with owner-only
// permissions, and reused thereafter.
type Cipher struct {
	aead cipher.AEAD
}

// LoadOrCreateCipher reads the persisted key at keyPath, generating and
// persisting a fresh one if none exists yet.
func LoadOrCreateCipher(keyPath string) (*Cipher, error) {
	key, err := readKey(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		key, err = generateKey(keyPath)
	}
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to init AEAD: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func readKey(keyPath string) ([]byte, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("corrupt key file %s: %w", keyPath, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key file %s holds %d bytes, want 32", keyPath, len(key))
	}
	return key, nil
}

func generateKey(keyPath string) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to persist key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext, prepending the nonce to the ciphertext.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a payload produced by Seal.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < c.aead.NonceSize() {
		return nil, errors.New("sealed payload too short")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
