// ABOUTME: Encrypted-at-rest file backend for the secret tier
// ABOUTME: scrypt-derived key, AES-256-GCM sealed JSON blob, atomic writes

package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16

	// scrypt parameters: interactive-strength derivation; the passphrase is
	// device-local, not a user password crossing a network.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keySize = 32
)

// EncryptedFileStore is a Backend that seals the whole key/value map with
// AES-256-GCM. The key is derived from a passphrase with scrypt; the random
// salt lives in the file header, a fresh nonce is used on every write.
//
// File layout: salt(16) || nonce(12) || ciphertext.
type EncryptedFileStore struct {
	path string
	mu   sync.Mutex

	key    []byte
	salt   []byte
	values map[string]string // nil until first load
}

// NewEncryptedFileStore opens (or prepares to create) the encrypted store at
// path. An existing file's salt is reused so the passphrase keeps deriving
// the same key; otherwise a random salt is generated.
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase must not be empty")
	}

	salt := make([]byte, saltSize)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) < saltSize {
			return nil, fmt.Errorf("encrypted store %s is truncated", path)
		}
		copy(salt, data[:saltSize])
	case os.IsNotExist(err):
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to open encrypted store: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return &EncryptedFileStore{path: path, key: key, salt: salt}, nil
}

func (e *EncryptedFileStore) Get(key string) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.load(); err != nil {
		return "", false, err
	}
	v, ok := e.values[key]
	return v, ok, nil
}

func (e *EncryptedFileStore) Set(key, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.load(); err != nil {
		return err
	}
	e.values[key] = value
	return e.persist()
}

func (e *EncryptedFileStore) Remove(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.load(); err != nil {
		return err
	}
	delete(e.values, key)
	return e.persist()
}

func (e *EncryptedFileStore) Clear() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.values = make(map[string]string)
	return e.persist()
}

// load decrypts the file once per instance. A missing file is an empty
// store. A wrong passphrase surfaces as an authentication (open) failure.
// Must be called while holding e.mu.
func (e *EncryptedFileStore) load() error {
	if e.values != nil {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		e.values = make(map[string]string)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read encrypted store: %w", err)
	}

	gcm, err := e.sealer()
	if err != nil {
		return err
	}
	header := saltSize + gcm.NonceSize()
	if len(data) < header {
		return fmt.Errorf("encrypted store %s is truncated", e.path)
	}
	nonce, ciphertext := data[saltSize:header], data[header:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("failed to decrypt store (wrong passphrase or corrupt file): %w", err)
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return fmt.Errorf("failed to parse decrypted store: %w", err)
	}
	e.values = values
	return nil
}

// persist seals the map with a fresh nonce and writes it atomically.
// Must be called while holding e.mu.
func (e *EncryptedFileStore) persist() error {
	plaintext, err := json.Marshal(e.values)
	if err != nil {
		return err
	}

	gcm, err := e.sealer()
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, e.salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, nil)

	return atomicWrite(e.path, out, 0o600)
}

func (e *EncryptedFileStore) sealer() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
