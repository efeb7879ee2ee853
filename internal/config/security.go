package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyDerivationRounds = 100000
	keyLength           = 32
	saltLength          = 32
)

// SecurityManager encrypts data persisted on disk, such as the session file
type SecurityManager interface {
	// Encrypt seals plaintext and returns a base64 envelope
	Encrypt(plaintext []byte) (string, error)

	// Decrypt opens an envelope produced by Encrypt
	Decrypt(ciphertext string) ([]byte, error)
}

// AESSecurityManager implements SecurityManager using AES-256-GCM with a
// pbkdf2-derived key. Only the salt is stored; the passphrase is machine-bound.
type AESSecurityManager struct {
	keyPath    string
	masterKey  []byte
	keyDerived bool
}

// NewSecurityManager loads or creates the key material at keyPath
func NewSecurityManager(keyPath string) (*AESSecurityManager, error) {
	if strings.TrimSpace(keyPath) == "" {
		return nil, fmt.Errorf("security key path cannot be empty")
	}

	manager := &AESSecurityManager{keyPath: keyPath}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create security directory: %w", err)
	}

	if err := manager.initializeEncryptionKey(); err != nil {
		return nil, fmt.Errorf("failed to initialize encryption key: %w", err)
	}

	return manager, nil
}

// initializeEncryptionKey reads the stored salt, writing a fresh one on first
// use, and derives the session key from it
func (s *AESSecurityManager) initializeEncryptionKey() error {
	salt, err := s.loadOrCreateSalt()
	if err != nil {
		return err
	}
	s.masterKey = pbkdf2.Key([]byte(machinePassphrase()), salt, keyDerivationRounds, keyLength, sha256.New)
	s.keyDerived = true
	return nil
}

func (s *AESSecurityManager) loadOrCreateSalt() ([]byte, error) {
	stored, err := os.ReadFile(s.keyPath)
	switch {
	case err == nil:
		salt, decodeErr := hex.DecodeString(strings.TrimSpace(string(stored)))
		if decodeErr != nil || len(salt) == 0 {
			return nil, fmt.Errorf("key file %s is corrupt", s.keyPath)
		}
		return salt, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if err := os.WriteFile(s.keyPath, []byte(hex.EncodeToString(salt)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return salt, nil
}

// machinePassphrase binds the derived key to the host and user
func machinePassphrase() string {
	hostname, _ := os.Hostname()
	username := os.Getenv("USER")
	if username == "" {
		username = os.Getenv("USERNAME")
	}
	return fmt.Sprintf("portal-session-%s-%s", hostname, username)
}

func (s *AESSecurityManager) gcm() (cipher.AEAD, error) {
	if !s.keyDerived {
		return nil, fmt.Errorf("encryption key not available")
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM and a random nonce
func (s *AESSecurityManager) Encrypt(plaintext []byte) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt
func (s *AESSecurityManager) Decrypt(ciphertext string) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
