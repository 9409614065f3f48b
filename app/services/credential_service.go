package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/chatrasa/chatrasa/config"
	"golang.org/x/crypto/pbkdf2"
)

// CredentialCipher encrypts secrets at rest: vendor access tokens and flow
// private keys. Ciphertexts are base64 strings safe for text columns.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// CredentialCipherImpl implements CredentialCipher with AES-GCM under a
// key derived from the configured master passphrase
type CredentialCipherImpl struct {
	key []byte
}

// NewCredentialCipher derives the encryption key from the master passphrase
func NewCredentialCipher(cfg *config.CryptoConfig) (CredentialCipher, error) {
	if cfg.MasterKey == "" {
		return nil, fmt.Errorf("credential cipher requires a master key")
	}
	key := pbkdf2.Key([]byte(cfg.MasterKey), []byte(cfg.KeySalt), cfg.PBKDF2Rounds, 32, sha256.New)
	return &CredentialCipherImpl{key: key}, nil
}

// Encrypt seals the plaintext with a random nonce. Output layout is
// base64(nonce || ciphertext || tag).
func (c *CredentialCipherImpl) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt
func (c *CredentialCipherImpl) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
