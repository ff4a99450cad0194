// Package vault resolves and decrypts user-owned secrets for node
// handlers, and manages per-credential pooled connections.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKey is returned when the encryption key is not 32 bytes.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes")

	// ErrCiphertextTooShort is returned for payloads shorter than a nonce.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Encryptor seals and opens credential payloads with AES-256-GCM. The
// nonce is prepended to the ciphertext. Callers treat this as an
// opaque encrypt/decrypt service.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an encryptor from a 32-byte key.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt serializes the payload to JSON and seals it.
func (e *Encryptor) Encrypt(payload map[string]any) ([]byte, error) {
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credential payload: %w", err)
	}

	nonce := make([]byte, e.aead.NonceSize())

	_, err = io.ReadFull(rand.Reader, nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed payload and deserializes it.
func (e *Encryptor) Decrypt(ciphertext []byte) (map[string]any, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := e.aead.Open(nil, ciphertext[:nonceSize], ciphertext[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential payload: %w", err)
	}

	payload := make(map[string]any)

	err = json.Unmarshal(plaintext, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential payload: %w", err)
	}

	return payload, nil
}
