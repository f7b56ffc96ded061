// Package vault provides security primitives: AES-GCM sealing, key management and
// self-signed TLS certificates for the platform's line protocol.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

var (
	// ErrCiphertextTooShort is returned when a sealed blob cannot hold a nonce.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	// ErrDecrypt is returned for a wrong key or tampered data.
	ErrDecrypt = errors.New("decryption failed (wrong key or tampered data)")
)

// Seal encrypts plaintext with a 32-byte key and returns base64(nonce || ciphertext).
func Seal(plaintext, key []byte) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	// Prepend the nonce so Open can recover it.
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal.
func Open(sealed string, key []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("vault: decoding: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrCiphertextTooShort
	}

	nonce, actual := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, actual, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveKey stretches a secret into a purpose-bound 32-byte key using HKDF-SHA256.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte("celerix-contacts/"+purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadOrCreateKey reads a raw key file, creating it with fresh random bytes (0600) when
// missing. The returned key is derived for purpose so one file can serve several uses.
func LoadOrCreateKey(path, purpose string) ([]byte, error) {
	secret, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		secret = make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, secret); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, secret, 0o600); err != nil {
			return nil, fmt.Errorf("vault: writing key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("vault: reading key: %w", err)
	}
	if len(secret) < KeySize {
		return nil, fmt.Errorf("vault: key file %s is shorter than %d bytes", path, KeySize)
	}
	return DeriveKey(secret, purpose)
}
