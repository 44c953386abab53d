package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

// EncryptionKeyEnv holds a base64 AES-256 key
const EncryptionKeyEnv = "CONSTRUCTOR_ENCRYPTION_KEY"

// defaultKey must be exactly 32 bytes for AES-256
var defaultKey = []byte("constructor-default-key-change!!")

// Sealer encrypts short secrets with AES-GCM
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer for a 32 byte key
func NewSealer(key []byte) *Sealer {
	return &Sealer{key: key}
}

func encryptionKey() []byte {
	if s := os.Getenv(EncryptionKeyEnv); s != "" {
		key, err := base64.StdEncoding.DecodeString(s)
		if err == nil && len(key) == 32 {
			return key
		}
	}
	return defaultKey
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext)
func (s *Sealer) Seal(plaintext string) (string, error) {
	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal
func (s *Sealer) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}

	gcm, err := s.gcm()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *Sealer) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
