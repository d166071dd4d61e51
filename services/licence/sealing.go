package licence

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealingInfo = "licensing/signing-key/v1"

// Sealer encrypts private keys at rest with AES-256-GCM.
type Sealer struct {
	key [32]byte
}

// NewSealer derives the sealing key from secret with HKDF-SHA256.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("sealing secret is empty")
	}

	var s Sealer
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealingInfo))
	if _, err := io.ReadFull(r, s.key[:]); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}
	return &s, nil
}

func (s *Sealer) Seal(plain []byte) (string, error) {
	aead, err := s.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce gen: %w", err)
	}
	return hex.EncodeToString(aead.Seal(nonce, nonce, plain, nil)), nil
}

func (s *Sealer) Open(sealedHex string) ([]byte, error) {
	data, err := hex.DecodeString(sealedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	aead, err := s.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("invalid ciphertext")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}

func (s *Sealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}
	return aead, nil
}
