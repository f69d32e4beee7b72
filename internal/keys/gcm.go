package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// NonceSize is the GCM standard nonce size.
const NonceSize = 12

// GCM is AES-256-GCM; the stored form is base64(nonce(12) + sealed).
type GCM struct {
	key []byte
}

func (g *GCM) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(g.key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return gcm, nil
}

func (g *GCM) Encrypt(plaintext string) (string, error) {
	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	// Seal appends to nonce so the result is nonce||ciphertext.
	return encodeB64(gcm.Seal(nonce, nonce, []byte(plaintext), nil)), nil
}

func (g *GCM) Decrypt(ciphertext string) (string, error) {
	data, err := decodeB64(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(data) < NonceSize {
		return "", ErrCiphertextTooShort
	}
	gcm, err := g.aead()
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, data[:NonceSize], data[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plain), nil
}
