// Package keys decrypts API keys stored encrypted in the model catalog.
//
// Ciphertexts are URL-safe base64 strings. The master key is a URL-safe
// base64 encoding of 32 raw bytes, supplied through the environment.
package keys

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// KeySize is the required master key length (AES-256).
const KeySize = 32

// Cipher names accepted by New.
const (
	CipherCBC = "aes-cbc"
	CipherGCM = "aes-gcm"
)

var (
	ErrInvalidKeySize     = fmt.Errorf("master key must be exactly %d bytes", KeySize)
	ErrCiphertextTooShort = errors.New("ciphertext too short")
	ErrMissingMasterKey   = errors.New("master key is not set")
)

// Decrypter turns a stored ciphertext back into the plain API key.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Encrypter produces ciphertexts readable by the matching Decrypter.
type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

// Cipher is both halves of one storage format.
type Cipher interface {
	Decrypter
	Encrypter
}

// ParseMasterKey decodes a base64 master key and checks its length.
// Padded and unpadded, URL-safe and standard alphabets are accepted.
func ParseMasterKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, ErrMissingMasterKey
	}
	key, err := decodeB64(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return key, nil
}

// New builds the cipher named by name ("aes-cbc" when empty).
func New(name string, masterKey []byte) (Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKeySize
	}
	switch strings.ToLower(name) {
	case "", CipherCBC:
		return &CBC{key: masterKey}, nil
	case CipherGCM:
		return &GCM{key: masterKey}, nil
	default:
		return nil, fmt.Errorf("unknown key cipher %q", name)
	}
}

func decodeB64(s string) ([]byte, error) {
	encodings := []*base64.Encoding{
		base64.URLEncoding, base64.RawURLEncoding,
		base64.StdEncoding, base64.RawStdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func encodeB64(b []byte) string { return base64.URLEncoding.EncodeToString(b) }
