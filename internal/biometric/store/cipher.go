package store

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/crypto/chacha20poly1305"

	"vigil/internal/biometric"
)

// Cipher encrypts descriptors before they reach durable storage. Descriptors
// are biometric-derived data, so they never land on disk in the clear.
type Cipher struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewCipher builds a descriptor cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("build descriptor cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal serializes and encrypts a descriptor. The nonce is prepended to the
// ciphertext.
func (c *Cipher) Seal(descriptor biometric.Descriptor) ([]byte, error) {
	plaintext := make([]byte, 8*len(descriptor))
	for i, v := range descriptor {
		binary.BigEndian.PutUint64(plaintext[i*8:], math.Float64bits(v))
	}

	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts and deserializes a sealed descriptor.
func (c *Cipher) Open(sealed []byte) (biometric.Descriptor, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("sealed descriptor too short: %d bytes", len(sealed))
	}
	nonce, ciphertext := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open descriptor: %w", err)
	}
	if len(plaintext)%8 != 0 {
		return nil, fmt.Errorf("malformed descriptor plaintext: %d bytes", len(plaintext))
	}

	descriptor := make(biometric.Descriptor, len(plaintext)/8)
	for i := range descriptor {
		descriptor[i] = math.Float64frombits(binary.BigEndian.Uint64(plaintext[i*8:]))
	}
	return descriptor, nil
}
