package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the required master key length.
const KeySize = 32

var (
	ErrInvalidKey        = errors.New("secretbox: master key must be 32 bytes")
	ErrEncryptionFailed  = errors.New("secretbox: encryption failed")
	ErrDecryptionFailed  = errors.New("secretbox: decryption failed")
	ErrInvalidCiphertext = errors.New("secretbox: invalid ciphertext")
	ErrKeyDerivation     = errors.New("secretbox: key derivation failed")
)

// Box is an AES-256-GCM sealer bound to one purpose.
type Box struct {
	aead cipher.AEAD
}

// New derives a purpose-bound data key from masterKey and returns a Box.
func New(masterKey []byte, purpose string) (*Box, error) {
	if len(masterKey) != KeySize {
		return nil, ErrInvalidKey
	}

	r := hkdf.New(sha256.New, masterKey, nil, []byte("goguard-secretbox-v1:"+purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Join(ErrKeyDerivation, err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	return &Box{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Join(ErrEncryptionFailed, err)
	}
	return b.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	size := b.aead.NonceSize()
	if len(sealed) < size+b.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	nonce, body := sealed[:size], sealed[size:]
	plaintext, err := b.aead.Open(nil, nonce, body, nil)
	if err != nil {
		return nil, errors.Join(ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// SealString seals s and returns it base64 encoded.
func (b *Box) SealString(s string) (string, error) {
	sealed, err := b.Seal([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// OpenString reverses SealString.
func (b *Box) OpenString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.Join(ErrInvalidCiphertext, err)
	}
	plaintext, err := b.Open(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateKey returns a random master key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DecodeKey parses a base64 master key as stored in configuration.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Join(ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	return key, nil
}
