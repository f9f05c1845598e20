package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 100000
	kdfSalt       = "catalog-service/store-credentials"
)

var ErrMalformedCiphertext = errors.New("secrets: malformed ciphertext")

// Cipher encrypts store credentials at rest
type Cipher struct {
	key []byte
}

// NewCipher derives the encryption key from a passphrase
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("secrets: empty passphrase")
	}
	key := pbkdf2.Key([]byte(passphrase), []byte(kdfSalt), kdfIterations, chacha20poly1305.KeySize, sha256.New)
	return &Cipher{key: key}, nil
}

// Encrypt seals plaintext. Empty input stays empty.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Empty input stays empty.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to init cipher: %w", err)
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformedCiphertext
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	return string(plain), nil
}
