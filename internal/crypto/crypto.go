package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltSize     = 32     // Salt size in bytes
	KeySize      = 32     // AES-256 key size
	NonceSize    = 12     // GCM nonce size
	TagSize      = 16     // GCM authentication tag size
	DefaultIters = 210000 // Default PBKDF2 iterations (OWASP minimum)
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrKeyDestroyed      = errors.New("key destroyed")
	ErrInvalidKeySize    = errors.New("invalid key size")
)

// KDF handles key derivation from secrets
type KDF struct {
	Salt       []byte
	Iterations int
}

// NewKDF creates a new KDF with a random salt
func NewKDF() (*KDF, error) {
	salt, err := GenerateRandom(SaltSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	return &KDF{
		Salt:       salt,
		Iterations: DefaultIters,
	}, nil
}

// DeriveKey derives an encryption key from a secret
func (k *KDF) DeriveKey(secret []byte) []byte {
	return pbkdf2.Key(secret, k.Salt, k.Iterations, KeySize, sha256.New)
}

// Encryptor provides authenticated encryption. The key lives in a
// memguard locked buffer until Destroy is called.
type Encryptor struct {
	key *memguard.LockedBuffer
}

// NewEncryptor moves key into locked memory. The caller's slice is wiped.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeySize, len(key), KeySize)
	}
	return &Encryptor{
		key: memguard.NewBufferFromBytes(key),
	}, nil
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	if !e.Alive() {
		return nil, ErrKeyDestroyed
	}

	block, err := aes.NewCipher(e.key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt encrypts plaintext using AES-256-GCM.
// Output layout: nonce || ciphertext || tag.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce, err := GenerateRandom(NonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends to the nonce slice
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize+TagSize {
		return nil, ErrInvalidCiphertext
	}

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := ciphertext[:NonceSize]
	plaintext, err := gcm.Open(nil, nonce, ciphertext[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// Alive reports whether the key is still usable
func (e *Encryptor) Alive() bool {
	return e != nil && e.key != nil && e.key.IsAlive()
}

// Destroy wipes the key and releases its locked memory. Safe to call twice.
func (e *Encryptor) Destroy() {
	if e == nil || e.key == nil {
		return
	}
	e.key.Destroy()
}

// EncodeString returns the text form of a ciphertext
func EncodeString(ciphertext []byte) string {
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// DecodeString parses the text form produced by EncodeString
func DecodeString(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return b, nil
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	memguard.WipeBytes(b)
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// GenerateRandom generates n random bytes
func GenerateRandom(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}

// WrapKey encrypts inner's key under this encryptor's key
func (e *Encryptor) WrapKey(inner *Encryptor) ([]byte, error) {
	if !inner.Alive() {
		return nil, ErrKeyDestroyed
	}
	return e.Encrypt(inner.key.Bytes())
}

// UnwrapKey decrypts a key produced by WrapKey into a new Encryptor
func (e *Encryptor) UnwrapKey(wrapped []byte) (*Encryptor, error) {
	key, err := e.Decrypt(wrapped)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(key)
}
