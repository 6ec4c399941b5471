package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const encryptionSalt = "loom-encryption"

// ivLength is the AES-GCM recommended nonce length.
const ivLength = 12

// Box encrypts and decrypts small secrets (API keys) with AES-256-GCM
// under a key derived from the application secret.
type Box struct {
	key []byte
}

// NewBox derives an encryption key from the application secret.
func NewBox(secret string) (*Box, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is required")
	}
	key, err := scrypt.Key([]byte(secret), []byte(encryptionSalt), scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}
	return &Box{key: key}, nil
}

// SealedSecret is the at-rest representation of an encrypted value.
// All fields are base64-encoded.
type SealedSecret struct {
	CipherText string
	IV         string
	AuthTag    string
}

// Seal encrypts a plaintext secret.
func (b *Box) Seal(value string) (*SealedSecret, error) {
	gcm, err := b.gcm()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(value), nil)
	tagStart := len(sealed) - gcm.Overhead()

	return &SealedSecret{
		CipherText: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Open decrypts a sealed secret. Returns an error if any component is
// missing or the ciphertext fails authentication.
func (b *Box) Open(secret *SealedSecret) (string, error) {
	if secret == nil || secret.CipherText == "" || secret.IV == "" || secret.AuthTag == "" {
		return "", fmt.Errorf("sealed secret is incomplete")
	}

	gcm, err := b.gcm()
	if err != nil {
		return "", err
	}

	cipherText, err := base64.StdEncoding.DecodeString(secret.CipherText)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(secret.IV)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(secret.AuthTag)
	if err != nil {
		return "", fmt.Errorf("decode auth tag: %w", err)
	}

	plain, err := gcm.Open(nil, iv, append(cipherText, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypt secret: %w", err)
	}
	return string(plain), nil
}

func (b *Box) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
