package doccache

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const defaultSalt = "hospital-locker-cache"

// Sealer encrypts cache entries with XChaCha20-Poly1305. The stored layout
// is nonce || ciphertext.
type Sealer struct {
	key []byte
}

func NewSealer(passphrase, salt string) (*Sealer, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if salt == "" {
		salt = defaultSalt
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), 1, 64*1024, 4, chacha20poly1305.KeySize)
	return &Sealer{key: key}, nil
}

func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed entry too short: %d bytes", len(sealed))
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}
