package chat

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Crypto derives and verifies password hashes given a salt.
type Crypto interface {
	Hash(password, salt string) (string, error)
	Verify(password, salt, hash string) bool
}

// BcryptCrypto implements Crypto with salted bcrypt.
type BcryptCrypto struct {
	cost int
}

// NewBcryptCrypto creates a Crypto using the default bcrypt cost.
func NewBcryptCrypto() *BcryptCrypto {
	return &BcryptCrypto{cost: bcrypt.DefaultCost}
}

// Hash derives a hash from the password and salt.
func (c *BcryptCrypto) Hash(password, salt string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(salt+password), c.cost)
	return string(b), err
}

// Verify reports whether the password and salt produce the hash.
func (c *BcryptCrypto) Verify(password, salt, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(salt+password)) == nil
}

// NewSalt returns a random hex salt.
func NewSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
