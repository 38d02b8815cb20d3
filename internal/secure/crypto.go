package secure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltFile    = "store.salt"
	saltSize    = 16
	pbkdf2Iters = 100_000
	keySize     = 32
)

// fileCipher seals and opens the encrypted file-fallback payload with
// AES-256-GCM. The key is derived from the host fingerprint and a random
// salt persisted alongside the store.
type fileCipher struct {
	aead cipher.AEAD
}

func newFileCipher(dir string) (*fileCipher, error) {
	salt, err := loadOrCreateSalt(dir)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(hostFingerprint()), salt, pbkdf2Iters, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &fileCipher{aead: aead}, nil
}

func loadOrCreateSalt(dir string) ([]byte, error) {
	path := filepath.Join(dir, saltFile)
	if salt, err := os.ReadFile(path); err == nil && len(salt) == saltSize {
		return salt, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, salt, 0600); err != nil {
		return nil, err
	}
	return salt, nil
}

// seal encrypts plaintext; the nonce is prepended to the ciphertext.
func (c *fileCipher) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts a sealed payload. Tampered or truncated data fails
// authentication and returns an error rather than garbage.
func (c *fileCipher) open(sealed []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("sealed payload too short")
	}
	return c.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
}
