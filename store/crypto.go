package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/m-mizutani/goerr/v2"
)

// ErrCipher covers every content decryption failure, including a wrong
// passphrase. The ciphertext is authenticated, so tampering surfaces the
// same way.
var ErrCipher = goerr.New("content cipher failure")

// cipherBox encrypts record content with AES-256-GCM. The key is derived
// from the passphrase with a single SHA-256; records, embeddings and
// metadata stay in the clear so the index and queries keep working.
type cipherBox struct {
	aead cipher.AEAD
}

func newCipherBox(passphrase string) (*cipherBox, error) {
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, goerr.Wrap(err, "init content cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, goerr.Wrap(err, "init content cipher")
	}
	return &cipherBox{aead: aead}, nil
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext).
func (b *cipherBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", goerr.Wrap(err, "generate nonce")
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (b *cipherBox) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", goerr.Wrap(ErrCipher, "decode ciphertext")
	}
	ns := b.aead.NonceSize()
	if len(sealed) < ns {
		return "", goerr.Wrap(ErrCipher, "ciphertext too short")
	}
	plaintext, err := b.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", goerr.Wrap(ErrCipher, "decrypt content")
	}
	return string(plaintext), nil
}
