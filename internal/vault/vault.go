// Package vault provides the symmetric and asymmetric primitives that protect
// the recovery phrase at rest: AES-256-GCM for data encryption and RSA-OAEP
// for wrapping the master key to a device-bound public key.
package vault

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/omnivault/omnivault/pkg/models"
)

const (
	masterKeySize = 32 // AES-256
	ivSize        = 12 // GCM standard nonce
)

// MasterKey is an opaque handle to a symmetric key authorized for
// encrypt/decrypt/wrap/unwrap. Key bytes never leave this package.
type MasterKey struct {
	k []byte
}

// GenerateMasterKey returns a fresh 32-byte symmetric key.
func GenerateMasterKey() (MasterKey, error) {
	k := make([]byte, masterKeySize)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		return MasterKey{}, fmt.Errorf("generate master key: %w", err)
	}
	return MasterKey{k: k}, nil
}

// EncryptData encrypts plaintext under the master key with a fresh random IV.
// The IV is never reused; the caller must persist it alongside the ciphertext
// to decrypt later.
func EncryptData(key MasterKey, plaintext []byte) (iv, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	iv = make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	return iv, aead.Seal(nil, iv, plaintext, nil), nil
}

// DecryptData decrypts ciphertext produced by EncryptData. A tag mismatch
// (tampering or a wrong key/IV) surfaces as models.ErrDecryption.
func DecryptData(key MasterKey, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != ivSize {
		return nil, fmt.Errorf("%w: bad iv length %d", models.ErrDecryption, len(iv))
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, models.ErrDecryption
	}
	return plaintext, nil
}

// WrapKey encrypts the master key to a device public key with RSA-OAEP so
// only the matching device-bound private key can recover it.
func WrapKey(key MasterKey, devicePublicKey *rsa.PublicKey) ([]byte, error) {
	blob, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, devicePublicKey, key.k, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap master key: %w", err)
	}
	return blob, nil
}

// UnwrapKey recovers an operational master key from a wrapped blob using a
// private-key handle. The handle is a crypto.Decrypter so the raw private key
// never has to materialize as bytes on this side of the boundary.
func UnwrapKey(blob []byte, handle crypto.Decrypter) (MasterKey, error) {
	raw, err := handle.Decrypt(rand.Reader, blob, &rsa.OAEPOptions{Hash: crypto.SHA256})
	if err != nil {
		return MasterKey{}, fmt.Errorf("unwrap master key: %w", err)
	}
	if len(raw) != masterKeySize {
		return MasterKey{}, fmt.Errorf("unwrap master key: unexpected key size %d", len(raw))
	}
	return MasterKey{k: raw}, nil
}

func newGCM(key MasterKey) (cipher.AEAD, error) {
	if len(key.k) != masterKeySize {
		return nil, fmt.Errorf("invalid master key")
	}
	block, err := aes.NewCipher(key.k)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return aead, nil
}
