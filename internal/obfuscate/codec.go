// Package obfuscate implements the transport envelope used when a decrypted
// phrase must cross a process boundary for a single transfer. The envelope
// key is derived from the transfer context itself, so only a party computing
// the exact same transfer intent can open it.
//
// The field interleaving is an obfuscation layer binding the envelope to one
// transfer intent; the confidentiality guarantee comes from the authenticated
// AES-GCM encryption underneath, not from the mixing scheme.
package obfuscate

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/omnivault/omnivault/pkg/models"
)

const (
	kdfIterations = 150_000
	keySize       = 32
	saltSize      = 16
	nonceSize     = 16
	ivSize        = 12
	fragmentSize  = 16 // hex chars of the device public key digest
	methodCount   = 7
)

// permutations are the fixed interleaving orders, one per method selector.
// Positions index the mixing parts: 0 token, 1 amount, 2 sender, 3 recipient,
// 4 target chain, 5 key fragment, 6 nonce.
var permutations = [methodCount][7]int{
	{0, 1, 2, 3, 4, 5, 6},
	{6, 5, 4, 3, 2, 1, 0},
	{5, 0, 6, 1, 4, 2, 3},
	{3, 6, 0, 5, 1, 4, 2},
	{2, 4, 1, 6, 5, 3, 0},
	{1, 3, 5, 0, 6, 4, 2},
	{4, 2, 6, 5, 0, 3, 1},
}

// Encode seals plaintext into a single-use envelope bound to the given
// transfer context and device public key. The method selector is randomized
// per call so the mixing order cannot be tabulated statically.
func Encode(plaintext []byte, tctx models.TransferContext, devicePublicKey []byte) (*models.ObfuscatedSecret, error) {
	method, err := randomMethod()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	nonceHex := hex.EncodeToString(nonce)

	fragment := KeyFragment(devicePublicKey)

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(tctx, fragment, nonceHex, method, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	return &models.ObfuscatedSecret{
		Ciphertext:  aead.Seal(nil, iv, plaintext, nil),
		IV:          iv,
		Salt:        salt,
		Nonce:       nonceHex,
		KeyFragment: fragment,
		Method:      method,
	}, nil
}

// Decode recovers the plaintext from an envelope. Every context field must
// match what was used at encode time; any mismatch (wrong amount, sender,
// recipient, token, or chain) fails with models.ErrSecretRecovery.
func Decode(bundle *models.ObfuscatedSecret, tctx models.TransferContext) ([]byte, error) {
	if bundle.Method < 0 || bundle.Method >= methodCount {
		return nil, fmt.Errorf("%w: invalid method selector %d", models.ErrSecretRecovery, bundle.Method)
	}
	if len(bundle.IV) != ivSize {
		return nil, fmt.Errorf("%w: bad iv length %d", models.ErrSecretRecovery, len(bundle.IV))
	}

	key := deriveKey(tctx, bundle.KeyFragment, bundle.Nonce, bundle.Method, bundle.Salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := aead.Open(nil, bundle.IV, bundle.Ciphertext, nil)
	if err != nil {
		return nil, models.ErrSecretRecovery
	}
	return plaintext, nil
}

// Marshal serializes an envelope for transport across a process boundary.
func Marshal(bundle *models.ObfuscatedSecret) ([]byte, error) {
	return cbor.Marshal(bundle)
}

// Unmarshal reverses Marshal.
func Unmarshal(data []byte) (*models.ObfuscatedSecret, error) {
	var b models.ObfuscatedSecret
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &b, nil
}

// KeyFragment derives the device-public-key fragment mixed into the envelope
// key: the leading hex of the key's SHA-256 digest.
func KeyFragment(devicePublicKey []byte) string {
	sum := sha256.Sum256(devicePublicKey)
	return hex.EncodeToString(sum[:])[:fragmentSize]
}

// deriveKey hashes the interleaved mixing string and stretches it with PBKDF2.
func deriveKey(tctx models.TransferContext, fragment, nonce string, method int, salt []byte) []byte {
	parts := [7]string{
		tctx.TokenSymbol,
		tctx.Amount,
		tctx.Sender,
		tctx.Recipient,
		string(tctx.TargetChain),
		fragment,
		nonce,
	}

	ordered := make([]string, 0, len(parts))
	for _, idx := range permutations[method] {
		ordered = append(ordered, parts[idx])
	}
	mix := strings.Join(ordered, "|")

	sum := sha256.Sum256([]byte(mix))
	return pbkdf2.Key(sum[:], salt, kdfIterations, keySize, sha256.New)
}

func randomMethod() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(methodCount))
	if err != nil {
		return 0, fmt.Errorf("pick method selector: %w", err)
	}
	return int(n.Int64()), nil
}
