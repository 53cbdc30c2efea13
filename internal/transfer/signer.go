package transfer

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/sha3"

	"github.com/omnivault/omnivault/pkg/models"
)

// Signer is the capability to sign and submit a deposit-and-call transaction
// on a specific chain. Implementations wrap the chain-client collaborator;
// chain RPC itself lives outside this module.
type Signer interface {
	// Address returns the signer's on-chain address.
	Address() string

	// SubmitDepositAndCall signs and submits a deposit-and-call transaction
	// to the protocol gateway contract, returning the inbound tx hash.
	// Transient failures are raised as *models.RetryableError.
	SubmitDepositAndCall(ctx context.Context, gateway string, payload DepositPayload) (string, error)
}

// SignerFactory derives a transient signer from a recovered phrase for the
// given origin chain.
type SignerFactory interface {
	DeriveSigner(phrase string, chain models.Chain) (Signer, error)
}

// SignerKey is derived key material for one transfer: a secp256k1 private key
// and its EVM address. It lives only for the duration of a submission.
type SignerKey struct {
	PrivateKey *btcec.PrivateKey
	Address    string
}

// coinType returns the BIP-44 coin type for a chain's derivation path.
func coinType(chain models.Chain) uint32 {
	switch chain {
	case models.ChainBitcoin:
		return 0
	case models.ChainSolana:
		return 501
	default:
		return 60 // EVM family, ZetaChain included
	}
}

// DeriveSignerKey derives the transfer signer key from a recovery phrase at
// m/44'/{coinType}'/0'/0/{index}.
func DeriveSignerKey(phrase string, chain models.Chain, index uint32) (*SignerKey, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("invalid recovery phrase")
	}
	seed := bip39.NewSeed(phrase, "")

	key, err := deriveKey(seed, coinType(chain), index)
	if err != nil {
		return nil, fmt.Errorf("derive signer key: %w", err)
	}

	priv, pub := btcec.PrivKeyFromBytes(key[:32])
	pubBytes := pub.SerializeUncompressed()

	// EVM address: last 20 bytes of Keccak256(publicKey).
	hash := keccak256(pubBytes[1:])
	address := fmt.Sprintf("0x%s", hex.EncodeToString(hash[12:]))

	return &SignerKey{PrivateKey: priv, Address: address}, nil
}

// deriveKey derives a child private key from a BIP-39 seed using BIP-32/BIP-44.
// Path: m/44'/{coinType}'/0'/0/{index}
func deriveKey(seed []byte, coinType uint32, index uint32) ([]byte, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	purpose, err := masterKey.NewChildKey(bip32.FirstHardenedChild + 44)
	if err != nil {
		return nil, fmt.Errorf("derive purpose: %w", err)
	}
	coin, err := purpose.NewChildKey(bip32.FirstHardenedChild + coinType)
	if err != nil {
		return nil, fmt.Errorf("derive coin: %w", err)
	}
	account, err := coin.NewChildKey(bip32.FirstHardenedChild + 0)
	if err != nil {
		return nil, fmt.Errorf("derive account: %w", err)
	}
	change, err := account.NewChildKey(0)
	if err != nil {
		return nil, fmt.Errorf("derive change: %w", err)
	}
	child, err := change.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child: %w", err)
	}

	return child.Key, nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}
