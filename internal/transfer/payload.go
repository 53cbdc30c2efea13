package transfer

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/omnivault/omnivault/pkg/models"
)

// DepositPayload is the fixed three-field protocol payload submitted to the
// gateway contract: (address targetAsset, bytes recipient, bool withdraw).
type DepositPayload struct {
	TargetAsset string
	Recipient   []byte
	Withdraw    bool
}

// BuildDepositPayload validates and encodes the recipient for the target
// chain and assembles the protocol payload.
func BuildDepositPayload(targetAsset, recipient string, targetChain models.Chain, withdraw bool) (DepositPayload, error) {
	encoded, err := EncodeRecipient(recipient, targetChain)
	if err != nil {
		return DepositPayload{}, err
	}
	if !isHexAddress(targetAsset) {
		return DepositPayload{}, fmt.Errorf("invalid target asset address %q", targetAsset)
	}
	return DepositPayload{
		TargetAsset: strings.ToLower(targetAsset),
		Recipient:   encoded,
		Withdraw:    withdraw,
	}, nil
}

// EncodeRecipient encodes a recipient address for the protocol payload.
// EVM-family recipients travel as the raw 20 address bytes; Bitcoin and
// Solana recipients travel as the UTF-8 bytes of the address string.
func EncodeRecipient(address string, targetChain models.Chain) ([]byte, error) {
	switch targetChain.Family() {
	case models.FamilyEVM:
		if !isHexAddress(address) {
			return nil, fmt.Errorf("invalid EVM recipient %q", address)
		}
		raw, err := hex.DecodeString(address[2:])
		if err != nil {
			return nil, fmt.Errorf("decode EVM recipient: %w", err)
		}
		return raw, nil

	case models.FamilyBitcoin:
		if err := validateBitcoinAddress(address); err != nil {
			return nil, fmt.Errorf("invalid bitcoin recipient %q: %w", address, err)
		}
		return []byte(address), nil

	case models.FamilySolana:
		if err := validateSolanaAddress(address); err != nil {
			return nil, fmt.Errorf("invalid solana recipient %q: %w", address, err)
		}
		return []byte(address), nil

	default:
		return nil, fmt.Errorf("unsupported target chain %s", targetChain)
	}
}

func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

// validateBitcoinAddress accepts base58check (legacy/P2SH) and bech32
// (segwit) addresses.
func validateBitcoinAddress(address string) error {
	if _, _, err := base58.CheckDecode(address); err == nil {
		return nil
	}
	hrp, _, err := bech32.Decode(address)
	if err != nil {
		return fmt.Errorf("neither base58check nor bech32")
	}
	if hrp != "bc" && hrp != "tb" && hrp != "bcrt" {
		return fmt.Errorf("unexpected bech32 prefix %q", hrp)
	}
	return nil
}

// validateSolanaAddress checks for a base58-encoded 32-byte public key.
func validateSolanaAddress(address string) error {
	raw := base58.Decode(address)
	if len(raw) != 32 {
		return fmt.Errorf("not a 32-byte base58 key")
	}
	return nil
}
