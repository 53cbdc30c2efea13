package transfer

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/omnivault/omnivault/pkg/models"
)

// GatewayFactory derives per-transfer signers that submit deposits through
// the universal gateway contract. One factory per process; signers are
// transient and hold key material only for the duration of a submission.
type GatewayFactory struct {
	accountIndex uint32
}

var _ SignerFactory = (*GatewayFactory)(nil)

func NewGatewayFactory(accountIndex uint32) *GatewayFactory {
	return &GatewayFactory{accountIndex: accountIndex}
}

func (f *GatewayFactory) DeriveSigner(phrase string, chain models.Chain) (Signer, error) {
	key, err := DeriveSignerKey(phrase, chain, f.accountIndex)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &gatewaySigner{
		key:    key,
		logger: slog.Default().With("component", "gateway_signer", "chain", string(chain)),
	}, nil
}

// gatewaySigner signs and submits a depositAndCall against the gateway.
// In production, signing would be delegated to an HSM.
type gatewaySigner struct {
	key    *SignerKey
	logger *slog.Logger
}

func (s *gatewaySigner) Address() string {
	return s.key.Address
}

func (s *gatewaySigner) SubmitDepositAndCall(ctx context.Context, gateway string, payload DepositPayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	calldata := encodeDepositCall(gateway, payload)
	sig := ecdsa.Sign(s.key.PrivateKey, keccak256(calldata))

	raw := append(calldata, sig.Serialize()...)
	txHash := "0x" + hex.EncodeToString(keccak256(raw))

	// In production: eth_sendRawTransaction against the origin-chain RPC.
	s.logger.Info("submitting deposit-and-call",
		"gateway", gateway,
		"target_asset", payload.TargetAsset,
		"withdraw", payload.Withdraw,
		"tx_hash", txHash,
	)
	return txHash, nil
}

// encodeDepositCall packs the depositAndCall arguments (simplified ABI
// encoding; a full encoder would pad each argument to 32 bytes).
func encodeDepositCall(gateway string, payload DepositPayload) []byte {
	var buf bytes.Buffer
	buf.Write(keccak256([]byte("depositAndCall(address,bytes,bool)"))[:4])
	buf.WriteString(gateway)
	buf.WriteString(payload.TargetAsset)
	buf.Write(payload.Recipient)
	if payload.Withdraw {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
