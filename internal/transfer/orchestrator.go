// Package transfer classifies transfer requests, recovers the transport
// phrase, derives a transient signer, and submits the protocol deposit call
// with retry on transient chain failures.
package transfer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omnivault/omnivault/internal/obfuscate"
	"github.com/omnivault/omnivault/pkg/models"
)

const (
	maxAttempts   = 5
	retryBaseWait = 2 * time.Second
)

// ErrRetriesExhausted is the terminal user-facing failure after all
// retryable attempts are spent. The underlying diagnostic stays in the chain
// for logs but the message is deliberately generic.
var ErrRetriesExhausted = errors.New("transfer failed, please try again")

// retryableFragments is the legacy substring classifier, kept as a fallback
// for signers that do not yet raise *models.RetryableError at the boundary.
var retryableFragments = []string{
	"nonce",
	"allowance",
	"approval",
	"transfer amount exceeds",
	"replacement fee too low",
}

// DetectTransferType classifies a transfer by its origin and target chains.
// It is a pure function. Same-chain requests classify as SAME_CHAIN_SWAP
// whether or not the tokens differ; CROSS_CHAIN_SWAP is part of the contract
// but is never produced by this classifier.
func DetectTransferType(tokenSymbol string, originChain, targetChain models.Chain) models.TransferType {
	if originChain != targetChain {
		return models.DirectTransfer
	}
	return models.SameChainSwap
}

// Params describes one cross-chain transfer request.
type Params struct {
	Context     models.TransferContext
	OriginChain models.Chain
	TargetAsset string // protocol asset address on the target chain
	Withdraw    bool

	// Envelope carries the phrase through the obfuscated codec path.
	Envelope *models.ObfuscatedSecret
	// RSAEnvelope carries the phrase encrypted to the deployment key; used
	// instead of Envelope when a server keypair is configured.
	RSAEnvelope []byte
}

// Result reports a submitted transfer.
type Result struct {
	TxHash        string
	TransferType  models.TransferType
	SignerAddress string
	Attempts      int
}

// Orchestrator submits deposit-and-call transactions. One submission in
// flight per call; the retry loop blocks between attempts.
type Orchestrator struct {
	factory   SignerFactory
	gateway   string
	serverKey *rsa.PrivateKey // optional RSA transport path
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// NewOrchestrator wires an orchestrator for the given gateway contract
// address. serverKey enables the RSA phrase-transport path and may be nil.
func NewOrchestrator(factory SignerFactory, gateway string, serverKey *rsa.PrivateKey) *Orchestrator {
	return &Orchestrator{
		factory:   factory,
		gateway:   gateway,
		serverKey: serverKey,
		sleep:     sleepCtx,
		logger:    slog.Default().With("component", "transfer"),
	}
}

// PerformCrossChainTransfer recovers the transport phrase, derives the
// signer, and submits the deposit call, retrying transient failures up to
// 5 attempts with attempt×2s waits.
func (o *Orchestrator) PerformCrossChainTransfer(ctx context.Context, params Params) (*Result, error) {
	transferType := DetectTransferType(params.Context.TokenSymbol, params.OriginChain, params.Context.TargetChain)

	phrase, err := o.recoverPhrase(params)
	if err != nil {
		return nil, err
	}

	signer, err := o.factory.DeriveSigner(phrase, params.OriginChain)
	phrase = "" //nolint:ineffassign // drop the phrase before the submission loop
	if err != nil {
		return nil, fmt.Errorf("derive signer: %w", err)
	}

	payload, err := BuildDepositPayload(params.TargetAsset, params.Context.Recipient, params.Context.TargetChain, params.Withdraw)
	if err != nil {
		return nil, err
	}

	o.logger.Info("submitting transfer",
		"type", transferType,
		"origin", params.OriginChain,
		"target", params.Context.TargetChain,
		"token", params.Context.TokenSymbol,
		"signer", signer.Address(),
	)

	txHash, attempts, err := o.submitWithRetry(ctx, signer, payload)
	if err != nil {
		return nil, err
	}

	return &Result{
		TxHash:        txHash,
		TransferType:  transferType,
		SignerAddress: signer.Address(),
		Attempts:      attempts,
	}, nil
}

// recoverPhrase opens whichever transport envelope the request carries: the
// RSA path when a server key is configured, else the obfuscated codec path.
func (o *Orchestrator) recoverPhrase(params Params) (string, error) {
	if o.serverKey != nil && len(params.RSAEnvelope) > 0 {
		plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, o.serverKey, params.RSAEnvelope, nil)
		if err != nil {
			return "", fmt.Errorf("%w: rsa envelope", models.ErrSecretRecovery)
		}
		return string(plaintext), nil
	}

	if params.Envelope == nil {
		return "", fmt.Errorf("%w: no transport envelope", models.ErrSecretRecovery)
	}
	plaintext, err := obfuscate.Decode(params.Envelope, params.Context)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (o *Orchestrator) submitWithRetry(ctx context.Context, signer Signer, payload DepositPayload) (string, int, error) {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		txHash, err := signer.SubmitDepositAndCall(ctx, o.gateway, payload)
		if err == nil {
			o.logger.Info("transfer submitted", "tx_hash", txHash, "attempt", attempt)
			return txHash, attempt, nil
		}

		if !isRetryable(err) {
			return "", attempt, fmt.Errorf("submit deposit: %w", err)
		}

		lastErr = err
		o.logger.Warn("retryable submission failure",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts {
			if err := o.sleep(ctx, time.Duration(attempt)*retryBaseWait); err != nil {
				return "", attempt, err
			}
		}
	}

	// Keep the raw diagnostic in the chain for logs; the leading message is
	// what users see.
	return "", maxAttempts, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

// isRetryable prefers the typed marker raised at the submission boundary and
// falls back to the legacy message-substring match.
func isRetryable(err error) bool {
	if models.Retryable(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range retryableFragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
