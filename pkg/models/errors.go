package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony and cryptographic failures. Ceremony denials
// are surfaced to the user with a retry affordance and never auto-retried;
// decryption and recovery failures are fatal for the operation that hit them.
var (
	// ErrRegistrationDenied means the user or platform declined a
	// credential-registration ceremony.
	ErrRegistrationDenied = errors.New("credential registration denied")

	// ErrAuthenticationDenied means the user or platform declined an
	// authentication ceremony, or the ceremony timed out.
	ErrAuthenticationDenied = errors.New("authentication denied")

	// ErrUnsupportedPlatform means no platform authenticator is available.
	ErrUnsupportedPlatform = errors.New("platform authenticator unavailable")

	// ErrSecurity covers authenticator failures that are neither a denial
	// nor a missing platform (e.g. unknown credential id).
	ErrSecurity = errors.New("authenticator security error")

	// ErrDecryption means an authentication tag mismatch: tampering, corruption,
	// or the wrong key. Never returns corrupted plaintext instead.
	ErrDecryption = errors.New("decryption failed")

	// ErrSecretRecovery means an obfuscated secret could not be recovered,
	// typically because a transfer context field differs from encode time.
	ErrSecretRecovery = errors.New("secret recovery failed")

	// ErrNoWallet means no encrypted wallet record exists.
	ErrNoWallet = errors.New("no encrypted wallet")

	// ErrInvalidPhrase means a supplied recovery phrase failed BIP-39
	// validation.
	ErrInvalidPhrase = errors.New("invalid recovery phrase")
)

// MigrationError wraps a failure during migration from legacy plaintext
// storage. Migration never destroys the legacy plaintext on failure.
type MigrationError struct {
	Step string
	Err  error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration failed at %s: %v", e.Step, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// UnlockReason distinguishes why an unlock attempt failed.
type UnlockReason string

const (
	UnlockNoWallet     UnlockReason = "no_wallet"
	UnlockDenied       UnlockReason = "denied"
	UnlockDecryptError UnlockReason = "decrypt_failed"
)

// UnlockError wraps a failure of the unlock ceremony with its reason.
type UnlockError struct {
	Reason UnlockReason
	Err    error
}

func (e *UnlockError) Error() string {
	return fmt.Sprintf("unlock failed (%s): %v", e.Reason, e.Err)
}

func (e *UnlockError) Unwrap() error { return e.Err }

// RetryableError marks a transient chain-submission failure. It is raised at
// the signer-submission boundary so callers classify once, by type, instead of
// pattern-matching error strings downstream.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable reports whether err carries a RetryableError anywhere in its chain.
func Retryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
