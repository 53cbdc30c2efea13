// Package custody orchestrates first-run setup, migration from legacy
// plaintext storage, and the unlock ceremony that reconstitutes the recovery
// phrase in memory.
package custody

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tyler-smith/go-bip39"

	"github.com/omnivault/omnivault/internal/authenticator"
	"github.com/omnivault/omnivault/internal/obfuscate"
	"github.com/omnivault/omnivault/internal/store"
	"github.com/omnivault/omnivault/internal/vault"
	"github.com/omnivault/omnivault/pkg/models"
)

// State is the coordinator's view of wallet protection on this device.
type State string

const (
	StateNoWallet        State = "no_wallet"
	StateLegacyPlaintext State = "legacy_plaintext"
	StateEncryptedSetup  State = "encrypted_setup"
	StateLocked          State = "locked"
	StateUnlocked        State = "unlocked"
)

// LegacyStore is the external collaborator holding a pre-migration plaintext
// phrase. ReadPhrase returns "" when no legacy phrase exists.
type LegacyStore interface {
	ReadPhrase(ctx context.Context) (string, error)
	ErasePhrase(ctx context.Context) error
}

// DefaultUnlockTimeout is how long the coordinator stays in the unlocked
// state before relocking.
const DefaultUnlockTimeout = 5 * time.Minute

// Coordinator drives the NoWallet → LegacyPlaintext → EncryptedSetup →
// Locked → Unlocked lifecycle. One instance per installation; all
// collaborators are injected.
type Coordinator struct {
	store  store.Store
	auth   authenticator.Authenticator
	legacy LegacyStore
	logger *slog.Logger

	mu          sync.Mutex
	unlocked    bool
	relockTimer *time.Timer
}

// NewCoordinator wires a coordinator from its collaborators. legacy may be
// nil when no pre-migration storage exists on the platform.
func NewCoordinator(s store.Store, auth authenticator.Authenticator, legacy LegacyStore) *Coordinator {
	return &Coordinator{
		store:  s,
		auth:   auth,
		legacy: legacy,
		logger: slog.Default().With("component", "custody"),
	}
}

// State derives the current lifecycle state from store contents and the
// in-memory unlock flag.
func (c *Coordinator) State(ctx context.Context) (State, error) {
	status, err := c.GetMigrationStatus(ctx)
	if err != nil {
		return "", err
	}

	switch {
	case status.HasEncrypted:
		c.mu.Lock()
		unlocked := c.unlocked
		c.mu.Unlock()
		if unlocked {
			return StateUnlocked, nil
		}
		return StateLocked, nil
	case status.HasUnencrypted:
		return StateLegacyPlaintext, nil
	default:
		return StateNoWallet, nil
	}
}

// GetMigrationStatus reports what forms of phrase storage exist. It reads
// store contents only and never triggers a ceremony.
func (c *Coordinator) GetMigrationStatus(ctx context.Context) (models.MigrationStatus, error) {
	var status models.MigrationStatus

	if c.legacy != nil {
		phrase, err := c.legacy.ReadPhrase(ctx)
		if err != nil {
			return status, fmt.Errorf("read legacy storage: %w", err)
		}
		status.HasUnencrypted = phrase != ""
	}

	w, err := c.store.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		return status, fmt.Errorf("read wallet record: %w", err)
	}
	status.HasEncrypted = w != nil

	return status, nil
}

// SetupWallet performs first-run setup: it encrypts the given phrase under a
// fresh master key wrapped to a newly registered (or existing) credential and
// persists the SecuredWallet.
func (c *Coordinator) SetupWallet(ctx context.Context, phrase string) error {
	if !bip39.IsMnemonicValid(phrase) {
		return models.ErrInvalidPhrase
	}
	if _, err := c.secureWallet(ctx, phrase); err != nil {
		return err
	}
	c.logger.Info("wallet setup complete")
	return nil
}

// MigrateLocalStorageToBiometric moves a legacy plaintext phrase into
// biometric-gated encrypted storage. The plaintext source is erased only
// after the encrypted record has durably committed; on any failure the
// legacy plaintext stays in place.
func (c *Coordinator) MigrateLocalStorageToBiometric(ctx context.Context) error {
	if c.legacy == nil {
		return &models.MigrationError{Step: "read_legacy", Err: fmt.Errorf("no legacy storage configured")}
	}

	phrase, err := c.legacy.ReadPhrase(ctx)
	if err != nil {
		return &models.MigrationError{Step: "read_legacy", Err: err}
	}
	if phrase == "" {
		return &models.MigrationError{Step: "read_legacy", Err: fmt.Errorf("no legacy phrase present")}
	}

	step, err := c.secureWallet(ctx, phrase)
	if err != nil {
		return &models.MigrationError{Step: step, Err: err}
	}

	// The encrypted record is committed; only now is it safe to destroy
	// the plaintext source.
	if err := c.legacy.ErasePhrase(ctx); err != nil {
		return &models.MigrationError{Step: "erase_legacy", Err: err}
	}

	c.logger.Info("legacy phrase migrated to encrypted storage")
	return nil
}

// UnlockWalletWithBiometrics runs the unlock ceremony and returns the
// recovery phrase. The caller is expected to discard it from memory as soon
// as signing completes. timeout bounds how long the coordinator reports the
// unlocked state before relocking; zero means DefaultUnlockTimeout.
func (c *Coordinator) UnlockWalletWithBiometrics(ctx context.Context, timeout time.Duration) (string, error) {
	w, err := c.store.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		return "", fmt.Errorf("read wallet record: %w", err)
	}
	if w == nil {
		return "", &models.UnlockError{Reason: models.UnlockNoWallet, Err: models.ErrNoWallet}
	}

	capability, err := c.auth.Authenticate(ctx, w.CredentialID)
	if err != nil {
		return "", &models.UnlockError{Reason: models.UnlockDenied, Err: err}
	}

	masterKey, err := vault.UnwrapKey(w.WrappedMasterKey, capability)
	if err != nil {
		return "", &models.UnlockError{Reason: models.UnlockDecryptError, Err: err}
	}

	phrase, err := vault.DecryptData(masterKey, w.MnemonicIV, w.EncryptedMnemonic)
	if err != nil {
		return "", &models.UnlockError{Reason: models.UnlockDecryptError, Err: err}
	}

	c.markUnlocked(timeout)
	return string(phrase), nil
}

// IssueTransferEnvelope runs the unlock ceremony and seals the recovered
// phrase into an envelope bound to the given transfer intent. The phrase
// never leaves this method in the clear.
func (c *Coordinator) IssueTransferEnvelope(ctx context.Context, tctx models.TransferContext, timeout time.Duration) (*models.ObfuscatedSecret, error) {
	phrase, err := c.UnlockWalletWithBiometrics(ctx, timeout)
	if err != nil {
		return nil, err
	}

	w, err := c.store.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		return nil, fmt.Errorf("read wallet record: %w", err)
	}
	cred, err := c.store.GetCredential(ctx, w.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("read credential: %w", err)
	}
	if cred == nil {
		return nil, fmt.Errorf("credential %s missing", w.CredentialID)
	}

	envelope, err := obfuscate.Encode([]byte(phrase), tctx, cred.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("seal envelope: %w", err)
	}
	return envelope, nil
}

// RotateCredential registers a fresh credential, re-wraps the master key
// under it, updates the wallet record, and deletes the old credential. The
// encrypted mnemonic itself is untouched.
func (c *Coordinator) RotateCredential(ctx context.Context) error {
	w, err := c.store.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		return fmt.Errorf("read wallet record: %w", err)
	}
	if w == nil {
		return models.ErrNoWallet
	}

	capability, err := c.auth.Authenticate(ctx, w.CredentialID)
	if err != nil {
		return fmt.Errorf("authenticate for rotation: %w", err)
	}
	masterKey, err := vault.UnwrapKey(w.WrappedMasterKey, capability)
	if err != nil {
		return fmt.Errorf("unwrap for rotation: %w", err)
	}

	cred, err := c.auth.RegisterCredential(ctx, uuid.NewString(), "wallet")
	if err != nil {
		return fmt.Errorf("register rotated credential: %w", err)
	}
	pub, err := authenticator.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return fmt.Errorf("parse rotated credential key: %w", err)
	}
	wrapped, err := vault.WrapKey(masterKey, pub)
	if err != nil {
		return fmt.Errorf("re-wrap master key: %w", err)
	}

	oldCredentialID := w.CredentialID
	if err := c.store.PutCredential(ctx, cred); err != nil {
		return fmt.Errorf("persist rotated credential: %w", err)
	}

	w.CredentialID = cred.ID
	w.WrappedMasterKey = wrapped
	w.UpdatedAt = time.Now().UTC()
	if err := c.store.PutWallet(ctx, w); err != nil {
		return fmt.Errorf("persist re-wrapped wallet: %w", err)
	}

	if err := c.store.DeleteCredential(ctx, oldCredentialID); err != nil {
		c.logger.Warn("failed to delete rotated-out credential", "credential_id", oldCredentialID, "error", err)
	}

	c.logger.Info("credential rotated", "credential_id", cred.ID)
	return nil
}

// Reset deletes the wallet and all credentials. Explicit and destructive.
func (c *Coordinator) Reset(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("reset wallet: %w", err)
	}
	c.mu.Lock()
	c.unlocked = false
	if c.relockTimer != nil {
		c.relockTimer.Stop()
	}
	c.mu.Unlock()
	c.logger.Info("wallet reset")
	return nil
}

// secureWallet runs the shared setup/migration pipeline: master key →
// encrypt phrase → credential → wrap → persist. Returns the failing step
// name for migration error reporting.
func (c *Coordinator) secureWallet(ctx context.Context, phrase string) (string, error) {
	masterKey, err := vault.GenerateMasterKey()
	if err != nil {
		return "generate_master_key", err
	}

	iv, ciphertext, err := vault.EncryptData(masterKey, []byte(phrase))
	if err != nil {
		return "encrypt_phrase", err
	}

	cred, err := c.activeCredential(ctx)
	if err != nil {
		return "register_credential", err
	}

	pub, err := authenticator.ParsePublicKey(cred.PublicKey)
	if err != nil {
		return "parse_credential_key", err
	}
	wrapped, err := vault.WrapKey(masterKey, pub)
	if err != nil {
		return "wrap_master_key", err
	}

	now := time.Now().UTC()
	w := &models.SecuredWallet{
		ID:                models.SecuredWalletID,
		CredentialID:      cred.ID,
		WrappedMasterKey:  wrapped,
		MnemonicIV:        iv,
		EncryptedMnemonic: ciphertext,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.store.PutWallet(ctx, w); err != nil {
		return "persist_wallet", err
	}

	return "", nil
}

// activeCredential returns the registered credential, registering one first
// if none exists.
func (c *Coordinator) activeCredential(ctx context.Context) (*models.BiometricCredential, error) {
	creds, err := c.store.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if len(creds) > 0 {
		return &creds[0], nil
	}

	if !c.auth.IsAvailable() {
		return nil, models.ErrUnsupportedPlatform
	}
	cred, err := c.auth.RegisterCredential(ctx, uuid.NewString(), "wallet")
	if err != nil {
		return nil, err
	}
	if err := c.store.PutCredential(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (c *Coordinator) markUnlocked(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultUnlockTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.unlocked = true
	if c.relockTimer != nil {
		c.relockTimer.Stop()
	}
	c.relockTimer = time.AfterFunc(timeout, func() {
		c.mu.Lock()
		c.unlocked = false
		c.mu.Unlock()
	})
}
