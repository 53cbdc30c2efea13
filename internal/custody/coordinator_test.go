package custody

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omnivault/omnivault/internal/authenticator"
	"github.com/omnivault/omnivault/internal/obfuscate"
	"github.com/omnivault/omnivault/internal/store"
	"github.com/omnivault/omnivault/pkg/models"
)

// Valid BIP-39 phrase used across the pack's wallet tests.
const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// memoryLegacy is an in-memory stand-in for the platform's legacy plaintext storage.
type memoryLegacy struct {
	mu     sync.Mutex
	phrase string
}

func (l *memoryLegacy) ReadPhrase(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phrase, nil
}

func (l *memoryLegacy) ErasePhrase(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phrase = ""
	return nil
}

func newTestCoordinator(legacy LegacyStore) (*Coordinator, store.Store) {
	s := store.NewMemoryStore()
	auth := authenticator.NewPlatformAuthenticator(nil) // approves every ceremony
	return NewCoordinator(s, auth, legacy), s
}

func TestMigration_EndToEnd(t *testing.T) {
	ctx := context.Background()
	legacy := &memoryLegacy{phrase: testPhrase}
	c, _ := newTestCoordinator(legacy)

	status, err := c.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.HasUnencrypted || status.HasEncrypted {
		t.Fatalf("pre-migration status = %+v", status)
	}

	if err := c.MigrateLocalStorageToBiometric(ctx); err != nil {
		t.Fatal(err)
	}

	status, err = c.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.HasUnencrypted {
		t.Error("legacy plaintext should be erased after migration")
	}
	if !status.HasEncrypted {
		t.Error("encrypted wallet should exist after migration")
	}

	phrase, err := c.UnlockWalletWithBiometrics(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if phrase != testPhrase {
		t.Errorf("unlocked phrase = %q, want original", phrase)
	}

	state, err := c.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != StateUnlocked {
		t.Errorf("state after unlock = %s, want %s", state, StateUnlocked)
	}
}

func TestMigration_NoLegacyPhrase(t *testing.T) {
	c, _ := newTestCoordinator(&memoryLegacy{})

	err := c.MigrateLocalStorageToBiometric(context.Background())
	var merr *models.MigrationError
	if !errors.As(err, &merr) {
		t.Fatalf("got %v, want MigrationError", err)
	}
	if merr.Step != "read_legacy" {
		t.Errorf("failing step = %q, want read_legacy", merr.Step)
	}
}

func TestMigration_FailureLeavesLegacyInPlace(t *testing.T) {
	ctx := context.Background()
	legacy := &memoryLegacy{phrase: testPhrase}

	s := store.NewMemoryStore()
	auth := authenticator.NewPlatformAuthenticator(func(ctx context.Context, reason string) error {
		return errors.New("declined")
	})
	c := NewCoordinator(s, auth, legacy)

	err := c.MigrateLocalStorageToBiometric(ctx)
	var merr *models.MigrationError
	if !errors.As(err, &merr) {
		t.Fatalf("got %v, want MigrationError", err)
	}

	// No destructive writes on failure.
	if legacy.phrase != testPhrase {
		t.Error("legacy plaintext was destroyed despite failed migration")
	}
	status, err := c.GetMigrationStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.HasEncrypted {
		t.Error("no encrypted wallet should exist after failed migration")
	}
}

func TestSetupWallet_RejectsInvalidPhrase(t *testing.T) {
	c, _ := newTestCoordinator(nil)
	if err := c.SetupWallet(context.Background(), "not a valid mnemonic"); err == nil {
		t.Error("invalid phrase should be rejected")
	}
}

func TestUnlock_NoWallet(t *testing.T) {
	c, _ := newTestCoordinator(nil)

	_, err := c.UnlockWalletWithBiometrics(context.Background(), time.Minute)
	var uerr *models.UnlockError
	if !errors.As(err, &uerr) {
		t.Fatalf("got %v, want UnlockError", err)
	}
	if uerr.Reason != models.UnlockNoWallet {
		t.Errorf("reason = %s, want %s", uerr.Reason, models.UnlockNoWallet)
	}
}

func TestUnlock_Denied(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	deny := false
	auth := authenticator.NewPlatformAuthenticator(func(ctx context.Context, reason string) error {
		if deny {
			return errors.New("declined")
		}
		return nil
	})
	c := NewCoordinator(s, auth, nil)

	if err := c.SetupWallet(ctx, testPhrase); err != nil {
		t.Fatal(err)
	}

	deny = true
	_, err := c.UnlockWalletWithBiometrics(ctx, time.Minute)
	var uerr *models.UnlockError
	if !errors.As(err, &uerr) {
		t.Fatalf("got %v, want UnlockError", err)
	}
	if uerr.Reason != models.UnlockDenied {
		t.Errorf("reason = %s, want %s", uerr.Reason, models.UnlockDenied)
	}
	if !errors.Is(err, models.ErrAuthenticationDenied) {
		t.Error("denial should carry ErrAuthenticationDenied in its chain")
	}
}

func TestUnlock_TamperedCiphertext(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCoordinator(nil)

	if err := c.SetupWallet(ctx, testPhrase); err != nil {
		t.Fatal(err)
	}

	w, err := s.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		t.Fatal(err)
	}
	w.EncryptedMnemonic[0] ^= 0x01
	if err := s.PutWallet(ctx, w); err != nil {
		t.Fatal(err)
	}

	_, err = c.UnlockWalletWithBiometrics(ctx, time.Minute)
	var uerr *models.UnlockError
	if !errors.As(err, &uerr) {
		t.Fatalf("got %v, want UnlockError", err)
	}
	if uerr.Reason != models.UnlockDecryptError {
		t.Errorf("reason = %s, want %s", uerr.Reason, models.UnlockDecryptError)
	}
}

func TestRotateCredential(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCoordinator(nil)

	if err := c.SetupWallet(ctx, testPhrase); err != nil {
		t.Fatal(err)
	}
	before, err := s.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.RotateCredential(ctx); err != nil {
		t.Fatal(err)
	}

	after, err := s.GetWallet(ctx, models.SecuredWalletID)
	if err != nil {
		t.Fatal(err)
	}
	if after.CredentialID == before.CredentialID {
		t.Error("credential id unchanged after rotation")
	}
	if string(after.EncryptedMnemonic) != string(before.EncryptedMnemonic) {
		t.Error("rotation must not touch the encrypted mnemonic")
	}

	// The phrase still unlocks under the new credential.
	phrase, err := c.UnlockWalletWithBiometrics(ctx, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if phrase != testPhrase {
		t.Errorf("unlocked phrase = %q after rotation", phrase)
	}

	// Exactly one active credential remains.
	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Credentials != 1 {
		t.Errorf("credentials after rotation = %d, want 1", st.Credentials)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	c, s := newTestCoordinator(nil)

	if err := c.SetupWallet(ctx, testPhrase); err != nil {
		t.Fatal(err)
	}
	if err := c.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Wallets != 0 || st.Credentials != 0 {
		t.Errorf("stats after reset = %+v, want zeroes", st)
	}

	state, err := c.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != StateNoWallet {
		t.Errorf("state after reset = %s, want %s", state, StateNoWallet)
	}
}

func TestState_LegacyPlaintext(t *testing.T) {
	c, _ := newTestCoordinator(&memoryLegacy{phrase: testPhrase})

	state, err := c.State(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if state != StateLegacyPlaintext {
		t.Errorf("state = %s, want %s", state, StateLegacyPlaintext)
	}
}

func TestIssueTransferEnvelope(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(nil)

	tctx := models.TransferContext{
		TokenSymbol: "USDC",
		Amount:      "100",
		Sender:      "0x1111111111111111111111111111111111111111",
		Recipient:   "0x2222222222222222222222222222222222222222",
		TargetChain: models.ChainBSC,
	}

	if _, err := c.IssueTransferEnvelope(ctx, tctx, 0); !errors.Is(err, models.ErrNoWallet) {
		t.Fatalf("no wallet: err = %v, want ErrNoWallet", err)
	}

	if err := c.SetupWallet(ctx, testPhrase); err != nil {
		t.Fatal(err)
	}

	envelope, err := c.IssueTransferEnvelope(ctx, tctx, 0)
	if err != nil {
		t.Fatalf("IssueTransferEnvelope: %v", err)
	}

	// The envelope decodes only for a party computing the same context.
	plaintext, err := obfuscate.Decode(envelope, tctx)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(plaintext) != testPhrase {
		t.Error("envelope did not carry the recovery phrase")
	}

	other := tctx
	other.Recipient = "0x3333333333333333333333333333333333333333"
	if _, err := obfuscate.Decode(envelope, other); !errors.Is(err, models.ErrSecretRecovery) {
		t.Errorf("mismatched context: err = %v, want ErrSecretRecovery", err)
	}

	// Issuing armed the unlocked state.
	state, err := c.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != StateUnlocked {
		t.Errorf("state = %s, want %s", state, StateUnlocked)
	}
}
