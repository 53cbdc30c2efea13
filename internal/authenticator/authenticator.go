// Package authenticator binds credentials to a platform authenticator. A
// registered credential is a device-bound RSA keypair: the public half is
// returned as data, the private half stays inside the authenticator and is
// reachable only as a decrypt capability after a successful ceremony.
package authenticator

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/omnivault/omnivault/pkg/models"
)

// DefaultCeremonyTimeout bounds how long a ceremony waits on user interaction.
const DefaultCeremonyTimeout = 60 * time.Second

// Capability is the result of a successful authentication ceremony: the
// ability to unwrap keys wrapped to this credential, without the private key
// ever materializing as exportable bytes.
type Capability interface {
	crypto.Decrypter
	CredentialID() string
}

// PresencePrompt requests user presence/verification for a ceremony. A nil
// error means the user approved; anything else is treated as a denial.
// Implementations suspend on user interaction and must honor ctx cancellation.
type PresencePrompt func(ctx context.Context, reason string) error

// Authenticator registers and authenticates platform-bound credentials.
type Authenticator interface {
	// IsAvailable probes for platform support. Pure, side-effect-free.
	IsAvailable() bool

	// RegisterCredential runs a registration ceremony and returns the new
	// credential (id + public key). The key material is device-bound and
	// non-exportable.
	RegisterCredential(ctx context.Context, userID, displayName string) (*models.BiometricCredential, error)

	// Authenticate runs a verification ceremony scoped to credentialID and,
	// on success, yields the capability to unwrap previously wrapped keys.
	Authenticate(ctx context.Context, credentialID string) (Capability, error)
}

// PlatformAuthenticator is an in-process authenticator backed by the host
// keystore abstraction. Private keys live only in its internal map, standing
// in for a secure-enclave handle.
type PlatformAuthenticator struct {
	mu       sync.Mutex
	keys     map[string]*rsa.PrivateKey
	counters map[string]uint32
	prompt   PresencePrompt
	timeout  time.Duration
	logger   *slog.Logger
}

// NewPlatformAuthenticator returns an authenticator gated by the given
// presence prompt. A nil prompt approves every ceremony (headless setups).
func NewPlatformAuthenticator(prompt PresencePrompt) *PlatformAuthenticator {
	if prompt == nil {
		prompt = func(ctx context.Context, reason string) error { return nil }
	}
	return &PlatformAuthenticator{
		keys:     make(map[string]*rsa.PrivateKey),
		counters: make(map[string]uint32),
		prompt:   prompt,
		timeout:  DefaultCeremonyTimeout,
		logger:   slog.Default().With("component", "authenticator"),
	}
}

// SetCeremonyTimeout overrides the default ceremony timeout.
func (a *PlatformAuthenticator) SetCeremonyTimeout(d time.Duration) {
	if d > 0 {
		a.timeout = d
	}
}

// IsAvailable reports platform authenticator support.
func (a *PlatformAuthenticator) IsAvailable() bool {
	return true
}

// RegisterCredential generates a device-bound keypair after a successful
// user-presence ceremony.
func (a *PlatformAuthenticator) RegisterCredential(ctx context.Context, userID, displayName string) (*models.BiometricCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.requirePresence(ctx, "register credential for "+displayName); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRegistrationDenied, err)
	}

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate credential key: %w", err)
	}

	id := newCredentialID()
	pub, err := EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode credential public key: %w", err)
	}

	a.mu.Lock()
	a.keys[id] = priv
	a.counters[id] = 0
	a.mu.Unlock()

	a.logger.Info("credential registered", "credential_id", id, "user_id", userID)

	return &models.BiometricCredential{
		ID:         id,
		PublicKey:  pub,
		Counter:    0,
		DeviceType: "platform",
		BackedUp:   false,
		Transports: []string{"internal"},
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Authenticate verifies user presence for the given credential and returns a
// capability bound to its private key. The counter bumps on every success.
func (a *PlatformAuthenticator) Authenticate(ctx context.Context, credentialID string) (Capability, error) {
	a.mu.Lock()
	priv, ok := a.keys[credentialID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown credential %s", models.ErrSecurity, credentialID)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.requirePresence(ctx, "unlock wallet"); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAuthenticationDenied, err)
	}

	a.mu.Lock()
	a.counters[credentialID]++
	count := a.counters[credentialID]
	a.mu.Unlock()

	a.logger.Info("authentication ceremony succeeded", "credential_id", credentialID, "counter", count)

	return &keyHandle{id: credentialID, priv: priv}, nil
}

// requirePresence runs the prompt, translating cancellation into a denial so
// an abandoned ceremony never hangs callers.
func (a *PlatformAuthenticator) requirePresence(ctx context.Context, reason string) error {
	done := make(chan error, 1)
	go func() { done <- a.prompt(ctx, reason) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// keyHandle exposes a credential's private key as a crypto.Decrypter only.
type keyHandle struct {
	id   string
	priv *rsa.PrivateKey
}

func (h *keyHandle) CredentialID() string     { return h.id }
func (h *keyHandle) Public() crypto.PublicKey { return h.priv.Public() }

func (h *keyHandle) Decrypt(rand io.Reader, msg []byte, opts crypto.DecrypterOpts) ([]byte, error) {
	return h.priv.Decrypt(rand, msg, opts)
}

func newCredentialID() string {
	u := uuid.New()
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// coseRSAKey is the COSE_Key shape used to carry credential public keys.
type coseRSAKey struct {
	Kty int    `cbor:"1,keyasint"`
	Alg int    `cbor:"3,keyasint"`
	N   []byte `cbor:"-1,keyasint"`
	E   int    `cbor:"-2,keyasint"`
}

const (
	coseKtyRSA   = 3
	coseAlgRS256 = -257
)

// EncodePublicKey serializes an RSA public key as a CBOR COSE_Key.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	return cbor.Marshal(coseRSAKey{
		Kty: coseKtyRSA,
		Alg: coseAlgRS256,
		N:   pub.N.Bytes(),
		E:   pub.E,
	})
}

// ParsePublicKey recovers an RSA public key from its CBOR COSE_Key encoding.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	var k coseRSAKey
	if err := cbor.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parse credential public key: %w", err)
	}
	if k.Kty != coseKtyRSA {
		return nil, fmt.Errorf("parse credential public key: unsupported key type %d", k.Kty)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(k.N), E: k.E}, nil
}
