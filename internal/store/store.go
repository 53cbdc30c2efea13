// Package store persists the encrypted wallet blob and registered
// credentials. The store itself provides no encryption; everything sensitive
// is encrypted before it gets here.
package store

import (
	"context"

	"github.com/omnivault/omnivault/pkg/models"
)

// WalletStore manages SecuredWallet records. Writes are last-write-wins.
type WalletStore interface {
	// PutWallet stores or replaces a wallet record.
	PutWallet(ctx context.Context, w *models.SecuredWallet) error
	// GetWallet returns the wallet with the given id, or nil if not found.
	GetWallet(ctx context.Context, id string) (*models.SecuredWallet, error)
	// DeleteWallet removes the wallet with the given id.
	DeleteWallet(ctx context.Context, id string) error
}

// CredentialStore manages BiometricCredential records.
type CredentialStore interface {
	// PutCredential stores or replaces a credential record.
	PutCredential(ctx context.Context, c *models.BiometricCredential) error
	// GetCredential returns the credential with the given id, or nil if not found.
	GetCredential(ctx context.Context, id string) (*models.BiometricCredential, error)
	// ListCredentials returns all registered credentials.
	ListCredentials(ctx context.Context) ([]models.BiometricCredential, error)
	// DeleteCredential removes the credential with the given id.
	DeleteCredential(ctx context.Context, id string) error
}

// Stats reports record counts per entity type.
type Stats struct {
	Wallets     int `json:"wallets"`
	Credentials int `json:"credentials"`
}

// Store combines both entity stores with maintenance operations.
type Store interface {
	WalletStore
	CredentialStore

	// Clear removes all records of both entity types.
	Clear(ctx context.Context) error
	// Stats returns record counts per entity type.
	Stats(ctx context.Context) (Stats, error)
	// Close releases underlying resources.
	Close() error
}
