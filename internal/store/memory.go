package store

import (
	"context"
	"sync"

	"github.com/omnivault/omnivault/pkg/models"
)

// MemoryStore is an in-memory Store for tests and ephemeral setups.
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]models.SecuredWallet
	creds   map[string]models.BiometricCredential
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]models.SecuredWallet),
		creds:   make(map[string]models.BiometricCredential),
	}
}

func (s *MemoryStore) PutWallet(ctx context.Context, w *models.SecuredWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = *w
	return nil
}

func (s *MemoryStore) GetWallet(ctx context.Context, id string) (*models.SecuredWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (s *MemoryStore) DeleteWallet(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wallets, id)
	return nil
}

func (s *MemoryStore) PutCredential(ctx context.Context, c *models.BiometricCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[c.ID] = *c
	return nil
}

func (s *MemoryStore) GetCredential(ctx context.Context, id string) (*models.BiometricCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *MemoryStore) ListCredentials(ctx context.Context) ([]models.BiometricCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BiometricCredential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	return out, nil
}

func (s *MemoryStore) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, id)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets = make(map[string]models.SecuredWallet)
	s.creds = make(map[string]models.BiometricCredential)
	return nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Wallets: len(s.wallets), Credentials: len(s.creds)}, nil
}

func (s *MemoryStore) Close() error { return nil }
