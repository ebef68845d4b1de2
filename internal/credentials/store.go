/**
 * @description
 * Process-wide cache of the accounting connection credential. The credential
 * is read lazily from a key-value backend on first use and replaced as a whole
 * on save or clear, so readers never observe a mix of old and new fields.
 *
 * @dependencies
 * - internal/domain: Credential model.
 */

package credentials

import (
	"context"
	"fmt"
	"sync"

	"github.com/schoolfees/payment-service/internal/domain"
)

// Persistence keys for the four credential fields.
const (
	KeyAccessToken  = "qb_access_token"
	KeyRefreshToken = "qb_refresh_token"
	KeyRealmID      = "qb_realm_id"
	KeyCompanyID    = "qb_company_id"
)

// Keys lists every persisted credential key.
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyRealmID, KeyCompanyID}

// Backend persists string settings. SaveSettings and DeleteSettings must
// apply all keys atomically.
type Backend interface {
	LoadSettings(ctx context.Context, keys []string) (map[string]string, error)
	SaveSettings(ctx context.Context, values map[string]string) error
	DeleteSettings(ctx context.Context, keys []string) error
}

// Store caches the credential loaded from a Backend.
type Store struct {
	backend Backend
	sealer  Sealer

	mu     sync.RWMutex
	loaded bool
	cred   domain.Credential
	ok     bool
}

// NewStore creates a Store. A nil sealer stores tokens unencrypted.
func NewStore(backend Backend, sealer Sealer) *Store {
	if sealer == nil {
		sealer = NoopSealer{}
	}
	return &Store{backend: backend, sealer: sealer}
}

// Load returns the current credential. ok is false when no usable credential
// is stored; that is not an error.
func (s *Store) Load(ctx context.Context) (domain.Credential, bool, error) {
	s.mu.RLock()
	if s.loaded {
		cred, ok := s.cred, s.ok
		s.mu.RUnlock()
		return cred, ok, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cred, s.ok, nil
	}

	values, err := s.backend.LoadSettings(ctx, Keys)
	if err != nil {
		return domain.Credential{}, false, fmt.Errorf("load credential settings: %w", err)
	}
	cred, err := s.decode(values)
	if err != nil {
		return domain.Credential{}, false, err
	}

	s.cred = cred
	s.ok = cred.Connected()
	s.loaded = true
	return s.cred, s.ok, nil
}

// Save persists all four fields and then replaces the cached credential.
func (s *Store) Save(ctx context.Context, cred domain.Credential) error {
	values, err := s.encode(cred)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.SaveSettings(ctx, values); err != nil {
		return fmt.Errorf("save credential settings: %w", err)
	}
	s.cred = cred
	s.ok = cred.Connected()
	s.loaded = true
	return nil
}

// Clear removes the stored credential. Later loads report it absent.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.DeleteSettings(ctx, Keys); err != nil {
		return fmt.Errorf("delete credential settings: %w", err)
	}
	s.cred = domain.Credential{}
	s.ok = false
	s.loaded = true
	return nil
}

// Invalidate drops the cache so the next Load reads the backend again.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.loaded = false
	s.cred = domain.Credential{}
	s.ok = false
	s.mu.Unlock()
}

func (s *Store) encode(cred domain.Credential) (map[string]string, error) {
	access, err := s.sealer.Seal(cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := s.sealer.Seal(cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return map[string]string{
		KeyAccessToken:  access,
		KeyRefreshToken: refresh,
		KeyRealmID:      cred.RealmID,
		KeyCompanyID:    cred.CompanyID,
	}, nil
}

func (s *Store) decode(values map[string]string) (domain.Credential, error) {
	access, err := s.sealer.Open(values[KeyAccessToken])
	if err != nil {
		return domain.Credential{}, fmt.Errorf("open access token: %w", err)
	}
	refresh, err := s.sealer.Open(values[KeyRefreshToken])
	if err != nil {
		return domain.Credential{}, fmt.Errorf("open refresh token: %w", err)
	}
	return domain.Credential{
		AccessToken:  access,
		RefreshToken: refresh,
		RealmID:      values[KeyRealmID],
		CompanyID:    values[KeyCompanyID],
	}, nil
}
