package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Spatial-NVR/constructor/internal/config"
	"github.com/Spatial-NVR/constructor/internal/database"
)

// Credential is a stored backend login
type Credential struct {
	BackendURL string
	Username   string
	Token      string
	CreatedAt  time.Time
}

// TokenStore keeps one sealed bearer token per backend and serves the
// active one to the backend client
type TokenStore struct {
	db     *database.DB
	sealer *config.Sealer

	mu      sync.RWMutex
	current string
}

// NewTokenStore creates a token store sealing tokens with sealer
func NewTokenStore(db *database.DB, sealer *config.Sealer) *TokenStore {
	return &TokenStore{db: db, sealer: sealer}
}

// Token returns the active token, empty when logged out
func (s *TokenStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Save stores a token for backendURL and makes it active
func (s *TokenStore) Save(ctx context.Context, backendURL, username, token string) error {
	sealed, err := s.sealer.Seal(token)
	if err != nil {
		return fmt.Errorf("failed to seal token: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (backend_url, username, token, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(backend_url) DO UPDATE SET
			username = excluded.username,
			token = excluded.token,
			created_at = excluded.created_at
	`, normalizeURL(backendURL), username, []byte(sealed), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	s.mu.Lock()
	s.current = token
	s.mu.Unlock()
	return nil
}

// Load reads the stored credential for backendURL and makes its token active
func (s *TokenStore) Load(ctx context.Context, backendURL string) (*Credential, error) {
	var (
		c         Credential
		sealed    []byte
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT backend_url, username, token, created_at
		FROM credentials WHERE backend_url = ?
	`, normalizeURL(backendURL)).Scan(&c.BackendURL, &c.Username, &sealed, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("credential for %s: %w", backendURL, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	token, err := s.sealer.Open(string(sealed))
	if err != nil {
		return nil, fmt.Errorf("failed to open token: %w", err)
	}
	c.Token = token
	c.CreatedAt = time.Unix(createdAt, 0)

	s.mu.Lock()
	s.current = token
	s.mu.Unlock()
	return &c, nil
}

// Clear forgets the credential for backendURL and logs out
func (s *TokenStore) Clear(ctx context.Context, backendURL string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE backend_url = ?", normalizeURL(backendURL)); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
	return nil
}

func normalizeURL(u string) string {
	return strings.TrimRight(u, "/")
}
