package config

import (
	"context"
	"fmt"
)

// TokenStore persists the server session (access and refresh tokens) in the
// credential store, respecting the configured security method.
type TokenStore struct {
	creds   *CredentialStore
	dataDir string
}

func NewTokenStore(creds *CredentialStore, dataDir string) *TokenStore {
	return &TokenStore{creds: creds, dataDir: dataDir}
}

// AccessToken returns the current access token or ErrNotLoggedIn.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	tok := s.creds.Get(credAccessToken)
	if tok == "" {
		return "", ErrNotLoggedIn
	}
	return tok, nil
}

// RefreshToken returns the stored refresh token or ErrNotLoggedIn.
func (s *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	tok := s.creds.Get(credRefreshToken)
	if tok == "" {
		return "", ErrNotLoggedIn
	}
	return tok, nil
}

// Email returns the address used for the last login, if any.
func (s *TokenStore) Email() string {
	return s.creds.Get(credEmail)
}

// SaveLogin stores a full session after a successful login.
func (s *TokenStore) SaveLogin(ctx context.Context, email, access, refresh string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.creds.Set(credEmail, email)
	s.creds.Set(credAccessToken, access)
	s.creds.Set(credRefreshToken, refresh)
	return s.persist()
}

// SaveAccessToken replaces the access token after a refresh.
func (s *TokenStore) SaveAccessToken(ctx context.Context, access string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.creds.Set(credAccessToken, access)
	return s.persist()
}

// Clear removes the session, signing the user out.
func (s *TokenStore) Clear(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.creds.Delete(credAccessToken)
	s.creds.Delete(credRefreshToken)
	return s.persist()
}

func (s *TokenStore) persist() error {
	if err := s.creds.Save(s.dataDir); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}
