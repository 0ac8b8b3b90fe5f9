// Package auth owns account credentials and session issuance: password
// hashing, sign-in, refresh token rotation and revocation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/repository"
	"github.com/iliyamo/deckvault/internal/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
)

// Session is an issued access/refresh token pair.
type Session struct {
	AccountID        string    `json:"account_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	GetByID(ctx context.Context, id string) (model.Account, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
}

type ProfileReader interface {
	GetByID(ctx context.Context, id string) (model.Profile, error)
}

type TokenStore interface {
	StoreRefresh(ctx context.Context, accountID, tokenHash string, exp time.Time) error
	ClaimRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeAllForAccount(ctx context.Context, accountID string) error
}

// Options carries the token and hashing settings.
type Options struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

type Service struct {
	accounts AccountStore
	profiles ProfileReader
	tokens   TokenStore
	opts     Options
}

func NewService(accounts AccountStore, profiles ProfileReader, tokens TokenStore, opts Options) *Service {
	return &Service{accounts: accounts, profiles: profiles, tokens: tokens, opts: opts}
}

// SetPassword replaces the account's credential with a bcrypt hash of plain.
func (s *Service) SetPassword(ctx context.Context, accountID, plain string) error {
	hash, err := utils.HashPassword(plain, s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.accounts.SetPasswordHash(ctx, accountID, hash)
}

// SignInWithPassword verifies the credential of email and issues a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, plain string) (Session, error) {
	a, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if a.PasswordHash == "" || !utils.VerifyPassword(a.PasswordHash, plain) {
		return Session{}, ErrInvalidCredentials
	}
	return s.issue(ctx, a.ID)
}

// Refresh rotates a refresh token: the presented token is claimed and a
// new pair is issued.  A token can be claimed once, so concurrent refreshes
// with the same token yield at most one new pair.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	accountID, err := s.claim(ctx, raw)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidRefresh
		}
		return Session{}, err
	}
	return s.issue(ctx, accountID)
}

// Logout revokes a single refresh token.
func (s *Service) Logout(ctx context.Context, raw string) error {
	_, err := s.claim(ctx, raw)
	return err
}

func (s *Service) claim(ctx context.Context, raw string) (string, error) {
	accountID, err := s.tokens.ClaimRefresh(ctx, utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrInvalidRefresh
	}
	return accountID, err
}

// LogoutAll revokes every refresh token of an account.
func (s *Service) LogoutAll(ctx context.Context, accountID string) error {
	return s.tokens.RevokeAllForAccount(ctx, accountID)
}

// issue signs an access token carrying the profile's role and tier.  An
// account without a profile gets the default role at Citizen.
func (s *Service) issue(ctx context.Context, accountID string) (Session, error) {
	role, tier := model.RoleUser, model.TierCitizen
	p, err := s.profiles.GetByID(ctx, accountID)
	switch {
	case err == nil:
		role, tier = p.Role, p.Tier
	case !errors.Is(err, repository.ErrNotFound):
		return Session{}, fmt.Errorf("load profile: %w", err)
	}

	access, err := utils.NewAccessToken(s.opts.JWTSecret, accountID, role, tier, s.opts.AccessTTLMin)
	if err != nil {
		return Session{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.opts.RefreshTTLDays)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, accountID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return Session{}, fmt.Errorf("store refresh token: %w", err)
	}
	return Session{
		AccountID:        accountID,
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refresh.Exp,
	}, nil
}
