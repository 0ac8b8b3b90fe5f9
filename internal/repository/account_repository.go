package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/utils"
)

// RecoveryLinkTTL bounds how long a generated recovery token stays valid.
const RecoveryLinkTTL = time.Hour

// RecoveryLink is a freshly generated one-time recovery token.  Only its
// hash is persisted.
type RecoveryLink struct {
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// AccountRepo is the identity store: accounts and their credentials.
type AccountRepo struct{ DB *sql.DB }

func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{DB: db} }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts an account and returns its new id.  A duplicate email is
// reported as ErrEmailExists; callers must not check for existence first.
func (r *AccountRepo) Create(ctx context.Context, email, fullName string) (string, error) {
	id := uuid.NewString()
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO accounts (id, email, full_name) VALUES (?,?,?)",
		id, normalizeEmail(email), fullName)
	if err != nil {
		if isDuplicate(err) {
			return "", ErrEmailExists
		}
		return "", err
	}
	return id, nil
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	return r.scanOne(ctx,
		"SELECT id,email,full_name,password_hash,created_at FROM accounts WHERE email=? LIMIT 1",
		normalizeEmail(email))
}

// GetByID fetches an account by id.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (model.Account, error) {
	return r.scanOne(ctx,
		"SELECT id,email,full_name,password_hash,created_at FROM accounts WHERE id=? LIMIT 1",
		id)
}

func (r *AccountRepo) scanOne(ctx context.Context, query string, arg any) (model.Account, error) {
	var (
		a    model.Account
		hash sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.Email, &a.FullName, &hash, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, ErrNotFound
	}
	if err != nil {
		return model.Account{}, err
	}
	a.PasswordHash = hash.String
	return a, nil
}

// SetPasswordHash replaces the stored credential of an account.
func (r *AccountRepo) SetPasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE accounts SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GenerateRecoveryLink creates a one-time recovery token for the account
// owning email.  The account id is resolved from the identity store itself,
// which is how a caller learns the id of an account that has no profile.
func (r *AccountRepo) GenerateRecoveryLink(ctx context.Context, email string) (RecoveryLink, error) {
	var id string
	err := r.DB.QueryRowContext(ctx,
		"SELECT id FROM accounts WHERE email=? LIMIT 1", normalizeEmail(email)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return RecoveryLink{}, ErrNotFound
	}
	if err != nil {
		return RecoveryLink{}, err
	}

	token, err := utils.RandomHex(32)
	if err != nil {
		return RecoveryLink{}, fmt.Errorf("generate recovery token: %w", err)
	}
	exp := time.Now().UTC().Add(RecoveryLinkTTL)
	if _, err := r.DB.ExecContext(ctx,
		"INSERT INTO account_recovery_tokens (account_id, token_hash, expires_at) VALUES (?,?,?)",
		id, utils.HashRefreshRaw(token), exp); err != nil {
		return RecoveryLink{}, err
	}
	return RecoveryLink{AccountID: id, Token: token, ExpiresAt: exp}, nil
}
