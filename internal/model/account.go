package model

import "time"

// Account is the canonical local identity, a row in the `accounts` table.
// The table carries a unique index on email; that index is what keeps a
// second account from being created for the same address, including when
// two sign-ins race.
//
// Fields:
//
//	ID           – uuid string, stable for the account's lifetime.
//	Email        – unique, lower-cased address.
//	FullName     – display name captured at creation.
//	PasswordHash – bcrypt hash of the current provisioning secret (may be empty).
//	CreatedAt    – timestamp of creation.
type Account struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	CreatedAt    time.Time
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
