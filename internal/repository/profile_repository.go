package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/deckvault/internal/model"
)

// ProfileRepo reads and writes the profiles table.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

const profileColumns = "id,email,external_id,tier,discord_id,role,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(s rowScanner) (model.Profile, error) {
	var (
		p                     model.Profile
		externalID, discordID sql.NullString
		tier                  string
	)
	if err := s.Scan(&p.ID, &p.Email, &externalID, &tier, &discordID, &p.Role, &p.UpdatedAt); err != nil {
		return model.Profile{}, err
	}
	p.ExternalID = externalID.String
	p.DiscordID = discordID.String
	t, err := model.ParseTier(tier)
	if err != nil {
		return model.Profile{}, fmt.Errorf("profile %s: %w", p.ID, err)
	}
	p.Tier = t
	return p, nil
}

func (r *ProfileRepo) getOne(ctx context.Context, where string, arg any) (model.Profile, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM profiles WHERE "+where+" LIMIT 1", arg)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, ErrNotFound
	}
	return p, err
}

// GetByEmail returns the profile for email or ErrNotFound.
func (r *ProfileRepo) GetByEmail(ctx context.Context, email string) (model.Profile, error) {
	return r.getOne(ctx, "email=?", normalizeEmail(email))
}

// GetByID returns the profile for an account id or ErrNotFound.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (model.Profile, error) {
	return r.getOne(ctx, "id=?", id)
}

// GetRole returns the stored role of a profile, or ErrNotFound when the
// account has no profile yet.
func (r *ProfileRepo) GetRole(ctx context.Context, id string) (string, error) {
	var role string
	err := r.DB.QueryRowContext(ctx, "SELECT role FROM profiles WHERE id=? LIMIT 1", id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

// Upsert writes p keyed by id.  The role column is written only when the
// row is first inserted; updates never touch it.
func (r *ProfileRepo) Upsert(ctx context.Context, p model.Profile) error {
	role := p.Role
	if role == "" {
		role = model.RoleUser
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO profiles (id, email, external_id, tier, discord_id, role, updated_at)
		 VALUES (?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE
		   email=VALUES(email), external_id=VALUES(external_id), tier=VALUES(tier),
		   discord_id=VALUES(discord_id), updated_at=VALUES(updated_at)`,
		p.ID, normalizeEmail(p.Email), nullIfEmpty(p.ExternalID), p.Tier.String(),
		nullIfEmpty(p.DiscordID), role, p.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}
	return nil
}

// SetRole changes a profile's role.  It is the only write path for roles.
func (r *ProfileRepo) SetRole(ctx context.Context, id, role string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE profiles SET role=? WHERE id=?", role, id)
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

// List returns profiles ordered by most recent sync.
func (r *ProfileRepo) List(ctx context.Context, limit, offset int) ([]model.Profile, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+profileColumns+" FROM profiles ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
