package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/deckvault/internal/model"
)

// DeckQuery defines filters and pagination for listing decks.
type DeckQuery struct {
	MaxTier   model.Tier // only decks gated at or below this tier
	Commander string
	Limit     int
	Offset    int
}

// DeckRepo reads decks through the restricted pool and writes through the
// privileged one.
type DeckRepo struct {
	read  *sql.DB
	write *sql.DB
}

// NewDeckRepo constructs a DeckRepo.  A nil read pool falls back to write.
func NewDeckRepo(read, write *sql.DB) *DeckRepo {
	if read == nil {
		read = write
	}
	return &DeckRepo{read: read, write: write}
}

const deckColumns = "id,title,commander,color_identity,source_url,description,min_tier,COALESCE(created_by,''),created_at,updated_at"

func scanDeck(s rowScanner) (model.Deck, error) {
	var (
		d    model.Deck
		tier string
	)
	if err := s.Scan(&d.ID, &d.Title, &d.Commander, &d.ColorIdentity, &d.SourceURL,
		&d.Description, &tier, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return model.Deck{}, err
	}
	t, err := model.ParseTier(tier)
	if err != nil {
		return model.Deck{}, err
	}
	d.MinTier = t
	return d, nil
}

// List returns the decks visible to q.MaxTier and the total match count.
func (r *DeckRepo) List(ctx context.Context, q DeckQuery) ([]model.Deck, int64, error) {
	where := []string{"min_tier_rank <= ?"}
	args := []any{q.MaxTier.Rank()}
	if q.Commander != "" {
		where = append(where, "LOWER(commander) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Commander)+"%")
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.read.QueryRowContext(ctx, "SELECT COUNT(*) FROM decks WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	argsData := append(append([]any{}, args...), q.Limit, q.Offset)
	rows, err := r.read.QueryContext(ctx,
		"SELECT "+deckColumns+" FROM decks WHERE "+cond+" ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?",
		argsData...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Deck, 0, q.Limit)
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID returns a deck or ErrNotFound.
func (r *DeckRepo) GetByID(ctx context.Context, id uint64) (model.Deck, error) {
	d, err := scanDeck(r.read.QueryRowContext(ctx, "SELECT "+deckColumns+" FROM decks WHERE id=?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Deck{}, ErrNotFound
	}
	return d, err
}

// Create inserts d and fills in its id.  A second deck with the same
// source URL is reported as ErrConflict.
func (r *DeckRepo) Create(ctx context.Context, d *model.Deck) error {
	res, err := r.write.ExecContext(ctx,
		`INSERT INTO decks (title, commander, color_identity, source_url, description, min_tier, min_tier_rank, created_by)
		 VALUES (?,?,?,?,?,?,?,?)`,
		d.Title, d.Commander, d.ColorIdentity, d.SourceURL, d.Description,
		d.MinTier.String(), d.MinTier.Rank(), nullIfEmpty(d.CreatedBy))
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = uint64(id)
	return nil
}

// Update overwrites the editable fields of a deck.
func (r *DeckRepo) Update(ctx context.Context, d model.Deck) error {
	res, err := r.write.ExecContext(ctx,
		`UPDATE decks SET title=?, commander=?, color_identity=?, source_url=?, description=?, min_tier=?, min_tier_rank=?
		 WHERE id=?`,
		d.Title, d.Commander, d.ColorIdentity, d.SourceURL, d.Description,
		d.MinTier.String(), d.MinTier.Rank(), d.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
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

// Delete removes a deck.
func (r *DeckRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.write.ExecContext(ctx, "DELETE FROM decks WHERE id=?", id)
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

// UpsertBySourceURL inserts an imported deck or refreshes the existing one
// with the same source URL.
func (r *DeckRepo) UpsertBySourceURL(ctx context.Context, d model.Deck) error {
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO decks (title, commander, color_identity, source_url, description, min_tier, min_tier_rank)
		 VALUES (?,?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE
		   title=VALUES(title), commander=VALUES(commander), color_identity=VALUES(color_identity),
		   description=VALUES(description), min_tier=VALUES(min_tier), min_tier_rank=VALUES(min_tier_rank)`,
		d.Title, d.Commander, d.ColorIdentity, d.SourceURL, d.Description,
		d.MinTier.String(), d.MinTier.Rank())
	return err
}
