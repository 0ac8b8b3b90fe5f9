package linking

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/repository"
)

// ProfileStore persists profiles.  Upsert must leave an existing row's
// role untouched.
type ProfileStore interface {
	GetRole(ctx context.Context, id string) (string, error)
	Upsert(ctx context.Context, p model.Profile) error
}

// ProfileUpserter writes the synced Patreon data onto the account's profile.
type ProfileUpserter struct {
	store ProfileStore
	now   func() time.Time
	log   *zap.Logger
}

func NewProfileUpserter(store ProfileStore, log *zap.Logger) *ProfileUpserter {
	return &ProfileUpserter{store: store, now: func() time.Time { return time.Now().UTC() }, log: log}
}

// UpsertProfile refreshes email, Patreon id, tier and Discord id and
// returns the role the profile carries.  The role is read, never derived
// from the identity: a new profile starts as "user".
func (u *ProfileUpserter) UpsertProfile(ctx context.Context, accountID, email, externalID string, tier model.Tier, discordID string) (string, error) {
	log := u.log.With(zap.String("stage", "upsert_profile"), zap.String("account_id", accountID))

	role, err := u.store.GetRole(ctx, accountID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		role = model.RoleUser
	case err != nil:
		log.Error("read role failed", zap.Error(err))
		return "", stageErr(ErrProfileWrite, err)
	case role == "":
		role = model.RoleUser
	}

	p := model.Profile{
		ID:         accountID,
		Email:      email,
		ExternalID: externalID,
		Tier:       tier,
		DiscordID:  discordID,
		Role:       role,
		UpdatedAt:  u.now(),
	}
	if err := u.store.Upsert(ctx, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			log.Error("patreon identity already linked to another account",
				zap.String("external_id", externalID), zap.String("email", email), zap.Error(err))
			return "", stageErr(ErrProfileWrite, ErrIdentityLinked)
		}
		log.Error("profile write failed", zap.Error(err))
		return "", stageErr(ErrProfileWrite, err)
	}
	log.Info("profile synced", zap.String("tier", tier.String()), zap.String("role", role))
	return role, nil
}
