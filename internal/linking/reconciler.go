package linking

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/repository"
)

// State is the account-store situation a reconciliation ended in.
type State string

const (
	StateNewAccount      State = "new_account"
	StateExistingLinked  State = "existing_linked"
	StateRecoveredOrphan State = "recovered_orphan"
)

// Reconciliation is the outcome of Reconcile.
type Reconciliation struct {
	AccountID    string
	IsNewAccount bool
	State        State
}

// AccountStore is the identity store.  Create must report a duplicate
// email as repository.ErrEmailExists.
type AccountStore interface {
	Create(ctx context.Context, email, fullName string) (string, error)
	GenerateRecoveryLink(ctx context.Context, email string) (repository.RecoveryLink, error)
}

type ProfileFinder interface {
	GetByEmail(ctx context.Context, email string) (model.Profile, error)
}

// Reconciler resolves which local account an external identity belongs to.
type Reconciler struct {
	accounts AccountStore
	profiles ProfileFinder
	log      *zap.Logger
}

func NewReconciler(accounts AccountStore, profiles ProfileFinder, log *zap.Logger) *Reconciler {
	return &Reconciler{accounts: accounts, profiles: profiles, log: log}
}

// Reconcile creates the account, or finds the one already holding email.
// The store's unique email index decides between the two; there is no
// existence check before the insert.
func (r *Reconciler) Reconcile(ctx context.Context, email, externalID, fullName string) (Reconciliation, error) {
	log := r.log.With(zap.String("stage", "reconcile"), zap.String("external_id", externalID))

	id, err := r.accounts.Create(ctx, email, fullName)
	if err == nil {
		if id == "" {
			log.Error("account create returned empty id")
			return Reconciliation{}, ErrUserCreation
		}
		log.Info("account created", zap.String("account_id", id))
		return Reconciliation{AccountID: id, IsNewAccount: true, State: StateNewAccount}, nil
	}
	if !errors.Is(err, repository.ErrEmailExists) {
		log.Error("account create failed", zap.Error(err))
		return Reconciliation{}, stageErr(ErrAccountLookup, err)
	}

	p, err := r.profiles.GetByEmail(ctx, email)
	if err == nil {
		log.Info("existing profile linked", zap.String("account_id", p.ID))
		return Reconciliation{AccountID: p.ID, State: StateExistingLinked}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Error("profile lookup failed", zap.Error(err))
		return Reconciliation{}, stageErr(ErrAccountLookup, err)
	}

	// Account without a profile: a signup that stopped halfway.  The
	// recovery link is only used to learn the account id; it is never sent.
	link, err := r.accounts.GenerateRecoveryLink(ctx, email)
	if err != nil {
		log.Error("orphan recovery failed", zap.Error(err))
		return Reconciliation{}, stageErr(ErrRecovery, err)
	}
	if link.AccountID == "" {
		log.Error("orphan recovery returned empty id")
		return Reconciliation{}, ErrRecovery
	}
	log.Warn("orphaned account recovered", zap.String("account_id", link.AccountID))
	return Reconciliation{AccountID: link.AccountID, State: StateRecoveredOrphan}, nil
}
