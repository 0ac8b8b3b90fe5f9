package linking

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/logger"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/patreon"
	"github.com/iliyamo/deckvault/internal/queue"
)

// IdentityClient is the Patreon side of the flow.
type IdentityClient interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (string, error)
	FetchMembership(ctx context.Context, accessToken string) (patreon.Membership, error)
}

// Result describes a successful link.
type Result struct {
	AccountID    string
	IsNewAccount bool
	State        State
	Tier         model.Tier
	Role         string
	Session      auth.Session
}

// Linker runs the stages in order and stops at the first failure.
type Linker struct {
	identity   IdentityClient
	reconciler *Reconciler
	profiles   *ProfileUpserter
	sessions   *SessionProvisioner
	reporter   *Reporter
	log        *zap.Logger
}

func NewLinker(identity IdentityClient, reconciler *Reconciler, profiles *ProfileUpserter,
	sessions *SessionProvisioner, reporter *Reporter, log *zap.Logger) *Linker {
	return &Linker{
		identity:   identity,
		reconciler: reconciler,
		profiles:   profiles,
		sessions:   sessions,
		reporter:   reporter,
		log:        log,
	}
}

// unknownTier labels sync failures that happen before the tier is known.
const unknownTier = "unknown"

// Link completes a Patreon login for the authorization code.
func (l *Linker) Link(ctx context.Context, code, redirectURI string) (Result, error) {
	tierLabel := unknownTier
	res, err := l.link(ctx, strings.TrimSpace(code), redirectURI, &tierLabel)
	if err != nil {
		l.reporter.RecordSync(tierLabel, "failure")
		return Result{}, err
	}

	l.reporter.RecordLogin(res.Tier.String(), res.Role, res.IsNewAccount)
	l.reporter.RecordSync(res.Tier.String(), "success")
	l.reporter.PublishSynced(ctx, queue.ProfileSynced{
		AccountID:    res.AccountID,
		Tier:         res.Tier.String(),
		Role:         res.Role,
		IsNewAccount: res.IsNewAccount,
		SyncedAt:     time.Now().UTC(),
	})
	return res, nil
}

func (l *Linker) link(ctx context.Context, code, redirectURI string, tierLabel *string) (Result, error) {
	if code == "" {
		return Result{}, ErrNoCode
	}

	token, err := l.identity.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		l.logProviderFailure("exchange_code", err)
		return Result{}, stageErr(ErrIdentityExchange, err)
	}

	m, err := l.identity.FetchMembership(ctx, token)
	if err != nil {
		if errors.Is(err, patreon.ErrMissingEmail) {
			l.log.Warn("patreon identity without email", zap.String("stage", "fetch_membership"),
				zap.String("external_id", m.ExternalID))
			return Result{}, stageErr(ErrMissingEmail, err)
		}
		l.logProviderFailure("fetch_membership", err)
		return Result{}, stageErr(ErrIdentityExchange, err)
	}
	if m.Email == "" {
		return Result{}, ErrMissingEmail
	}
	tier := m.Tier()
	*tierLabel = tier.String()

	rec, err := l.reconciler.Reconcile(ctx, m.Email, m.ExternalID, m.FullName)
	if err != nil {
		return Result{}, err
	}

	role, err := l.profiles.UpsertProfile(ctx, rec.AccountID, m.Email, m.ExternalID, tier, m.DiscordID)
	if err != nil {
		return Result{}, err
	}

	sess, err := l.sessions.Provision(ctx, rec.AccountID, m.Email)
	if err != nil {
		return Result{}, err
	}

	logger.WithAccountID(l.log, rec.AccountID).Info("patreon account linked",
		zap.String("state", string(rec.State)),
		zap.String("tier", tier.String()),
		zap.String("role", role))
	return Result{
		AccountID:    rec.AccountID,
		IsNewAccount: rec.IsNewAccount,
		State:        rec.State,
		Tier:         tier,
		Role:         role,
		Session:      sess,
	}, nil
}

func (l *Linker) logProviderFailure(stage string, err error) {
	fields := []zap.Field{zap.String("stage", stage), zap.Error(err)}
	var xe *patreon.ExchangeError
	if errors.As(err, &xe) {
		fields = append(fields, zap.Int("provider_status", xe.Status))
	}
	l.log.Error("patreon call failed", fields...)
}
