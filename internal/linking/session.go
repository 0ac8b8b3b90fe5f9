package linking

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/utils"
)

// Credentials is the credential store used to obtain a session.
type Credentials interface {
	SetPassword(ctx context.Context, accountID, plain string) error
	SignInWithPassword(ctx context.Context, email, plain string) (auth.Session, error)
}

// SessionProvisioner signs a linked account in without a user password.
// It sets a generated single-use secret as the credential and signs in
// with it; the secret is never shown or stored in clear.
type SessionProvisioner struct {
	creds     Credentials
	newSecret func(accountID string) (string, error)
	log       *zap.Logger
}

func NewSessionProvisioner(creds Credentials, log *zap.Logger) *SessionProvisioner {
	return &SessionProvisioner{creds: creds, newSecret: utils.NewSessionSecret, log: log}
}

// Provision replaces the account's credential and returns a fresh
// session.  Earlier sessions stay valid.
func (p *SessionProvisioner) Provision(ctx context.Context, accountID, email string) (auth.Session, error) {
	log := p.log.With(zap.String("stage", "provision_session"), zap.String("account_id", accountID))

	secret, err := p.newSecret(accountID)
	if err != nil {
		log.Error("generate secret failed", zap.Error(err))
		return auth.Session{}, stageErr(ErrCredentialSetup, err)
	}
	if err := p.creds.SetPassword(ctx, accountID, secret); err != nil {
		log.Error("set credential failed", zap.Error(err))
		return auth.Session{}, stageErr(ErrCredentialSetup, err)
	}
	s, err := p.creds.SignInWithPassword(ctx, email, secret)
	if err != nil {
		log.Error("sign in failed", zap.Error(err))
		return auth.Session{}, stageErr(ErrSignIn, err)
	}
	return s, nil
}
