// Package linking runs the Patreon account-linking flow: exchange the
// authorization code, resolve the tier, reconcile the local account,
// upsert the profile, provision a session and report the outcome.
//
// Every stage failure is terminal and wrapped in one of the sentinel
// errors below; CodeFor turns it into the code shown on the login page.
package linking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/deckvault/internal/patreon"
)

var (
	ErrNoCode           = errors.New("authorization code missing")
	ErrIdentityExchange = errors.New("identity exchange failed")
	ErrMissingEmail     = errors.New("identity has no email")
	ErrAccountLookup    = errors.New("account lookup failed")
	ErrRecovery         = errors.New("orphan account recovery failed")
	ErrUserCreation     = errors.New("account creation returned no id")
	ErrProfileWrite     = errors.New("profile write failed")
	ErrCredentialSetup  = errors.New("credential setup failed")
	ErrSignIn           = errors.New("sign in failed")
)

// ErrIdentityLinked accompanies ErrProfileWrite when the Patreon id already
// belongs to another account's profile, usually after the patron changed
// their Patreon email.
var ErrIdentityLinked = errors.New("patreon identity already linked to another account")

// Outcome codes carried in the login redirect.
const (
	CodeNoCode              = "no_code"
	CodeNoEmail             = "no_email"
	CodeLookupFailed        = "lookup_failed"
	CodeRecoveryFailed      = "recovery_failed"
	CodeUserCreationFailed  = "user_creation_failed"
	CodeProfileUpdateFailed = "profile_update_failed"
	CodePasswordSetupFailed = "password_setup_failed"
	CodeSigninFailed        = "signin_failed"
	CodeCallbackFailed      = "callback_failed"
	CodeConfigMissing       = "config_missing"
)

var codeOrder = []struct {
	err  error
	code string
}{
	{ErrNoCode, CodeNoCode},
	{ErrMissingEmail, CodeNoEmail},
	{ErrAccountLookup, CodeLookupFailed},
	{ErrRecovery, CodeRecoveryFailed},
	{ErrUserCreation, CodeUserCreationFailed},
	{ErrProfileWrite, CodeProfileUpdateFailed},
	{ErrCredentialSetup, CodePasswordSetupFailed},
	{ErrSignIn, CodeSigninFailed},
	{ErrIdentityExchange, CodeCallbackFailed},
}

// CodeFor maps a flow error to its outcome code.  Anything outside the
// taxonomy is callback_failed.
func CodeFor(err error) string {
	for _, c := range codeOrder {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeCallbackFailed
}

var messages = map[string]string{
	CodeNoCode:              "Patreon did not return an authorization code. Please try again.",
	CodeNoEmail:             "Your Patreon account has no email address we can use.",
	CodeLookupFailed:        "We could not look up your account. Please try again.",
	CodeRecoveryFailed:      "We could not recover your existing account. Please contact support.",
	CodeUserCreationFailed:  "We could not create your account. Please try again.",
	CodeProfileUpdateFailed: "We could not update your profile. Please try again.",
	CodePasswordSetupFailed: "We could not set up your sign-in. Please try again.",
	CodeSigninFailed:        "We could not sign you in. Please try again.",
	CodeCallbackFailed:      "Something went wrong while signing in with Patreon.",
	CodeConfigMissing:       "Patreon sign-in is not configured.",
}

// Message returns the fixed user-facing text for code.
func Message(code string) string {
	if m, ok := messages[code]; ok {
		return m
	}
	return messages[CodeCallbackFailed]
}

// Details returns the debugging text attached to a failure redirect.
// Provider failures report the provider status and response text.
func Details(err error) string {
	if err == nil {
		return ""
	}
	var xe *patreon.ExchangeError
	if errors.As(err, &xe) {
		if xe.Status == 0 {
			return xe.Text
		}
		return fmt.Sprintf("%d: %s", xe.Status, xe.Text)
	}
	return err.Error()
}

func stageErr(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}
