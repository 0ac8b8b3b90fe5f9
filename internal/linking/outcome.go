package linking

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/queue"
)

const maxDetailsLen = 500

// Recorder receives login and sync counters.
type Recorder interface {
	RecordLogin(tier, role string, isNew bool)
	RecordSync(tier, status string)
}

// SyncPublisher announces successful links.
type SyncPublisher interface {
	PublishProfileSynced(ctx context.Context, ev queue.ProfileSynced) error
}

// Reporter turns flow outcomes into counters, events and redirects.
type Reporter struct {
	rec         Recorder
	pub         SyncPublisher // may be nil
	siteURL     string
	showDetails bool
	log         *zap.Logger
}

// NewReporter builds a Reporter.  showDetails controls whether raw error
// text is attached to failure redirects; it is off in production.
func NewReporter(rec Recorder, pub SyncPublisher, siteURL string, showDetails bool, log *zap.Logger) *Reporter {
	return &Reporter{
		rec:         rec,
		pub:         pub,
		siteURL:     strings.TrimRight(siteURL, "/"),
		showDetails: showDetails,
		log:         log,
	}
}

func (r *Reporter) RecordLogin(tier, role string, isNew bool) { r.rec.RecordLogin(tier, role, isNew) }

func (r *Reporter) RecordSync(tier, status string) { r.rec.RecordSync(tier, status) }

// PublishSynced sends profile.synced in the background.  Failures are
// logged and never reach the caller.
func (r *Reporter) PublishSynced(ctx context.Context, ev queue.ProfileSynced) {
	if r.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	go func() {
		defer cancel()
		if err := r.pub.PublishProfileSynced(ctx, ev); err != nil {
			r.log.Warn("publish profile.synced failed", zap.String("account_id", ev.AccountID), zap.Error(err))
		}
	}()
}

// Success returns the session redirect for s.
func (r *Reporter) Success(s auth.Session) string { return SuccessRedirect(r.siteURL, s) }

// Failure returns the login redirect for code.
func (r *Reporter) Failure(code, details string) string {
	return FailureRedirect(r.siteURL, code, details, r.showDetails)
}

// SuccessRedirect builds <site>/auth/session with the tokens in the
// fragment.  Fragments are not sent to servers, so the tokens stay out of
// request logs.
func SuccessRedirect(siteURL string, s auth.Session) string {
	frag := url.Values{}
	frag.Set("access_token", s.AccessToken)
	frag.Set("refresh_token", s.RefreshToken)
	return strings.TrimRight(siteURL, "/") + "/auth/session#" + frag.Encode()
}

// FailureRedirect builds <site>/login?error=<code>, adding details when
// withDetails is set and details is not empty.
func FailureRedirect(siteURL, code, details string, withDetails bool) string {
	u := strings.TrimRight(siteURL, "/") + "/login?error=" + url.QueryEscape(code)
	if withDetails && details != "" {
		details = truncate(details, maxDetailsLen)
		u += "&details=" + url.QueryEscape(details)
	}
	return u
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
