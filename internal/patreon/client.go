// Package patreon talks to the Patreon OAuth and identity APIs: it builds the
// authorize URL, exchanges authorization codes for access tokens and reads
// the caller's identity together with their pledge.
package patreon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iliyamo/deckvault/internal/config"
	"github.com/iliyamo/deckvault/internal/model"
)

const (
	defaultAuthURL     = "https://www.patreon.com/oauth2/authorize"
	defaultTokenURL    = "https://www.patreon.com/api/oauth2/token"
	defaultIdentityURL = "https://www.patreon.com/api/oauth2/v2/identity"
)

// Scopes requested on the authorize URL.
var Scopes = []string{"identity", "identity[email]", "identity.memberships"}

// Patron statuses that keep a pledge counting towards a tier.  Declined
// payments are still inside Patreon's retry window, so they keep access.
var countingStatuses = map[string]bool{
	"active_patron":   true,
	"declined_patron": true,
}

var (
	// ErrExchange marks every failed call to the token or identity endpoint.
	ErrExchange = errors.New("patreon exchange failed")
	// ErrMissingEmail is returned when the identity carries no email address.
	ErrMissingEmail = errors.New("patreon identity has no email")
)

// ExchangeError carries the provider status and response text of a failed
// call.  Status is zero when the request never got a response.
type ExchangeError struct {
	Op     string
	Status int
	Text   string
}

func (e *ExchangeError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("patreon %s: %s", e.Op, e.Text)
	}
	return fmt.Sprintf("patreon %s: status %d: %s", e.Op, e.Status, e.Text)
}

func (e *ExchangeError) Unwrap() error { return ErrExchange }

// Pledge is the member record used to derive a tier.
type Pledge struct {
	EntitledAmountCents int64
	PatronStatus        string
}

// Membership is the identity returned by FetchMembership.
type Membership struct {
	ExternalID string
	Email      string
	FullName   string
	DiscordID  string
	Pledge     *Pledge // nil when the user has no counting pledge
}

// Tier resolves the membership's pledge; no pledge means Citizen.
func (m Membership) Tier() model.Tier {
	if m.Pledge == nil {
		return model.ResolveTier(0)
	}
	return model.ResolveTier(m.Pledge.EntitledAmountCents)
}

// Client is safe for concurrent use.
type Client struct {
	oauth       oauth2.Config
	httpClient  *http.Client
	identityURL string
	log         *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoints overrides the Patreon URLs, used against test servers.
func WithEndpoints(authURL, tokenURL, identityURL string) Option {
	return func(c *Client) {
		c.oauth.Endpoint.AuthURL = authURL
		c.oauth.Endpoint.TokenURL = tokenURL
		c.identityURL = identityURL
	}
}

// New builds a client from the Patreon configuration.  Every outbound call
// is bounded by cfg.HTTPTimeout.
func New(cfg config.PatreonConfig, log *zap.Logger, opts ...Option) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   defaultAuthURL,
				TokenURL:  defaultTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient:  &http.Client{Timeout: timeout},
		identityURL: defaultIdentityURL,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) configFor(redirectURI string) *oauth2.Config {
	conf := c.oauth
	conf.RedirectURL = redirectURI
	return &conf
}

// AuthorizeURL returns the URL the browser is sent to for consent.
func (c *Client) AuthorizeURL(redirectURI string) string {
	return c.configFor(redirectURI).AuthCodeURL("")
}

// ExchangeCode trades an authorization code for an access token.
// redirectURI must be the one used to build the authorize URL.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.configFor(redirectURI).Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			xe := &ExchangeError{Op: "token exchange", Text: strings.TrimSpace(string(re.Body))}
			if re.Response != nil {
				xe.Status = re.Response.StatusCode
			}
			if xe.Text == "" {
				xe.Text = re.ErrorCode
			}
			return "", xe
		}
		return "", &ExchangeError{Op: "token exchange", Text: err.Error()}
	}
	if tok.AccessToken == "" {
		return "", &ExchangeError{Op: "token exchange", Status: http.StatusOK, Text: "empty access token"}
	}
	return tok.AccessToken, nil
}

// identityDocument is the JSON:API shape of the v2 identity endpoint with
// memberships included.
type identityDocument struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Email             string `json:"email"`
			FullName          string `json:"full_name"`
			SocialConnections struct {
				Discord *struct {
					UserID string `json:"user_id"`
				} `json:"discord"`
			} `json:"social_connections"`
		} `json:"attributes"`
	} `json:"data"`
	Included []struct {
		ID         string `json:"id"`
		Type       string `json:"type"`
		Attributes struct {
			CurrentlyEntitledAmountCents int64  `json:"currently_entitled_amount_cents"`
			PatronStatus                 string `json:"patron_status"`
		} `json:"attributes"`
	} `json:"included"`
}

// FetchMembership reads the identity behind accessToken.
func (c *Client) FetchMembership(ctx context.Context, accessToken string) (Membership, error) {
	q := url.Values{}
	q.Set("include", "memberships")
	q.Set("fields[user]", "email,full_name,social_connections")
	q.Set("fields[member]", "currently_entitled_amount_cents,patron_status")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.identityURL+"?"+q.Encode(), nil)
	if err != nil {
		return Membership{}, &ExchangeError{Op: "identity fetch", Text: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Membership{}, &ExchangeError{Op: "identity fetch", Text: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Membership{}, &ExchangeError{Op: "identity fetch", Status: resp.StatusCode, Text: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Membership{}, &ExchangeError{Op: "identity fetch", Status: resp.StatusCode, Text: strings.TrimSpace(string(body))}
	}

	var doc identityDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return Membership{}, &ExchangeError{Op: "identity fetch", Status: resp.StatusCode, Text: "decode identity: " + err.Error()}
	}

	m := Membership{
		ExternalID: doc.Data.ID,
		Email:      strings.ToLower(strings.TrimSpace(doc.Data.Attributes.Email)),
		FullName:   strings.TrimSpace(doc.Data.Attributes.FullName),
	}
	if d := doc.Data.Attributes.SocialConnections.Discord; d != nil {
		m.DiscordID = d.UserID
	}
	if m.Email == "" {
		return m, ErrMissingEmail
	}

	for _, inc := range doc.Included {
		if inc.Type != "member" || !countingStatuses[inc.Attributes.PatronStatus] {
			continue
		}
		if m.Pledge == nil || inc.Attributes.CurrentlyEntitledAmountCents > m.Pledge.EntitledAmountCents {
			m.Pledge = &Pledge{
				EntitledAmountCents: inc.Attributes.CurrentlyEntitledAmountCents,
				PatronStatus:        inc.Attributes.PatronStatus,
			}
		}
	}

	c.log.Debug("patreon membership fetched",
		zap.String("external_id", m.ExternalID),
		zap.Bool("has_pledge", m.Pledge != nil),
		zap.String("tier", m.Tier().String()))
	return m, nil
}
