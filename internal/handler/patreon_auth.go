package handler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/config"
	"github.com/iliyamo/deckvault/internal/linking"
	"github.com/iliyamo/deckvault/internal/logger"
)

// Authorizer builds the Patreon consent URL.
type Authorizer interface {
	AuthorizeURL(redirectURI string) string
}

// Linker runs the account-linking flow for an authorization code.
type Linker interface {
	Link(ctx context.Context, code, redirectURI string) (linking.Result, error)
}

// PatreonAuthHandler serves the Patreon sign-in entry point and callback.
type PatreonAuthHandler struct {
	cfg      config.PatreonConfig
	auth     Authorizer
	linker   Linker
	reporter *linking.Reporter
	timeout  time.Duration
	log      *zap.Logger
}

func NewPatreonAuthHandler(cfg config.PatreonConfig, auth Authorizer, linker Linker, reporter *linking.Reporter, log *zap.Logger) *PatreonAuthHandler {
	return &PatreonAuthHandler{
		cfg:      cfg,
		auth:     auth,
		linker:   linker,
		reporter: reporter,
		timeout:  30 * time.Second,
		log:      logger.WithComponent(log, "patreon-auth"),
	}
}

// Start redirects the browser to Patreon's consent page.
func (h *PatreonAuthHandler) Start(c echo.Context) error {
	if !h.cfg.Configured() {
		h.log.Error("patreon client credentials missing")
		return c.Redirect(http.StatusSeeOther, h.reporter.Failure(linking.CodeConfigMissing, "PATREON_CLIENT_ID or PATREON_CLIENT_SECRET not set"))
	}
	redirectURI, ok := h.redirectURIFor(c)
	if !ok {
		h.log.Error("PATREON_REDIRECT_URI not set", zap.String("host", c.Request().Host))
		return c.Redirect(http.StatusSeeOther, h.reporter.Failure(linking.CodeConfigMissing, "PATREON_REDIRECT_URI not set"))
	}
	return c.Redirect(http.StatusSeeOther, h.auth.AuthorizeURL(redirectURI))
}

// Callback completes the login started by Start.  Every outcome, panics
// included, ends in a redirect to the web client.
func (h *PatreonAuthHandler) Callback(c echo.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithRequestID(h.log, requestID(c)).Error("patreon callback panicked", zap.Any("panic", r))
			err = c.Redirect(http.StatusFound, h.reporter.Failure(linking.CodeCallbackFailed, fmt.Sprint(r)))
		}
	}()

	if !h.cfg.Configured() {
		h.log.Error("patreon client credentials missing")
		return c.Redirect(http.StatusFound, h.reporter.Failure(linking.CodeConfigMissing, ""))
	}
	redirectURI, ok := h.redirectURIFor(c)
	if !ok {
		h.log.Error("PATREON_REDIRECT_URI not set", zap.String("host", c.Request().Host))
		return c.Redirect(http.StatusFound, h.reporter.Failure(linking.CodeConfigMissing, "PATREON_REDIRECT_URI not set"))
	}

	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" {
		details := c.QueryParam("error_description")
		if details == "" {
			details = c.QueryParam("error")
		}
		return c.Redirect(http.StatusFound, h.reporter.Failure(linking.CodeNoCode, details))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	res, err := h.linker.Link(ctx, code, redirectURI)
	if err != nil {
		outcome := linking.CodeFor(err)
		logger.WithRequestID(h.log, requestID(c)).Warn("patreon link failed",
			zap.String("code", outcome),
			zap.Error(err))
		return c.Redirect(http.StatusFound, h.reporter.Failure(outcome, linking.Details(err)))
	}
	return c.Redirect(http.StatusFound, h.reporter.Success(res.Session))
}

// redirectURIFor picks the registered redirect URI matching the host the
// request arrived on.  Loopback hosts use the local URI; every other host
// needs PATREON_REDIRECT_URI, the URI is never built from the Host header.
func (h *PatreonAuthHandler) redirectURIFor(c echo.Context) (string, bool) {
	if isLoopback(c.Request().Host) {
		return h.cfg.LocalRedirectURI, h.cfg.LocalRedirectURI != ""
	}
	return h.cfg.RedirectURI, h.cfg.RedirectURI != ""
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.Equal(net.IPv4(127, 0, 0, 1)) || ip.Equal(net.IPv6loopback))
}
