package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/repository"
)

// Sessions is the subset of auth.Service the session endpoints use.
type Sessions interface {
	Refresh(ctx context.Context, raw string) (auth.Session, error)
	Logout(ctx context.Context, raw string) error
	LogoutAll(ctx context.Context, accountID string) error
}

type AccountReader interface {
	GetByID(ctx context.Context, id string) (model.Account, error)
}

type ProfileReader interface {
	GetByID(ctx context.Context, id string) (model.Profile, error)
}

// SessionHandler serves refresh, logout and the current-user endpoint.
type SessionHandler struct {
	sessions Sessions
	accounts AccountReader
	profiles ProfileReader
	log      *zap.Logger
}

func NewSessionHandler(sessions Sessions, accounts AccountReader, profiles ProfileReader, log *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, accounts: accounts, profiles: profiles, log: log}
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type sessionResp struct {
	AccountID string    `json:"account_id"`
	Access    tokenPart `json:"access"`
	Refresh   tokenPart `json:"refresh"`
}

func toSessionResp(s auth.Session) sessionResp {
	return sessionResp{
		AccountID: s.AccountID,
		Access:    tokenPart{Token: s.AccessToken, Expires: s.AccessExpiresAt},
		Refresh:   tokenPart{Token: s.RefreshToken, Expires: s.RefreshExpiresAt},
	}
}

// Refresh rotates a refresh token and returns a new pair.
func (h *SessionHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.sessions.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefresh) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		h.log.Error("refresh failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, toSessionResp(s))
}

// Logout revokes the refresh token in the body, or every token of the
// authenticated account when only a bearer token is presented.
func (h *SessionHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	switch {
	case raw != "":
		if err := h.sessions.Logout(ctx, raw); err != nil {
			if errors.Is(err, auth.ErrInvalidRefresh) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
			}
			h.log.Error("logout failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	case middleware.AccountID(c) != "":
		if err := h.sessions.LogoutAll(ctx, middleware.AccountID(c)); err != nil {
			h.log.Error("logout all failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token or bearer token required"})
	}
	return c.NoContent(http.StatusNoContent)
}

type meResp struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"full_name"`
	Tier       string `json:"tier"`
	Role       string `json:"role"`
	ExternalID string `json:"external_id,omitempty"`
	DiscordID  string `json:"discord_id,omitempty"`
}

// Me returns the authenticated account with its profile.
func (h *SessionHandler) Me(c echo.Context) error {
	id := middleware.AccountID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	a, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
		}
		h.log.Error("load account failed", zap.String("account_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	resp := meResp{ID: a.ID, Email: a.Email, FullName: a.FullName, Tier: model.TierCitizen.String(), Role: model.RoleUser}
	p, err := h.profiles.GetByID(ctx, id)
	switch {
	case err == nil:
		resp.Tier, resp.Role, resp.ExternalID, resp.DiscordID = p.Tier.String(), p.Role, p.ExternalID, p.DiscordID
	case !errors.Is(err, repository.ErrNotFound):
		h.log.Error("load profile failed", zap.String("account_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, resp)
}
