package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/repository"
)

type ProfileAdminStore interface {
	List(ctx context.Context, limit, offset int) ([]model.Profile, error)
	SetRole(ctx context.Context, id, role string) error
}

// AdminHandler serves profile administration.  Roles are only ever
// changed here.
type AdminHandler struct {
	profiles ProfileAdminStore
	log      *zap.Logger
}

func NewAdminHandler(profiles ProfileAdminStore, log *zap.Logger) *AdminHandler {
	return &AdminHandler{profiles: profiles, log: log}
}

type profileResp struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	ExternalID string    `json:"external_id,omitempty"`
	Tier       string    `json:"tier"`
	DiscordID  string    `json:"discord_id,omitempty"`
	Role       string    `json:"role"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListProfiles returns profiles, most recently synced first.
func (h *AdminHandler) ListProfiles(c echo.Context) error {
	limit, offset := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.profiles.List(ctx, limit, offset)
	if err != nil {
		h.log.Error("list profiles failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	items := make([]profileResp, 0, len(list))
	for _, p := range list {
		items = append(items, profileResp{
			ID: p.ID, Email: p.Email, ExternalID: p.ExternalID, Tier: p.Tier.String(),
			DiscordID: p.DiscordID, Role: p.Role, UpdatedAt: p.UpdatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "limit": limit, "offset": offset})
}

type setRoleReq struct {
	Role string `json:"role"`
}

// SetRole changes the role of a profile.  Callers cannot change their own
// role.
func (h *AdminHandler) SetRole(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	var req setRoleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if !model.IsKnownRole(role) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown role"})
	}
	if id == middleware.AccountID(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot change own role"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.profiles.SetRole(ctx, id, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "profile not found"})
		}
		h.log.Error("set role failed", zap.String("account_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.log.Info("role changed", zap.String("account_id", id), zap.String("role", role),
		zap.String("changed_by", middleware.AccountID(c)))
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": role})
}
