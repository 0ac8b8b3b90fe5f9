package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/queue"
	"github.com/iliyamo/deckvault/internal/repository"
)

type DeckStore interface {
	List(ctx context.Context, q repository.DeckQuery) ([]model.Deck, int64, error)
	GetByID(ctx context.Context, id uint64) (model.Deck, error)
	Create(ctx context.Context, d *model.Deck) error
	Update(ctx context.Context, d model.Deck) error
	Delete(ctx context.Context, id uint64) error
}

type ImportPublisher interface {
	PublishDeckImportRequested(ctx context.Context, ev queue.DeckImportRequested) error
}

// DeckHandler serves the catalog and the admin deck endpoints.
type DeckHandler struct {
	decks      DeckStore
	publisher  ImportPublisher
	invalidate func(ctx context.Context) error // drops cached catalog pages; may be nil
	log        *zap.Logger
}

func NewDeckHandler(decks DeckStore, publisher ImportPublisher, invalidate func(context.Context) error, log *zap.Logger) *DeckHandler {
	return &DeckHandler{decks: decks, publisher: publisher, invalidate: invalidate, log: log}
}

type deckResp struct {
	ID            uint64    `json:"id"`
	Title         string    `json:"title"`
	Commander     string    `json:"commander"`
	ColorIdentity string    `json:"color_identity"`
	SourceURL     string    `json:"source_url"`
	Description   string    `json:"description"`
	MinTier       string    `json:"min_tier"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toDeckResp(d model.Deck) deckResp {
	return deckResp{
		ID:            d.ID,
		Title:         d.Title,
		Commander:     d.Commander,
		ColorIdentity: d.ColorIdentity,
		SourceURL:     d.SourceURL,
		Description:   d.Description,
		MinTier:       d.MinTier.String(),
		UpdatedAt:     d.UpdatedAt,
	}
}

// viewerTier is the tier that gates what the caller may see.  Staff roles
// see the whole catalog.
func viewerTier(c echo.Context) model.Tier {
	if model.IsElevatedRole(middleware.Role(c)) {
		return model.TierArchMage
	}
	return middleware.Tier(c)
}

// List returns the decks visible to the caller's tier.
func (h *DeckHandler) List(c echo.Context) error {
	limit, offset := pagination(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	decks, total, err := h.decks.List(ctx, repository.DeckQuery{
		MaxTier:   viewerTier(c),
		Commander: strings.TrimSpace(c.QueryParam("commander")),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		h.log.Error("list decks failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}

	items := make([]deckResp, 0, len(decks))
	for _, d := range decks {
		items = append(items, toDeckResp(d))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get returns one deck, or 403 tier_required when the caller's tier is
// below the deck's gate.
func (h *DeckHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid deck id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	d, err := h.decks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "deck not found"})
		}
		h.log.Error("get deck failed", zap.Uint64("deck_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !viewerTier(c).AtLeast(d.MinTier) {
		return c.JSON(http.StatusForbidden, echo.Map{
			"error":         "tier_required",
			"required_tier": d.MinTier.String(),
		})
	}
	return c.JSON(http.StatusOK, toDeckResp(d))
}

type deckReq struct {
	Title         string `json:"title"`
	Commander     string `json:"commander"`
	ColorIdentity string `json:"color_identity"`
	SourceURL     string `json:"source_url"`
	Description   string `json:"description"`
	MinTier       string `json:"min_tier"`
}

func (r deckReq) toDeck() (model.Deck, error) {
	d := model.Deck{
		Title:         strings.TrimSpace(r.Title),
		Commander:     strings.TrimSpace(r.Commander),
		ColorIdentity: strings.ToUpper(strings.TrimSpace(r.ColorIdentity)),
		SourceURL:     strings.TrimSpace(r.SourceURL),
		Description:   r.Description,
		MinTier:       model.TierCitizen,
	}
	if d.Title == "" || d.Commander == "" {
		return d, errors.New("title and commander are required")
	}
	if !validSourceURL(d.SourceURL) {
		return d, errors.New("source_url must be an absolute http(s) URL")
	}
	if r.MinTier != "" {
		t, err := model.ParseTier(r.MinTier)
		if err != nil {
			return d, err
		}
		d.MinTier = t
	}
	return d, nil
}

func validSourceURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Create adds a deck to the catalog.
func (h *DeckHandler) Create(c echo.Context) error {
	var req deckReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	d, err := req.toDeck()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	d.CreatedBy = middleware.AccountID(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.decks.Create(ctx, &d); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "deck with this source_url already exists"})
		}
		h.log.Error("create deck failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create failed"})
	}
	h.dropCache(ctx)
	return c.JSON(http.StatusCreated, toDeckResp(d))
}

// Update overwrites a deck.
func (h *DeckHandler) Update(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid deck id"})
	}
	var req deckReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	d, err := req.toDeck()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	d.ID = id

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	switch err := h.decks.Update(ctx, d); {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "deck not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "deck with this source_url already exists"})
	case err != nil:
		h.log.Error("update deck failed", zap.Uint64("deck_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.dropCache(ctx)
	return c.JSON(http.StatusOK, toDeckResp(d))
}

// Delete removes a deck.
func (h *DeckHandler) Delete(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid deck id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.decks.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "deck not found"})
		}
		h.log.Error("delete deck failed", zap.Uint64("deck_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.dropCache(ctx)
	return c.NoContent(http.StatusNoContent)
}

type importReq struct {
	SourceURL string `json:"source_url"`
}

// Import asks the external scraper to import a deck.  The result arrives
// asynchronously on deck.import.completed.
func (h *DeckHandler) Import(c echo.Context) error {
	var req importReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	src := strings.TrimSpace(req.SourceURL)
	if !validSourceURL(src) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "source_url must be an absolute http(s) URL"})
	}

	ev := queue.DeckImportRequested{
		RequestID:   uuid.NewString(),
		SourceURL:   src,
		RequestedBy: middleware.AccountID(c),
		RequestedAt: time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.publisher.PublishDeckImportRequested(ctx, ev); err != nil {
		h.log.Error("publish import request failed", zap.String("source_url", src), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "import queue unavailable"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"request_id": ev.RequestID})
}

func (h *DeckHandler) dropCache(ctx context.Context) {
	if h.invalidate == nil {
		return
	}
	if err := h.invalidate(ctx); err != nil {
		h.log.Warn("cache invalidation failed", zap.Error(err))
	}
}
