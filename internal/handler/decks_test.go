package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/queue"
	"github.com/iliyamo/deckvault/internal/repository"
)

type fakeDecks struct {
	decks     map[uint64]model.Deck
	lastQuery repository.DeckQuery
	createErr error
	nextID    uint64
}

func newFakeDecks(decks ...model.Deck) *fakeDecks {
	f := &fakeDecks{decks: map[uint64]model.Deck{}, nextID: 100}
	for _, d := range decks {
		f.decks[d.ID] = d
	}
	return f
}

func (f *fakeDecks) List(_ context.Context, q repository.DeckQuery) ([]model.Deck, int64, error) {
	f.lastQuery = q
	var out []model.Deck
	for _, d := range f.decks {
		if d.MinTier <= q.MaxTier {
			out = append(out, d)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeDecks) GetByID(_ context.Context, id uint64) (model.Deck, error) {
	if d, ok := f.decks[id]; ok {
		return d, nil
	}
	return model.Deck{}, repository.ErrNotFound
}

func (f *fakeDecks) Create(_ context.Context, d *model.Deck) error {
	if f.createErr != nil {
		return f.createErr
	}
	d.ID = f.nextID
	f.nextID++
	f.decks[d.ID] = *d
	return nil
}

func (f *fakeDecks) Update(_ context.Context, d model.Deck) error {
	if _, ok := f.decks[d.ID]; !ok {
		return repository.ErrNotFound
	}
	f.decks[d.ID] = d
	return nil
}

func (f *fakeDecks) Delete(_ context.Context, id uint64) error {
	if _, ok := f.decks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.decks, id)
	return nil
}

type fakeImportPublisher struct {
	err    error
	events []queue.DeckImportRequested
}

func (f *fakeImportPublisher) PublishDeckImportRequested(_ context.Context, ev queue.DeckImportRequested) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

type deckServer struct {
	e           *echo.Echo
	decks       *fakeDecks
	pub         *fakeImportPublisher
	invalidated int
}

func newDeckServer(decks ...model.Deck) *deckServer {
	s := &deckServer{decks: newFakeDecks(decks...), pub: &fakeImportPublisher{}}
	h := NewDeckHandler(s.decks, s.pub, func(context.Context) error { s.invalidated++; return nil }, zap.NewNop())
	s.e = echo.New()
	s.e.GET("/v1/decks", h.List, middleware.OptionalJWT(testSecret))
	s.e.GET("/v1/decks/:id", h.Get, middleware.OptionalJWT(testSecret))
	admin := s.e.Group("/v1/admin/decks", middleware.JWTAuth(testSecret))
	admin.POST("", h.Create)
	admin.POST("/import", h.Import)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
	return s
}

var (
	freeDeck   = model.Deck{ID: 1, Title: "Krenko Tokens", Commander: "Krenko, Mob Boss", ColorIdentity: "R", SourceURL: "https://decks.example/1", MinTier: model.TierCitizen}
	wizardDeck = model.Deck{ID: 2, Title: "Urza Combo", Commander: "Urza, Lord High Artificer", ColorIdentity: "U", SourceURL: "https://decks.example/2", MinTier: model.TierWizard}
)

func TestListDecks_TierOfCaller(t *testing.T) {
	s := newDeckServer(freeDeck, wizardDeck)

	rec := do(s.e, http.MethodGet, "/v1/decks?commander=Krenko&limit=5&offset=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.DeckQuery{MaxTier: model.TierCitizen, Commander: "Krenko", Limit: 5, Offset: 10}, s.decks.lastQuery)

	do(s.e, http.MethodGet, "/v1/decks", "", bearerFor(t, "acc-1", model.RoleUser, model.TierDuke))
	assert.Equal(t, model.TierDuke, s.decks.lastQuery.MaxTier)
	assert.Equal(t, defaultPageSize, s.decks.lastQuery.Limit)

	rec = do(s.e, http.MethodGet, "/v1/decks?limit=1000", "", bearerFor(t, "acc-2", model.RoleModerator, model.TierCitizen))
	assert.Equal(t, model.TierArchMage, s.decks.lastQuery.MaxTier)
	assert.Equal(t, maxPageSize, s.decks.lastQuery.Limit)

	var body struct {
		Items []deckResp `json:"items"`
		Total int64      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body.Total)
}

func TestGetDeck_TierGate(t *testing.T) {
	s := newDeckServer(freeDeck, wizardDeck)

	rec := do(s.e, http.MethodGet, "/v1/decks/2", "", bearerFor(t, "acc-1", model.RoleUser, model.TierKnight))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"tier_required","required_tier":"Wizard"}`, rec.Body.String())

	rec = do(s.e, http.MethodGet, "/v1/decks/2", "", bearerFor(t, "acc-1", model.RoleUser, model.TierArchMage))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s.e, http.MethodGet, "/v1/decks/1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s.e, http.MethodGet, "/v1/decks/9", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s.e, http.MethodGet, "/v1/decks/abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDeck(t *testing.T) {
	s := newDeckServer()
	admin := bearerFor(t, "acc-admin", model.RoleAdmin, model.TierCitizen)

	rec := do(s.e, http.MethodPost, "/v1/admin/decks", `{"title":"","commander":"x","source_url":"https://decks.example/3"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s.e, http.MethodPost, "/v1/admin/decks", `{"title":"T","commander":"C","source_url":"ftp://decks.example/3"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s.e, http.MethodPost, "/v1/admin/decks", `{"title":"T","commander":"C","source_url":"https://decks.example/3","min_tier":"Gold"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s.e, http.MethodPost, "/v1/admin/decks",
		`{"title":"Atraxa","commander":"Atraxa","color_identity":"wubg","source_url":"https://decks.example/3","min_tier":"duke"}`, admin)
	require.Equal(t, http.StatusCreated, rec.Code)
	stored := s.decks.decks[100]
	assert.Equal(t, model.TierDuke, stored.MinTier)
	assert.Equal(t, "WUBG", stored.ColorIdentity)
	assert.Equal(t, "acc-admin", stored.CreatedBy)
	assert.Equal(t, 1, s.invalidated)

	s.decks.createErr = repository.ErrConflict
	rec = do(s.e, http.MethodPost, "/v1/admin/decks", `{"title":"T","commander":"C","source_url":"https://decks.example/3"}`, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateAndDeleteDeck(t *testing.T) {
	s := newDeckServer(freeDeck)
	admin := bearerFor(t, "acc-admin", model.RoleAdmin, model.TierCitizen)

	rec := do(s.e, http.MethodPut, "/v1/admin/decks/1",
		`{"title":"Krenko v2","commander":"Krenko, Mob Boss","source_url":"https://decks.example/1","min_tier":"Knight"}`, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Krenko v2", s.decks.decks[1].Title)
	assert.Equal(t, model.TierKnight, s.decks.decks[1].MinTier)

	rec = do(s.e, http.MethodPut, "/v1/admin/decks/7",
		`{"title":"x","commander":"y","source_url":"https://decks.example/7"}`, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(s.e, http.MethodDelete, "/v1/admin/decks/1", "", admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(s.e, http.MethodDelete, "/v1/admin/decks/1", "", admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 2, s.invalidated)
}

func TestImportDeck(t *testing.T) {
	s := newDeckServer()
	admin := bearerFor(t, "acc-admin", model.RoleAdmin, model.TierCitizen)

	rec := do(s.e, http.MethodPost, "/v1/admin/decks/import", `{"source_url":"not a url"}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(s.e, http.MethodPost, "/v1/admin/decks/import", `{"source_url":" https://decks.example/42 "}`, admin)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, s.pub.events, 1)
	ev := s.pub.events[0]
	assert.Equal(t, "https://decks.example/42", ev.SourceURL)
	assert.Equal(t, "acc-admin", ev.RequestedBy)
	assert.JSONEq(t, `{"request_id":"`+ev.RequestID+`"}`, rec.Body.String())

	s.pub.err = errors.New("broker down")
	rec = do(s.e, http.MethodPost, "/v1/admin/decks/import", `{"source_url":"https://decks.example/43"}`, admin)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
