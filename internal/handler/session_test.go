package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/auth"
	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/repository"
)

type fakeSessions struct {
	refreshErr   error
	loggedOut    []string
	loggedOutAll []string
}

func (f *fakeSessions) Refresh(_ context.Context, raw string) (auth.Session, error) {
	if f.refreshErr != nil {
		return auth.Session{}, f.refreshErr
	}
	return auth.Session{
		AccountID:        "acc-1",
		AccessToken:      "new-access",
		AccessExpiresAt:  time.Now().Add(time.Hour),
		RefreshToken:     "new-refresh",
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (f *fakeSessions) Logout(_ context.Context, raw string) error {
	f.loggedOut = append(f.loggedOut, raw)
	return nil
}

func (f *fakeSessions) LogoutAll(_ context.Context, accountID string) error {
	f.loggedOutAll = append(f.loggedOutAll, accountID)
	return nil
}

type fakeAccounts map[string]model.Account

func (f fakeAccounts) GetByID(_ context.Context, id string) (model.Account, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return model.Account{}, repository.ErrNotFound
}

type fakeProfiles map[string]model.Profile

func (f fakeProfiles) GetByID(_ context.Context, id string) (model.Profile, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return model.Profile{}, repository.ErrNotFound
}

func newSessionServer(s Sessions, accounts fakeAccounts, profiles fakeProfiles) *echo.Echo {
	h := NewSessionHandler(s, accounts, profiles, zap.NewNop())
	e := echo.New()
	e.POST("/v1/auth/refresh", h.Refresh)
	e.POST("/v1/auth/logout", h.Logout, middleware.OptionalJWT(testSecret))
	e.GET("/v1/me", h.Me, middleware.JWTAuth(testSecret))
	return e
}

func TestRefresh(t *testing.T) {
	s := &fakeSessions{}
	e := newSessionServer(s, nil, nil)

	rec := do(e, http.MethodPost, "/v1/auth/refresh", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"old"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body sessionResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "acc-1", body.AccountID)
	assert.Equal(t, "new-access", body.Access.Token)
	assert.Equal(t, "new-refresh", body.Refresh.Token)
}

func TestRefresh_Invalid(t *testing.T) {
	e := newSessionServer(&fakeSessions{refreshErr: auth.ErrInvalidRefresh}, nil, nil)

	rec := do(e, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"revoked"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	s := &fakeSessions{}
	e := newSessionServer(s, nil, nil)

	rec := do(e, http.MethodPost, "/v1/auth/logout", `{"refresh_token":"rt"}`, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"rt"}, s.loggedOut)

	rec = do(e, http.MethodPost, "/v1/auth/logout", "", bearerFor(t, "acc-9", model.RoleUser, model.TierCitizen))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"acc-9"}, s.loggedOutAll)

	rec = do(e, http.MethodPost, "/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMe(t *testing.T) {
	accounts := fakeAccounts{
		"acc-1": {ID: "acc-1", Email: "a@example.com", FullName: "Alice"},
		"acc-2": {ID: "acc-2", Email: "b@example.com", FullName: "Bob"},
	}
	profiles := fakeProfiles{
		"acc-1": {ID: "acc-1", Email: "a@example.com", ExternalID: "p-1", Tier: model.TierDuke, Role: model.RoleModerator},
	}
	e := newSessionServer(&fakeSessions{}, accounts, profiles)

	rec := do(e, http.MethodGet, "/v1/me", "", bearerFor(t, "acc-1", model.RoleModerator, model.TierDuke))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"acc-1","email":"a@example.com","full_name":"Alice","tier":"Duke","role":"moderator","external_id":"p-1"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/v1/me", "", bearerFor(t, "acc-2", model.RoleUser, model.TierCitizen))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"acc-2","email":"b@example.com","full_name":"Bob","tier":"Citizen","role":"user"}`, rec.Body.String())

	rec = do(e, http.MethodGet, "/v1/me", "", bearerFor(t, "gone", model.RoleUser, model.TierCitizen))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
