package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/deckvault/internal/config"
	"github.com/iliyamo/deckvault/internal/metrics"
	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/utils"
)

const testSecret = "test-secret"

func token(t *testing.T, role string, tier model.Tier) string {
	t.Helper()
	at, err := utils.NewAccessToken(testSecret, "acc-1", role, tier, 5)
	require.NoError(t, err)
	return at.Token
}

func whoami(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"account_id": AccountID(c),
		"role":       Role(c),
		"tier":       Tier(c).String(),
	})
}

func serve(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(testSecret))

	rec := serve(e, http.MethodGet, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/me", token(t, model.RoleUser, model.TierWizard))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":"acc-1","role":"user","tier":"Wizard"}`, rec.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	e := echo.New()
	e.GET("/decks", whoami, OptionalJWT(testSecret))

	rec := serve(e, http.MethodGet, "/decks", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"account_id":"","role":"","tier":"Citizen"}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/decks", "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodGet, "/decks", token(t, model.RoleUser, model.TierKnight))
	assert.JSONEq(t, `{"account_id":"acc-1","role":"user","tier":"Knight"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/admin", whoami, JWTAuth(testSecret), RequireRole(model.RoleAdmin, model.RoleDeveloper))

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", token(t, model.RoleUser, model.TierArchMage)).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", token(t, model.RoleModerator, model.TierCitizen)).Code)
	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/admin", token(t, model.RoleDeveloper, model.TierCitizen)).Code)
}

func TestRequestLogger(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := echo.New()
	e.Use(RequestLogger(zap.NewNop(), m))
	e.GET("/ping", func(c echo.Context) error {
		assert.NotEmpty(t, RequestID(c))
		return c.String(http.StatusOK, "pong")
	})

	rec := serve(e, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/ping", "200")))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderXRequestID, "given-id")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", rec.Header().Get(echo.HeaderXRequestID))
}

func TestRequestLogger_HandlerError(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := echo.New()
	e.Use(RequestLogger(zap.NewNop(), m))
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "nope")
	})

	rec := serve(e, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/boom", "418")))
}

func TestWithoutRedisMiddlewaresPassThrough(t *testing.T) {
	e := echo.New()
	rl := config.RateLimitConfig{Enabled: true, Capacity: 1}
	cc := config.CacheConfig{Enabled: true, Methods: map[string]bool{"GET": true}}
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "x") },
		NewTokenBucket(rl, nil, zap.NewNop()), NewRedisCache(cc, nil, zap.NewNop()))

	for i := 0; i < 3; i++ {
		rec := serve(e, http.MethodGet, "/x", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-Cache"))
	}
}

func TestPayloadCodec(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, got, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}

func TestCacheKey_DistinguishesPathAndQuery(t *testing.T) {
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "deckvault:cache", KeyStrategy: "route_query"}
	key := func(target string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
		c.SetPath("/v1/decks/:id")
		return cacheKeyFrom(cfg, c)
	}

	assert.NotEqual(t, key("/v1/decks/1"), key("/v1/decks/2"))
	assert.NotEqual(t, key("/v1/decks/1?a=1"), key("/v1/decks/1?a=2"))
	assert.Equal(t, key("/v1/decks/1"), key("/v1/decks/1"))
	assert.Contains(t, key("/v1/decks/1"), "deckvault:cache:")
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/auth/patreon", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/auth/patreon")

	key := buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_route"}, c)
	assert.Equal(t, "rl:ip:10.0.0.1:route:GET /auth/patreon", key)

	key = buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user"}, c)
	assert.Equal(t, "rl:user:anon", key)
}
