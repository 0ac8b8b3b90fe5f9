package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/deckvault/internal/handler"
	"github.com/iliyamo/deckvault/internal/middleware"
	"github.com/iliyamo/deckvault/internal/model"
)

// RegisterRoutes registers unauthenticated operational endpoints: the
// health check and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc, metrics http.Handler) {
	e.GET("/healthz", health)
	e.GET("/metrics", echo.WrapHandler(metrics))
}

// RegisterPatreon registers the Patreon sign-in entry point and callback.
// Both sit behind the token bucket.
func RegisterPatreon(e *echo.Echo, p *handler.PatreonAuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/auth/patreon", limiter)
	g.GET("", p.Start)
	g.POST("", p.Start)
	g.GET("/callback", p.Callback)
}

// RegisterSession registers refresh, logout and the current-user endpoint.
// Logout accepts either a refresh token in the body or a bearer token, so
// it only uses optional authentication.
func RegisterSession(e *echo.Echo, s *handler.SessionHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/refresh", s.Refresh)
	g.POST("/logout", s.Logout, middleware.OptionalJWT(jwtSecret))

	e.GET("/v1/me", s.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterDecks registers the public catalog.  The cache runs after
// OptionalJWT so it can tell anonymous requests apart.
func RegisterDecks(e *echo.Echo, d *handler.DeckHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/decks", middleware.OptionalJWT(jwtSecret), cache)
	g.GET("", d.List)
	g.GET("/:id", d.Get)
}

// RegisterAdmin registers role-gated administration.  Deck curation is open
// to every staff role; profile administration is not open to moderators.
func RegisterAdmin(e *echo.Echo, d *handler.DeckHandler, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret))

	decks := g.Group("/decks", middleware.RequireRole(model.RoleAdmin, model.RoleModerator, model.RoleDeveloper))
	decks.POST("", d.Create)
	decks.POST("/import", d.Import)
	decks.PUT("/:id", d.Update)
	decks.DELETE("/:id", d.Delete)

	profiles := g.Group("/profiles", middleware.RequireRole(model.RoleAdmin, model.RoleDeveloper))
	profiles.GET("", a.ListProfiles)
	profiles.PUT("/:id/role", a.SetRole)
}
