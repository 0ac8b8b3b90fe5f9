package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/deckvault/internal/model"
)

// Context keys set by JWTAuth and OptionalJWT.
const (
	ctxAccountID = "account_id"
	ctxRole      = "role"
	ctxTier      = "tier"
	ctxRequestID = "request_id"
)

// AccountID returns the authenticated account id, or "" for anonymous
// requests.
func AccountID(c echo.Context) string {
	s, _ := c.Get(ctxAccountID).(string)
	return s
}

// Role returns the caller's role claim.
func Role(c echo.Context) string {
	s, _ := c.Get(ctxRole).(string)
	return s
}

// Tier returns the caller's tier claim.  Anonymous callers are Citizens.
func Tier(c echo.Context) model.Tier {
	if t, ok := c.Get(ctxTier).(model.Tier); ok {
		return t
	}
	return model.TierCitizen
}

// RequestID returns the id assigned by RequestLogger.
func RequestID(c echo.Context) string {
	s, _ := c.Get(ctxRequestID).(string)
	return s
}

func keyIdentity(c echo.Context) string {
	if id := AccountID(c); id != "" {
		return id
	}
	return "anon"
}
