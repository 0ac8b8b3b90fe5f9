package handler

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/deckvault/internal/model"
	"github.com/iliyamo/deckvault/internal/utils"
)

const testSecret = "handler-secret"

func bearerFor(t *testing.T, accountID, role string, tier model.Tier) string {
	t.Helper()
	at, err := utils.NewAccessToken(testSecret, accountID, role, tier, 5)
	require.NoError(t, err)
	return at.Token
}

// do sends a request through e.  A non-empty body is sent as JSON.
func do(e *echo.Echo, method, target, body, bearer string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func location(rec *httptest.ResponseRecorder) string {
	return rec.Header().Get(echo.HeaderLocation)
}

