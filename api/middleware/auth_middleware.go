package middleware

import (
	"net/http"
	"time"

	"authgate/internal/repository"

	"github.com/labstack/echo/v4"
)

// CookieAuth resolves the opaque session token carried in an HTTP-only
// cookie. A missing cookie is anonymous, not an error; routes that need an
// identity reject it with 401.
type CookieAuth struct {
	Tokens     repository.AuthTokenRepository
	CookieName string
	Now        func() time.Time
}

func (m CookieAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := m.readCookie(c)
		if key == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
		}
		token, err := m.Tokens.FindByKey(c.Request().Context(), key)
		if err != nil {
			return err
		}
		if token == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid auth token.")
		}
		if !token.Valid(m.now()) {
			return echo.NewHTTPError(http.StatusUnauthorized, "Auth token expired.")
		}
		if !token.User.IsActive {
			return echo.NewHTTPError(http.StatusUnauthorized, "User inactive.")
		}
		user := token.User
		SetAuthContext(c, &user, token.Key)
		return next(c)
	}
}

func (m CookieAuth) readCookie(c echo.Context) string {
	cookie, err := c.Cookie(m.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m CookieAuth) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}
