package middleware

import (
	"authgate/internal/entity"

	"github.com/labstack/echo/v4"
)

const (
	contextUserKey     = "auth_user"
	contextTokenKeyKey = "auth_token_key"
)

func SetAuthContext(c echo.Context, user *entity.User, tokenKey string) {
	c.Set(contextUserKey, user)
	c.Set(contextTokenKeyKey, tokenKey)
}

func UserFromContext(c echo.Context) (*entity.User, bool) {
	user, ok := c.Get(contextUserKey).(*entity.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

func TokenKeyFromContext(c echo.Context) (string, bool) {
	key, ok := c.Get(contextTokenKeyKey).(string)
	return key, ok
}
