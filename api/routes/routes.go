package routes

import (
	"authgate/api/handler"
	"authgate/api/middleware"

	"github.com/labstack/echo/v4"
)

type Router struct {
	Echo       *echo.Echo
	Auth       *handler.AuthHandler
	CookieAuth middleware.CookieAuth
}

func NewRouter(e *echo.Echo, authHandler *handler.AuthHandler, cookieAuth middleware.CookieAuth) *Router {
	return &Router{
		Echo:       e,
		Auth:       authHandler,
		CookieAuth: cookieAuth,
	}
}

func (r *Router) RegisterRoutes() {
	e := r.Echo

	e.POST("/auth/register/", r.Auth.Register)
	e.POST("/auth/register/verify/", r.Auth.RegisterVerify)
	e.POST("/auth/login/", r.Auth.Login)
	e.GET("/auth/me/", r.Auth.Me, r.CookieAuth.RequireAuth)
	e.POST("/auth/logout/", r.Auth.Logout)
	e.POST("/auth/password-reset/", r.Auth.PasswordResetRequest)
	e.POST("/auth/password-reset/confirm/", r.Auth.PasswordResetConfirm)
}
