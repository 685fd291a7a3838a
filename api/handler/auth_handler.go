package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"authgate/api/middleware"
	"authgate/internal/dto"
	"authgate/internal/password"
	"authgate/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type AuthHandler struct {
	Service       *service.AuthService
	Validate      *validator.Validate
	CookieName    string
	CookieDomain  string
	SecureCookies bool
	TokenTTL      time.Duration
}

func NewAuthHandler(svc *service.AuthService, validate *validator.Validate) *AuthHandler {
	return &AuthHandler{
		Service:       svc,
		Validate:      validate,
		CookieName:    "auth_token",
		SecureCookies: true,
		TokenTTL:      7 * 24 * time.Hour,
	}
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.Service.Register(c.Request().Context(), req.Email, req.Password); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{
		"message": "Registration successful. Please verify with OTP sent to email.",
	})
}

func (h *AuthHandler) RegisterVerify(c echo.Context) error {
	var req dto.VerifyRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.Service.VerifyRegistration(c.Request().Context(), req.Email, req.Code); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Verification successful. You can now log in.",
	})
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	token, err := h.Service.Login(c.Request().Context(), req.Email, req.Password, clientIP(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	h.setAuthCookie(c, token.Key)
	return c.JSON(http.StatusOK, map[string]string{"message": "Login successful."})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication credentials were not provided.")
	}
	return c.JSON(http.StatusOK, dto.UserResponseFromEntity(user))
}

// Logout reads the cookie itself rather than requiring authentication: a
// missing or stale token still yields a cleared cookie and a 200.
func (h *AuthHandler) Logout(c echo.Context) error {
	key := h.readAuthCookie(c)
	if err := h.Service.Logout(c.Request().Context(), key, nil, clientIP(c)); err != nil {
		return writeServiceError(c, err)
	}
	h.clearAuthCookie(c)
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out."})
}

func (h *AuthHandler) PasswordResetRequest(c echo.Context) error {
	var req dto.PasswordResetRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.Service.RequestPasswordReset(c.Request().Context(), req.Email); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Password reset OTP sent to your email.",
	})
}

func (h *AuthHandler) PasswordResetConfirm(c echo.Context) error {
	var req dto.PasswordResetConfirmRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, err.Error())
	}
	err := h.Service.ConfirmPasswordReset(c.Request().Context(), req.Email, req.Code, req.NewPassword)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Password has been reset successfully.",
	})
}

func (h *AuthHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}

func (h *AuthHandler) setAuthCookie(c echo.Context, key string) {
	maxAge := int(h.TokenTTL.Seconds())
	c.SetCookie(&http.Cookie{
		Name:     h.CookieName,
		Value:    key,
		Path:     "/",
		Domain:   h.CookieDomain,
		MaxAge:   maxAge,
		Expires:  time.Now().Add(h.TokenTTL),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAuthCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) readAuthCookie(c echo.Context) string {
	cookie, err := c.Cookie(h.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func decodeJSON(c echo.Context, target any) error {
	decoder := json.NewDecoder(c.Request().Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeError(c echo.Context, status int, detail string) error {
	return c.JSON(status, map[string]string{"detail": detail})
}

func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return writeError(c, http.StatusNotFound, "User not found.")
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		return writeError(c, http.StatusBadRequest, "Email is already registered.")
	case errors.Is(err, service.ErrInvalidCredentials):
		return writeError(c, http.StatusBadRequest, "Invalid credentials.")
	case errors.Is(err, service.ErrNotVerified):
		return writeError(c, http.StatusBadRequest, "Account not verified yet.")
	case errors.Is(err, service.ErrInvalidCode):
		return writeError(c, http.StatusBadRequest, "Invalid code.")
	case errors.Is(err, service.ErrCodeExpired):
		return writeError(c, http.StatusBadRequest, "Code expired or already used.")
	case errors.Is(err, service.ErrInvalidInput):
		return writeError(c, http.StatusBadRequest, "Invalid input.")
	case password.IsPolicyViolation(err):
		return writeError(c, http.StatusBadRequest, err.Error())
	default:
		return err
	}
}

func clientIP(c echo.Context) *string {
	ip := c.RealIP()
	if ip == "" {
		return nil
	}
	return &ip
}
