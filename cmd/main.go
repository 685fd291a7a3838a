package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"authgate/api/handler"
	apiMiddleware "authgate/api/middleware"
	"authgate/api/routes"
	"authgate/config"
	"authgate/internal/password"
	"authgate/internal/repository"
	"authgate/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	validate := validator.New()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	db := config.ConnectDB(cfg.DatabaseURL)
	if err := config.Migrate(db); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	repos := repository.NewManager(db)

	var emailSender service.EmailSender
	if cfg.ResendAPIKey != "" && cfg.EmailFrom != "" {
		emailSender = service.NewResendEmailSender(cfg.ResendAPIKey, cfg.EmailFrom)
	} else {
		logger.Warn("RESEND_API_KEY not set, otp codes will be logged instead of emailed")
		emailSender = service.LogEmailSender{Logger: logger}
	}

	credentials := service.NewCredentialManager(
		service.BcryptPasswordHasher{},
		password.NewDefaultPolicy(),
	)

	authService := service.NewAuthService(
		repos,
		credentials,
		emailSender,
		service.RealClock{},
		logger,
		service.AuthConfig{
			TokenTTL: cfg.TokenTTL,
			CodeTTL:  cfg.CodeTTL,
		},
	)

	authHandler := handler.NewAuthHandler(authService, validate)
	authHandler.CookieName = cfg.CookieName
	authHandler.CookieDomain = cfg.CookieDomain
	authHandler.SecureCookies = !cfg.Debug
	authHandler.TokenTTL = cfg.TokenTTL

	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	app.Use(echoMiddleware.Recover())
	app.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogStatus:   true,
		LogMethod:   true,
		LogURI:      true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			entry := logger.WithFields(logrus.Fields{
				"status": v.Status,
				"method": v.Method,
				"uri":    v.URI,
				"ip":     v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Error("request")
				return nil
			}
			entry.Info("request")
			return nil
		},
	}))

	cookieAuth := apiMiddleware.CookieAuth{
		Tokens:     repos.Tokens(),
		CookieName: cfg.CookieName,
	}
	router := routes.NewRouter(app, authHandler, cookieAuth)
	router.RegisterRoutes()

	// Expiry is always enforced logically; this just keeps dead rows from
	// piling up.
	go purgeExpired(repos, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.WithField("addr", cfg.HTTPAddr).Info("server started")
	if err := app.StartServer(server); err != nil {
		logger.WithError(err).Fatal("server stopped")
	}
}

func purgeExpired(repos repository.Manager, logger logrus.FieldLogger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		now := time.Now()
		if err := repos.Tokens().DeleteExpired(ctx, now); err != nil {
			logger.WithError(err).Warn("failed to purge expired tokens")
		}
		if err := repos.Codes().DeleteExpired(ctx, now); err != nil {
			logger.WithError(err).Warn("failed to purge expired codes")
		}
		cancel()
	}
}
