// Package api wires the REST API: routes, middleware and error rendering.
package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"botify/internal/api/handler"
	"botify/internal/api/middleware"
)

const uploadBodyLimit = "50M"

// Deps are the services and settings the router needs.
type Deps struct {
	Auth      handler.AuthService
	Ledger    handler.LedgerService
	Catalog   handler.CatalogService
	Dedup     handler.Deduper
	Checks    map[string]handler.Check
	JWTSecret string
	Logger    zerolog.Logger
	// Registerer receives the HTTP request metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Logger)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(d.Logger))
	if d.Registerer != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Namespace:  "botify",
			Subsystem:  "http",
			Registerer: d.Registerer,
		}))
	}

	authHandler := handler.NewAuthHandler(d.Auth)
	accountHandler := handler.NewAccountHandler(d.Ledger)
	botHandler := handler.NewBotHandler(d.Ledger, d.Catalog, d.Dedup)
	adminHandler := handler.NewAdminHandler(d.Ledger, d.Catalog)
	healthHandler := handler.NewHealthHandler(d.Checks)

	// --- Public routes ---
	e.POST("/auth/register", authHandler.Register)
	e.POST("/auth/login", authHandler.Login)
	e.GET("/health", healthHandler.Liveness)
	e.GET("/health/ready", healthHandler.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())

	api := e.Group("/api")
	api.GET("/bots", botHandler.List)
	api.GET("/bots/:id", botHandler.Get)

	// --- Authenticated routes ---
	authed := api.Group("", middleware.Auth(d.JWTSecret))
	authed.GET("/me", accountHandler.Me)
	authed.GET("/me/dashboard", accountHandler.Dashboard)
	authed.GET("/me/transactions", accountHandler.Transactions)
	authed.POST("/bots", botHandler.Publish)
	authed.POST("/bots/upload", botHandler.Upload, echomiddleware.BodyLimit(uploadBodyLimit))
	authed.POST("/bots/:id/purchase", botHandler.Purchase)
	authed.DELETE("/bots/:id", botHandler.Delete)
	authed.GET("/bots/:id/entitlement", botHandler.Entitlement)
	authed.POST("/bots/:id/download", botHandler.Download)
	authed.POST("/bots/:id/rate", botHandler.Rate)

	// --- Admin routes ---
	admin := authed.Group("/admin", middleware.RequireAdmin())
	admin.POST("/grant", adminHandler.Grant)
	admin.POST("/official-bots", adminHandler.AddOfficialBot)
	admin.POST("/official-bots/upload", adminHandler.UploadOfficial, echomiddleware.BodyLimit(uploadBodyLimit))

	return e
}

// requestLogger logs every request through zerolog.
func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Msg("HTTP request")
			return nil
		},
	})
}
