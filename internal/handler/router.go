package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Auth           AuthService
	Metrics        http.Handler
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter builds the echo instance with all routes and middleware.
func NewRouter(cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewAppValidator()
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.RequestID())
	e.Use(RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(cfg.Metrics))
	}

	h := NewAuthHandler(cfg.Auth)
	requireAuth := JWTAuth(cfg.Auth)

	auth := e.Group("/auth")
	if cfg.RateLimitRPS > 0 {
		auth.Use(RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	auth.POST("/signup", h.Signup)
	auth.POST("/login", h.Login)
	auth.POST("/refresh-tokens", h.RefreshTokens)
	auth.POST("/logout", h.Logout)
	auth.POST("/withdraw", h.Withdraw)
	auth.POST("/nickname-check", h.NicknameCheck)
	auth.GET("/me", h.Me, requireAuth)
	auth.PATCH("/me", h.UpdateMe, requireAuth)

	users := e.Group("/users", requireAuth)
	users.POST("/:uuid/reports", h.ReportUser)

	return e
}
