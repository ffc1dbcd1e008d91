package router

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"golang.org/x/time/rate"

	"fintrack/internal/auth"
	"fintrack/internal/config"
	apperrors "fintrack/internal/errors"
	"fintrack/internal/handler"
	"fintrack/internal/obs"
)

// Handlers groups the HTTP handlers mounted by Register.
type Handlers struct {
	Auth        *handler.AuthHandler
	Transaction *handler.TransactionHandler
	Exchange    *handler.ExchangeHandler
}

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	logger *slog.Logger,
	metrics *obs.Metrics,
	authenticator *auth.Authenticator,
	h Handlers,
) {
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: obs.NewRequestID,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			ctx := obs.WithRequestID(req.Context(), id)
			ctx = obs.NewContext(ctx, obs.WithContext(ctx, logger))
			c.SetRequest(req.WithContext(ctx))
		},
	}))
	e.Use(accessLog(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	if metrics != nil {
		e.Use(metrics.Middleware())
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	requireSession := authenticator.Middleware()

	authGroup := e.Group("/auth")
	authGroup.POST("/signup", h.Auth.Signup)
	authGroup.POST("/login", h.Auth.Login, loginLimiter(cfg.LoginRateLimit)...)
	authGroup.POST("/logout", h.Auth.Logout)
	authGroup.POST("/refresh", h.Auth.Refresh)
	authGroup.GET("/check", h.Auth.Check, requireSession)

	// Public: mounted on e rather than the guarded group, and the static path wins over /:id.
	e.GET("/transactions/exchange-rate", h.Exchange.Rate)

	tx := e.Group("/transactions", requireSession)
	for _, path := range []string{"", "/"} {
		tx.POST(path, h.Transaction.Create)
		tx.GET(path, h.Transaction.List)
	}
	tx.GET("/summary", h.Transaction.Summary)
	tx.GET("/export", h.Transaction.Export)
	tx.GET("/:id", h.Transaction.Get)
	tx.PUT("/:id", h.Transaction.Update)
	tx.DELETE("/:id", h.Transaction.Delete)
}

// loginLimiter throttles login attempts per client IP. A non-positive limit disables it.
func loginLimiter(perSecond float64) []echo.MiddlewareFunc {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(perSecond),
		Burst:     burst,
		ExpiresIn: 3 * time.Minute,
	})
	return []echo.MiddlewareFunc{middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return echo.NewHTTPError(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error: "too many login attempts",
				Code:  "RATE_LIMITED",
			})
		},
	})}
}

func accessLog(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
			}
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			obs.WithContext(c.Request().Context(), logger).LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
}

// errorHandler renders every error as an ErrorResponse body.
func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status = http.StatusInternalServerError
			body   = apperrors.ErrorResponse{Error: "internal server error", Code: "INTERNAL_ERROR"}
			cause  = err
		)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if he.Internal != nil {
				cause = he.Internal
			}
			switch msg := he.Message.(type) {
			case apperrors.ErrorResponse:
				body = msg
			case string:
				body = apperrors.ErrorResponse{Error: msg, Code: statusCode(status)}
			default:
				body = apperrors.ErrorResponse{Error: http.StatusText(status), Code: statusCode(status)}
			}
		} else {
			httpErr := apperrors.MapErrorToHTTP(err)
			status = httpErr.StatusCode
			body = httpErr.ToErrorResponse()
		}

		if status >= http.StatusInternalServerError {
			obs.WithContext(c.Request().Context(), logger).Error("request failed",
				slog.String("path", c.Request().URL.Path),
				slog.Any("error", cause),
			)
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			logger.Error("write error response", slog.Any("error", werr))
		}
	}
}

func statusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "NOT_AUTHENTICATED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
