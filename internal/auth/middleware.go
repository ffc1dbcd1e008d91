package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	apperrors "fintrack/internal/errors"
	"fintrack/internal/model"
	"fintrack/internal/obs"
)

// ContextKeyUser is the echo context key holding the authenticated *model.User.
const ContextKeyUser = "user"

// Middleware guards routes with the session checks. The access token is read
// from the access cookie first and the Authorization header second. Every
// rejection yields the same 401 body; the specific reason is only logged.
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  ContextKeyUser,
		TokenLookup: "cookie:" + AccessCookieName + ",header:" + echo.HeaderAuthorization,
		ParseTokenFunc: func(c echo.Context, auth string) (interface{}, error) {
			return a.Authenticate(c.Request().Context(), auth)
		},
		SuccessHandler: func(c echo.Context) {
			if user, ok := CurrentUser(c); ok {
				req := c.Request()
				c.SetRequest(req.WithContext(obs.WithUserID(req.Context(), user.ID.String())))
			}
		},
		ErrorHandler: a.handleError,
	})
}

func (a *Authenticator) handleError(c echo.Context, err error) error {
	reason := RejectionReason(err)
	a.onReject(reason)
	cause := fmt.Errorf("%s: %w", reason, err)

	log := obs.WithContext(c.Request().Context(), a.logger).With(
		slog.String("reason", reason),
		slog.String("path", c.Request().URL.Path),
	)

	if errors.Is(err, errUserLookup) {
		log.Error("authentication aborted", slog.Any("error", err))
		httpErr := apperrors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse()).SetInternal(cause)
	}
	if errors.Is(err, ErrRevocationUnavailable) {
		log.Error("request rejected", slog.Any("error", err))
	} else {
		log.Warn("request rejected")
	}

	httpErr := apperrors.MapErrorToHTTP(apperrors.ErrNotAuthenticated)
	return echo.NewHTTPError(http.StatusUnauthorized, httpErr.ToErrorResponse()).SetInternal(cause)
}

// CurrentUser returns the user attached by Middleware.
func CurrentUser(c echo.Context) (*model.User, bool) {
	user, ok := c.Get(ContextKeyUser).(*model.User)
	return user, ok && user != nil
}
