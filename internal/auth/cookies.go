package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	// AccessCookieName carries "Bearer <access token>".
	AccessCookieName = "access_token"
	// RefreshCookieName carries the raw refresh token.
	RefreshCookieName = "refresh_token"

	refreshCookiePath = "/auth"
)

// CookieConfig holds the attributes applied to auth cookies.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// SetAuthCookies writes both auth cookies. Lifetimes follow the token expiries.
func (cc CookieConfig) SetAuthCookies(c echo.Context, access string, accessExp time.Time, refresh string, refreshExp time.Time) {
	c.SetCookie(cc.cookie(AccessCookieName, "Bearer "+access, "/", accessExp))
	c.SetCookie(cc.cookie(RefreshCookieName, refresh, refreshCookiePath, refreshExp))
}

// ClearAuthCookies expires both auth cookies.
func (cc CookieConfig) ClearAuthCookies(c echo.Context) {
	for _, ck := range []*http.Cookie{
		cc.cookie(AccessCookieName, "", "/", time.Time{}),
		cc.cookie(RefreshCookieName, "", refreshCookiePath, time.Time{}),
	} {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		c.SetCookie(ck)
	}
}

func (cc CookieConfig) cookie(name, value, path string, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   cc.Domain,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: cc.SameSite,
	}
	if !expires.IsZero() {
		ck.Expires = expires
		if maxAge := int(time.Until(expires).Seconds()); maxAge > 0 {
			ck.MaxAge = maxAge
		}
	}
	return ck
}

// PresentedAccessToken returns the access token from the cookie or, failing
// that, the Authorization header. The result is normalized.
func PresentedAccessToken(c echo.Context) string {
	if ck, err := c.Cookie(AccessCookieName); err == nil {
		if token := NormalizeToken(ck.Value); token != "" {
			return token
		}
	}
	return NormalizeToken(c.Request().Header.Get(echo.HeaderAuthorization))
}

// PresentedRefreshToken returns the normalized refresh token from its cookie.
func PresentedRefreshToken(c echo.Context) string {
	if ck, err := c.Cookie(RefreshCookieName); err == nil {
		return NormalizeToken(ck.Value)
	}
	return ""
}
