package handler

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"fintrack/internal/auth"
	apperrors "fintrack/internal/errors"
	"fintrack/internal/model"
	"fintrack/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
	cookies     auth.CookieConfig
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService, cookies auth.CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies}
}

// SignupRequest represents a user registration request.
type SignupRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=4,max=72"`
}

// LoginRequest represents a user login request.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest optionally carries the refresh token when the cookie is unavailable.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginResponse is returned by login and refresh. Tokens travel in cookies only.
type LoginResponse struct {
	Message   string       `json:"message"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// MessageResponse carries a human readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// CheckResponse wraps the authenticated identity.
type CheckResponse struct {
	User UserResponse `json:"user"`
}

func newUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

// Signup godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SignupRequest true "Registration data"
// @Success 200 {object} UserResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req SignupRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := h.authService.Signup(c.Request().Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return respondError(err)
	}

	return c.JSON(http.StatusOK, newUserResponse(user))
}

// Login godoc
// @Summary Login user
// @Description Sets the access_token and refresh_token cookies.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.authService.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return respondError(err)
	}

	h.cookies.SetAuthCookies(c, session.AccessToken, session.AccessExpiresAt, session.RefreshToken, session.RefreshExpiresAt)
	return c.JSON(http.StatusOK, LoginResponse{
		Message:   "Login successful",
		TokenType: "bearer",
		ExpiresAt: session.AccessExpiresAt,
		User:      newUserResponse(session.User),
	})
}

// Logout godoc
// @Summary Logout user
// @Description Revokes the presented tokens and clears the auth cookies.
// @Tags auth
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	access := auth.PresentedAccessToken(c)
	refresh := auth.PresentedRefreshToken(c)

	if err := h.authService.Logout(c.Request().Context(), access, refresh); err != nil {
		return respondError(err)
	}

	h.cookies.ClearAuthCookies(c)
	return c.JSON(http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Refresh godoc
// @Summary Rotate the token pair
// @Description Reads the refresh_token cookie (or body) and issues fresh cookies.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest false "Refresh token when cookies are unavailable"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	token := auth.PresentedRefreshToken(c)
	if token == "" {
		var req RefreshRequest
		if err := c.Bind(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		return respondError(apperrors.ErrNotAuthenticated)
	}

	session, err := h.authService.Refresh(c.Request().Context(), token)
	if err != nil {
		return respondError(err)
	}

	h.cookies.SetAuthCookies(c, session.AccessToken, session.AccessExpiresAt, session.RefreshToken, session.RefreshExpiresAt)
	return c.JSON(http.StatusOK, LoginResponse{
		Message:   "Token refreshed",
		TokenType: "bearer",
		ExpiresAt: session.AccessExpiresAt,
		User:      newUserResponse(session.User),
	})
}

// Check godoc
// @Summary Current session identity
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} CheckResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /auth/check [get]
func (h *AuthHandler) Check(c echo.Context) error {
	user, ok := auth.CurrentUser(c)
	if !ok {
		return respondError(apperrors.ErrNotAuthenticated)
	}
	return c.JSON(http.StatusOK, CheckResponse{User: newUserResponse(user)})
}
