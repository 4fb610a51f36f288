package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mzagorsky/auth-service/internal/service"
	"github.com/mzagorsky/auth-service/pkg/validator"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookies cookieSettings
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookies cookieSettings, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the JSON request body for token refresh. The body value
// is a fallback for clients that do not carry the refresh cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest is the JSON request body for logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// --- Response types ---

// TokenResponse is the JSON shape of an issued token pair. The refresh value
// also travels in the httpOnly cookie; it is included in the body for
// non-browser clients.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse wraps user data with tokens.
type AuthResponse struct {
	User   any           `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

// --- Handlers ---

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, response{Data: user})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		writeValidationError(w, err)
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.setRefreshCookie(w, tokens.RefreshToken.Value)
	writeJSON(w, http.StatusOK, response{
		Data: AuthResponse{
			User: user,
			Tokens: TokenResponse{
				AccessToken:  tokens.AccessToken,
				RefreshToken: tokens.RefreshToken.Value,
			},
		},
	})
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	// The body is optional when the cookie is present.
	var req RefreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	refreshValue := refreshTokenFromRequest(r, req.RefreshToken)

	tokens, err := h.service.Refresh(r.Context(), refreshValue, r.UserAgent())
	if err != nil {
		h.cookies.clearRefreshCookie(w)
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.setRefreshCookie(w, tokens.RefreshToken.Value)
	writeJSON(w, http.StatusOK, response{
		Data: TokenResponse{
			AccessToken:  tokens.AccessToken,
			RefreshToken: tokens.RefreshToken.Value,
		},
	})
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LogoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	refreshValue := refreshTokenFromRequest(r, req.RefreshToken)

	if err := h.service.Logout(r.Context(), refreshValue); err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	h.cookies.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, response{
		Data: map[string]string{"status": "logged out"},
	})
}
