package http

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mzagorsky/auth-service/internal/provider"
	"github.com/mzagorsky/auth-service/internal/service"
)

// stateCookieName holds the anti-CSRF state between the redirect to the
// provider and the callback.
const stateCookieName = "oauthState"

// stateCookieMaxAge bounds how long a pending provider login stays valid.
const stateCookieMaxAge = 600

// OAuthHandler handles the external provider login flow.
type OAuthHandler struct {
	service  *service.AuthService
	registry *provider.Registry
	cookies  cookieSettings
	logger   *slog.Logger
}

// NewOAuthHandler creates a new OAuth HTTP handler.
func NewOAuthHandler(svc *service.AuthService, registry *provider.Registry, cookies cookieSettings, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{service: svc, registry: registry, cookies: cookies, logger: logger}
}

// Login handles GET /api/v1/auth/{provider}/login by redirecting the browser
// to the provider's consent page.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, response{
			Error: &errorResponse{Code: "NOT_FOUND", Message: err.Error()},
		})
		return
	}

	state, err := newStateValue()
	if err != nil {
		writeAppError(w, r, err, h.logger)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/v1/auth",
		MaxAge:   stateCookieMaxAge,
		HttpOnly: true,
		Secure:   h.cookies.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/v1/auth/{provider}/callback: it validates the
// state, exchanges the code for an identity and signs the user in.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, response{
			Error: &errorResponse{Code: "NOT_FOUND", Message: err.Error()},
		})
		return
	}

	state := r.URL.Query().Get("state")
	cookie, cookieErr := r.Cookie(stateCookieName)
	if state == "" || cookieErr != nil || cookie.Value != state {
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "oauth state mismatch"},
		})
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/api/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.secure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, response{
			Error: &errorResponse{Code: "INVALID_INPUT", Message: "authorization code is required"},
		})
		return
	}

	identity, err := p.Exchange(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "provider code exchange failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusUnauthorized, response{
			Error: &errorResponse{Code: "UNAUTHORIZED", Message: "provider login failed"},
		})
		return
	}

	user, tokens, err := h.service.ProviderLogin(r.Context(), identity, r.UserAgent())
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

func newStateValue() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
