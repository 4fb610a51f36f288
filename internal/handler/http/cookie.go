package http

import (
	"net/http"
	"time"
)

// refreshCookieName is the cookie carrying the opaque refresh token value.
const refreshCookieName = "refreshToken"

// cookieSettings controls how session cookies are written. Secure is off in
// development so the flow works over plain http://localhost.
type cookieSettings struct {
	secure     bool
	refreshTTL time.Duration
}

func newCookieSettings(environment string, refreshTTL time.Duration) cookieSettings {
	return cookieSettings{
		secure:     environment != "development",
		refreshTTL: refreshTTL,
	}
}

// setRefreshCookie attaches the refresh token as an httpOnly cookie scoped to
// the auth endpoints, so browser scripts never see the value.
func (c cookieSettings) setRefreshCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/v1/auth",
		MaxAge:   int(c.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearRefreshCookie expires the refresh cookie.
func (c cookieSettings) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/v1/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshTokenFromRequest extracts the refresh token from the cookie, falling
// back to the request body value for non-browser clients.
func refreshTokenFromRequest(r *http.Request, bodyValue string) string {
	if cookie, err := r.Cookie(refreshCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bodyValue
}
