package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookie names shared with the web client.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Carrier writes the token pair as cookies. Both cookies are http-only and
// SameSite=Strict; Secure is set everywhere except local development.
type Carrier struct {
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func NewCarrier(localDev bool, accessTTL, refreshTTL time.Duration) Carrier {
	return Carrier{Secure: !localDev, AccessTTL: accessTTL, RefreshTTL: refreshTTL}
}

// Attach sets both session cookies on w.
func (c Carrier) Attach(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(AccessCookie, accessToken, int(c.AccessTTL.Seconds())))
	http.SetCookie(w, c.cookie(RefreshCookie, refreshToken, int(c.RefreshTTL.Seconds())))
}

// Clear expires both session cookies, using the same attributes Attach uses
// so browsers match and drop them.
func (c Carrier) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		ck := c.cookie(name, "", -1)
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c Carrier) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExtractAccess reads the access token from its cookie, falling back to an
// "Authorization: Bearer <token>" header.
func ExtractAccess(r *http.Request) (string, bool) {
	if ck, err := r.Cookie(AccessCookie); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

// ExtractRefresh reads the refresh token cookie.
func ExtractRefresh(r *http.Request) (string, bool) {
	if ck, err := r.Cookie(RefreshCookie); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	return "", false
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
