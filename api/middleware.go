package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dcavalli/fidelgate/secure"
)

type contextKey int

const identityKey contextKey = iota

const sessionCookieName = "fidelgate_session"

// csrfHeaderName carries the anti-forgery token on state-changing requests.
const csrfHeaderName = "X-CSRF-Token"

// tokenFromRequest extracts the session token from the session cookie or,
// failing that, from an Authorization Bearer header.
func tokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// AuthMiddleware verifies the request's session token, confirms the subject
// still holds a live session (refreshing its sliding expiry), and stores the
// resolved identity on the request context.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		claims := a.tokens.Verify(token)
		if claims == nil {
			writeError(w, http.StatusUnauthorized, "invalid session token")
			return
		}
		if !a.sessions.IsAuthenticated(r.Context(), claims.ID) {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}
		ident := &secure.Identity{ID: claims.ID, Role: claims.Role}
		ctx := context.WithValue(r.Context(), identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminMiddleware allows only subjects holding a valid admin session. It
// must be mounted inside AuthMiddleware.
func (a *API) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident := identityFromContext(r.Context())
		if ident == nil || !a.sessions.IsAdmin(r.Context(), ident.ID) {
			a.events.LogEvent(r.Context(), a.requestEvent(r, secure.EventSecurityViolation,
				subjectOrEmpty(ident), "admin access denied"))
			writeError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CSRFMiddleware validates the anti-forgery header on state-changing
// requests. A missing or stale token is logged as a CSRF_ATTACK event.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		candidate := r.Header.Get(csrfHeaderName)
		if !a.csrf.Validate(r.Context(), candidate) {
			a.events.LogEvent(r.Context(), a.requestEvent(r, secure.EventCSRFAttack, "",
				fmt.Sprintf("%s %s", r.Method, r.URL.Path)))
			writeError(w, http.StatusForbidden, "invalid or missing CSRF token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) *secure.Identity {
	ident, _ := ctx.Value(identityKey).(*secure.Identity)
	return ident
}

func subjectOrEmpty(ident *secure.Identity) string {
	if ident == nil {
		return ""
	}
	return ident.ID
}

// requestEvent enriches a security event with the caller's address and
// user agent.
func (a *API) requestEvent(r *http.Request, typ secure.EventType, userID, details string) secure.Event {
	event := secure.NewEvent(typ, userID, details)
	event.UserAgent = r.UserAgent()
	event.IPAddress = clientIP(r)
	return event
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
