package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcavalli/fidelgate/secure"
)

// Per-window request ceilings for the shared login slots. These gate raw
// request volume; the lockout state machine separately tracks failed
// credential attempts.
const (
	customerLoginRateLimit = 10
	adminLoginRateLimit    = 5
)

// CustomerLogin handles POST /auth/login/customer. Customers authenticate
// with their registered phone number alone; the kiosk flow has no password.
func (a *API) CustomerLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CustomerLoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	ctx := r.Context()

	if !a.limiter.Allow(ctx, "login:customer", customerLoginRateLimit, secure.DefaultRateWindow) {
		a.events.LogEvent(ctx, a.requestEvent(r, secure.EventRateLimited, "", "customer login"))
		writeRetryAfter(w, int(secure.DefaultRateWindow.Seconds()), "too many login attempts")
		return
	}
	if status := a.lockout.CheckLocked(ctx, secure.IdentityGeneric); status.Locked {
		writeLocked(w, status.RemainingSeconds)
		return
	}

	rec, found, err := a.customerByPhone(ctx, req.Phone)
	if err != nil {
		// A store failure must not look like a bad credential.
		a.logger.Error("customer lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login temporarily unavailable")
		return
	}
	if !found || !rec.Active {
		status := a.lockout.RecordFailure(ctx, secure.IdentityGeneric)
		if status.Locked {
			writeLocked(w, status.RemainingSeconds)
			return
		}
		writeError(w, http.StatusUnauthorized,
			fmt.Sprintf("unknown phone number (%d attempts remaining)", status.RemainingAttempts))
		return
	}

	a.lockout.RecordSuccess(ctx, secure.IdentityGeneric)
	token, err := a.sessions.AuthenticateCustomer(ctx, rec.ID)
	if err != nil {
		a.logger.Error("issuing customer session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeSessionCookie(w, r, token, time.Now().Add(a.sessions.TTL()))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ID: rec.ID, Role: string(secure.RoleCustomer)})
}

// AdminLogin handles POST /auth/login/admin.
func (a *API) AdminLogin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[AdminLoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	ctx := r.Context()

	if !a.limiter.Allow(ctx, "login:admin", adminLoginRateLimit, secure.DefaultRateWindow) {
		a.events.LogEvent(ctx, a.requestEvent(r, secure.EventRateLimited, "", "admin login"))
		writeRetryAfter(w, int(secure.DefaultRateWindow.Seconds()), "too many login attempts")
		return
	}
	if status := a.lockout.CheckLocked(ctx, secure.IdentityAdmin); status.Locked {
		writeLocked(w, status.RemainingSeconds)
		return
	}

	creds, err := a.loadAdminCredentials(ctx)
	if err != nil {
		a.logger.Error("loading admin credentials failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login temporarily unavailable")
		return
	}
	if !creds.matches(a.hasher, req.Email, req.Password) {
		status := a.lockout.RecordFailure(ctx, secure.IdentityAdmin)
		if status.Locked {
			writeLocked(w, status.RemainingSeconds)
			return
		}
		writeError(w, http.StatusUnauthorized,
			fmt.Sprintf("invalid credentials (%d attempts remaining)", status.RemainingAttempts))
		return
	}

	a.lockout.RecordSuccess(ctx, secure.IdentityAdmin)
	token, err := a.sessions.AuthenticateAdmin(ctx, creds.ID)
	if err != nil {
		a.logger.Error("issuing admin session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeSessionCookie(w, r, token, time.Now().Add(a.sessions.TTL()))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, ID: creds.ID, Role: string(secure.RoleAdmin)})
}

// Logout handles POST /auth/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	if ident != nil {
		a.sessions.Logout(r.Context(), ident.ID)
	}
	clearSessionCookie(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// SessionStatus handles GET /auth/session.
func (a *API) SessionStatus(w http.ResponseWriter, r *http.Request) {
	ident := identityFromContext(r.Context())
	if ident == nil {
		writeJSON(w, http.StatusOK, SessionResponse{})
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		ID:            ident.ID,
		Role:          string(ident.Role),
	})
}

// IssueCSRFToken handles GET /auth/csrf. Issuing a token invalidates any
// previously issued one.
func (a *API) IssueCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := a.csrf.IssueToken(r.Context())
	if err != nil {
		a.logger.Error("issuing CSRF token failed", "err", err)
		writeError(w, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, CSRFTokenResponse{Token: token})
}

// LockoutStatus handles GET /auth/lockout/{identity}, the countdown feed
// for the login screens.
func (a *API) LockoutStatus(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	status := a.lockout.CheckLocked(r.Context(), identity)
	writeJSON(w, http.StatusOK, LockoutStatusResponse{
		Identity:          identity,
		Locked:            status.Locked,
		RemainingSeconds:  status.RemainingSeconds,
		RemainingAttempts: status.RemainingAttempts,
	})
}

func writeLocked(w http.ResponseWriter, remainingSeconds int) {
	if remainingSeconds > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", remainingSeconds))
	}
	writeError(w, http.StatusLocked,
		fmt.Sprintf("account temporarily blocked, retry in %d seconds", remainingSeconds))
}
