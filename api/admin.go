package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dcavalli/fidelgate/secure"
	"github.com/dcavalli/fidelgate/store"
)

const (
	adminCollection = "admin_credentials"
	adminRecordKey  = "admin"

	// suspiciousFailureThreshold flags a subject once its recent login
	// failures reach this count inside suspiciousWindow.
	suspiciousFailureThreshold = 3
	suspiciousWindow           = 15 * time.Minute
)

// adminCredentials is the persisted (encrypted at rest) back-office account.
type adminCredentials struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

func (c adminCredentials) matches(hasher *secure.Hasher, email, password string) bool {
	return strings.EqualFold(c.Email, strings.TrimSpace(email)) &&
		hasher.Verify(password, c.PasswordHash)
}

func (a *API) loadAdminCredentials(ctx context.Context) (adminCredentials, error) {
	data, err := a.store.Get(ctx, adminCollection, adminRecordKey)
	if err != nil {
		return adminCredentials{}, err
	}
	plain := a.cipher.DecryptBound(string(data), adminCollection+"/"+adminRecordKey)
	if plain == "" {
		return adminCredentials{}, fmt.Errorf("decrypting admin credentials failed")
	}
	var creds adminCredentials
	if err := json.Unmarshal([]byte(plain), &creds); err != nil {
		return adminCredentials{}, err
	}
	return creds, nil
}

func (a *API) saveAdminCredentials(ctx context.Context, creds adminCredentials) error {
	encoded, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	sealed := a.cipher.EncryptBound(string(encoded), adminCollection+"/"+adminRecordKey)
	if sealed == "" {
		return fmt.Errorf("encrypting admin credentials failed")
	}
	return a.store.Set(ctx, adminCollection, adminRecordKey, []byte(sealed))
}

// SeedAdmin creates the back-office account on first run. An existing
// record is left untouched.
func (a *API) SeedAdmin(ctx context.Context, email, password string) error {
	if _, err := a.loadAdminCredentials(ctx); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	creds := adminCredentials{
		ID:           "admin",
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: a.hasher.Hash(password),
	}
	return a.saveAdminCredentials(ctx, creds)
}

// UpdateAdminPassword re-hashes and persists a new admin password. It is
// also the update hook handed to the recovery service.
func (a *API) UpdateAdminPassword(ctx context.Context, identity, digest string) error {
	creds, err := a.loadAdminCredentials(ctx)
	if err != nil {
		return err
	}
	creds.PasswordHash = digest
	return a.saveAdminCredentials(ctx, creds)
}

// UpdateAdminCredentials handles PUT /admin/credentials. The caller must
// present the current password even inside an authenticated session.
func (a *API) UpdateAdminCredentials(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[UpdateAdminCredentialsRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	ctx := r.Context()
	ident := identityFromContext(ctx)

	creds, err := a.loadAdminCredentials(ctx)
	if err != nil {
		mapError(w, err)
		return
	}
	if !a.hasher.Verify(req.CurrentPassword, creds.PasswordHash) {
		a.events.LogEvent(ctx, a.requestEvent(r, secure.EventSecurityViolation,
			subjectOrEmpty(ident), "credential update with wrong current password"))
		writeError(w, http.StatusForbidden, "current password does not match")
		return
	}
	if req.NewEmail == "" && req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	if req.NewEmail != "" {
		creds.Email = strings.ToLower(strings.TrimSpace(req.NewEmail))
	}
	if req.NewPassword != "" {
		creds.PasswordHash = a.hasher.Hash(req.NewPassword)
	}
	if err := a.saveAdminCredentials(ctx, creds); err != nil {
		mapError(w, err)
		return
	}
	if req.NewPassword != "" {
		a.events.LogEvent(ctx, a.requestEvent(r, secure.EventPasswordChanged, creds.ID, ""))
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents handles GET /admin/events. The optional limit query parameter
// caps the result; events come back newest first.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	if a.eventLog == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not enabled")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	events, err := a.eventLog.Recent(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	out := make([]EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, EventResponse{
			ID:        e.ID,
			Type:      string(e.Type),
			Timestamp: e.Timestamp,
			UserID:    e.UserID,
			Details:   e.Details,
		})
	}
	writeJSON(w, http.StatusOK, ListEventsResponse{Events: out})
}

// SuspiciousActivity handles GET /admin/suspicious/{userID}: a quick
// read over the recent failure history for one subject.
func (a *API) SuspiciousActivity(w http.ResponseWriter, r *http.Request) {
	if a.eventLog == nil {
		writeError(w, http.StatusServiceUnavailable, "event history is not enabled")
		return
	}
	userID := chi.URLParam(r, "userID")
	failures := a.eventLog.CountRecent(r.Context(), secure.EventLoginFailure, userID, suspiciousWindow)
	writeJSON(w, http.StatusOK, SuspiciousActivityResponse{
		UserID:         userID,
		RecentFailures: failures,
		Suspicious:     failures >= suspiciousFailureThreshold,
	})
}
