package secure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcavalli/fidelgate/store"
)

const sessionCollection = "sessions"

// SessionRecord is the persisted session state for one subject. ExpiresAt is
// epoch milliseconds and slides forward on every successful authentication
// check.
type SessionRecord struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Identity is the resolved subject of a verified session.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// SessionAuthority composes the token service and the persisted session
// record to answer "is this subject authenticated" and "what is the current
// identity", and performs logout.
type SessionAuthority struct {
	tokens *TokenService
	cipher *Cipher
	store  store.Store
	events Sink
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewSessionAuthority creates a SessionAuthority with the given sliding TTL.
// A ttl of 0 or less uses DefaultSessionTTL.
func NewSessionAuthority(tokens *TokenService, cipher *Cipher, st store.Store, events Sink, ttl time.Duration, logger *slog.Logger) *SessionAuthority {
	if events == nil {
		events = NopSink{}
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionAuthority{
		tokens: tokens,
		cipher: cipher,
		store:  st,
		events: events,
		ttl:    ttl,
		logger: logger.With("component", "session"),
		now:    time.Now,
	}
}

// TTL returns the sliding session window.
func (s *SessionAuthority) TTL() time.Duration {
	return s.ttl
}

func (s *SessionAuthority) authenticate(ctx context.Context, id string, role Role) (string, error) {
	token, err := s.tokens.Issue(id, role, s.ttl)
	if err != nil {
		// Token generation failure deliberately aborts the login flow.
		return "", err
	}
	rec := SessionRecord{
		Token:     token,
		ExpiresAt: s.now().Add(s.ttl).UnixMilli(),
	}
	if err := s.saveRecord(ctx, id, rec); err != nil {
		return "", fmt.Errorf("persisting session: %w", err)
	}
	return token, nil
}

// AuthenticateCustomer issues a customer session token for the subject and
// persists its session record.
func (s *SessionAuthority) AuthenticateCustomer(ctx context.Context, customerID string) (string, error) {
	return s.authenticate(ctx, customerID, RoleCustomer)
}

// AuthenticateAdmin issues an admin session token for the subject and
// persists its session record.
func (s *SessionAuthority) AuthenticateAdmin(ctx context.Context, adminID string) (string, error) {
	return s.authenticate(ctx, adminID, RoleAdmin)
}

func (s *SessionAuthority) saveRecord(ctx context.Context, id string, rec SessionRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sealed := s.cipher.EncryptBound(string(encoded), sessionCollection+"/"+id)
	if sealed == "" {
		return fmt.Errorf("encrypting session record failed")
	}
	return s.store.Set(ctx, sessionCollection, id, []byte(sealed))
}

func (s *SessionAuthority) loadRecord(ctx context.Context, id string) (SessionRecord, bool) {
	data, err := s.store.Get(ctx, sessionCollection, id)
	if err != nil {
		return SessionRecord{}, false
	}
	plain := s.cipher.DecryptBound(string(data), sessionCollection+"/"+id)
	if plain == "" {
		return SessionRecord{}, false
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		return SessionRecord{}, false
	}
	return rec, true
}

// IsAuthenticated reports whether the subject holds a valid session. A bad
// token signature or an elapsed expiry clears the session and returns
// false. On success the expiry is refreshed, so polling callers silently
// keep the session alive. The record's sliding ExpiresAt is the
// authoritative deadline; the token's embedded expiry only bounds raw
// tokens presented from outside.
func (s *SessionAuthority) IsAuthenticated(ctx context.Context, subjectID string) bool {
	rec, ok := s.loadRecord(ctx, subjectID)
	if !ok {
		return false
	}
	if s.tokens.decode(rec.Token) == nil {
		s.Logout(ctx, subjectID)
		return false
	}
	if rec.ExpiresAt < s.now().UnixMilli() {
		s.Logout(ctx, subjectID)
		return false
	}
	rec.ExpiresAt = s.now().Add(s.ttl).UnixMilli()
	if err := s.saveRecord(ctx, subjectID, rec); err != nil {
		// Fail closed rather than report an unrefreshable session as live.
		s.logger.Debug("refreshing session failed", "subject", subjectID, "err", err)
		return false
	}
	return true
}

// IsAdmin reports whether the subject holds a valid admin session. Unlike
// IsAuthenticated this is a read-only check: it does not refresh the expiry
// and does not clear invalid sessions.
func (s *SessionAuthority) IsAdmin(ctx context.Context, subjectID string) bool {
	rec, ok := s.loadRecord(ctx, subjectID)
	if !ok {
		return false
	}
	if rec.ExpiresAt < s.now().UnixMilli() {
		return false
	}
	claims := s.tokens.decode(rec.Token)
	return claims != nil && claims.Role == RoleAdmin
}

// Logout removes the subject's session record and emits a LOGOUT event.
func (s *SessionAuthority) Logout(ctx context.Context, subjectID string) {
	if err := s.store.Delete(ctx, sessionCollection, subjectID); err != nil {
		s.logger.Debug("deleting session failed", "subject", subjectID, "err", err)
	}
	s.events.LogEvent(ctx, NewEvent(EventLogout, subjectID, ""))
}

// CurrentIdentity resolves the active identity among the given candidate
// subjects, preferring an admin session over a customer one. Returns nil
// when no candidate holds a valid session.
func (s *SessionAuthority) CurrentIdentity(ctx context.Context, subjectIDs ...string) *Identity {
	var customer *Identity
	for _, id := range subjectIDs {
		rec, ok := s.loadRecord(ctx, id)
		if !ok {
			continue
		}
		if rec.ExpiresAt < s.now().UnixMilli() {
			continue
		}
		claims := s.tokens.decode(rec.Token)
		if claims == nil {
			continue
		}
		if claims.Role == RoleAdmin {
			return &Identity{ID: claims.ID, Role: RoleAdmin}
		}
		if customer == nil {
			customer = &Identity{ID: claims.ID, Role: claims.Role}
		}
	}
	return customer
}
