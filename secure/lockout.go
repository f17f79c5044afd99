package secure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcavalli/fidelgate/store"
)

const lockoutCollection = "lockouts"

// lockoutRecord is the persisted state for one identity. BlockedUntil is
// epoch milliseconds; 0 means not blocked.
type lockoutRecord struct {
	FailedAttempts int   `json:"failed_attempts"`
	BlockedUntil   int64 `json:"blocked_until"`
}

// LockoutStatus is the outcome of a lockout check or transition.
type LockoutStatus struct {
	Locked            bool `json:"locked"`
	RemainingSeconds  int  `json:"remaining_seconds"`
	RemainingAttempts int  `json:"remaining_attempts"`
}

// Lockout blocks an identity for a fixed cooldown after a threshold of
// consecutive failures. State transitions emit security events.
//
// The counter update is a read-modify-write against the store without a
// transaction; two interleaved failures for the same identity can under- or
// over-count. This is a known property of the design, not corrected here.
type Lockout struct {
	cipher   *Cipher
	store    store.Store
	events   Sink
	policies map[string]LockoutPolicy
	fallback LockoutPolicy
	logger   *slog.Logger
	now      func() time.Time
}

// NewLockout creates a Lockout with the standard per-surface policies:
// IdentityGeneric uses CustomerLoginPolicy, IdentityAdmin uses
// AdminLoginPolicy, and unknown identities fall back to the customer policy.
func NewLockout(cipher *Cipher, st store.Store, events Sink, logger *slog.Logger) *Lockout {
	if events == nil {
		events = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lockout{
		cipher: cipher,
		store:  st,
		events: events,
		policies: map[string]LockoutPolicy{
			IdentityGeneric: CustomerLoginPolicy,
			IdentityAdmin:   AdminLoginPolicy,
		},
		fallback: CustomerLoginPolicy,
		logger:   logger.With("component", "lockout"),
		now:      time.Now,
	}
}

// PolicyFor returns the policy applied to an identity.
func (l *Lockout) PolicyFor(identity string) LockoutPolicy {
	if p, ok := l.policies[identity]; ok {
		return p
	}
	return l.fallback
}

func (l *Lockout) load(ctx context.Context, identity string) (lockoutRecord, error) {
	var rec lockoutRecord
	data, err := l.store.Get(ctx, lockoutCollection, identity)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rec, nil
		}
		return rec, err
	}
	plain := l.cipher.DecryptBound(string(data), lockoutCollection+"/"+identity)
	if plain == "" {
		// Undecryptable state counts as absent.
		return lockoutRecord{}, nil
	}
	if err := json.Unmarshal([]byte(plain), &rec); err != nil {
		return lockoutRecord{}, nil
	}
	return rec, nil
}

func (l *Lockout) save(ctx context.Context, identity string, rec lockoutRecord) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sealed := l.cipher.EncryptBound(string(encoded), lockoutCollection+"/"+identity)
	if sealed == "" {
		return fmt.Errorf("encrypting lockout record failed")
	}
	return l.store.Set(ctx, lockoutCollection, identity, []byte(sealed))
}

func remainingSeconds(blockedUntil, nowMs int64) int {
	ms := blockedUntil - nowMs
	if ms <= 0 {
		return 0
	}
	return int((ms + 999) / 1000)
}

// RecordFailure increments the failure counter for identity. Reaching the
// policy threshold transitions to Locked, sets the cooldown deadline, and
// emits ACCOUNT_BLOCKED; otherwise LOGIN_FAILURE is emitted with the
// remaining-attempts counter.
func (l *Lockout) RecordFailure(ctx context.Context, identity string) LockoutStatus {
	policy := l.PolicyFor(identity)
	nowMs := l.now().UnixMilli()

	rec, err := l.load(ctx, identity)
	if err != nil {
		// Fail closed: report locked for the full cooldown.
		l.logger.Debug("loading lockout record failed", "identity", identity, "err", err)
		return LockoutStatus{Locked: true, RemainingSeconds: int(policy.Cooldown.Seconds())}
	}

	rec.FailedAttempts++
	if rec.FailedAttempts >= policy.MaxFailures {
		rec.BlockedUntil = nowMs + policy.Cooldown.Milliseconds()
		if err := l.save(ctx, identity, rec); err != nil {
			l.logger.Debug("persisting lockout record failed", "identity", identity, "err", err)
		}
		l.events.LogEvent(ctx, NewEvent(EventAccountBlocked, identity,
			fmt.Sprintf("blocked after %d failed attempts", rec.FailedAttempts)))
		return LockoutStatus{Locked: true, RemainingSeconds: remainingSeconds(rec.BlockedUntil, nowMs)}
	}

	if err := l.save(ctx, identity, rec); err != nil {
		l.logger.Debug("persisting lockout record failed", "identity", identity, "err", err)
	}
	remaining := policy.MaxFailures - rec.FailedAttempts
	l.events.LogEvent(ctx, NewEvent(EventLoginFailure, identity,
		fmt.Sprintf("%d attempts remaining", remaining)))
	return LockoutStatus{RemainingAttempts: remaining}
}

// CheckLocked reports whether identity is currently blocked. An elapsed
// cooldown clears the record (failure counter back to 0) and reports
// unlocked. Callers polling a countdown are expected to re-check every
// second. Store failures report locked (fail closed).
func (l *Lockout) CheckLocked(ctx context.Context, identity string) LockoutStatus {
	policy := l.PolicyFor(identity)
	nowMs := l.now().UnixMilli()

	rec, err := l.load(ctx, identity)
	if err != nil {
		l.logger.Debug("loading lockout record failed", "identity", identity, "err", err)
		return LockoutStatus{Locked: true, RemainingSeconds: int(policy.Cooldown.Seconds())}
	}
	if rec.BlockedUntil == 0 {
		return LockoutStatus{RemainingAttempts: policy.MaxFailures - rec.FailedAttempts}
	}
	if nowMs >= rec.BlockedUntil {
		if err := l.store.Delete(ctx, lockoutCollection, identity); err != nil {
			l.logger.Debug("clearing lockout record failed", "identity", identity, "err", err)
		}
		return LockoutStatus{RemainingAttempts: policy.MaxFailures}
	}
	return LockoutStatus{Locked: true, RemainingSeconds: remainingSeconds(rec.BlockedUntil, nowMs)}
}

// RecordSuccess clears the failure counter and any block for identity and
// emits LOGIN_SUCCESS.
func (l *Lockout) RecordSuccess(ctx context.Context, identity string) {
	if err := l.store.Delete(ctx, lockoutCollection, identity); err != nil {
		l.logger.Debug("clearing lockout record failed", "identity", identity, "err", err)
	}
	l.events.LogEvent(ctx, NewEvent(EventLoginSuccess, identity, ""))
}
