package secure

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dcavalli/fidelgate/store"
)

const rateLimitCollection = "rate_limits"

// DefaultRateWindow is the sliding window applied to gated actions when the
// caller does not pass an explicit one.
const DefaultRateWindow = 60 * time.Second

// rateWindow is the persisted attempt history for one action key.
// Timestamps are epoch milliseconds, oldest first.
type rateWindow struct {
	Attempts []int64 `json:"attempts"`
}

// RateLimiter is a sliding-window request counter per logical action key.
// State is persisted encrypted so limits survive restarts and are shared
// across store backings. It is independent of the Lockout machine: the two
// may gate the same action with different semantics (request volume vs.
// consecutive failures).
type RateLimiter struct {
	cipher *Cipher
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewRateLimiter(cipher *Cipher, st store.Store, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		cipher: cipher,
		store:  st,
		logger: logger.With("component", "ratelimit"),
		now:    time.Now,
	}
}

// Allow admits or rejects an attempt for actionKey. Attempts older than the
// window are pruned; if the pruned count is already at maxAttempts the
// attempt is rejected without mutation, otherwise the attempt is recorded.
// Store failures deny the attempt (fail closed).
func (l *RateLimiter) Allow(ctx context.Context, actionKey string, maxAttempts int, window time.Duration) bool {
	nowMs := l.now().UnixMilli()
	cutoff := nowMs - window.Milliseconds()

	var win rateWindow
	data, err := l.store.Get(ctx, rateLimitCollection, actionKey)
	switch {
	case err == nil:
		// An undecryptable or corrupt record counts as absent.
		if plain := l.cipher.DecryptBound(string(data), rateLimitCollection+"/"+actionKey); plain != "" {
			if err := json.Unmarshal([]byte(plain), &win); err != nil {
				win = rateWindow{}
			}
		}
	case errors.Is(err, store.ErrNotFound):
		// First attempt for this action.
	default:
		l.logger.Debug("loading rate limit window failed", "action", actionKey, "err", err)
		return false
	}

	kept := win.Attempts[:0]
	for _, ts := range win.Attempts {
		if ts > cutoff {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= maxAttempts {
		return false
	}

	win.Attempts = append(kept, nowMs)
	encoded, err := json.Marshal(win)
	if err != nil {
		return false
	}
	sealed := l.cipher.EncryptBound(string(encoded), rateLimitCollection+"/"+actionKey)
	if sealed == "" {
		return false
	}
	if err := l.store.Set(ctx, rateLimitCollection, actionKey, []byte(sealed)); err != nil {
		l.logger.Debug("persisting rate limit window failed", "action", actionKey, "err", err)
		return false
	}
	return true
}

// Reset clears the persisted window for actionKey, typically after a
// successful action.
func (l *RateLimiter) Reset(ctx context.Context, actionKey string) error {
	return l.store.Delete(ctx, rateLimitCollection, actionKey)
}
