package secure

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dcavalli/fidelgate/internal/uuid"
	"github.com/dcavalli/fidelgate/internal/util"
	"github.com/dcavalli/fidelgate/store"
)

const (
	csrfCollection = "csrf_tokens"
	csrfRecordKey  = "current"
)

// CSRFGuard issues one token per page context and validates tokens presented
// with state-changing requests. The active token is persisted encrypted;
// issuing a new token fully overwrites the previous one, invalidating stale
// forms left open elsewhere.
type CSRFGuard struct {
	cipher *Cipher
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewCSRFGuard(cipher *Cipher, st store.Store, logger *slog.Logger) *CSRFGuard {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSRFGuard{
		cipher: cipher,
		store:  st,
		logger: logger.With("component", "csrf"),
		now:    time.Now,
	}
}

// IssueToken generates a fresh token, persists it encrypted, and returns the
// plaintext for embedding in the current page.
func (g *CSRFGuard) IssueToken(ctx context.Context) (string, error) {
	segment, err := util.RandomChars(8)
	if err != nil {
		return "", fmt.Errorf("generating csrf token: %w", err)
	}
	token := uuid.New() + "-" + segment + "-" + strconv.FormatInt(g.now().UnixMilli(), 36)

	sealed := g.cipher.EncryptBound(token, csrfCollection+"/"+csrfRecordKey)
	if sealed == "" {
		return "", fmt.Errorf("encrypting csrf token failed")
	}
	if err := g.store.Set(ctx, csrfCollection, csrfRecordKey, []byte(sealed)); err != nil {
		return "", fmt.Errorf("persisting csrf token: %w", err)
	}
	return token, nil
}

// Validate reports whether candidate matches the currently persisted token.
// Returns false when nothing is persisted, decryption fails, or the values
// differ.
func (g *CSRFGuard) Validate(ctx context.Context, candidate string) bool {
	if candidate == "" {
		return false
	}
	data, err := g.store.Get(ctx, csrfCollection, csrfRecordKey)
	if err != nil {
		g.logger.Debug("loading csrf token failed", "err", err)
		return false
	}
	stored := g.cipher.DecryptBound(string(data), csrfCollection+"/"+csrfRecordKey)
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
