package secure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dcavalli/fidelgate/internal/uuid"
	"github.com/dcavalli/fidelgate/store"
)

// EventType identifies the kind of security-relevant action being logged.
type EventType string

const (
	EventLoginSuccess      EventType = "LOGIN_SUCCESS"
	EventLoginFailure      EventType = "LOGIN_FAILURE"
	EventAccountBlocked    EventType = "ACCOUNT_BLOCKED"
	EventLogout            EventType = "LOGOUT"
	EventCSRFAttack        EventType = "CSRF_ATTACK"
	EventSecurityViolation EventType = "SECURITY_VIOLATION"
	EventRateLimited       EventType = "RATE_LIMITED"
	EventPasswordChanged   EventType = "PASSWORD_CHANGED"
	EventRecoveryStarted   EventType = "RECOVERY_STARTED"
	EventRecoveryFailed    EventType = "RECOVERY_FAILED"
	EventRecoveryCompleted EventType = "RECOVERY_COMPLETED"
)

// Event is an append-only security event record. Timestamp is epoch
// milliseconds.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	UserID    string    `json:"user_id,omitempty"`
	Details   string    `json:"details,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}

// NewEvent builds an Event with a fresh ID and the current timestamp.
func NewEvent(typ EventType, userID, details string) Event {
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		UserID:    userID,
		Details:   details,
	}
}

// Sink receives security events. Implementations must never propagate
// failures back into the core; log failures are swallowed.
type Sink interface {
	LogEvent(ctx context.Context, event Event)
}

// SlogSink writes events as structured log lines.
type SlogSink struct {
	logger *slog.Logger
}

var _ Sink = (*SlogSink)(nil)

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "audit")}
}

func (s *SlogSink) LogEvent(ctx context.Context, event Event) {
	attrs := []slog.Attr{
		slog.String("event", string(event.Type)),
		slog.String("event_id", event.ID),
		slog.Int64("timestamp", event.Timestamp),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Details != "" {
		attrs = append(attrs, slog.String("details", event.Details))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "security event", attrs...)
}

const (
	eventCollection = "security_events"

	// DefaultEventCap bounds the persisted event history.
	DefaultEventCap = 500
)

// StoreSink persists events to the store, capped to the most recent N
// records. Keys are zero-padded timestamps so lexicographic key order is
// chronological order.
type StoreSink struct {
	store  store.Store
	cap    int
	logger *slog.Logger
}

var _ Sink = (*StoreSink)(nil)

// NewStoreSink creates a persisted sink. A cap of 0 or less uses
// DefaultEventCap.
func NewStoreSink(st store.Store, cap int, logger *slog.Logger) *StoreSink {
	if cap <= 0 {
		cap = DefaultEventCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{store: st, cap: cap, logger: logger.With("component", "audit_store")}
}

func eventKey(e Event) string {
	return fmt.Sprintf("%013d-%s", e.Timestamp, e.ID)
}

func (s *StoreSink) LogEvent(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Debug("marshaling event failed", "err", err)
		return
	}
	if err := s.store.Set(ctx, eventCollection, eventKey(event), data); err != nil {
		s.logger.Debug("persisting event failed", "err", err)
		return
	}
	s.trim(ctx)
}

// trim drops the oldest records beyond the cap. Best effort.
func (s *StoreSink) trim(ctx context.Context) {
	keys, err := s.store.Keys(ctx, eventCollection)
	if err != nil || len(keys) <= s.cap {
		return
	}
	for _, k := range keys[:len(keys)-s.cap] {
		if err := s.store.Delete(ctx, eventCollection, k); err != nil {
			s.logger.Debug("trimming event failed", "key", k, "err", err)
		}
	}
}

// Recent returns up to n persisted events, newest first.
func (s *StoreSink) Recent(ctx context.Context, n int) ([]Event, error) {
	keys, err := s.store.Keys(ctx, eventCollection)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	events := make([]Event, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		data, err := s.store.Get(ctx, eventCollection, keys[i])
		if err != nil {
			continue
		}
		var e Event
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// CountRecent counts persisted events of the given type for a user within
// the window. Informational check: any failure degrades quietly to 0.
func (s *StoreSink) CountRecent(ctx context.Context, typ EventType, userID string, window time.Duration) int {
	cutoff := time.Now().Add(-window).UnixMilli()
	matches, err := s.store.Query(ctx, eventCollection, func(value []byte) bool {
		var e Event
		if err := json.Unmarshal(value, &e); err != nil {
			return false
		}
		return e.Type == typ && e.UserID == userID && e.Timestamp >= cutoff
	})
	if err != nil {
		return 0
	}
	return len(matches)
}

// MultiSink fans events out to several sinks.
type MultiSink []Sink

var _ Sink = (MultiSink)(nil)

func (m MultiSink) LogEvent(ctx context.Context, event Event) {
	for _, s := range m {
		s.LogEvent(ctx, event)
	}
}

// NopSink discards all events.
type NopSink struct{}

var _ Sink = (*NopSink)(nil)

func (NopSink) LogEvent(context.Context, Event) {}
