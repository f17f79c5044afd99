package secure

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dcavalli/fidelgate/internal/util"
	"github.com/dcavalli/fidelgate/store"
)

const recoveryCollection = "recovery_answers"

// DefaultRecoveryQuestions is the fixed question set presented during
// credential recovery.
var DefaultRecoveryQuestions = []string{
	"What is the name of your first pet?",
	"What city were you born in?",
	"What is your mother's maiden name?",
}

// RecoveryState is the phase of a recovery flow.
type RecoveryState int

const (
	RecoveryAskingQuestions RecoveryState = iota
	RecoveryVerifyingAnswers
	RecoverySettingPassword
	RecoveryDone
)

func (s RecoveryState) String() string {
	switch s {
	case RecoveryAskingQuestions:
		return "asking_questions"
	case RecoveryVerifyingAnswers:
		return "verifying_answers"
	case RecoverySettingPassword:
		return "setting_password"
	case RecoveryDone:
		return "done"
	}
	return "unknown"
}

var (
	// ErrRecoveryState is returned when a flow method is called out of phase.
	ErrRecoveryState = errors.New("recovery flow is not in the required state")
	// ErrAnswerCount is returned when the stored or submitted answer count
	// does not match the question set.
	ErrAnswerCount = errors.New("answer count does not match question count")
)

// recoveryRecord holds the encrypted reference answers for one identity.
type recoveryRecord struct {
	Answers []string `json:"answers"`
}

// UpdatePasswordFunc persists a freshly hashed password digest for an
// identity once recovery succeeds.
type UpdatePasswordFunc func(ctx context.Context, identity, digest string) error

// RecoveryService manages challenge-response credential recovery: reference
// answers are stored encrypted, and a successful challenge run unlocks a
// password reset.
type RecoveryService struct {
	cipher    *Cipher
	store     store.Store
	hasher    *Hasher
	events    Sink
	update    UpdatePasswordFunc
	questions []string
	logger    *slog.Logger
}

// NewRecoveryService creates a RecoveryService. A nil questions slice uses
// DefaultRecoveryQuestions.
func NewRecoveryService(cipher *Cipher, st store.Store, hasher *Hasher, events Sink, update UpdatePasswordFunc, questions []string, logger *slog.Logger) *RecoveryService {
	if events == nil {
		events = NopSink{}
	}
	if questions == nil {
		questions = DefaultRecoveryQuestions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryService{
		cipher:    cipher,
		store:     st,
		hasher:    hasher,
		events:    events,
		update:    update,
		questions: questions,
		logger:    logger.With("component", "recovery"),
	}
}

// Questions returns the fixed question set in prompt order.
func (s *RecoveryService) Questions() []string {
	return s.questions
}

func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(util.Normalize(answer)))
}

// SetAnswers stores the reference answers for identity, one per question,
// each encrypted individually.
func (s *RecoveryService) SetAnswers(ctx context.Context, identity string, answers []string) error {
	if len(answers) != len(s.questions) {
		return ErrAnswerCount
	}
	rec := recoveryRecord{Answers: make([]string, len(answers))}
	for i, a := range answers {
		sealed := s.cipher.EncryptBound(normalizeAnswer(a), recoveryCollection+"/"+identity)
		if sealed == "" {
			return fmt.Errorf("encrypting recovery answer %d failed", i)
		}
		rec.Answers[i] = sealed
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, recoveryCollection, identity, encoded)
}

// HasAnswers reports whether reference answers exist for identity.
func (s *RecoveryService) HasAnswers(ctx context.Context, identity string) bool {
	_, err := s.store.Get(ctx, recoveryCollection, identity)
	return err == nil
}

// Start begins a recovery flow for identity and emits RECOVERY_STARTED.
func (s *RecoveryService) Start(ctx context.Context, identity string) *RecoveryFlow {
	s.events.LogEvent(ctx, NewEvent(EventRecoveryStarted, identity, ""))
	return &RecoveryFlow{
		svc:      s,
		identity: identity,
		state:    RecoveryAskingQuestions,
	}
}

func (s *RecoveryService) verifyAnswers(ctx context.Context, identity string, given []string) (bool, error) {
	data, err := s.store.Get(ctx, recoveryCollection, identity)
	if err != nil {
		return false, err
	}
	var rec recoveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, err
	}
	if len(rec.Answers) != len(given) {
		return false, ErrAnswerCount
	}
	// Compare every answer regardless of early mismatch, so the number of
	// comparisons does not reveal which answer was wrong.
	matched := 1
	for i, sealed := range rec.Answers {
		reference := s.cipher.DecryptBound(sealed, recoveryCollection+"/"+identity)
		if reference == "" {
			matched = 0
			continue
		}
		matched &= subtle.ConstantTimeCompare([]byte(reference), []byte(normalizeAnswer(given[i])))
	}
	return matched == 1, nil
}

// RecoveryFlow is one in-progress recovery attempt:
// AskingQuestions(index) → VerifyingAnswers → SettingNewPassword → Done,
// with verification failure returning to AskingQuestions(0).
type RecoveryFlow struct {
	svc      *RecoveryService
	identity string
	state    RecoveryState
	index    int
	given    []string
}

// State returns the current phase.
func (f *RecoveryFlow) State() RecoveryState {
	return f.state
}

// Question returns the current prompt. ok is false outside the asking phase.
func (f *RecoveryFlow) Question() (question string, ok bool) {
	if f.state != RecoveryAskingQuestions || f.index >= len(f.svc.questions) {
		return "", false
	}
	return f.svc.questions[f.index], true
}

// SubmitAnswer records the answer to the current question. After the last
// question the collected answers are verified: success advances to
// SettingNewPassword, failure resets the flow to the first question and
// emits RECOVERY_FAILED.
func (f *RecoveryFlow) SubmitAnswer(ctx context.Context, answer string) (RecoveryState, error) {
	if f.state != RecoveryAskingQuestions {
		return f.state, ErrRecoveryState
	}
	f.given = append(f.given, answer)
	f.index++
	if f.index < len(f.svc.questions) {
		return f.state, nil
	}

	f.state = RecoveryVerifyingAnswers
	ok, err := f.svc.verifyAnswers(ctx, f.identity, f.given)
	if err != nil || !ok {
		if err != nil {
			f.svc.logger.Debug("verifying recovery answers failed", "identity", f.identity, "err", err)
		}
		f.svc.events.LogEvent(ctx, NewEvent(EventRecoveryFailed, f.identity, "answers rejected"))
		f.state = RecoveryAskingQuestions
		f.index = 0
		f.given = nil
		return f.state, nil
	}
	f.state = RecoverySettingPassword
	return f.state, nil
}

// SetNewPassword completes the flow by hashing and persisting the new
// password through the service's update hook.
func (f *RecoveryFlow) SetNewPassword(ctx context.Context, password string) error {
	if f.state != RecoverySettingPassword {
		return ErrRecoveryState
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}
	digest := f.svc.hasher.Hash(password)
	if digest == "" {
		return fmt.Errorf("hashing new password failed")
	}
	if err := f.svc.update(ctx, f.identity, digest); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	f.state = RecoveryDone
	f.svc.events.LogEvent(ctx, NewEvent(EventRecoveryCompleted, f.identity, ""))
	f.svc.events.LogEvent(ctx, NewEvent(EventPasswordChanged, f.identity, "via recovery"))
	return nil
}
