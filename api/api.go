// Package api exposes the security core over a chi REST surface: customer
// and admin login, session introspection, CSRF token issuance, lockout
// status, the security event log, and credential recovery.
package api

import (
	"log/slog"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/dcavalli/fidelgate/secure"
	"github.com/dcavalli/fidelgate/store"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	store    store.Store
	cipher   *secure.Cipher
	hasher   *secure.Hasher
	tokens   *secure.TokenService
	sessions *secure.SessionAuthority
	csrf     *secure.CSRFGuard
	limiter  *secure.RateLimiter
	lockout  *secure.Lockout
	recovery *secure.RecoveryService
	events   secure.Sink
	eventLog *secure.StoreSink
	logger   *slog.Logger

	flows struct {
		mu   sync.Mutex
		data map[string]*secure.RecoveryFlow
	}
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger used by the handlers.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// EnableRecovery attaches the credential recovery service. Recovery takes
// the API's own password update hook, so it is wired in a second step after
// New rather than through an Option. Without it the recovery endpoints
// respond 503.
func (a *API) EnableRecovery(rs *secure.RecoveryService) {
	a.recovery = rs
}

// New creates a new API instance. The event sink receives every security
// event the handlers emit; eventLog additionally serves the admin listing
// endpoints and may be nil when no persisted history is wanted.
func New(st store.Store, cipher *secure.Cipher, hasher *secure.Hasher,
	sessions *secure.SessionAuthority, tokens *secure.TokenService,
	csrf *secure.CSRFGuard, limiter *secure.RateLimiter, lockout *secure.Lockout,
	events secure.Sink, eventLog *secure.StoreSink, opts ...Option) *API {

	if events == nil {
		events = secure.NopSink{}
	}
	a := &API{
		store:    st,
		cipher:   cipher,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		csrf:     csrf,
		limiter:  limiter,
		lockout:  lockout,
		events:   events,
		eventLog: eventLog,
	}
	a.flows.data = make(map[string]*secure.RecoveryFlow)
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/auth/csrf", a.IssueCSRFToken)
	r.Get("/auth/lockout/{identity}", a.LockoutStatus)
	r.With(a.CSRFMiddleware).Post("/auth/login/customer", a.CustomerLogin)
	r.With(a.CSRFMiddleware).Post("/auth/login/admin", a.AdminLogin)
	r.With(a.AuthMiddleware).Post("/auth/logout", a.Logout)
	r.With(a.AuthMiddleware).Get("/auth/session", a.SessionStatus)
	r.With(a.AuthMiddleware).Post("/auth/recovery/answers", a.SetRecoveryAnswers)

	r.Post("/auth/recovery/start", a.StartRecovery)
	r.Post("/auth/recovery/{flowID}/answer", a.SubmitRecoveryAnswer)
	r.Post("/auth/recovery/{flowID}/password", a.SetRecoveryPassword)

	r.Route("/admin", func(r chi.Router) {
		r.Use(a.AuthMiddleware, a.AdminMiddleware)
		r.Get("/events", a.ListEvents)
		r.Get("/suspicious/{userID}", a.SuspiciousActivity)
		r.With(a.CSRFMiddleware).Put("/credentials", a.UpdateAdminCredentials)
		r.With(a.CSRFMiddleware).Post("/customers", a.CreateCustomer)
		r.Get("/customers", a.ListCustomers)
	})

	return r
}
