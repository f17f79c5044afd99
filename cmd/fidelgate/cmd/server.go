package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dcavalli/fidelgate/api"
	"github.com/dcavalli/fidelgate/internal/config"
	"github.com/dcavalli/fidelgate/secure"
	"github.com/dcavalli/fidelgate/store"
	bboltstore "github.com/dcavalli/fidelgate/store/bbolt"
	memorystore "github.com/dcavalli/fidelgate/store/memory"
	redisstore "github.com/dcavalli/fidelgate/store/redis"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the security service server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

		st, closeStore, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer closeStore()

		key, err := cfg.Key()
		if err != nil {
			return err
		}
		cipher, err := secure.NewCipher(key, logger)
		if err != nil {
			return fmt.Errorf("initializing cipher: %w", err)
		}

		hasher := secure.NewHasher(cfg.HardenedHashing)
		tokens := secure.NewTokenService(cipher)
		eventLog := secure.NewStoreSink(st, cfg.EventCap, logger)
		events := secure.MultiSink{secure.NewSlogSink(logger), eventLog}
		sessions := secure.NewSessionAuthority(tokens, cipher, st, events, cfg.SessionTTL, logger)
		csrf := secure.NewCSRFGuard(cipher, st, logger)
		limiter := secure.NewRateLimiter(cipher, st, logger)
		lockout := secure.NewLockout(cipher, st, events, logger)

		a := api.New(st, cipher, hasher, sessions, tokens, csrf, limiter, lockout,
			events, eventLog, api.WithLogger(logger))
		a.EnableRecovery(secure.NewRecoveryService(cipher, st, hasher, events,
			a.UpdateAdminPassword, nil, logger))

		if cfg.Admin.Password != "" {
			if err := a.SeedAdmin(cmd.Context(), cfg.Admin.Email, cfg.Admin.Password); err != nil {
				return fmt.Errorf("seeding admin credentials: %w", err)
			}
		} else {
			logger.Warn("admin password not configured, back-office login stays disabled until seeded")
		}

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		useTLS := cfg.HTTP.TLSCert != "" && cfg.HTTP.TLSKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
			if err != nil {
				return fmt.Errorf("loading TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		} else {
			logger.Warn("TLS certificate not configured, serving plain HTTP")
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("server started", "port", cfg.HTTP.Port, "backend", cfg.Store.Backend)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// openStore builds the configured store backend. The returned closer is a
// no-op for backends without resources to release.
func openStore(cfg *config.Config) (store.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return memorystore.New(), func() {}, nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		return redisstore.New(client), func() { client.Close() }, nil
	case config.BackendBBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o700); err != nil {
			return nil, nil, err
		}
		st, err := bboltstore.NewFromFile(cfg.Store.Path, nil)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store.Backend)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
