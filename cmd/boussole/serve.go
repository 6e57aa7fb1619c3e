package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/mlaroche/boussole/internal/api"
	"github.com/mlaroche/boussole/internal/config"
	"github.com/mlaroche/boussole/internal/hierarchy"
	"github.com/mlaroche/boussole/internal/identity"
	"github.com/mlaroche/boussole/internal/metrics"
	"github.com/mlaroche/boussole/internal/okr"
	"github.com/mlaroche/boussole/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Boussole API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := connectWithRetry(ctx, pool, cfg.Database.ConnectTimeout); err != nil {
		return err
	}
	slog.Info("connected to database")

	accountStore := identity.NewStore(pool, cfg.Sessions.TTL)
	unitStore := hierarchy.NewStore(pool)
	recordStore := okr.NewStore(pool)

	accounts := identity.NewService(accountStore)
	units := hierarchy.NewService(unitStore)
	okrs := okr.NewService(recordStore, unitStore, accountStore)
	sessions := identity.NewAuthAdapter(accountStore)

	m := metrics.New()
	m.RegisterDBPoolCollector(func() (total, idle, acquired int32) {
		st := pool.Stat()
		return st.TotalConns(), st.IdleConns(), st.AcquiredConns()
	})

	go sweepSessions(ctx, accountStore, cfg.Sessions.SweepInterval, m)

	limiter := ratelimit.New(cfg.RateLimit.AuthAttempts, cfg.RateLimit.Window)

	router := api.NewRouter(api.RouterDeps{
		Accounts:       accounts,
		Units:          units,
		OKRs:           okrs,
		Sessions:       sessions,
		Limiter:        limiter,
		Metrics:        m,
		DB:             pool,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return srv.Shutdown(shutdownCtx)
}

// connectWithRetry pings the database until it answers or the retry budget
// runs out. A fresh Postgres container can take a few seconds to accept
// connections, so the server waits instead of failing the first ping.
func connectWithRetry(ctx context.Context, pool *pgxpool.Pool, budget time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = budget

	return backoff.RetryNotify(func() error {
		return pool.Ping(ctx)
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		slog.Warn("database not ready, retrying", "error", err, "retry_in", next.Round(time.Millisecond).String())
	})
}

// sweepSessions periodically deletes expired sessions so the table does not
// grow without bound.
func sweepSessions(ctx context.Context, store *identity.Store, interval time.Duration, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.CleanExpiredSessions(ctx)
			if err != nil {
				slog.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.AddSessionsSwept(n)
				slog.Info("swept expired sessions", "count", n)
			}
		}
	}
}
