package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/me/hibernate/internal/cloud"
	"github.com/me/hibernate/internal/config"
	"github.com/me/hibernate/internal/engine"
	"github.com/me/hibernate/internal/logging"
	"github.com/me/hibernate/internal/server"
	"github.com/me/hibernate/internal/store"
)

// sessionSweepInterval is how often expired API sessions are purged.
const sessionSweepInterval = time.Hour

func main() {
	configFile := flag.String("config", "", "Path to YAML config file")

	// Flags override config file values, so parse them after loading.
	flagAddr := flag.String("addr", "", "Listen address")
	flagLogLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flagLogFormat := flag.String("log-format", "", "Log format (text, json)")
	flagDB := flag.String("db", "", "Database path (default ~/.hibernate/hibernate.db)")
	flagTimezone := flag.String("timezone", "", "IANA timezone for schedule evaluation (default local)")
	debug := flag.Bool("debug", false, "Shorthand for --log-level=debug")
	noEngine := flag.Bool("no-engine", false, "Serve the API without the schedule execution engine")

	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *flagAddr != "" {
		cfg.Addr = *flagAddr
	}
	if *flagLogLevel != "" {
		cfg.LogLevel = *flagLogLevel
	}
	if *flagLogFormat != "" {
		cfg.LogFormat = *flagLogFormat
	}
	if *flagDB != "" {
		cfg.DBPath = *flagDB
	}
	if *flagTimezone != "" {
		cfg.Engine.Timezone = *flagTimezone
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if *noEngine {
		cfg.Engine.Disabled = true
	}

	logger := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)

	location, err := cfg.Engine.Location()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	// Resolve database path.
	dbPath := cfg.DBPath
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dir := filepath.Join(home, ".hibernate")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", dir, err)
			os.Exit(1)
		}
		dbPath = filepath.Join(dir, "hibernate.db")
	}

	// Open store and run migrations.
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "migrate database: %v\n", err)
		os.Exit(1)
	}
	logger.Info("database ready", "path", dbPath)

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cloud clients share the host AWS credentials; per-user access flows
	// through assumed roles.
	broker, err := cloud.NewSTSBroker(ctx, cfg.Engine.SessionDuration.Std(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init credential broker: %v\n", err)
		os.Exit(1)
	}
	instances := cloud.NewEC2Client(cfg.Engine.EC2RateLimit, logger)

	var eng engine.Engine
	if cfg.Engine.Disabled {
		logger.Info("schedule execution engine disabled")
	} else {
		eng = engine.NewLoop(st, broker, instances, engine.Config{
			TickInterval: cfg.Engine.TickInterval.Std(),
			CallTimeout:  cfg.Engine.CallTimeout.Std(),
			Location:     location,
		}, logger)
		logger.Info("schedule execution engine ready",
			"tick_interval", cfg.Engine.TickInterval.Std(),
			"timezone", location.String())
	}

	srv := server.New(cfg, st, eng, broker, instances, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv,
	}

	// Start engine and session sweeper in the background.
	srv.StartEngine(ctx)
	go sweepSessions(ctx, st, logger)

	go func() {
		logger.Info("server starting", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Stop engine before the HTTP server.
	if eng != nil {
		if err := eng.Stop(); err != nil {
			logger.Error("engine stop error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// sweepSessions periodically purges expired API sessions.
func sweepSessions(ctx context.Context, st store.Store, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.DeleteExpiredSessions(ctx)
			if err != nil {
				logger.Error("session sweep failed", "error", err)
			} else if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
		}
	}
}
