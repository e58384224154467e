package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	httpapi "github.com/splitledger/splitledger/internal/httpapi/v1"
	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/service/shares"
	"github.com/splitledger/splitledger/internal/split"
	"github.com/splitledger/splitledger/internal/storage/memory"
	pgstore "github.com/splitledger/splitledger/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text|pretty, default json)
	logger := buildLoggerFromEnv()
	slog.SetDefault(logger)

	retention := retentionFromEnv()

	var repo group.Repo
	var writer group.Writer
	var closeFn func()

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			logger.Error("failed to connect to postgres", "err", err)
			os.Exit(1)
		}
		closeFn = func() { pg.Close() }
		repo, writer = pg, pg
		logger.Info("storage backend: postgres")
	} else {
		store := memory.New()
		repo, writer = store, store
		logger.Info("storage backend: memory")
	}

	svc := group.New(repo, writer, retention)

	if dev := strings.ToLower(strings.TrimSpace(os.Getenv("DEV_SEED"))); dev == "1" || dev == "true" || dev == "yes" {
		if err := seedDev(ctx, svc, logger); err != nil {
			logger.Error("dev seed failed", "err", err)
		}
	}

	// background sweeper purges deleted groups past retention
	go runPurgeSweeper(ctx, svc, logger)

	addr := strings.TrimSpace(os.Getenv("ADDR"))
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.New(repo, writer, retention, logger).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("split service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}
	if closeFn != nil {
		closeFn()
	}
}

// runPurgeSweeper periodically removes deleted groups whose retention expired.
func runPurgeSweeper(ctx context.Context, svc group.Service, logger *slog.Logger) {
	interval := time.Hour
	if raw := strings.TrimSpace(os.Getenv("PURGE_INTERVAL")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			interval = d
		} else {
			logger.Warn("invalid PURGE_INTERVAL, using default", "raw", raw, "default", interval.String())
		}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.PurgeExpired(ctx)
			if err != nil {
				logger.Error("purge sweep failed", "err", err)
				continue
			}
			if n > 0 {
				httpapi.AddGroupsPurged(n)
				logger.Info("purge sweep", "groups_purged", n)
			}
		}
	}
}

// seedDev creates a demo group with one expense for compose/local poking.
func seedDev(ctx context.Context, svc group.Service, logger *slog.Logger) error {
	g, err := svc.CreateGroup(ctx, "Demo Trip", "USD", "alice@example.com", []string{"bob@example.com", "carol@example.com"})
	if err != nil {
		return err
	}
	_, err = svc.AddExpense(ctx, group.AddExpenseInput{
		GroupID:    g.ID,
		Name:       "Dinner",
		TotalMinor: 9000,
		Payer:      "alice@example.com",
		Participants: []shares.Participant{
			{Member: "alice@example.com"},
			{Member: "bob@example.com"},
			{Member: "carol@example.com"},
		},
		Policy: shares.PolicyEqual,
		Actor:  "alice@example.com",
	})
	if err != nil {
		return err
	}
	logger.Info("DEV seed", "group_id", g.ID.String(), "invite_code", g.InviteCode)
	printDevSeedBanner(g)
	return nil
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(g split.Group) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("group_id: %s\n", g.ID.String())
	fmt.Printf("invite_code: %s\n", g.InviteCode)
	fmt.Println("==================================================")
}

func retentionFromEnv() time.Duration {
	raw := strings.TrimSpace(os.Getenv("RETENTION_DAYS"))
	if raw == "" {
		return group.DefaultRetention
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return group.DefaultRetention
	}
	return time.Duration(days) * 24 * time.Hour
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch s {
	case "DEBUG", "debug":
		return slog.LevelDebug
	case "WARN", "WARNING", "warn", "warning":
		return slog.LevelWarn
	case "ERROR", "ERR", "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLoggerFromEnv() *slog.Logger {
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))
	format := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	case "pretty":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
