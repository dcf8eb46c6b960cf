package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/keepsake-xyz/keepsake/asset"
	"github.com/keepsake-xyz/keepsake/config"
	"github.com/keepsake-xyz/keepsake/eventsource"
	"github.com/keepsake-xyz/keepsake/ledger"
	"github.com/keepsake-xyz/keepsake/prover"
	"github.com/keepsake-xyz/keepsake/server"
	"github.com/keepsake-xyz/keepsake/upkeep"
)

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to YAML configuration")
	withProver := fs.Bool("prover", false, "Enable the solvency proof endpoint (slow startup)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: keepsake serve [options]

Run the asset API server, the websocket event feed, and the scheduled
upkeep sweeper.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync()

	if dir := filepath.Dir(cfg.Database.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}
	store, err := eventsource.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	journal, err := eventsource.NewJournal(store, "asset", log.Named("journal"))
	if err != nil {
		return err
	}

	params, err := cfg.AssetParams()
	if err != nil {
		return err
	}
	a, err := asset.New(ledger.New(), params, asset.WithRecorder(journal))
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithJournal(journal),
		server.WithLogger(log.Named("http")),
	}
	if *withProver {
		log.Info("compiling solvency circuit")
		p, err := prover.New()
		if err != nil {
			return err
		}
		log.Info("solvency circuit ready", zap.Int("constraints", p.Constraints()))
		opts = append(opts, server.WithProver(p))
	}

	sweeper := upkeep.New(a, log.Named("upkeep"))
	if err := sweeper.Start(cfg.Upkeep.Cron); err != nil {
		return fmt.Errorf("start upkeep: %w", err)
	}
	defer sweeper.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.New(a, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Listen))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsed)
	return cfg.Build()
}
