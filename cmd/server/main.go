package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"nosqlite/internal/api"
	"nosqlite/internal/auth"
	"nosqlite/internal/config"
	"nosqlite/internal/engine"
	"nosqlite/internal/instrument"
	"nosqlite/internal/ledger"
	"nosqlite/internal/logging"
	"nosqlite/internal/metadata"
	"nosqlite/internal/models"
	"nosqlite/internal/snapshot"
	"nosqlite/internal/store"
)

func main() {
	fs := config.Flags()
	hashPasscode := fs.String("hash-passcode", "", "print the bcrypt hash of a passcode for auth.passcode_hash and exit")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if *hashPasscode != "" {
		hash, err := auth.HashPasscode(*hashPasscode)
		if err != nil {
			log.Fatalf("Failed to hash passcode: %v", err)
		}
		fmt.Println(hash)
		return
	}

	if err := run(fs); err != nil {
		log.Fatal(err)
	}
}

func run(fs *pflag.FlagSet) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("database connected", zap.String("driver", db.Dialect.Name()), zap.String("name", cfg.Database.Name))

	// 3. Instrument every statement
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	conn := instrument.Wrap(db, instrument.NewMetrics(promReg), logger.Named("sql"))

	// 4. Declare models and migrate their tables
	reg := metadata.NewRegistry()
	set := models.Register(reg)
	client, err := engine.Init(ctx, conn, db.Dialect, reg,
		engine.Options{Logger: logger.Named("engine"), BatchSize: cfg.Engine.BatchSize},
		set.Stored()...)
	if err != nil {
		return fmt.Errorf("init document store: %w", err)
	}

	rules, err := api.DefaultRules(set)
	if err != nil {
		return err
	}

	authenticator := auth.New(cfg.Auth)
	if !authenticator.Enabled() {
		logger.Warn("no passcode configured, API is unauthenticated")
	}

	// 5. HTTP API
	app := api.NewApp(api.Deps{
		Client:    client,
		Rules:     rules,
		Includes:  api.DefaultIncludes(set),
		Ledger:    ledger.New(client, set, logger.Named("ledger")),
		Snapshots: snapshot.New(client, cfg.Snapshot.Dir, cfg.Snapshot.Keep, logger.Named("snapshot"), set.Stored()...),
		Auth:      authenticator,
		Gatherer:  promReg,
		Log:       logger.Named("http"),
	})

	errc := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("starting server", zap.String("addr", addr))
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}
