package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/paygate-bot/internal/activation"
	"github.com/BatmanBruc/paygate-bot/internal/catalog"
	"github.com/BatmanBruc/paygate-bot/internal/config"
	"github.com/BatmanBruc/paygate-bot/internal/contextkeys"
	"github.com/BatmanBruc/paygate-bot/internal/correlator"
	"github.com/BatmanBruc/paygate-bot/internal/handlers"
	"github.com/BatmanBruc/paygate-bot/internal/machine"
	"github.com/BatmanBruc/paygate-bot/internal/messenger"
	"github.com/BatmanBruc/paygate-bot/internal/payments"
	"github.com/BatmanBruc/paygate-bot/internal/router"
	"github.com/BatmanBruc/paygate-bot/internal/scheduler"
	"github.com/BatmanBruc/paygate-bot/store"
	"github.com/BatmanBruc/paygate-bot/types"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config.env", ".env")
	if err != nil {
		return err
	}

	logger := slog.New(contextkeys.NewLogHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	plans := catalog.Default()
	if cfg.PlansFile != "" {
		plans, err = catalog.LoadFile(cfg.PlansFile)
		if err != nil {
			return err
		}
	}

	var sweepers []types.Sweeper

	var sessions types.SessionStore
	switch cfg.Session.Backend {
	case config.BackendRedis:
		rdb, err := store.NewRedisClient(ctx, cfg.Session.RedisAddr(), cfg.Session.RedisPassword, cfg.Session.RedisDB, cfg.Session.RedisPrefix)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		sessions = store.NewRedisSessionStore(rdb, cfg.Session.TTL)
	default:
		mem := store.NewMemorySessionStore(cfg.Session.TTL)
		sessions = mem
		sweepers = append(sweepers, mem)
	}

	var (
		bindings types.BindingStore
		ledger   types.ActivationStore
	)
	switch cfg.Binding.Backend {
	case config.BackendPostgres:
		pg, err := store.NewPostgresStore(ctx, cfg.Binding.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pg.Close()
		bindings, ledger = pg, pg
	default:
		bindings, ledger = store.NewMemoryBindingStore(), store.NewMemoryActivationStore()
	}

	tg, err := messenger.NewTelegram(cfg.BotToken, logger)
	if err != nil {
		return err
	}

	invoices := payments.NewClient(payments.Config{
		APIKey:      cfg.Payments.APIKey,
		BaseURL:     cfg.Payments.BaseURL,
		PayCurrency: cfg.Payments.PayCurrency,
		CallbackURL: cfg.PaymentCallbackURL(),
	}, payments.WithLogger(logger))

	corr := correlator.New(bindings, invoices, plans, correlator.Config{
		Timeout:    cfg.Payments.Timeout,
		BindingTTL: cfg.Binding.TTL,
	}, logger)
	sweepers = append(sweepers, corr)

	m, err := machine.New(plans, machine.Config{
		LifetimeCredential: cfg.LifetimeCredential,
		TargetPattern:      cfg.TargetPattern,
	})
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler(scheduler.Config{
		Workers:       cfg.Workers.Workers,
		QueueSize:     cfg.Workers.QueueSize,
		SweepInterval: cfg.Workers.SweepInterval,
		JobTimeout:    cfg.Payments.Timeout + 30*time.Second,
		Background:    cfg.Workers.InvoiceConcurrency,
	}, logger, sweepers...)

	r := router.New(router.Deps{
		Sessions:   sessions,
		Machine:    m,
		Correlator: corr,
		Messenger:  tg,
		Activator:  activation.New(ledger, logger),
		Dispatcher: sched,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewWebhooks(r, tg, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.PublicURL != "" {
		if err := tg.RegisterWebhook(ctx, cfg.PublicURL); err != nil {
			logger.Error("webhook registration failed", "error", err)
		}
	} else {
		logger.Warn("PUBLIC_URL not set, telegram webhook not registered")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("bot stopped")
	return err
}
