package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"digisafe/internal/platform/config"
	"digisafe/internal/platform/httpserver"
	"digisafe/internal/platform/logger"
	platformmetrics "digisafe/internal/platform/metrics"
	"digisafe/internal/safe/bank"
	"digisafe/internal/safe/device"
	"digisafe/internal/safe/machine"
	"digisafe/internal/safe/metrics"
	"digisafe/internal/safe/store/codestore"
	"digisafe/internal/safe/store/medium"
	audit "digisafe/pkg/platform/audit"
	auditmemory "digisafe/pkg/platform/audit/store/memory"
	auditpostgres "digisafe/pkg/platform/audit/store/postgres"
	"digisafe/pkg/platform/audit/publisher"
)

// main simulates the safe on a terminal: keypad legends are read from stdin,
// the indicator is written to the log, and the medium is chosen by
// configuration.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "digisafe:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log, err := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := platformmetrics.NewRegistry()
	safeMetrics := metrics.New(reg)

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			log.Warn("closing medium", "error", err)
		}
	}()

	auditStore, err := openAuditStore(ctx, be)
	if err != nil {
		return err
	}
	pub := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.Buffer),
		publisher.WithLogger(log),
	)
	defer pub.Close()

	store, err := codestore.New(be.medium, codestore.WithLogger(log))
	if err != nil {
		return err
	}
	b, err := bank.New(store,
		bank.WithLogger(log),
		bank.WithAuditPublisher(pub),
		bank.WithMetrics(safeMetrics),
	)
	if err != nil {
		return err
	}
	m, err := machine.New(b,
		device.NewLineKeypad(os.Stdin, log),
		device.NewLogIndicator(log),
		device.Clock{},
		machine.WithLogger(log),
		machine.WithMetrics(safeMetrics),
		machine.WithConfig(machine.Config{
			ErrorFlashes:   cfg.Machine.ErrorFlashes,
			LockoutFlashes: cfg.Machine.LockoutFlashes,
			FlashInterval:  cfg.Machine.FlashInterval,
			PollInterval:   cfg.Machine.PollInterval,
		}),
	)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer cancel()
		err := m.Run(gctx)
		switch {
		case errors.Is(err, io.EOF):
			log.Info("keypad closed", "state", m.State().String())
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		}
		return err
	})

	if cfg.Metrics.Addr != "" {
		checks := be.checks
		checks["codestore"] = func(ctx context.Context) error {
			_, err := store.Stats(ctx)
			return err
		}
		srv := httpserver.New(cfg.Metrics.Addr, httpserver.Router(platformmetrics.Handler(reg), checks))
		g.Go(func() error {
			return httpserver.Serve(gctx, srv, log)
		})
	}

	return g.Wait()
}

// openAuditStore keeps the trail in postgres when the medium already lives
// there, and in memory otherwise.
func openAuditStore(ctx context.Context, be *backend) (audit.Store, error) {
	if be.db == nil || be.dialect != medium.DialectPostgres {
		return auditmemory.NewInMemoryStore(), nil
	}
	s := auditpostgres.New(be.db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
