package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/polysniper/config"
	"github.com/alejandrodnm/polysniper/internal/adapters/notify"
	"github.com/alejandrodnm/polysniper/internal/adapters/polymarket"
	"github.com/alejandrodnm/polysniper/internal/adapters/storage"
	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/engine"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

// runLive arranca el engine en modo paper live: quotes reales del CLOB,
// fills simulados. El estado se persiste en SQLite y sobrevive reinicios.
func runLive(cfg *config.Config) {
	params := cfg.Params()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)
	notifier := notify.NewConsole()

	acct := &domain.Account{Balance: cfg.Engine.InitialBalance}
	exec := &engine.SimExecutor{FeeRate: params.PaperFeeRate}
	rec := &notifyingRecorder{store: store, notifier: notifier}

	core := engine.NewCore(engine.CoreConfig{
		Params:      params,
		LivePricing: true,
	}, acct, exec, rec)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := restoreState(ctx, core, store); err != nil {
		slog.Error("failed to restore state", "err", err)
		os.Exit(1)
	}

	eng := engine.New(core, engine.Config{
		PollInterval:  cfg.PollInterval(),
		MarketRefresh: cfg.MarketRefresh(),
		Workers:       cfg.Engine.Workers,
		QueueSize:     cfg.Engine.QueueSize,
	}, client, client, client)

	if err := eng.Run(ctx); err != nil {
		slog.Error("engine exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("polysniper stopped cleanly")
}

// restoreState recarga ladders y locks persistidos tras un reinicio.
func restoreState(ctx context.Context, core *engine.Core, store ports.Storage) error {
	ladders, err := store.LoadLadders(ctx)
	if err != nil {
		return err
	}
	locks, err := store.LoadLocks(ctx)
	if err != nil {
		return err
	}
	core.RestoreLadders(ladders)
	core.RestoreLocks(locks)
	if len(ladders) > 0 || len(locks) > 0 {
		slog.Info("state restored", "ladders", len(ladders), "locks", len(locks))
	}
	return nil
}

// notifyingRecorder persiste cada evento y además reporta los cierres por
// consola. Un fallo del notifier no bloquea la persistencia.
type notifyingRecorder struct {
	store    ports.Storage
	notifier ports.Notifier
}

func (r *notifyingRecorder) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	if err := r.store.RecordTrade(ctx, t); err != nil {
		return err
	}
	if err := r.notifier.NotifyTrade(ctx, t); err != nil {
		slog.Warn("notifier error", "err", err, "trade", t.ID)
	}
	return nil
}

func (r *notifyingRecorder) SaveLadder(ctx context.Context, ls domain.LadderState) error {
	return r.store.SaveLadder(ctx, ls)
}

func (r *notifyingRecorder) DeleteLadder(ctx context.Context, tokenID string) error {
	return r.store.DeleteLadder(ctx, tokenID)
}

func (r *notifyingRecorder) LockMarket(ctx context.Context, slug string) error {
	return r.store.LockMarket(ctx, slug)
}

func (r *notifyingRecorder) UnlockMarket(ctx context.Context, slug string) error {
	return r.store.UnlockMarket(ctx, slug)
}
