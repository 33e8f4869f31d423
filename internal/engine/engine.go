package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/ports"
)

const (
	defaultPollInterval  = 2 * time.Second
	defaultMarketRefresh = 30 * time.Second
	defaultWorkers       = 4
	defaultQueueSize     = 256
)

// Config tunes the live event loop.
type Config struct {
	PollInterval  time.Duration
	MarketRefresh time.Duration
	Workers       int
	QueueSize     int
}

// Engine is the live trading engine: it polls quotes for every tracked
// market, fans the resulting ticks out to a bounded worker pool, and runs
// the per-tick check sequence (stop-loss → take-profit/step → entry) under
// per-token guards so overlapping updates for the same token cannot
// double-enter or double-exit.
type Engine struct {
	core        *Core
	cfg         Config
	markets     ports.MarketProvider
	quotes      ports.QuoteProvider
	resolutions ports.ResolutionProvider

	entryGuard *guardSet
	exitGuard  *guardSet

	updates chan domain.Tick
	wg      sync.WaitGroup
}

// New wires a live engine around an existing core.
func New(core *Core, cfg Config, markets ports.MarketProvider, quotes ports.QuoteProvider, resolutions ports.ResolutionProvider) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MarketRefresh <= 0 {
		cfg.MarketRefresh = defaultMarketRefresh
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	e := &Engine{
		core:        core,
		cfg:         cfg,
		markets:     markets,
		quotes:      quotes,
		resolutions: resolutions,
		entryGuard:  newGuardSet(),
		exitGuard:   newGuardSet(),
		updates:     make(chan domain.Tick, cfg.QueueSize),
	}
	// The core's entry path takes the exit guard itself when it has to touch
	// exit-owned ladder state.
	core.exitGuard = e.exitGuard
	return e
}

// Run drives the live loop until the context is cancelled. Cancellation
// stops the intake; in-flight callbacks are allowed to finish — no work is
// abandoned mid-mutation.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("live engine starting",
		"poll", e.cfg.PollInterval,
		"workers", e.cfg.Workers,
	)

	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}

	e.refreshMarkets(ctx)

	poll := time.NewTicker(e.cfg.PollInterval)
	refresh := time.NewTicker(e.cfg.MarketRefresh)
	defer poll.Stop()
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			close(e.updates)
			e.wg.Wait()
			slog.Info("live engine stopped")
			return nil
		case <-refresh.C:
			e.refreshMarkets(ctx)
		case <-poll.C:
			e.pollQuotes(ctx)
			e.checkExpiries(ctx, time.Now())
		}
	}
}

// worker drains the update queue. Each tick gets the full check sequence for
// its token; ticks for other tokens proceed independently on other workers.
func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for tick := range e.updates {
		e.handleTick(ctx, tick)
	}
}

// handleTick runs exits under the exit guard and the entry check under the
// entry guard. A held guard makes the corresponding check a no-op — the next
// update re-evaluates.
func (e *Engine) handleTick(ctx context.Context, tick domain.Tick) {
	e.core.Observe(tick)
	now := time.Now()

	if e.exitGuard.TryAcquire(tick.TokenID) {
		err := func() error {
			defer e.exitGuard.Release(tick.TokenID)
			return e.core.HandleExits(ctx, tick, now)
		}()
		if err != nil {
			slog.Warn("live: exit handling error", "token", tick.TokenID, "err", err)
		}
	}

	if e.entryGuard.TryAcquire(tick.TokenID) {
		err := func() error {
			defer e.entryGuard.Release(tick.TokenID)
			return e.core.HandleEntry(ctx, tick, now)
		}()
		if err != nil {
			slog.Warn("live: entry handling error", "token", tick.TokenID, "err", err)
		}
	}
}

// refreshMarkets tracks markets resolving within the entry window.
func (e *Engine) refreshMarkets(ctx context.Context) {
	window := e.core.cfg.Params.TimeWindow
	markets, err := e.markets.FetchClosingMarkets(ctx, time.Now(), window)
	if err != nil {
		slog.Warn("live: market refresh failed", "err", err)
		return
	}
	for _, m := range markets {
		e.core.AddMarket(m)
	}
	slog.Debug("live: markets refreshed", "tracked", len(markets))
}

// pollQuotes fetches the current books and enqueues one tick per token.
// A full queue drops the tick — the next poll delivers a fresher one.
func (e *Engine) pollQuotes(ctx context.Context) {
	now := time.Now()
	var tokenIDs []string
	for _, m := range e.core.Markets() {
		if m.Expired(now) && !e.core.HasOpenState(m.Slug) {
			continue
		}
		tokenIDs = append(tokenIDs, m.YesTokenID, m.NoTokenID)
	}
	if len(tokenIDs) == 0 {
		return
	}

	quotes, err := e.quotes.FetchQuotes(ctx, tokenIDs)
	if err != nil {
		slog.Warn("live: quote poll failed", "err", err)
		return
	}
	for _, tick := range quotes {
		select {
		case e.updates <- tick:
		default:
			slog.Debug("live: update queue full, dropping tick", "token", tick.TokenID)
		}
	}
}

// checkExpiries force-closes open state in expired markets. An expired market
// without a published resolution waits — the close happens once the
// resolution arrives.
func (e *Engine) checkExpiries(ctx context.Context, now time.Time) {
	for _, m := range e.core.Markets() {
		if !m.Expired(now) || !e.core.HasOpenState(m.Slug) {
			continue
		}

		winner := m.WinnerTokenID
		if winner == "" {
			w, resolved, err := e.resolutions.FetchResolution(ctx, m.Slug)
			if err != nil {
				slog.Warn("live: resolution fetch failed", "market", m.Slug, "err", err)
				continue
			}
			if !resolved {
				continue
			}
			winner = w
		}

		e.resolveUnderGuards(ctx, m, winner, now)
	}
}

// resolveUnderGuards force-closes a resolved market holding both tokens'
// exit guards. If either guard is busy the close retries next cycle.
func (e *Engine) resolveUnderGuards(ctx context.Context, m domain.Market, winner string, now time.Time) {
	if !e.exitGuard.TryAcquire(m.YesTokenID) {
		return
	}
	defer e.exitGuard.Release(m.YesTokenID)
	if !e.exitGuard.TryAcquire(m.NoTokenID) {
		return
	}
	defer e.exitGuard.Release(m.NoTokenID)

	if err := e.core.Resolve(ctx, m.Slug, winner, now); err != nil {
		slog.Warn("live: forced close error", "market", m.Slug, "err", err)
	}
}
