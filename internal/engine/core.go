package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// CoreConfig selects the pricing policy for forced expiry closes.
type CoreConfig struct {
	Params domain.Params

	// LivePricing: resolved positions exit at 1.00/0.00. Replay pricing
	// (false): profit-target price if the side won, near-zero if it lost,
	// profit-target if the outcome is unknown.
	LivePricing bool

	// NewID overrides trade id generation. Defaults to random UUIDs; the
	// replay engine injects a sequential generator so two runs over the same
	// history produce identical trade lists.
	NewID func() string
}

// Core holds the shared position/ladder lifecycle state and implements the
// decision logic for both live and replay modes.
//
// Locking contract: mu protects map membership and account counters, and is
// held only for in-memory arithmetic — never across an Executor or Recorder
// call. Logical per-token exclusion (no double-entry, no double-exit) is the
// caller's job: the live engine wraps calls in guard sets, the replay engine
// is single-threaded.
type Core struct {
	cfg    CoreConfig
	filter *Filter
	exec   Executor
	rec    Recorder
	newID  func() string

	// exitGuard is the live engine's per-token exit exclusion set. Entry-path
	// code that mutates exit-owned state (the ladder's immediate first buy)
	// must claim it. Nil when the caller is single-threaded (replay).
	exitGuard *guardSet

	mu        sync.Mutex
	acct      *domain.Account
	markets   map[string]domain.Market // slug → market
	byToken   map[string]string        // tokenID → slug
	quotes    map[string]domain.Tick   // tokenID → last usable tick
	positions map[string]*domain.Position
	ladders   map[string]*domain.LadderState
	locks     map[string]bool   // slug → ladder fully completed here
	winners   map[string]string // slug → token of the most recent winning close
	breaches  map[string]time.Time
}

// NewCore builds a core over a fresh account.
func NewCore(cfg CoreConfig, acct *domain.Account, exec Executor, rec Recorder) *Core {
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Core{
		cfg:       cfg,
		filter:    NewFilter(cfg.Params),
		exec:      exec,
		rec:       rec,
		newID:     newID,
		acct:      acct,
		markets:   make(map[string]domain.Market),
		byToken:   make(map[string]string),
		quotes:    make(map[string]domain.Tick),
		positions: make(map[string]*domain.Position),
		ladders:   make(map[string]*domain.LadderState),
		locks:     make(map[string]bool),
		winners:   make(map[string]string),
		breaches:  make(map[string]time.Time),
	}
}

// AddMarket registers a market so its token ticks can be routed.
func (c *Core) AddMarket(m domain.Market) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.Slug] = m
	c.byToken[m.YesTokenID] = m.Slug
	c.byToken[m.NoTokenID] = m.Slug
}

// Markets returns a snapshot of all registered markets.
func (c *Core) Markets() []domain.Market {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Market, 0, len(c.markets))
	for _, m := range c.markets {
		out = append(out, m)
	}
	return out
}

// Account returns a snapshot of the account state.
func (c *Core) Account() domain.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return *c.acct
}

// RestoreLadders reloads persisted ladder snapshots after a restart.
// Completed ladders re-lock their market so a new ladder cannot start there.
func (c *Core) RestoreLadders(states []domain.LadderState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range states {
		ls := states[i]
		if ls.SkippedSteps == nil {
			ls.SkippedSteps = make(map[int]string)
		}
		c.ladders[ls.TokenID] = &ls
		if ls.Status == domain.LadderCompleted {
			c.locks[ls.MarketSlug] = true
		}
	}
}

// RestoreLocks reloads the persisted market lock set.
func (c *Core) RestoreLocks(slugs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range slugs {
		c.locks[s] = true
	}
}

// OpenTokens returns the tokens that currently hold a position or ladder.
func (c *Core) OpenTokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.positions)+len(c.ladders))
	for t := range c.positions {
		out = append(out, t)
	}
	for t := range c.ladders {
		if _, dup := c.positions[t]; !dup {
			out = append(out, t)
		}
	}
	return out
}

// HasOpenState reports whether the market still has an open position or ladder.
func (c *Core) HasOpenState(slug string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasOpenStateLocked(slug)
}

func (c *Core) hasOpenStateLocked(slug string) bool {
	for _, p := range c.positions {
		if p.MarketSlug == slug {
			return true
		}
	}
	for _, ls := range c.ladders {
		if ls.MarketSlug == slug {
			return true
		}
	}
	return false
}

// Observe updates the quote cache for the tick's token. Unusable ticks are
// kept out of the cache so they never drive a trigger.
func (c *Core) Observe(tick domain.Tick) {
	if !tick.Usable() {
		return
	}
	c.mu.Lock()
	c.quotes[tick.TokenID] = tick
	c.mu.Unlock()
}

// Process runs the full per-tick sequence — exits, then entries — without any
// guard layer. This is the replay engine's entry point; now comes from the
// tick itself so runs are reproducible.
func (c *Core) Process(ctx context.Context, tick domain.Tick, now time.Time) error {
	c.Observe(tick)
	if err := c.HandleExits(ctx, tick, now); err != nil {
		return err
	}
	return c.HandleEntry(ctx, tick, now)
}

// HandleExits mutates existing state for the tick's token: stop-loss first,
// then take-profit (normal mode) or step progression (ladder mode).
// Caller must hold the token's exit guard in live mode.
func (c *Core) HandleExits(ctx context.Context, tick domain.Tick, now time.Time) error {
	if !tick.Usable() {
		return nil
	}
	m, ok := c.marketOf(tick.TokenID)
	if !ok {
		return nil
	}

	switch c.cfg.Params.Mode {
	case domain.ModeNormal:
		return c.normalExits(ctx, m, tick, now)
	case domain.ModeLadder:
		return c.ladderExits(ctx, m, tick, now)
	}
	return nil
}

// HandleEntry opens new state for the tick's market if the entry filter
// fires. Caller must hold the token's entry guard in live mode.
func (c *Core) HandleEntry(ctx context.Context, tick domain.Tick, now time.Time) error {
	m, ok := c.marketOf(tick.TokenID)
	if !ok {
		return nil
	}

	sig, ok := c.evaluateEntry(m, now)
	if !ok {
		return nil
	}

	switch c.cfg.Params.Mode {
	case domain.ModeNormal:
		return c.enterNormal(ctx, m, sig, now)
	case domain.ModeLadder:
		return c.enterLadder(ctx, m, sig, now)
	}
	return nil
}

// evaluateEntry runs the filter using the latest cached quotes of both sides.
func (c *Core) evaluateEntry(m domain.Market, now time.Time) (Signal, bool) {
	c.mu.Lock()
	yes := c.quotes[m.YesTokenID]
	no := c.quotes[m.NoTokenID]
	lastWinner := c.winners[m.Slug]
	c.mu.Unlock()
	return c.filter.Evaluate(m, yes, no, now, lastWinner)
}

// Resolve records a market's winning token and force-closes any open state
// if the market already expired. Live resolutions arrive asynchronously;
// replay sets them upfront.
func (c *Core) Resolve(ctx context.Context, slug, winnerTokenID string, now time.Time) error {
	c.mu.Lock()
	m, ok := c.markets[slug]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	m.WinnerTokenID = winnerTokenID
	c.markets[slug] = m
	expired := m.Expired(now)
	c.mu.Unlock()

	if !expired {
		return nil
	}
	return c.ForceExpire(ctx, slug, now)
}

// ForceExpire closes every open position and ladder in the market at its
// resolution price. Safe to call more than once.
func (c *Core) ForceExpire(ctx context.Context, slug string, now time.Time) error {
	c.mu.Lock()
	m, ok := c.markets[slug]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var firstErr error
	for _, tokenID := range []string{m.YesTokenID, m.NoTokenID} {
		if err := c.expireToken(ctx, m, tokenID, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// expireToken closes the position/ladder held on one token at expiry.
func (c *Core) expireToken(ctx context.Context, m domain.Market, tokenID string, now time.Time) error {
	price, reason := c.resolutionExit(m, tokenID)

	c.mu.Lock()
	pos := c.positions[tokenID]
	ls := c.ladders[tokenID]
	c.mu.Unlock()

	var firstErr error
	if pos != nil {
		if err := c.closePositionAt(ctx, pos, price, reason, now); err != nil {
			firstErr = err
		}
	}
	if ls != nil {
		if err := c.expireLadder(ctx, m, ls, price, reason, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// resolutionExit returns the exit price and reason for a token at expiry.
func (c *Core) resolutionExit(m domain.Market, tokenID string) (float64, domain.ExitReason) {
	win := c.winPrice()
	switch {
	case m.WinnerTokenID == "":
		return win, domain.ExitExpiryUnknown
	case m.WinnerTokenID == tokenID:
		if c.cfg.LivePricing {
			return 1.0, domain.ExitExpiryWon
		}
		return win, domain.ExitExpiryWon
	default:
		if c.cfg.LivePricing {
			return 0.0, domain.ExitExpiryLost
		}
		return lossExitPrice, domain.ExitExpiryLost
	}
}

// winPrice is the replay-mode exit for a winning or unknown resolution.
func (c *Core) winPrice() float64 {
	if c.cfg.Params.ProfitTarget > 0 {
		return c.cfg.Params.ProfitTarget
	}
	return 1.0
}

// marketOf resolves the tick's token to its registered market.
func (c *Core) marketOf(tokenID string) (domain.Market, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slug, ok := c.byToken[tokenID]
	if !ok {
		return domain.Market{}, false
	}
	m, ok := c.markets[slug]
	return m, ok
}

// recordWinner updates the opposite-side memory after a close. A close at or
// above the profit target suppresses that side's re-entry; a stop-loss on
// the remembered side clears the suppression.
func (c *Core) recordWinner(slug, tokenID string, exitPrice float64, reason domain.ExitReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case reason == domain.ExitExpiryWon,
		reason == domain.ExitTakeProfit,
		c.cfg.Params.ProfitTarget > 0 && exitPrice >= c.cfg.Params.ProfitTarget:
		c.winners[slug] = tokenID
	case reason == domain.ExitStopLoss || reason == domain.ExitStepStopLoss:
		if c.winners[slug] == tokenID {
			delete(c.winners, slug)
		}
	}
}

// emitTrade builds the ledger entry and hands it to the recorder. A recorder
// failure is returned to the caller but never rolls back in-memory state.
func (c *Core) emitTrade(ctx context.Context, t domain.TradeRecord) error {
	slog.Info("trade closed",
		"market", t.MarketSlug,
		"side", t.Side,
		"reason", string(t.ExitReason),
		"entry", fmt.Sprintf("%.4f", t.EntryPrice),
		"exit", fmt.Sprintf("%.4f", t.ExitPrice),
		"shares", fmt.Sprintf("%.2f", t.Shares),
		"pnl", fmt.Sprintf("$%.4f", t.PnL),
	)
	if err := c.rec.RecordTrade(ctx, t); err != nil {
		return fmt.Errorf("engine.Core: record trade %s: %w", t.ID, err)
	}
	return nil
}
