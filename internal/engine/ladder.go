package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// triggerTolerance absorbs float noise when comparing asks against step
// triggers: an ask at-or-below trigger+tolerance counts as a hit.
const triggerTolerance = 1e-9

const (
	skipReasonSize   = "amount below minimum order size"
	skipReasonShares = "insufficient remaining shares"
)

// ladderExits runs the ladder checks for one tick. The step stop-loss takes
// priority over normal progression: any open shares at or below the active
// step's stop are liquidated in full and the ladder resets.
func (c *Core) ladderExits(ctx context.Context, m domain.Market, tick domain.Tick, now time.Time) error {
	c.mu.Lock()
	ls := c.ladders[tick.TokenID]
	c.mu.Unlock()
	if ls == nil {
		return nil
	}

	steps := c.cfg.Params.Steps
	if stop, ok := ls.ActiveStopLoss(steps); ok &&
		ls.RemainingShares() > 0 && tick.BestBid <= stop {
		return c.stopOutLadder(ctx, ls, tick.BestBid, now)
	}

	if ls.Status != domain.LadderActive {
		return nil
	}
	return c.progressLadder(ctx, m, ls, tick, now)
}

// enterLadder starts a ladder when the entry filter fires and the market is
// not lock-protected. The ladder is meant to catch a price decline: with ask
// above the first rung it arms and waits; with ask at-or-below the rung
// within tolerance the first buy fires immediately; with ask already well
// below the rung no ladder starts.
func (c *Core) enterLadder(ctx context.Context, m domain.Market, sig Signal, now time.Time) error {
	firstTrigger, ok := domain.FirstEnabledTrigger(c.cfg.Params.Steps)
	if !ok {
		return nil
	}
	if firstTrigger-sig.Ask > triggerTolerance {
		return nil
	}

	c.mu.Lock()
	if _, open := c.ladders[sig.TokenID]; open {
		c.mu.Unlock()
		return nil
	}
	if c.locks[m.Slug] || c.hasOpenStateLocked(m.Slug) {
		c.mu.Unlock()
		return nil
	}
	if len(c.ladders)+len(c.positions) >= c.cfg.Params.MaxPositions {
		c.mu.Unlock()
		return nil
	}
	ls := domain.NewLadderState(sig.TokenID, sig.Side, m.Slug, now.UnixMilli())
	c.ladders[sig.TokenID] = ls
	// Snapshot before releasing mu: once the ladder is published, only an
	// exit-guard holder may read or mutate it. The map gets its own copy —
	// the struct copy shares the header.
	snap := *ls
	snap.SkippedSteps = make(map[int]string)
	tick := c.quotes[sig.TokenID]
	c.mu.Unlock()

	slog.Info("ladder: started",
		"market", m.Slug,
		"side", sig.Side,
		"ask", fmt.Sprintf("%.4f", sig.Ask),
		"first_trigger", fmt.Sprintf("%.4f", firstTrigger),
	)

	var saveErr error
	if err := c.rec.SaveLadder(ctx, snap); err != nil {
		saveErr = fmt.Errorf("engine.Core: save ladder %s: %w", snap.TokenID, err)
	}

	// Ask already at the first rung: do not wait for the next tick. The buy
	// mutates exit-owned ladder state, so in live mode it runs under the
	// token's exit guard; if the guard is busy the armed ladder simply fires
	// on the next exit-guarded pass.
	if sig.Ask-firstTrigger <= triggerTolerance {
		if err := c.firstBuyUnderGuard(ctx, m, ls, tick, now); err != nil {
			return err
		}
	}
	return saveErr
}

// firstBuyUnderGuard runs the ladder's immediate first buy holding the exit
// guard when one is installed. Without a guard set the caller is
// single-threaded and the buy runs directly.
func (c *Core) firstBuyUnderGuard(ctx context.Context, m domain.Market, ls *domain.LadderState, tick domain.Tick, now time.Time) error {
	if c.exitGuard == nil {
		return c.progressLadder(ctx, m, ls, tick, now)
	}
	if !c.exitGuard.TryAcquire(ls.TokenID) {
		return nil
	}
	defer c.exitGuard.Release(ls.TokenID)
	return c.progressLadder(ctx, m, ls, tick, now)
}

// progressLadder walks the step list from the current index. Disabled,
// completed, and skipped steps are passed over with an explicit loop bound —
// steps never execute out of order.
func (c *Core) progressLadder(ctx context.Context, m domain.Market, ls *domain.LadderState, tick domain.Tick, now time.Time) error {
	steps := c.cfg.Params.Steps

	for range steps {
		idx, ok := ls.NextActionable(steps)
		if !ok {
			return c.completeLadder(ctx, ls)
		}
		ls.CurrentStep = idx
		step := steps[idx]

		switch ls.Phase {
		case domain.PhaseBuy:
			if ls.NeedsRecovery {
				first, _ := domain.FirstEnabledTrigger(steps)
				if tick.BestAsk <= first {
					return nil // gate holds until ask is strictly above the first rung
				}
				ls.NeedsRecovery = false
				slog.Info("ladder: recovery cleared", "market", ls.MarketSlug,
					"ask", fmt.Sprintf("%.4f", tick.BestAsk))
			}
			if tick.BestAsk-step.Buy.TriggerPrice > triggerTolerance {
				return nil // waiting for the decline to reach this rung
			}
			skipped, err := c.executeBuyStep(ctx, ls, step, tick, now)
			if err != nil || !skipped {
				return err
			}
			// Step skipped for size: keep scanning forward.

		case domain.PhaseSell:
			if tick.BestBid < step.Sell.TriggerPrice {
				return nil
			}
			skipped, err := c.executeSellStep(ctx, ls, step, tick, now)
			if err != nil || !skipped {
				return err
			}
		}
	}
	return nil
}

// executeBuyStep fires one buy rung. Returns skipped=true when the step was
// skipped for insufficient size and the scan should continue.
func (c *Core) executeBuyStep(ctx context.Context, ls *domain.LadderState, step domain.Step, tick domain.Tick, now time.Time) (skipped bool, err error) {
	c.mu.Lock()
	avail := c.acct.Available()
	amount := stepBuyAmount(step.Buy.Size, avail)
	if amount < c.cfg.Params.MinOrderUSDC || amount < 1e-9 {
		c.mu.Unlock()
		ls.MarkSkipped(step.ID, skipReasonSize)
		slog.Info("ladder: buy step skipped", "step", step.ID, "reason", skipReasonSize,
			"amount", fmt.Sprintf("$%.2f", amount))
		return true, c.saveLadder(ctx, ls)
	}
	c.acct.Reserve(amount)
	c.mu.Unlock()

	shares, avgPrice, buyErr := c.exec.Buy(ctx, ls.TokenID, tick.BestAsk, amount)

	c.mu.Lock()
	c.acct.Release(amount)
	if buyErr != nil {
		c.mu.Unlock()
		slog.Warn("ladder: buy step not filled", "step", step.ID, "err", buyErr)
		return false, nil
	}
	c.acct.Debit(amount)
	c.mu.Unlock()

	ls.RecordBuy(shares, amount)
	slog.Info("ladder: buy step filled",
		"market", ls.MarketSlug,
		"step", step.ID,
		"price", fmt.Sprintf("%.4f", avgPrice),
		"shares", fmt.Sprintf("%.2f", shares),
		"avg_entry", fmt.Sprintf("%.4f", ls.AverageEntryPrice),
	)
	return false, c.saveLadder(ctx, ls)
}

// executeSellStep fires one sell rung. Returns skipped=true when the step was
// skipped for insufficient remaining shares.
func (c *Core) executeSellStep(ctx context.Context, ls *domain.LadderState, step domain.Step, tick domain.Tick, now time.Time) (skipped bool, err error) {
	remaining := ls.RemainingShares()
	shares := stepSellShares(step.Sell.Size, remaining, tick.BestBid)
	if remaining <= 0 || shares <= 0 {
		ls.MarkSkipped(step.ID, skipReasonShares)
		slog.Info("ladder: sell step skipped", "step", step.ID, "reason", skipReasonShares)
		return true, c.saveLadder(ctx, ls)
	}

	exitPrice, sellErr := c.exec.Sell(ctx, ls.TokenID, shares, tick.BestBid)
	if sellErr != nil {
		slog.Warn("ladder: sell step not filled", "step", step.ID, "err", sellErr)
		return false, nil
	}

	entryPrice := ls.AverageEntryPrice
	proceeds := shares * exitPrice
	costBasis := ls.RecordSell(shares, proceeds)
	pnl := proceeds - costBasis
	ls.MarkCompleted(step.ID)

	c.mu.Lock()
	c.acct.Credit(proceeds)
	c.sweepLocked()
	c.mu.Unlock()

	tradeErr := c.emitTrade(ctx, domain.TradeRecord{
		ID:         c.newID(),
		MarketSlug: ls.MarketSlug,
		TokenID:    ls.TokenID,
		Side:       ls.Side,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Shares:     shares,
		EntryTime:  time.UnixMilli(ls.OpenedAt),
		ExitTime:   now,
		ExitReason: domain.ExitStepSell,
		PnL:        pnl,
	})

	if c.cfg.Params.ProfitTarget > 0 && exitPrice >= c.cfg.Params.ProfitTarget {
		c.recordWinner(ls.MarketSlug, ls.TokenID, exitPrice, domain.ExitStepSell)
	}

	if ls.AllStepsDone(c.cfg.Params.Steps) {
		if err := c.completeLadder(ctx, ls); err != nil && tradeErr == nil {
			tradeErr = err
		}
		return false, tradeErr
	}
	if err := c.saveLadder(ctx, ls); err != nil && tradeErr == nil {
		tradeErr = err
	}
	return false, tradeErr
}

// stopOutLadder liquidates every remaining share at the current bid and
// resets the ladder: index 0, buy phase, bookkeeping cleared, aggregates
// zeroed, recovery gate armed. The market lock, if held, is released.
func (c *Core) stopOutLadder(ctx context.Context, ls *domain.LadderState, bid float64, now time.Time) error {
	remaining := ls.RemainingShares()
	exitPrice, sellErr := c.exec.Sell(ctx, ls.TokenID, remaining, bid)
	if sellErr != nil {
		slog.Warn("ladder: stop-loss sell not filled", "token", ls.TokenID, "err", sellErr)
		return nil
	}

	entryPrice := ls.AverageEntryPrice
	proceeds := remaining * exitPrice
	costBasis := ls.RemainingCostBasis()
	pnl := proceeds - costBasis

	c.mu.Lock()
	c.acct.Credit(proceeds)
	c.sweepLocked()
	locked := c.locks[ls.MarketSlug]
	if locked {
		delete(c.locks, ls.MarketSlug)
	}
	c.mu.Unlock()

	ls.ResetAfterStop()
	c.recordWinner(ls.MarketSlug, ls.TokenID, exitPrice, domain.ExitStepStopLoss)

	slog.Warn("ladder: STOP-LOSS, ladder reset",
		"market", ls.MarketSlug,
		"exit", fmt.Sprintf("%.4f", exitPrice),
		"shares", fmt.Sprintf("%.2f", remaining),
		"pnl", fmt.Sprintf("$%.4f", pnl),
	)

	err := c.emitTrade(ctx, domain.TradeRecord{
		ID:         c.newID(),
		MarketSlug: ls.MarketSlug,
		TokenID:    ls.TokenID,
		Side:       ls.Side,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Shares:     remaining,
		EntryTime:  time.UnixMilli(ls.OpenedAt),
		ExitTime:   now,
		ExitReason: domain.ExitStepStopLoss,
		PnL:        pnl,
	})

	if locked {
		if uerr := c.rec.UnlockMarket(ctx, ls.MarketSlug); uerr != nil && err == nil {
			err = fmt.Errorf("engine.Core: unlock %s: %w", ls.MarketSlug, uerr)
		}
	}
	if serr := c.saveLadder(ctx, ls); serr != nil && err == nil {
		err = serr
	}
	return err
}

// completeLadder marks the ladder completed and locks the market against a
// new ladder. With zero remaining shares the state is discarded; otherwise
// it stays resident until the leftovers are resolved.
func (c *Core) completeLadder(ctx context.Context, ls *domain.LadderState) error {
	if ls.Status == domain.LadderCompleted {
		return nil
	}
	ls.Status = domain.LadderCompleted

	c.mu.Lock()
	c.locks[ls.MarketSlug] = true
	discard := ls.RemainingShares() <= 0
	if discard {
		delete(c.ladders, ls.TokenID)
	}
	c.mu.Unlock()

	slog.Info("ladder: completed", "market", ls.MarketSlug, "residual_shares",
		fmt.Sprintf("%.2f", ls.RemainingShares()))

	err := c.rec.LockMarket(ctx, ls.MarketSlug)
	if err != nil {
		err = fmt.Errorf("engine.Core: lock %s: %w", ls.MarketSlug, err)
	}
	if discard {
		if derr := c.rec.DeleteLadder(ctx, ls.TokenID); derr != nil && err == nil {
			err = fmt.Errorf("engine.Core: delete ladder %s: %w", ls.TokenID, derr)
		}
		return err
	}
	if serr := c.saveLadder(ctx, ls); serr != nil && err == nil {
		err = serr
	}
	return err
}

// expireLadder force-closes any unsold shares at the market's resolution
// price and releases the ladder's lock and residency bookkeeping.
func (c *Core) expireLadder(ctx context.Context, m domain.Market, ls *domain.LadderState, price float64, reason domain.ExitReason, now time.Time) error {
	remaining := ls.RemainingShares()
	var err error

	if remaining > 0 {
		proceeds := remaining * price
		costBasis := ls.RemainingCostBasis()

		c.mu.Lock()
		c.acct.Credit(proceeds)
		c.sweepLocked()
		c.mu.Unlock()

		c.recordWinner(ls.MarketSlug, ls.TokenID, price, reason)

		err = c.emitTrade(ctx, domain.TradeRecord{
			ID:         c.newID(),
			MarketSlug: ls.MarketSlug,
			TokenID:    ls.TokenID,
			Side:       ls.Side,
			EntryPrice: ls.AverageEntryPrice,
			ExitPrice:  price,
			Shares:     remaining,
			EntryTime:  time.UnixMilli(ls.OpenedAt),
			ExitTime:   now,
			ExitReason: reason,
			PnL:        proceeds - costBasis,
		})
	}

	c.mu.Lock()
	delete(c.ladders, ls.TokenID)
	delete(c.locks, ls.MarketSlug)
	c.mu.Unlock()

	if derr := c.rec.DeleteLadder(ctx, ls.TokenID); derr != nil && err == nil {
		err = fmt.Errorf("engine.Core: delete ladder %s: %w", ls.TokenID, derr)
	}
	if uerr := c.rec.UnlockMarket(ctx, ls.MarketSlug); uerr != nil && err == nil {
		err = fmt.Errorf("engine.Core: unlock %s: %w", ls.MarketSlug, uerr)
	}
	return err
}

// saveLadder persists the snapshot after a mutation.
func (c *Core) saveLadder(ctx context.Context, ls *domain.LadderState) error {
	if err := c.rec.SaveLadder(ctx, *ls); err != nil {
		return fmt.Errorf("engine.Core: save ladder %s: %w", ls.TokenID, err)
	}
	return nil
}

// stepBuyAmount resolves the tagged step size against the available balance.
func stepBuyAmount(size domain.StepSize, available float64) float64 {
	switch size.Kind {
	case domain.SizePercent:
		return available * size.Value / 100
	case domain.SizeFixed:
		if size.Value > available {
			return available
		}
		return size.Value
	}
	return 0
}

// stepSellShares resolves the tagged step size against the remaining shares,
// converting fixed USDC amounts at the current bid.
func stepSellShares(size domain.StepSize, remaining, bid float64) float64 {
	switch size.Kind {
	case domain.SizePercent:
		return remaining * size.Value / 100
	case domain.SizeFixed:
		if bid <= 0 {
			return 0
		}
		shares := size.Value / bid
		if shares > remaining {
			return remaining
		}
		return shares
	}
	return 0
}
