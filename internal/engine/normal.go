package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// lossExitPrice is the replay exit for a losing resolution. Near zero rather
// than zero so the realized PnL stays finite per share.
const lossExitPrice = 0.001

// normalExits runs the normal-mode exit checks for one tick: stop-loss first,
// then take-profit. Market expiry is handled by ForceExpire, not here.
func (c *Core) normalExits(ctx context.Context, m domain.Market, tick domain.Tick, now time.Time) error {
	c.mu.Lock()
	pos := c.positions[tick.TokenID]
	c.mu.Unlock()
	if pos == nil {
		return nil
	}

	// Stop-loss executes on breach. When the optional confirmation delay is
	// configured, the breach must hold for that long before selling.
	if tick.BestBid <= c.cfg.Params.StopLoss {
		if c.confirmBreach(tick.TokenID, now) {
			return c.sellPosition(ctx, pos, tick.BestBid, domain.ExitStopLoss, now)
		}
		return nil
	}
	c.clearBreach(tick.TokenID)

	if tick.BestBid >= c.cfg.Params.ProfitTarget {
		return c.sellPosition(ctx, pos, tick.BestBid, domain.ExitTakeProfit, now)
	}
	return nil
}

// confirmBreach returns true when the stop-loss should execute now. Immediate
// unless StopLossDelay is configured, in which case the first breach arms a
// timer and only a breach still standing after the delay confirms.
func (c *Core) confirmBreach(tokenID string, now time.Time) bool {
	if c.cfg.Params.StopLossDelay <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	first, ok := c.breaches[tokenID]
	if !ok {
		c.breaches[tokenID] = now
		return false
	}
	return now.Sub(first) >= c.cfg.Params.StopLossDelay
}

func (c *Core) clearBreach(tokenID string) {
	if c.cfg.Params.StopLossDelay <= 0 {
		return
	}
	c.mu.Lock()
	delete(c.breaches, tokenID)
	c.mu.Unlock()
}

// enterNormal opens a single position with the full available balance.
func (c *Core) enterNormal(ctx context.Context, m domain.Market, sig Signal, now time.Time) error {
	c.mu.Lock()
	if _, open := c.positions[sig.TokenID]; open {
		c.mu.Unlock()
		return nil
	}
	if len(c.positions) >= c.cfg.Params.MaxPositions {
		c.mu.Unlock()
		return nil
	}
	amount := c.acct.Available()
	if amount < 1 || !c.acct.Reserve(amount) {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	shares, avgPrice, err := c.exec.Buy(ctx, sig.TokenID, sig.Ask, amount)

	c.mu.Lock()
	c.acct.Release(amount)
	if err != nil || shares < c.cfg.Params.MinShares {
		// Unfilled or undersized: leave the state as if the attempt never
		// happened; the next signal retries.
		c.mu.Unlock()
		if err != nil {
			slog.Warn("normal: entry not filled", "token", sig.TokenID, "err", err)
		}
		return nil
	}
	c.acct.Debit(amount)
	c.positions[sig.TokenID] = &domain.Position{
		TokenID:       sig.TokenID,
		Side:          sig.Side,
		Shares:        shares,
		EntryPrice:    avgPrice,
		MarketSlug:    m.Slug,
		MarketEndDate: m.EndDate,
		OpenedAt:      now,
	}
	c.mu.Unlock()

	slog.Info("normal: position opened",
		"market", m.Slug,
		"side", sig.Side,
		"entry", fmt.Sprintf("%.4f", avgPrice),
		"shares", fmt.Sprintf("%.2f", shares),
	)
	return nil
}

// sellPosition liquidates a position through the executor and settles it.
func (c *Core) sellPosition(ctx context.Context, pos *domain.Position, refPrice float64, reason domain.ExitReason, now time.Time) error {
	exitPrice, err := c.exec.Sell(ctx, pos.TokenID, pos.Shares, refPrice)
	if err != nil {
		// Abandon this attempt; the next price update re-evaluates.
		slog.Warn("normal: exit not filled", "token", pos.TokenID, "reason", string(reason), "err", err)
		return nil
	}
	return c.closePositionAt(ctx, pos, exitPrice, reason, now)
}

// closePositionAt settles a position at a known exit price: credits the
// proceeds, sweeps the balance, emits the trade and updates the side memory.
// Used directly (no executor) for forced expiry closes.
func (c *Core) closePositionAt(ctx context.Context, pos *domain.Position, exitPrice float64, reason domain.ExitReason, now time.Time) error {
	pnl := (exitPrice - pos.EntryPrice) * pos.Shares

	c.mu.Lock()
	delete(c.positions, pos.TokenID)
	delete(c.breaches, pos.TokenID)
	c.acct.Credit(pos.Shares * exitPrice)
	c.sweepLocked()
	c.mu.Unlock()

	c.recordWinner(pos.MarketSlug, pos.TokenID, exitPrice, reason)

	return c.emitTrade(ctx, domain.TradeRecord{
		ID:         c.newID(),
		MarketSlug: pos.MarketSlug,
		TokenID:    pos.TokenID,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Shares:     pos.Shares,
		EntryTime:  pos.OpenedAt,
		ExitTime:   now,
		ExitReason: reason,
		PnL:        pnl,
	})
}
