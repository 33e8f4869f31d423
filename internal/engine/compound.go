package engine

import (
	"fmt"
	"log/slog"
)

// sweepLocked applies the compounding sweep after a balance-increasing close:
// when the balance exceeds CompoundLimit, the excess above BaseBalance is
// banked into SavedProfit and the at-risk balance resets to BaseBalance.
// Pure arithmetic and idempotent; caller holds c.mu.
func (c *Core) sweepLocked() {
	limit := c.cfg.Params.CompoundLimit
	base := c.cfg.Params.BaseBalance
	if limit <= 0 || c.acct.Balance <= limit {
		return
	}
	swept := c.acct.Balance - base
	c.acct.SavedProfit += swept
	c.acct.Balance = base

	slog.Info("compound sweep",
		"swept", fmt.Sprintf("$%.2f", swept),
		"balance", fmt.Sprintf("$%.2f", c.acct.Balance),
		"saved_profit", fmt.Sprintf("$%.2f", c.acct.SavedProfit),
	)
}
