package engine

import (
	"context"
	"fmt"
)

// maxEffectivePrice caps slippage-adjusted prices below 1.0 — a binary share
// can never cost a full dollar.
const maxEffectivePrice = 0.999

// Executor fills buy and sell orders. Live adapters talk to the exchange;
// SimExecutor fills instantly against the quoted price.
type Executor interface {
	// Buy spends amount USDC on tokenID at the given ask.
	// Returns the filled shares and the effective average price.
	Buy(ctx context.Context, tokenID string, price, amount float64) (shares, avgPrice float64, err error)

	// Sell liquidates shares of tokenID at market, using refPrice as the
	// current best bid. Returns the effective exit price.
	Sell(ctx context.Context, tokenID string, shares, refPrice float64) (price float64, err error)
}

// SimExecutor fills orders synchronously applying slippage and an optional
// fee. Used by the replay engine and by live paper mode.
type SimExecutor struct {
	Slippage float64 // fraction added to asks / subtracted from bids
	FeeRate  float64 // fraction of spent/received USDC
}

// Buy fills amount at ask adjusted by slippage, capped below 1.0.
func (s *SimExecutor) Buy(_ context.Context, _ string, price, amount float64) (float64, float64, error) {
	if price <= 0 || amount <= 0 {
		return 0, 0, fmt.Errorf("engine.SimExecutor.Buy: invalid price %v / amount %v", price, amount)
	}
	eff := price * (1 + s.Slippage)
	if eff > maxEffectivePrice {
		eff = maxEffectivePrice
	}
	spendable := amount * (1 - s.FeeRate)
	return spendable / eff, eff, nil
}

// Sell fills shares at bid adjusted by slippage and fee.
func (s *SimExecutor) Sell(_ context.Context, _ string, shares, refPrice float64) (float64, error) {
	if shares <= 0 || refPrice <= 0 {
		return 0, fmt.Errorf("engine.SimExecutor.Sell: invalid shares %v / price %v", shares, refPrice)
	}
	eff := refPrice * (1 - s.Slippage) * (1 - s.FeeRate)
	if eff < 0 {
		eff = 0
	}
	return eff, nil
}
