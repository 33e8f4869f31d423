package replay

// replay.go — simulador determinista. Mezcla los ticks de todos los mercados
// históricos en una sola secuencia ordenada por tiempo y los procesa uno a
// uno, single-threaded, reutilizando el mismo filtro y los mismos lifecycles
// del engine en vivo (sin la capa de guards — acá no hay paralelismo real).
// Dos runs con los mismos inputs producen exactamente el mismo resultado.

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/engine"
)

// MarketHistory es un mercado histórico: sus ticks en orden cronológico y su
// resultado ya conocido.
type MarketHistory struct {
	Market domain.Market `json:"market"`
	Ticks  []domain.Tick `json:"ticks"`
}

// event es un tick anotado con su mercado para el merge global.
type event struct {
	tick domain.Tick
	slug string
}

// Run ejecuta el replay completo sobre el set de mercados dado.
func Run(params domain.Params, initialBalance float64, histories []MarketHistory) (*domain.BacktestResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("replay.Run: %w", err)
	}
	if initialBalance <= 0 {
		return nil, fmt.Errorf("replay.Run: initial balance debe ser positivo")
	}

	acct := &domain.Account{Balance: initialBalance}
	rec := newCollector(acct)

	seq := 0
	core := engine.NewCore(engine.CoreConfig{
		Params: params,
		NewID: func() string {
			seq++
			return fmt.Sprintf("trade-%06d", seq)
		},
	}, acct, &engine.SimExecutor{Slippage: params.Slippage}, rec)

	markets := make(map[string]domain.Market, len(histories))
	for _, h := range histories {
		// En replay el resultado se conoce de antemano.
		core.AddMarket(h.Market)
		markets[h.Market.Slug] = h.Market
	}

	events := mergeTicks(histories)

	ctx := context.Background()
	expired := make(map[string]bool, len(histories))
	var lastTS time.Time

	for _, ev := range events {
		m := markets[ev.slug]
		lastTS = ev.tick.Timestamp

		// El primer tick que alcanza el endDate fuerza el cierre del
		// mercado; los ticks posteriores de un mercado expirado se ignoran.
		if m.Expired(ev.tick.Timestamp) {
			if !expired[ev.slug] {
				expired[ev.slug] = true
				if err := core.ForceExpire(ctx, ev.slug, ev.tick.Timestamp); err != nil {
					return nil, fmt.Errorf("replay.Run: force expire %s: %w", ev.slug, err)
				}
			}
			continue
		}

		if err := core.Process(ctx, ev.tick, ev.tick.Timestamp); err != nil {
			return nil, fmt.Errorf("replay.Run: tick %s@%s: %w",
				ev.tick.TokenID, ev.tick.Timestamp.Format(time.RFC3339), err)
		}
	}

	// Cerrar todo lo que quedó abierto al agotarse el feed.
	for _, h := range histories {
		if expired[h.Market.Slug] {
			continue
		}
		now := lastTS
		if h.Market.EndDate.After(now) {
			now = h.Market.EndDate
		}
		if err := core.ForceExpire(ctx, h.Market.Slug, now); err != nil {
			return nil, fmt.Errorf("replay.Run: final close %s: %w", h.Market.Slug, err)
		}
	}

	final := core.Account()
	metrics := Compute(rec.trades, rec.equity, initialBalance)

	return &domain.BacktestResult{
		Trades:        rec.trades,
		EquityCurve:   rec.equity,
		DrawdownCurve: drawdownCurve(rec.equity, initialBalance),
		Metrics:       metrics,
		FinalBalance:  final.Balance,
		SavedProfit:   final.SavedProfit,
	}, nil
}

// mergeTicks aplana y ordena los ticks de todos los mercados. El sort es
// estable y desempata por slug para que el orden sea reproducible incluso
// con timestamps idénticos.
func mergeTicks(histories []MarketHistory) []event {
	n := 0
	for _, h := range histories {
		n += len(h.Ticks)
	}
	events := make([]event, 0, n)
	for _, h := range histories {
		for _, t := range h.Ticks {
			events = append(events, event{tick: t, slug: h.Market.Slug})
		}
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].tick.Timestamp.Equal(events[j].tick.Timestamp) {
			return events[i].tick.Timestamp.Before(events[j].tick.Timestamp)
		}
		return events[i].slug < events[j].slug
	})
	return events
}

// collector implementa engine.Recorder en memoria: acumula los trades y
// registra la equity tras cada cierre.
type collector struct {
	acct   *domain.Account
	trades []domain.TradeRecord
	equity []float64
}

func newCollector(acct *domain.Account) *collector {
	return &collector{acct: acct}
}

func (c *collector) RecordTrade(_ context.Context, t domain.TradeRecord) error {
	c.trades = append(c.trades, t)
	c.equity = append(c.equity, c.acct.Equity())
	return nil
}

func (c *collector) SaveLadder(context.Context, domain.LadderState) error { return nil }
func (c *collector) DeleteLadder(context.Context, string) error           { return nil }
func (c *collector) LockMarket(context.Context, string) error             { return nil }
func (c *collector) UnlockMarket(context.Context, string) error           { return nil }

// drawdownCurve deriva el drawdown absoluto peak-to-trough punto a punto.
func drawdownCurve(equity []float64, initial float64) []float64 {
	out := make([]float64, len(equity))
	peak := initial
	for i, eq := range equity {
		if eq > peak {
			peak = eq
		}
		out[i] = peak - eq
	}
	return out
}
