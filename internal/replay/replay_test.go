package replay_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/replay"
)

var base = time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)

func normalParams() domain.Params {
	return domain.Params{
		Mode:           domain.ModeNormal,
		EntryThreshold: 0.55,
		MaxEntryPrice:  0.80,
		MaxSpread:      0.05,
		TimeWindow:     time.Hour,
		ProfitTarget:   0.70,
		StopLoss:       0.40,
		MaxPositions:   1,
	}
}

func history(slug, yes, no string, end time.Time, ticks ...domain.Tick) replay.MarketHistory {
	return replay.MarketHistory{
		Market: domain.Market{
			Slug:       slug,
			YesTokenID: yes,
			NoTokenID:  no,
			EndDate:    end,
		},
		Ticks: ticks,
	}
}

func tickAt(tokenID string, bid, ask float64, at time.Time) domain.Tick {
	return domain.Tick{TokenID: tokenID, BestBid: bid, BestAsk: ask, Timestamp: at}
}

func TestRunTakeProfitCycle(t *testing.T) {
	h := history("mkt-a", "a-yes", "a-no", base.Add(time.Hour),
		tickAt("a-yes", 0.58, 0.60, base),
		tickAt("a-yes", 0.70, 0.71, base.Add(10*time.Minute)),
	)

	result, err := replay.Run(normalParams(), 100, []replay.MarketHistory{h})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.Equal(t, domain.ExitTakeProfit, tr.ExitReason)
	assert.InDelta(t, 100.0/0.60, tr.Shares, 1e-6)
	assert.InDelta(t, (0.70-0.60)*100.0/0.60, tr.PnL, 1e-6)

	assert.InDelta(t, 100.0/0.60*0.70, result.FinalBalance, 1e-6)
	require.Len(t, result.EquityCurve, 1)
	assert.InDelta(t, result.FinalBalance, result.EquityCurve[0], 1e-6)
	assert.Equal(t, 1, result.Metrics.TotalTrades)
	assert.Equal(t, 1.0, result.Metrics.WinRate)
}

func TestRunExpiryUsesKnownWinner(t *testing.T) {
	end := base.Add(30 * time.Minute)
	h := history("mkt-a", "a-yes", "a-no", end,
		tickAt("a-yes", 0.58, 0.60, base),
		// Primer tick en el endDate fuerza el cierre; el posterior se ignora
		tickAt("a-yes", 0.65, 0.66, end),
		tickAt("a-yes", 0.90, 0.91, end.Add(time.Minute)),
	)
	h.Market.WinnerTokenID = "a-yes"

	result, err := replay.Run(normalParams(), 100, []replay.MarketHistory{h})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	tr := result.Trades[0]
	assert.Equal(t, domain.ExitExpiryWon, tr.ExitReason)
	// Replay pricing: el lado ganador sale al profit target, no a 1.00
	assert.InDelta(t, 0.70, tr.ExitPrice, 1e-9)
}

func TestRunClosesOpenStateWhenFeedEnds(t *testing.T) {
	// El feed se agota con la posición abierta y sin resultado conocido.
	h := history("mkt-a", "a-yes", "a-no", base.Add(time.Hour),
		tickAt("a-yes", 0.58, 0.60, base),
	)

	result, err := replay.Run(normalParams(), 100, []replay.MarketHistory{h})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, domain.ExitExpiryUnknown, result.Trades[0].ExitReason)
}

func TestRunDeterministic(t *testing.T) {
	end := base.Add(time.Hour)
	histories := []replay.MarketHistory{
		history("mkt-a", "a-yes", "a-no", end,
			tickAt("a-yes", 0.58, 0.60, base),
			tickAt("a-yes", 0.40, 0.42, base.Add(5*time.Minute)),
			tickAt("a-yes", 0.58, 0.60, base.Add(10*time.Minute)),
			tickAt("a-yes", 0.70, 0.71, base.Add(15*time.Minute)),
		),
		history("mkt-b", "b-yes", "b-no", end,
			// mismo timestamp que mkt-a: desempate estable por slug
			tickAt("b-yes", 0.59, 0.61, base),
			tickAt("b-yes", 0.72, 0.73, base.Add(20*time.Minute)),
		),
	}

	first, err := replay.Run(normalParams(), 100, histories)
	require.NoError(t, err)
	second, err := replay.Run(normalParams(), 100, histories)
	require.NoError(t, err)

	// Corridas idénticas: mismos trades, mismos ids, misma curva.
	assert.Equal(t, first, second)
	require.NotEmpty(t, first.Trades)
	assert.Equal(t, "trade-000001", first.Trades[0].ID)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	_, err := replay.Run(domain.Params{}, 100, nil)
	assert.Error(t, err)

	_, err = replay.Run(normalParams(), 0, nil)
	assert.Error(t, err)
}
