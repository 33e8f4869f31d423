package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/engine"
)

// --- mocks de providers ---

type mockMarketProvider struct {
	markets []domain.Market
}

func (m *mockMarketProvider) FetchClosingMarkets(_ context.Context, _ time.Time, _ time.Duration) ([]domain.Market, error) {
	return m.markets, nil
}

// mockQuoteProvider devuelve el tick de entrada en el primer poll y el tick
// de salida en los siguientes.
type mockQuoteProvider struct {
	mu    sync.Mutex
	calls int
	entry map[string]domain.Tick
	exit  map[string]domain.Tick
}

func (m *mockQuoteProvider) FetchQuotes(_ context.Context, _ []string) (map[string]domain.Tick, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls == 1 {
		return m.entry, nil
	}
	return m.exit, nil
}

type mockResolutionProvider struct{}

func (m *mockResolutionProvider) FetchResolution(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func stamped(tokenID string, bid, ask float64) map[string]domain.Tick {
	return map[string]domain.Tick{
		tokenID: {TokenID: tokenID, BestBid: bid, BestAsk: ask, Timestamp: time.Now()},
	}
}

func TestEngineLiveRoundTrip(t *testing.T) {
	m := testMarket()
	m.EndDate = time.Now().Add(30 * time.Minute)

	acct := &domain.Account{Balance: 100}
	rec := newMemRecorder()
	core := engine.NewCore(engine.CoreConfig{
		Params:      normalParams(),
		LivePricing: true,
	}, acct, &engine.SimExecutor{}, rec)

	quotes := &mockQuoteProvider{
		entry: stamped("tok-yes", 0.58, 0.60),
		exit:  stamped("tok-yes", 0.70, 0.71),
	}

	eng := engine.New(core, engine.Config{
		PollInterval:  10 * time.Millisecond,
		MarketRefresh: 50 * time.Millisecond,
		Workers:       4,
		QueueSize:     16,
	}, &mockMarketProvider{markets: []domain.Market{m}}, quotes, &mockResolutionProvider{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, eng.Run(ctx))

	// Entrada en el primer poll, take-profit en alguno de los siguientes.
	trades := rec.tradeList()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitTakeProfit, trades[0].ExitReason)
	assert.InDelta(t, 100.0/0.60*0.70, core.Account().Balance, 1e-6)
}
