package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/adapters/storage"
	"github.com/alejandrodnm/polysniper/internal/domain"
)

func openTestStorage(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	s, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTradeLedgerRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	entry := time.Date(2025, 6, 1, 16, 0, 0, 0, time.UTC)
	tr := domain.TradeRecord{
		ID:         "trade-000001",
		MarketSlug: "btc-above-100k-5pm",
		TokenID:    "tok-yes",
		Side:       domain.SideYes,
		EntryPrice: 0.60,
		ExitPrice:  0.70,
		Shares:     166.66,
		EntryTime:  entry,
		ExitTime:   entry.Add(10 * time.Minute),
		ExitReason: domain.ExitTakeProfit,
		PnL:        16.66,
	}
	require.NoError(t, s.RecordTrade(ctx, tr))

	got, err := s.Trades(ctx, entry.Add(-time.Hour), entry.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, tr.ID, got[0].ID)
	assert.Equal(t, tr.ExitReason, got[0].ExitReason)
	assert.InDelta(t, tr.PnL, got[0].PnL, 1e-9)
	assert.True(t, got[0].ExitTime.Equal(tr.ExitTime))

	// Fuera del rango: vacío
	got, err = s.Trades(ctx, entry.Add(time.Hour), entry.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLadderSnapshotRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	ls := domain.NewLadderState("tok-yes", domain.SideYes, "btc-above-100k-5pm", 1748793600000)
	ls.RecordBuy(166.66, 100)
	require.NoError(t, s.SaveLadder(ctx, *ls))

	// Upsert: una segunda escritura sobreescribe, no duplica
	ls.MarkSkipped(2, "amount below minimum order size")
	require.NoError(t, s.SaveLadder(ctx, *ls))

	states, err := s.LoadLadders(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	got := states[0]
	assert.Equal(t, "tok-yes", got.TokenID)
	assert.Equal(t, domain.PhaseBuy, got.Phase) // MarkSkipped vuelve a buy
	assert.InDelta(t, 166.66, got.TotalShares, 1e-9)
	assert.Contains(t, got.SkippedSteps, 2)

	require.NoError(t, s.DeleteLadder(ctx, "tok-yes"))
	states, err = s.LoadLadders(ctx)
	require.NoError(t, err)
	assert.Empty(t, states)

	// Borrar algo inexistente no falla
	assert.NoError(t, s.DeleteLadder(ctx, "tok-no"))
}

func TestMarketLockRoundTrip(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.LockMarket(ctx, "mkt-a"))
	require.NoError(t, s.LockMarket(ctx, "mkt-a")) // idempotente
	require.NoError(t, s.LockMarket(ctx, "mkt-b"))

	locks, err := s.LoadLocks(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mkt-a", "mkt-b"}, locks)

	require.NoError(t, s.UnlockMarket(ctx, "mkt-a"))
	locks, err = s.LoadLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mkt-b"}, locks)
}
