package engine_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/domain"
	"github.com/alejandrodnm/polysniper/internal/engine"
)

func ladderParams(steps ...domain.Step) domain.Params {
	return domain.Params{
		Mode:           domain.ModeLadder,
		EntryThreshold: 0.50,
		MaxEntryPrice:  0.80,
		MaxSpread:      0.05,
		TimeWindow:     time.Hour,
		Steps:          steps,
		MaxPositions:   1,
		MinOrderUSDC:   1,
	}
}

func newLadderCore(t *testing.T, balance float64, params domain.Params) (*engine.Core, *memRecorder) {
	t.Helper()
	require.NoError(t, params.Validate())
	acct := &domain.Account{Balance: balance}
	rec := newMemRecorder()
	seq := 0
	core := engine.NewCore(engine.CoreConfig{
		Params: params,
		NewID: func() string {
			seq++
			return fmt.Sprintf("test-%03d", seq)
		},
	}, acct, &engine.SimExecutor{}, rec)
	core.AddMarket(testMarket())
	return core, rec
}

func TestLadderSingleStepCycle(t *testing.T) {
	core, rec := newLadderCore(t, 100, ladderParams(ladderStep(1, 0.50, 0.60, 0.70)))
	m := testMarket()
	ctx := context.Background()
	now := m.EndDate.Add(-30 * time.Minute)

	// Ask en el primer peldaño: la compra dispara en el mismo tick
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now))
	assert.InDelta(t, 0, core.Account().Balance, 1e-9)
	assert.True(t, core.HasOpenState(m.Slug))

	// Bid alcanza el sell trigger: vende todo y completa el ladder
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.70, 0.71), now.Add(time.Minute)))

	trades := rec.tradeList()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, domain.ExitStepSell, tr.ExitReason)
	assert.InDelta(t, 100.0/0.60, tr.Shares, 1e-6)
	assert.InDelta(t, 0.60, tr.EntryPrice, 1e-9)
	assert.InDelta(t, (0.70-0.60)*100.0/0.60, tr.PnL, 1e-6)

	// Completado: mercado lockeado, estado descartado
	assert.Contains(t, rec.locked, m.Slug)
	assert.Contains(t, rec.deleted, "tok-yes")
	assert.False(t, core.HasOpenState(m.Slug))

	// Lock activo: una nueva señal no abre otro ladder
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now.Add(2*time.Minute)))
	assert.False(t, core.HasOpenState(m.Slug))
}

func TestLadderEntryGating(t *testing.T) {
	core, _ := newLadderCore(t, 100, ladderParams(ladderStep(1, 0.50, 0.60, 0.70)))
	m := testMarket()
	ctx := context.Background()
	now := m.EndDate.Add(-30 * time.Minute)

	// Ask muy por debajo del primer peldaño: no perseguir el precio
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.54, 0.55), now))
	assert.False(t, core.HasOpenState(m.Slug))

	// Ask por encima del peldaño: el ladder arma y espera la caída
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.64, 0.65), now.Add(time.Second)))
	assert.True(t, core.HasOpenState(m.Slug))
	assert.InDelta(t, 100, core.Account().Balance, 1e-9) // sin compra todavía

	// La caída llega al peldaño: compra
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now.Add(2*time.Second)))
	assert.InDelta(t, 0, core.Account().Balance, 1e-9)
}

func TestLadderStopLossAndRecovery(t *testing.T) {
	core, rec := newLadderCore(t, 100, ladderParams(ladderStep(1, 0.50, 0.60, 0.70)))
	m := testMarket()
	ctx := context.Background()
	now := m.EndDate.Add(-30 * time.Minute)

	// Compra en el peldaño
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now))

	// Bid cae al stop: liquida todo y resetea
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.45, 0.47), now.Add(time.Minute)))

	trades := rec.tradeList()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, domain.ExitStepStopLoss, tr.ExitReason)
	assert.InDelta(t, 0.45, tr.ExitPrice, 1e-9)
	assert.InDelta(t, 0.45*100.0/0.60-100, tr.PnL, 1e-6)

	// El snapshot persistido quedó en recovery
	saved := rec.ladders["tok-yes"]
	assert.True(t, saved.NeedsRecovery)
	assert.Zero(t, saved.RemainingShares())

	// Ask al nivel del peldaño pero sin recuperación previa: no recompra
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.58, 0.59), now.Add(2*time.Minute)))
	assert.InDelta(t, 75, core.Account().Balance, 1e-6)

	// Ask estrictamente sobre el peldaño: limpia el gate (sin comprar aún)
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.60, 0.61), now.Add(3*time.Minute)))
	assert.InDelta(t, 75, core.Account().Balance, 1e-6)

	// Nueva caída al peldaño: recompra con el balance restante
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now.Add(4*time.Minute)))
	assert.InDelta(t, 0, core.Account().Balance, 1e-9)
}

func TestLadderMultiStepStopLoss(t *testing.T) {
	// Dos steps: completar el primero no termina el ladder; el segundo
	// ciclo compra con el balance acumulado y puede stopearse solo.
	steps := []domain.Step{
		ladderStep(1, 0.50, 0.60, 0.70),
		ladderStep(2, 0.45, 0.55, 0.75),
	}
	core, rec := newLadderCore(t, 100, ladderParams(steps...))
	m := testMarket()
	ctx := context.Background()
	now := m.EndDate.Add(-30 * time.Minute)

	// Step 1: compra y venta
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now))
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.70, 0.71), now.Add(time.Minute)))
	require.Len(t, rec.tradeList(), 1)
	assert.True(t, core.HasOpenState(m.Slug)) // step 2 pendiente

	// Step 2: compra en 0.55
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.54, 0.55), now.Add(2*time.Minute)))

	// Stop del step 2
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.40, 0.42), now.Add(3*time.Minute)))
	trades := rec.tradeList()
	require.Len(t, trades, 2)
	assert.Equal(t, domain.ExitStepStopLoss, trades[1].ExitReason)
}

func TestLadderSkipsUndersizedStep(t *testing.T) {
	params := ladderParams(ladderStep(1, 0.50, 0.60, 0.70))
	params.MinOrderUSDC = 10
	core, rec := newLadderCore(t, 5, params) // balance bajo el mínimo
	m := testMarket()
	ctx := context.Background()
	now := m.EndDate.Add(-30 * time.Minute)

	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now))

	// Sin compra: step saltado con motivo registrado
	assert.InDelta(t, 5, core.Account().Balance, 1e-9)
	saved := rec.ladders["tok-yes"]
	require.Contains(t, saved.SkippedSteps, 1)
	assert.Empty(t, rec.tradeList())
}

func TestLadderExpiryClosesResidual(t *testing.T) {
	core, rec := newLadderCore(t, 100, ladderParams(ladderStep(1, 0.50, 0.60, 0.70)))
	m := testMarket()
	ctx := context.Background()
	now := m.EndDate.Add(-30 * time.Minute)

	// Compra sin alcanzar nunca el sell trigger
	require.NoError(t, core.Process(ctx, tickAt("tok-yes", 0.59, 0.60), now))

	// El mercado expira con YES ganando: replay pricing liquida al target
	require.NoError(t, core.Resolve(ctx, m.Slug, "tok-yes", m.EndDate.Add(time.Second)))

	trades := rec.tradeList()
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitExpiryWon, trades[0].ExitReason)
	assert.InDelta(t, 100.0/0.60, trades[0].Shares, 1e-6)
	assert.Contains(t, rec.deleted, "tok-yes")
	assert.False(t, core.HasOpenState(m.Slug))
}
