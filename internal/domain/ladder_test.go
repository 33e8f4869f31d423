package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

func percentStep(id int, stop, buyTrig, sellTrig float64, enabled bool) domain.Step {
	return domain.Step{
		ID:       id,
		StopLoss: stop,
		Enabled:  enabled,
		Buy: domain.StepOrder{
			TriggerPrice: buyTrig,
			Size:         domain.StepSize{Kind: domain.SizePercent, Value: 100},
		},
		Sell: domain.StepOrder{
			TriggerPrice: sellTrig,
			Size:         domain.StepSize{Kind: domain.SizePercent, Value: 100},
		},
	}
}

func TestStepSizeValidate(t *testing.T) {
	assert.NoError(t, domain.StepSize{Kind: domain.SizePercent, Value: 50}.Validate())
	assert.NoError(t, domain.StepSize{Kind: domain.SizeFixed, Value: 25}.Validate())
	assert.Error(t, domain.StepSize{Kind: domain.SizePercent, Value: 0}.Validate())
	assert.Error(t, domain.StepSize{Kind: domain.SizePercent, Value: 101}.Validate())
	assert.Error(t, domain.StepSize{Kind: domain.SizeFixed, Value: -1}.Validate())
	assert.Error(t, domain.StepSize{Kind: "ratio", Value: 1}.Validate())
}

func TestNextActionableSkipsDisabledAndDone(t *testing.T) {
	steps := []domain.Step{
		percentStep(1, 0.50, 0.60, 0.70, true),
		percentStep(2, 0.45, 0.55, 0.75, false),
		percentStep(3, 0.40, 0.50, 0.80, true),
	}
	ls := domain.NewLadderState("tok", "YES", "mkt", 0)

	i, ok := ls.NextActionable(steps)
	require.True(t, ok)
	assert.Equal(t, 0, i)

	// Completar el primero salta el deshabilitado y cae en el tercero
	ls.MarkCompleted(1)
	ls.CurrentStep = 1
	i, ok = ls.NextActionable(steps)
	require.True(t, ok)
	assert.Equal(t, 2, i)

	ls.MarkSkipped(3, "balance insuficiente")
	_, ok = ls.NextActionable(steps)
	assert.False(t, ok)
	assert.True(t, ls.AllStepsDone(steps))
}

func TestRecordBuyAveragesEntryPrice(t *testing.T) {
	ls := domain.NewLadderState("tok", "YES", "mkt", 0)

	ls.RecordBuy(100, 60) // 100 shares a 0.60
	ls.RecordBuy(50, 35)  // 50 shares a 0.70
	assert.InDelta(t, 150, ls.TotalShares, 1e-9)
	assert.InDelta(t, 95.0/150.0, ls.AverageEntryPrice, 1e-9)
	assert.Equal(t, domain.PhaseSell, ls.Phase)
}

func TestRecordSellProportionalCostBasis(t *testing.T) {
	ls := domain.NewLadderState("tok", "YES", "mkt", 0)
	ls.RecordBuy(100, 60)

	cost := ls.RecordSell(40, 30)
	assert.InDelta(t, 24, cost, 1e-9) // 40% del cost basis
	assert.InDelta(t, 60, ls.RemainingShares(), 1e-9)
	assert.InDelta(t, 36, ls.RemainingCostBasis(), 1e-9)

	// Vender el resto agota el ciclo y resetea los agregados
	cost = ls.RecordSell(60, 48)
	assert.InDelta(t, 36, cost, 1e-9)
	assert.Equal(t, 0.0, ls.TotalShares)
	assert.Equal(t, 0.0, ls.AverageEntryPrice)
	assert.Equal(t, 0.0, ls.RemainingShares())
}

func TestResetAfterStop(t *testing.T) {
	steps := []domain.Step{
		percentStep(1, 0.50, 0.60, 0.70, true),
		percentStep(2, 0.45, 0.55, 0.75, true),
	}
	ls := domain.NewLadderState("tok", "YES", "mkt", 0)
	ls.RecordBuy(100, 60)
	ls.MarkCompleted(1)
	ls.CurrentStep = 1
	ls.MarkSkipped(2, "fondos")

	ls.ResetAfterStop()
	assert.Equal(t, 0, ls.CurrentStep)
	assert.Equal(t, domain.PhaseBuy, ls.Phase)
	assert.Empty(t, ls.CompletedSteps)
	assert.Empty(t, ls.SkippedSteps)
	assert.Equal(t, 0.0, ls.TotalShares)
	assert.True(t, ls.NeedsRecovery)
	assert.Equal(t, domain.LadderActive, ls.Status)

	i, ok := ls.NextActionable(steps)
	require.True(t, ok)
	assert.Equal(t, 0, i)
}

func TestActiveStopLossFallsBackToLastEnabled(t *testing.T) {
	steps := []domain.Step{
		percentStep(1, 0.50, 0.60, 0.70, true),
		percentStep(2, 0.45, 0.55, 0.75, true),
	}
	ls := domain.NewLadderState("tok", "YES", "mkt", 0)

	stop, ok := ls.ActiveStopLoss(steps)
	require.True(t, ok)
	assert.Equal(t, 0.50, stop)

	// Con todos los steps agotados aplica el stop del último habilitado
	ls.MarkCompleted(1)
	ls.MarkCompleted(2)
	stop, ok = ls.ActiveStopLoss(steps)
	require.True(t, ok)
	assert.Equal(t, 0.45, stop)
}

func TestFirstEnabledTrigger(t *testing.T) {
	steps := []domain.Step{
		percentStep(1, 0.50, 0.60, 0.70, false),
		percentStep(2, 0.45, 0.55, 0.75, true),
	}
	trig, ok := domain.FirstEnabledTrigger(steps)
	require.True(t, ok)
	assert.Equal(t, 0.55, trig)

	_, ok = domain.FirstEnabledTrigger(nil)
	assert.False(t, ok)
}
