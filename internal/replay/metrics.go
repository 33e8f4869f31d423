package replay

import (
	"math"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Compute deriva las métricas de performance a partir de los trades cerrados
// y la curva de equity. El balance inicial actúa como peak de partida para
// el cálculo de drawdown.
func Compute(trades []domain.TradeRecord, equity []float64, initialBalance float64) domain.Metrics {
	var m domain.Metrics
	m.TotalTrades = len(trades)
	if len(trades) == 0 {
		return m
	}

	var winSum, lossSum float64
	winStreak, lossStreak := 0, 0
	for _, t := range trades {
		m.TotalPnL += t.PnL
		// Un trade en breakeven (PnL exactamente 0) cuenta como pérdida:
		// convención conservadora, el win rate nunca se infla.
		if t.PnL > 0 {
			m.Wins++
			winSum += t.PnL
			winStreak++
			lossStreak = 0
			if winStreak > m.LongestWinStreak {
				m.LongestWinStreak = winStreak
			}
		} else {
			m.Losses++
			lossSum += -t.PnL
			lossStreak++
			winStreak = 0
			if lossStreak > m.LongestLossStreak {
				m.LongestLossStreak = lossStreak
			}
		}
	}

	m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
	m.AvgPnL = m.TotalPnL / float64(m.TotalTrades)
	m.GrossProfit = winSum
	m.GrossLoss = lossSum
	if m.Wins > 0 {
		m.AvgWin = winSum / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = lossSum / float64(m.Losses)
	}

	if m.GrossLoss > 0 {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	} else if m.GrossProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	lossRate := 1 - m.WinRate
	m.Expectancy = m.WinRate*m.AvgWin - lossRate*m.AvgLoss

	m.Sharpe = sharpe(trades, m.AvgPnL)
	m.MaxDrawdown, m.MaxDrawdownPct = maxDrawdown(equity, initialBalance)
	return m
}

// sharpe calcula media/desvío del PnL por trade, escalado por √N. Sin tasa
// libre de riesgo: los trades duran minutos.
func sharpe(trades []domain.TradeRecord, mean float64) float64 {
	if len(trades) < 2 {
		return 0
	}
	var variance float64
	for _, t := range trades {
		d := t.PnL - mean
		variance += d * d
	}
	variance /= float64(len(trades))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(len(trades)))
}

func maxDrawdown(equity []float64, initial float64) (abs, pct float64) {
	peak := initial
	for _, eq := range equity {
		if eq > peak {
			peak = eq
		}
		dd := peak - eq
		if dd > abs {
			abs = dd
			if peak > 0 {
				pct = dd / peak
			}
		}
	}
	return abs, pct
}
