package domain

// Metrics son las métricas de performance derivadas de la lista de trades
// y la curva de equity de un replay.
type Metrics struct {
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64

	TotalPnL float64
	AvgPnL   float64
	AvgWin   float64
	AvgLoss  float64 // valor absoluto

	GrossProfit float64
	GrossLoss   float64 // valor absoluto

	MaxDrawdown    float64 // peak-to-trough absoluto
	MaxDrawdownPct float64

	Sharpe       float64 // media del PnL por trade / desvío, escalado por √N
	ProfitFactor float64 // grossProfit / grossLoss
	Expectancy   float64 // winRate·avgWin − lossRate·avgLoss

	LongestWinStreak  int
	LongestLossStreak int
}

// BacktestResult es la salida completa de un run del replay engine.
type BacktestResult struct {
	Trades        []TradeRecord
	EquityCurve   []float64 // equity tras cada cierre
	DrawdownCurve []float64 // drawdown absoluto tras cada cierre
	Metrics       Metrics
	FinalBalance  float64
	SavedProfit   float64
}
