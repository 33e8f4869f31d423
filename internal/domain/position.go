package domain

import "time"

// ExitReason clasifica por qué se cerró (total o parcialmente) una posición.
type ExitReason string

const (
	ExitTakeProfit    ExitReason = "TAKE_PROFIT"
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitStepSell      ExitReason = "STEP_SELL"
	ExitStepStopLoss  ExitReason = "STEP_STOP_LOSS"
	ExitExpiryWon     ExitReason = "EXPIRY_WON"
	ExitExpiryLost    ExitReason = "EXPIRY_LOST"
	ExitExpiryUnknown ExitReason = "EXPIRY_UNKNOWN"
)

// Position es una tenencia abierta sobre un token. A lo sumo existe una por
// token, y a lo sumo MaxPositions simultáneas en todo el engine.
type Position struct {
	TokenID       string
	Side          string // "YES" | "NO"
	Shares        float64
	EntryPrice    float64 // precio medio ponderado si la entrada fue escalonada
	MarketSlug    string
	MarketEndDate time.Time
	OpenedAt      time.Time
}

// Value devuelve el valor de la posición al precio dado.
func (p Position) Value(price float64) float64 {
	return p.Shares * price
}

// PnLAt devuelve el PnL no realizado al precio dado.
func (p Position) PnLAt(price float64) float64 {
	return (price - p.EntryPrice) * p.Shares
}

// TradeRecord es la entrada inmutable del ledger que se emite en cada cierre,
// incluyendo cierres parciales de steps de ladder.
type TradeRecord struct {
	ID         string
	MarketSlug string
	TokenID    string
	Side       string
	EntryPrice float64
	ExitPrice  float64
	Shares     float64
	EntryTime  time.Time
	ExitTime   time.Time
	ExitReason ExitReason
	PnL        float64
}

// Won devuelve true si el trade cerró con ganancia.
func (t TradeRecord) Won() bool {
	return t.PnL > 0
}
