package domain

import "time"

// Tick es el snapshot inmutable del mejor bid/ask de un token en un instante.
type Tick struct {
	TokenID   string    `json:"token_id"`
	BestBid   float64   `json:"best_bid"`
	BestAsk   float64   `json:"best_ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Usable devuelve true si el tick tiene bid y ask válidos para evaluar triggers.
func (t Tick) Usable() bool {
	return t.BestBid > 0 && t.BestAsk > 0
}

// Spread devuelve ask − bid.
func (t Tick) Spread() float64 {
	return t.BestAsk - t.BestBid
}
