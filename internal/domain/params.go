package domain

import (
	"fmt"
	"time"
)

// Mode selecciona el lifecycle activo del engine.
type Mode string

const (
	ModeNormal Mode = "normal"
	ModeLadder Mode = "ladder"
)

// Params es el bundle ya validado de parámetros de un modo. Lo produce la
// capa de configuración; el core lo consume sin re-validar en caliente.
type Params struct {
	Mode Mode

	// Filtro de entrada
	EntryThreshold float64
	MaxEntryPrice  float64
	MaxSpread      float64
	TimeWindow     time.Duration

	// Modo normal
	ProfitTarget float64
	StopLoss     float64
	// StopLossDelay > 0 habilita el filtro anti-whipsaw opcional: el breach
	// debe sostenerse ese tiempo antes de ejecutar. Cero = ejecución inmediata.
	StopLossDelay time.Duration

	// Modo ladder
	Steps []Step

	// Límites de cuenta
	MaxPositions  int
	CompoundLimit float64
	BaseBalance   float64
	MinOrderUSDC  float64
	MinShares     float64

	// Simulación
	Slippage     float64 // replay
	PaperFeeRate float64 // paper live
}

// Validate verifica la coherencia del bundle completo.
func (p Params) Validate() error {
	if p.Mode != ModeNormal && p.Mode != ModeLadder {
		return fmt.Errorf("params: mode desconocido %q", p.Mode)
	}
	if p.EntryThreshold <= 0 || p.MaxEntryPrice >= 1 || p.EntryThreshold > p.MaxEntryPrice {
		return fmt.Errorf("params: rango de entrada inválido [%v, %v]", p.EntryThreshold, p.MaxEntryPrice)
	}
	if p.TimeWindow <= 0 {
		return fmt.Errorf("params: time window debe ser positivo")
	}
	if p.Mode == ModeNormal {
		if p.ProfitTarget <= p.EntryThreshold || p.ProfitTarget > 1 {
			return fmt.Errorf("params: profit target inválido %v", p.ProfitTarget)
		}
		if p.StopLoss <= 0 || p.StopLoss >= p.EntryThreshold {
			return fmt.Errorf("params: stop loss inválido %v", p.StopLoss)
		}
	}
	if p.Mode == ModeLadder {
		if len(p.Steps) == 0 {
			return fmt.Errorf("params: modo ladder sin steps")
		}
		seen := make(map[int]bool, len(p.Steps))
		for _, s := range p.Steps {
			if seen[s.ID] {
				return fmt.Errorf("params: step id duplicado %d", s.ID)
			}
			seen[s.ID] = true
			if !s.Enabled {
				continue
			}
			if err := s.Buy.Size.Validate(); err != nil {
				return fmt.Errorf("params: step %d buy: %w", s.ID, err)
			}
			if err := s.Sell.Size.Validate(); err != nil {
				return fmt.Errorf("params: step %d sell: %w", s.ID, err)
			}
			if s.Buy.TriggerPrice <= 0 || s.Sell.TriggerPrice <= s.Buy.TriggerPrice {
				return fmt.Errorf("params: step %d triggers inválidos (buy %v, sell %v)",
					s.ID, s.Buy.TriggerPrice, s.Sell.TriggerPrice)
			}
		}
	}
	if p.MaxPositions <= 0 {
		return fmt.Errorf("params: max positions debe ser positivo")
	}
	if p.CompoundLimit > 0 && p.BaseBalance <= 0 {
		return fmt.Errorf("params: compound limit requiere base balance")
	}
	return nil
}
