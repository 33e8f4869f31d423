package domain

import "fmt"

// SizeKind discrimina cómo se interpreta el tamaño de un step.
type SizeKind string

const (
	// SizePercent: porcentaje del balance disponible (buy) o de las shares
	// restantes (sell).
	SizePercent SizeKind = "percent"
	// SizeFixed: monto fijo en USDC, acotado por lo disponible/restante.
	SizeFixed SizeKind = "fixed"
)

// StepSize es la variante etiquetada {percent|fixed, valor}.
type StepSize struct {
	Kind  SizeKind `yaml:"kind" json:"kind"`
	Value float64  `yaml:"value" json:"value"`
}

// Validate verifica que el tamaño sea ejecutable.
func (s StepSize) Validate() error {
	switch s.Kind {
	case SizePercent:
		if s.Value <= 0 || s.Value > 100 {
			return fmt.Errorf("percent size fuera de rango (0, 100]: %v", s.Value)
		}
	case SizeFixed:
		if s.Value <= 0 {
			return fmt.Errorf("fixed size debe ser positivo: %v", s.Value)
		}
	default:
		return fmt.Errorf("size kind desconocido: %q", s.Kind)
	}
	return nil
}

// StepOrder es un trigger de compra o venta dentro de un step.
type StepOrder struct {
	TriggerPrice float64  `yaml:"trigger_price" json:"trigger_price"`
	Size         StepSize `yaml:"size" json:"size"`
}

// Step es la configuración estática de un peldaño del ladder.
type Step struct {
	ID       int       `yaml:"id" json:"id"`
	StopLoss float64   `yaml:"stop_loss" json:"stop_loss"`
	Buy      StepOrder `yaml:"buy" json:"buy"`
	Sell     StepOrder `yaml:"sell" json:"sell"`
	Enabled  bool      `yaml:"enabled" json:"enabled"`
}

// LadderPhase indica qué trigger del step actual está armado.
type LadderPhase string

const (
	PhaseBuy  LadderPhase = "buy"
	PhaseSell LadderPhase = "sell"
)

// LadderStatus es el estado global del ladder.
type LadderStatus string

const (
	LadderActive    LadderStatus = "active"
	LadderCompleted LadderStatus = "completed"
	LadderStopped   LadderStatus = "stopped"
)

// LadderState es el progreso de un ladder sobre un token. Se serializa
// completo tras cada mutación para poder reanudar tras un reinicio.
type LadderState struct {
	TokenID        string         `json:"token_id"`
	Side           string         `json:"side"`
	MarketSlug     string         `json:"market_slug"`
	CurrentStep    int            `json:"current_step"`
	Phase          LadderPhase    `json:"phase"`
	CompletedSteps []int          `json:"completed_steps"`
	SkippedSteps   map[int]string `json:"skipped_steps"`

	// Agregados del ciclo de compra vigente.
	TotalShares       float64 `json:"total_shares"`
	TotalCostBasis    float64 `json:"total_cost_basis"`
	AverageEntryPrice float64 `json:"average_entry_price"`
	TotalSharesSold   float64 `json:"total_shares_sold"`
	TotalSellProceeds float64 `json:"total_sell_proceeds"`

	NeedsRecovery bool         `json:"needs_recovery"`
	Status        LadderStatus `json:"status"`
	OpenedAt      int64        `json:"opened_at_unix_ms"`
}

// NewLadderState crea un ladder activo en el primer step, fase buy.
func NewLadderState(tokenID, side, marketSlug string, openedAtUnixMs int64) *LadderState {
	return &LadderState{
		TokenID:      tokenID,
		Side:         side,
		MarketSlug:   marketSlug,
		Phase:        PhaseBuy,
		SkippedSteps: make(map[int]string),
		Status:       LadderActive,
		OpenedAt:     openedAtUnixMs,
	}
}

// RemainingShares devuelve las shares compradas aún sin vender.
func (ls *LadderState) RemainingShares() float64 {
	rem := ls.TotalShares - ls.TotalSharesSold
	if rem < 0 {
		return 0
	}
	return rem
}

// RemainingCostBasis devuelve el costo proporcional de las shares sin vender.
func (ls *LadderState) RemainingCostBasis() float64 {
	if ls.TotalShares <= 0 {
		return 0
	}
	return ls.TotalCostBasis * ls.RemainingShares() / ls.TotalShares
}

// stepDone devuelve true si el step ya fue completado o saltado.
func (ls *LadderState) stepDone(id int) bool {
	for _, c := range ls.CompletedSteps {
		if c == id {
			return true
		}
	}
	_, skipped := ls.SkippedSteps[id]
	return skipped
}

// NextActionable devuelve el índice del próximo step ejecutable a partir de
// CurrentStep: salta deshabilitados, completados y saltados. Scan forward con
// cota explícita — nunca recursión.
func (ls *LadderState) NextActionable(steps []Step) (int, bool) {
	for i := ls.CurrentStep; i < len(steps); i++ {
		s := steps[i]
		if !s.Enabled || ls.stepDone(s.ID) {
			continue
		}
		return i, true
	}
	return 0, false
}

// ActiveStopLoss devuelve el stop-loss del step activo: el próximo step
// no completado/saltado, o el último habilitado si todos están agotados.
func (ls *LadderState) ActiveStopLoss(steps []Step) (float64, bool) {
	if i, ok := ls.NextActionable(steps); ok {
		return steps[i].StopLoss, true
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Enabled {
			return steps[i].StopLoss, true
		}
	}
	return 0, false
}

// FirstEnabledTrigger devuelve el buy trigger del primer step habilitado.
func FirstEnabledTrigger(steps []Step) (float64, bool) {
	for _, s := range steps {
		if s.Enabled {
			return s.Buy.TriggerPrice, true
		}
	}
	return 0, false
}

// RecordBuy acumula un fill de compra y recalcula el precio medio.
func (ls *LadderState) RecordBuy(shares, cost float64) {
	ls.TotalShares += shares
	ls.TotalCostBasis += cost
	if ls.TotalShares > 0 {
		ls.AverageEntryPrice = ls.TotalCostBasis / ls.TotalShares
	}
	ls.Phase = PhaseSell
}

// RecordSell acumula un fill de venta y devuelve el costo proporcional de las
// shares vendidas. Si la venta agota todas las shares, resetea los agregados
// del ciclo — la próxima compra arranca con cost basis limpio — pero conserva
// el bookkeeping de steps.
func (ls *LadderState) RecordSell(shares, proceeds float64) (costBasis float64) {
	if ls.TotalShares > 0 {
		costBasis = ls.TotalCostBasis * shares / ls.TotalShares
	}
	ls.TotalSharesSold += shares
	ls.TotalSellProceeds += proceeds
	if ls.RemainingShares() <= 1e-9 {
		ls.resetCycle()
	}
	return costBasis
}

// resetCycle limpia los agregados por-ciclo tras vender todo.
func (ls *LadderState) resetCycle() {
	ls.TotalShares = 0
	ls.TotalCostBasis = 0
	ls.AverageEntryPrice = 0
	ls.TotalSharesSold = 0
	ls.TotalSellProceeds = 0
}

// MarkCompleted registra el step como completado y vuelve a fase buy.
func (ls *LadderState) MarkCompleted(id int) {
	ls.CompletedSteps = append(ls.CompletedSteps, id)
	ls.Phase = PhaseBuy
}

// MarkSkipped registra el step como saltado con motivo y vuelve a fase buy.
func (ls *LadderState) MarkSkipped(id int, reason string) {
	ls.SkippedSteps[id] = reason
	ls.Phase = PhaseBuy
}

// ResetAfterStop limpia todo el estado tras un stop-loss de step: índice a 0,
// fase buy, bookkeeping y agregados en cero, y activa el gate de recovery.
func (ls *LadderState) ResetAfterStop() {
	ls.CurrentStep = 0
	ls.Phase = PhaseBuy
	ls.CompletedSteps = nil
	ls.SkippedSteps = make(map[int]string)
	ls.resetCycle()
	ls.NeedsRecovery = true
	ls.Status = LadderActive
}

// AllStepsDone devuelve true si cada step habilitado está completado o saltado.
func (ls *LadderState) AllStepsDone(steps []Step) bool {
	for _, s := range steps {
		if s.Enabled && !ls.stepDone(s.ID) {
			return false
		}
	}
	return true
}
