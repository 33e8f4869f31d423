package engine

import (
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Signal is the outcome of one entry filter evaluation: the eligible token
// and the ask it qualified at.
type Signal struct {
	TokenID string
	Side    string
	Ask     float64
}

// Filter is the pure entry decision function. A market qualifies only when
// every constraint holds: time to resolution within (0, TimeWindow], spread
// within MaxSpread, ask within [EntryThreshold, MaxEntryPrice], and in normal
// mode ask below the profit target.
//
// Sides are checked in a fixed order — YES is the canonical side and is
// evaluated first — so at most one side is ever selected per market per
// evaluation and replays are deterministic.
type Filter struct {
	params domain.Params
}

// NewFilter builds a filter over an already-validated parameter bundle.
func NewFilter(params domain.Params) *Filter {
	return &Filter{params: params}
}

// Evaluate checks both sides of the market against the active parameters.
// lastWinner is the token that most recently closed at or above the profit
// target in this market; that side is suppressed (opposite-side rule). A side
// that lost to a stop-loss stays eligible.
func (f *Filter) Evaluate(m domain.Market, yes, no domain.Tick, now time.Time, lastWinner string) (Signal, bool) {
	remaining := m.TimeRemaining(now)
	if remaining <= 0 || remaining > f.params.TimeWindow {
		return Signal{}, false
	}

	if sig, ok := f.evaluateSide(m.YesTokenID, domain.SideYes, yes, lastWinner); ok {
		return sig, true
	}
	if sig, ok := f.evaluateSide(m.NoTokenID, domain.SideNo, no, lastWinner); ok {
		return sig, true
	}
	return Signal{}, false
}

func (f *Filter) evaluateSide(tokenID, side string, tick domain.Tick, lastWinner string) (Signal, bool) {
	if tokenID == "" || tokenID == lastWinner {
		return Signal{}, false
	}
	if !tick.Usable() {
		return Signal{}, false
	}
	if tick.Spread() > f.params.MaxSpread {
		return Signal{}, false
	}
	ask := tick.BestAsk
	if ask < f.params.EntryThreshold || ask > f.params.MaxEntryPrice {
		return Signal{}, false
	}
	if f.params.Mode == domain.ModeNormal && ask >= f.params.ProfitTarget {
		return Signal{}, false
	}
	return Signal{TokenID: tokenID, Side: side, Ask: ask}, true
}
