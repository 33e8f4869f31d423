package engine

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Recorder receives the persistence events emitted by the core: one trade per
// close, a full ladder snapshot after every mutation, and lock set changes.
// ports.Storage satisfies it; the replay engine plugs an in-memory collector.
//
// A Recorder error never loses state: the in-memory Position/LadderState stays
// the source of truth and the error is surfaced to the caller for retry.
type Recorder interface {
	RecordTrade(ctx context.Context, t domain.TradeRecord) error
	SaveLadder(ctx context.Context, ls domain.LadderState) error
	DeleteLadder(ctx context.Context, tokenID string) error
	LockMarket(ctx context.Context, slug string) error
	UnlockMarket(ctx context.Context, slug string) error
}

// NopRecorder discards every event. Handy for tests and dry runs.
type NopRecorder struct{}

func (NopRecorder) RecordTrade(context.Context, domain.TradeRecord) error { return nil }
func (NopRecorder) SaveLadder(context.Context, domain.LadderState) error  { return nil }
func (NopRecorder) DeleteLadder(context.Context, string) error            { return nil }
func (NopRecorder) LockMarket(context.Context, string) error              { return nil }
func (NopRecorder) UnlockMarket(context.Context, string) error            { return nil }
