package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Storage persiste el estado del engine: ledger de trades, snapshots de
// ladders y el lock set de mercados. Los errores se devuelven al caller —
// el estado en memoria sigue siendo la fuente de verdad y el caller decide
// el retry; nunca se pierde una posición en silencio.
type Storage interface {
	ApplySchema(ctx context.Context) error

	// Ledger
	RecordTrade(ctx context.Context, t domain.TradeRecord) error
	Trades(ctx context.Context, from, to time.Time) ([]domain.TradeRecord, error)

	// Snapshots de ladder, clave = token id
	SaveLadder(ctx context.Context, ls domain.LadderState) error
	DeleteLadder(ctx context.Context, tokenID string) error
	LoadLadders(ctx context.Context) ([]domain.LadderState, error)

	// Lock set de mercados con ladder completado
	LockMarket(ctx context.Context, slug string) error
	UnlockMarket(ctx context.Context, slug string) error
	LoadLocks(ctx context.Context) ([]string, error)

	Close() error
}
