package ports

import (
	"context"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// Notifier presenta la actividad del engine al usuario.
type Notifier interface {
	// NotifyTrade reporta un cierre (total o parcial) en cuanto ocurre.
	NotifyTrade(ctx context.Context, t domain.TradeRecord) error

	// NotifyBacktest imprime el reporte completo de un replay.
	NotifyBacktest(ctx context.Context, r domain.BacktestResult) error
}
