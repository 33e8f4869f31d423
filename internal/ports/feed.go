package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// MarketProvider descubre mercados binarios próximos a resolver.
type MarketProvider interface {
	// FetchClosingMarkets devuelve los mercados abiertos cuyo endDate cae
	// dentro de la ventana dada a partir de now.
	FetchClosingMarkets(ctx context.Context, now time.Time, window time.Duration) ([]domain.Market, error)
}

// QuoteProvider obtiene el mejor bid/ask actual de un conjunto de tokens.
type QuoteProvider interface {
	// FetchQuotes devuelve un tick por token. Los tokens sin book utilizable
	// se omiten del mapa.
	FetchQuotes(ctx context.Context, tokenIDs []string) (map[string]domain.Tick, error)
}

// ResolutionProvider consulta el resultado de un mercado ya cerrado.
type ResolutionProvider interface {
	// FetchResolution devuelve el token ganador del mercado, o resolved=false
	// si el resultado todavía no está publicado.
	FetchResolution(ctx context.Context, slug string) (winnerTokenID string, resolved bool, err error)
}
