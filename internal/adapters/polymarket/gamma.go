package polymarket

// gamma.go — descubrimiento de mercados y resolución vía la Gamma API.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	gammaPageSize    = 100
	gammaMaxPages    = 20 // corta la paginación ante una ventana absurda
)

// FetchClosingMarkets devuelve los mercados binarios abiertos cuyo endDate
// cae dentro de [now, now+window]. Pagina por offset hasta agotar resultados.
func (c *Client) FetchClosingMarkets(ctx context.Context, now time.Time, window time.Duration) ([]domain.Market, error) {
	var all []domain.Market
	skipped := 0

	for page := 0; page < gammaMaxPages; page++ {
		q := url.Values{}
		q.Set("active", "true")
		q.Set("closed", "false")
		q.Set("end_date_min", now.UTC().Format(time.RFC3339))
		q.Set("end_date_max", now.UTC().Add(window).Format(time.RFC3339))
		q.Set("limit", fmt.Sprintf("%d", gammaPageSize))
		q.Set("offset", fmt.Sprintf("%d", page*gammaPageSize))

		var resp gammaMarketsResponse
		reqURL := c.gammaBase + gammaMarketsPath + "?" + q.Encode()
		if err := c.get(ctx, c.gammaLimiter, reqURL, &resp); err != nil {
			return nil, fmt.Errorf("gamma.FetchClosingMarkets: page %d: %w", page, err)
		}

		for _, gm := range resp {
			m, err := mapGammaMarket(gm)
			if err != nil {
				// Mercados multi-outcome o incompletos: fuera
				skipped++
				continue
			}
			all = append(all, m)
		}

		if len(resp) < gammaPageSize {
			break
		}
	}

	slog.Debug("closing markets fetched",
		"total", len(all),
		"skipped", skipped,
		"window", window,
	)
	return all, nil
}

// FetchResolution consulta el resultado de un mercado por slug. Devuelve
// resolved=false mientras Gamma no publique los outcome prices finales.
func (c *Client) FetchResolution(ctx context.Context, slug string) (string, bool, error) {
	q := url.Values{}
	q.Set("slug", slug)

	var resp gammaMarketsResponse
	reqURL := c.gammaBase + gammaMarketsPath + "?" + q.Encode()
	if err := c.get(ctx, c.gammaLimiter, reqURL, &resp); err != nil {
		return "", false, fmt.Errorf("gamma.FetchResolution: %s: %w", slug, err)
	}
	if len(resp) == 0 {
		return "", false, fmt.Errorf("gamma.FetchResolution: mercado %q no encontrado", slug)
	}

	gm := resp[0]
	if !gm.Closed {
		return "", false, nil
	}
	winner, ok := winnerFromPrices(gm)
	if !ok {
		// Cerrado pero sin precios finales todavía
		return "", false, nil
	}
	return winner, true, nil
}
