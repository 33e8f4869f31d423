package polymarket

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// mapGammaMarket convierte un gammaMarket DTO a domain.Market. Descarta
// mercados que no son binarios YES/NO o que vienen sin token ids.
func mapGammaMarket(gm gammaMarket) (domain.Market, error) {
	tokenIDs, err := parseStringArray(gm.ClobTokenIDs)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse clobTokenIds: %w", err)
	}
	outcomes, err := parseStringArray(gm.Outcomes)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse outcomes: %w", err)
	}
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return domain.Market{}, fmt.Errorf("no es mercado binario: %d tokens, %d outcomes",
			len(tokenIDs), len(outcomes))
	}

	m := domain.Market{
		Slug:     gm.Slug,
		Question: gm.Question,
	}

	// Gamma lista los outcomes en el mismo orden que los token ids.
	for i, outcome := range outcomes {
		switch strings.ToUpper(strings.TrimSpace(outcome)) {
		case "YES":
			m.YesTokenID = tokenIDs[i]
		case "NO":
			m.NoTokenID = tokenIDs[i]
		}
	}
	if m.YesTokenID == "" || m.NoTokenID == "" {
		return domain.Market{}, fmt.Errorf("outcomes no son YES/NO: %v", outcomes)
	}

	m.EndDate, err = parseGammaDate(gm.EndDateISO)
	if err != nil {
		return domain.Market{}, fmt.Errorf("parse endDate %q: %w", gm.EndDateISO, err)
	}
	return m, nil
}

// winnerFromPrices deriva el token ganador de los outcomePrices de un mercado
// resuelto ("1" para el ganador, "0" para el perdedor).
func winnerFromPrices(gm gammaMarket) (string, bool) {
	tokenIDs, err := parseStringArray(gm.ClobTokenIDs)
	if err != nil || len(tokenIDs) != 2 {
		return "", false
	}
	prices, err := parseStringArray(gm.OutcomePrices)
	if err != nil || len(prices) != 2 {
		return "", false
	}
	for i, p := range prices {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return "", false
		}
		if v >= 0.999 {
			return tokenIDs[i], true
		}
	}
	return "", false
}

// parseStringArray decodifica el doble encoding de Gamma: un string JSON que
// contiene a su vez un array JSON de strings.
func parseStringArray(raw string) ([]string, error) {
	if raw == "" {
		return nil, fmt.Errorf("campo vacío")
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// parseGammaDate intenta los formatos de fecha que usa Polymarket.
func parseGammaDate(raw string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("formato desconocido")
}

// mapQuotes convierte la respuesta batch de /books a un map tokenID→Tick,
// quedándose solo con el top of book. Los tokens sin book utilizable se omiten.
func mapQuotes(raw []orderBookResponse, now time.Time) map[string]domain.Tick {
	result := make(map[string]domain.Tick, len(raw))
	for _, r := range raw {
		tick := domain.Tick{
			TokenID:   r.AssetID,
			BestBid:   bestPrice(r.Bids, false),
			BestAsk:   bestPrice(r.Asks, true),
			Timestamp: now,
		}
		if !tick.Usable() {
			continue
		}
		result[r.AssetID] = tick
	}
	return result
}

// bestPrice extrae el mejor nivel del lado dado: mínimo para asks, máximo
// para bids. Ignora niveles con precio o tamaño no positivos.
func bestPrice(raw []bookEntryRaw, wantMin bool) float64 {
	best := 0.0
	for _, r := range raw {
		price, err := strconv.ParseFloat(r.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(r.Size, 64)
		if err != nil || size <= 0 {
			continue
		}
		if best == 0 || (wantMin && price < best) || (!wantMin && price > best) {
			best = price
		}
	}
	return best
}
