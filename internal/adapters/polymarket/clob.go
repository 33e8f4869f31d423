package polymarket

// clob.go — quotes en tiempo real vía el endpoint batch de /books del CLOB.
//
// FetchQuotes dispara un goroutine por batch; el rate limiter (token bucket)
// en doWithRetry controla el ritmo automáticamente, sin semáforo explícito.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

const (
	booksPath = "/books"
	batchSize = 20 // máx token_ids por request a /books
)

// FetchQuotes devuelve el top of book de cada token. Los tokens sin book
// utilizable se omiten del mapa.
func (c *Client) FetchQuotes(ctx context.Context, tokenIDs []string) (map[string]domain.Tick, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.Tick{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		quotes map[string]domain.Tick
		err    error
		idx    int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		i, batch := i, batch
		wg.Add(1)
		go func() {
			defer wg.Done()
			quotes, err := c.fetchQuotesBatch(ctx, batch)
			resultCh <- batchResult{quotes: quotes, err: err, idx: i}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.Tick, len(tokenIDs))
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchQuotes batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.quotes {
			result[k] = v
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	slog.Debug("quotes fetched", "tokens", len(tokenIDs), "quotes", len(result))
	return result, nil
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := i + size
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchQuotesBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchQuotesBatch(ctx context.Context, tokenIDs []string) (map[string]domain.Tick, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	url := c.clobBase + booksPath
	if err := c.post(ctx, c.booksLimiter, url, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapQuotes(resp, time.Now().UTC()), nil
}
