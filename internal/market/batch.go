package market

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tianyi-liu/premiumdiff/internal/models"
)

// defaultWidth bounds how many quote requests run concurrently.
const defaultWidth = 4

// BatchFetcher fetches a set of legs concurrently. Per-leg failures are
// embedded in the leg's Quote; the batch itself only fails when the context
// is cancelled.
type BatchFetcher struct {
	fetcher *Fetcher
	width   int
}

// NewBatchFetcher creates a batch fetcher. width <= 0 selects the default.
func NewBatchFetcher(f *Fetcher, width int) *BatchFetcher {
	if width <= 0 {
		width = defaultWidth
	}
	return &BatchFetcher{fetcher: f, width: width}
}

// Fetch resolves quotes for all legs. Results arrive in completion order,
// not request order; callers match legs back by Name. Legs without a
// trading code or quote id are reported as errored without touching the
// network.
func (b *BatchFetcher) Fetch(ctx context.Context, legs []models.LegRequest) []models.LegResult {
	results := make(chan models.LegResult, len(legs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.width)
	for _, leg := range legs {
		leg := leg
		g.Go(func() error {
			results <- b.fetchOne(ctx, leg)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors

	close(results)
	out := make([]models.LegResult, 0, len(legs))
	for res := range results {
		out = append(out, res)
	}
	return out
}

func (b *BatchFetcher) fetchOne(ctx context.Context, leg models.LegRequest) models.LegResult {
	res := models.LegResult{
		Name:        leg.Name,
		Type:        leg.Type,
		Month:       leg.Month,
		Strike:      leg.Strike,
		TradingCode: leg.TradingCode,
	}
	switch {
	case leg.TradingCode == "":
		res.Quote = models.Quote{Error: "contract not listed"}
	case leg.QuoteID == "":
		res.Quote = models.Quote{Error: "no quote id for " + leg.TradingCode}
	default:
		res.Quote = b.fetcher.Quote(ctx, leg.QuoteID)
	}
	return res
}
