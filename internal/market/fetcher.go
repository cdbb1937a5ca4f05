// Package market turns raw gateway field rows into typed quotes and fans
// quote requests out across a bounded worker pool.
package market

import (
	"context"
	"strconv"

	"github.com/tianyi-liu/premiumdiff/internal/models"
	"github.com/tianyi-liu/premiumdiff/internal/provider"
	"github.com/tianyi-liu/premiumdiff/internal/util"
)

// Fetcher retrieves and parses quotes for single instruments.
type Fetcher struct {
	provider provider.Interface
}

// NewFetcher creates a fetcher backed by the given provider.
func NewFetcher(p provider.Interface) *Fetcher {
	return &Fetcher{provider: p}
}

// Quote fetches the bid/ask/last for one quote-feed security id. A transport
// or gateway failure yields a quote with every field invalid and Error set;
// it never panics the refresh. Individual missing or non-positive fields are
// marked invalid field by field.
func (f *Fetcher) Quote(ctx context.Context, securityID string) models.Quote {
	rows, err := f.provider.QuoteFields(ctx, securityID)
	if err != nil {
		return models.Quote{Error: err.Error()}
	}
	return models.Quote{
		Bid:  fieldPrice(rows, provider.FieldBid),
		Ask:  fieldPrice(rows, provider.FieldAsk),
		Last: fieldPrice(rows, provider.FieldLast),
	}
}

// SpotPrice fetches the latest traded price of an underlying ETF.
func (f *Fetcher) SpotPrice(ctx context.Context, symbol string) (models.PriceField, error) {
	rows, err := f.provider.SpotFields(ctx, symbol)
	if err != nil {
		return models.PriceField{}, err
	}
	return fieldPrice(rows, provider.FieldSpotLast), nil
}

// fieldPrice extracts one named price from a field/value row set. Absent
// rows, unparseable values, and non-positive prices all come back invalid;
// each field degrades independently of its siblings.
func fieldPrice(rows []provider.FieldValueRow, field string) models.PriceField {
	for _, row := range rows {
		if row.Field != field {
			continue
		}
		v, err := strconv.ParseFloat(row.Value, 64)
		if err != nil || v <= 0 {
			return models.PriceField{}
		}
		return models.Price(util.RoundQuote(v))
	}
	return models.PriceField{}
}
