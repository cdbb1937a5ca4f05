// Package mock provides a synthetic gateway provider so the watcher runs
// without a live data gateway.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"hash/fnv"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/tianyi-liu/premiumdiff/internal/calendar"
	"github.com/tianyi-liu/premiumdiff/internal/models"
	"github.com/tianyi-liu/premiumdiff/internal/provider"
)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// spotBase is a plausible mid price per underlying class prefix.
var spotBase = map[models.UnderlyingClass]float64{
	models.ClassCSI300:  3.5,
	models.ClassCSI500:  5.8,
	models.ClassSSE50:   2.7,
	models.ClassSTAR50:  1.0,
	models.ClassSTAR50E: 0.95,
}

var classPrefix = map[models.UnderlyingClass]string{
	models.ClassCSI300:  "510300",
	models.ClassCSI500:  "510500",
	models.ClassSSE50:   "510050",
	models.ClassSTAR50:  "588000",
	models.ClassSTAR50E: "588080",
}

// Provider serves synthetic boards, mappings, and random-walk quotes.
type Provider struct {
	mu    sync.Mutex
	spots map[models.UnderlyingClass]float64
}

var _ provider.Interface = (*Provider)(nil)

// NewProvider seeds the synthetic spot prices.
func NewProvider() *Provider {
	spots := make(map[models.UnderlyingClass]float64, len(spotBase))
	for class, base := range spotBase {
		spots[class] = base * (0.98 + secureFloat64()*0.04)
	}
	return &Provider{spots: spots}
}

// OptionBoard lists seven strikes bracketing the current spot, call and put
// per strike, for any requested class and month.
func (p *Provider) OptionBoard(_ context.Context, class models.UnderlyingClass, month models.ContractMonth) ([]provider.BoardRow, error) {
	spot := p.currentSpot(class)
	if spot == 0 {
		return nil, fmt.Errorf("unknown underlying class %q", class)
	}

	step := strikeStep(spot)
	center := math.Round(spot/step) * step
	rows := make([]provider.BoardRow, 0, 14)
	for i := -3; i <= 3; i++ {
		strike := center + float64(i)*step
		if strike <= 0 {
			continue
		}
		for _, typ := range []string{"C", "P"} {
			rows = append(rows, provider.BoardRow{
				TradingCode: tradingCode(class, typ, month, strike),
				StrikePrice: strike,
			})
		}
	}
	return rows, nil
}

// RiskIndicators maps every synthetic board code to a derived security id.
// Weekends return no rows, like the real feed.
func (p *Provider) RiskIndicators(ctx context.Context, date string) ([]provider.RiskIndicatorRow, error) {
	d, err := time.Parse("20060102", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	var rows []provider.RiskIndicatorRow
	for _, class := range models.AllUnderlyingClasses() {
		for _, month := range calendar.Months(d) {
			board, err := p.OptionBoard(ctx, class, month)
			if err != nil {
				continue
			}
			for _, b := range board {
				rows = append(rows, provider.RiskIndicatorRow{
					SecurityID:     "9" + b.TradingCode,
					ContractID:     b.TradingCode,
					ContractSymbol: b.TradingCode,
				})
			}
		}
	}
	return rows, nil
}

// QuoteFields synthesizes a two-sided quote around a stable per-contract
// mid, jittered per call.
func (p *Provider) QuoteFields(_ context.Context, securityID string) ([]provider.FieldValueRow, error) {
	h := fnv.New32a()
	h.Write([]byte(securityID)) //nolint:errcheck // fnv never errors
	base := 0.02 + float64(h.Sum32()%1000)/1000*0.08
	mid := base * (1 + (secureFloat64()-0.5)*0.02)
	spread := mid * 0.05
	return []provider.FieldValueRow{
		{Field: provider.FieldBid, Value: fmt.Sprintf("%.4f", mid-spread/2)},
		{Field: provider.FieldAsk, Value: fmt.Sprintf("%.4f", mid+spread/2)},
		{Field: provider.FieldLast, Value: fmt.Sprintf("%.4f", mid)},
	}, nil
}

// SpotFields random-walks the class spot matched by code prefix.
func (p *Provider) SpotFields(_ context.Context, symbol string) ([]provider.FieldValueRow, error) {
	class := classForSymbol(symbol)
	if class == "" {
		return nil, fmt.Errorf("unknown spot symbol %q", symbol)
	}

	p.mu.Lock()
	price := p.spots[class]
	price += (secureFloat64() - 0.5) * price * 0.002
	p.spots[class] = price
	p.mu.Unlock()

	return []provider.FieldValueRow{
		{Field: provider.FieldSpotLast, Value: fmt.Sprintf("%.4f", price)},
	}, nil
}

func (p *Provider) currentSpot(class models.UnderlyingClass) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spots[class]
}

func classForSymbol(symbol string) models.UnderlyingClass {
	code := strings.TrimPrefix(symbol, "sh")
	for class, prefix := range classPrefix {
		if code == prefix {
			return class
		}
	}
	return ""
}

// strikeStep mirrors exchange strike spacing tiers coarsely.
func strikeStep(spot float64) float64 {
	switch {
	case spot < 2:
		return 0.05
	case spot < 5:
		return 0.1
	default:
		return 0.25
	}
}

func tradingCode(class models.UnderlyingClass, typ string, month models.ContractMonth, strike float64) string {
	return fmt.Sprintf("%s%s%sM%05d", classPrefix[class], typ, month, int(math.Round(strike*10000)))
}

