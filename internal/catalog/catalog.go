// Package catalog builds and caches the set of listed option instruments and
// the trading-code to quote-feed-id mapping used to resolve user selections
// into fetchable contracts.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tianyi-liu/premiumdiff/internal/calendar"
	"github.com/tianyi-liu/premiumdiff/internal/models"
	"github.com/tianyi-liu/premiumdiff/internal/provider"
)

const (
	// defaultCacheTTL is how long a built catalog is served before a
	// wholesale rebuild. Keyed by wall-clock age only, not date rollover.
	defaultCacheTTL = 12 * time.Hour
	// defaultLookbackDays is how many business days the mapping scan walks
	// backward before degrading to an empty mapping.
	defaultLookbackDays = 10
)

// ErrNoBoardData is returned when no (class, month) board request yielded
// any instruments at all.
var ErrNoBoardData = errors.New("option board returned no instruments")

// Pair holds the trading codes for the call/put legs of one
// (month, strike) selection. An empty code means that side is not listed.
type Pair struct {
	CallCode string
	PutCode  string
}

// Config tunes catalog construction.
type Config struct {
	CacheTTL     time.Duration
	LookbackDays int
	// Now is overridable for tests; defaults to time.Now.
	Now func() time.Time
}

// Catalog caches instruments and code mappings built from the gateway.
// Reads are safe for concurrent use; rebuilds swap the whole snapshot.
type Catalog struct {
	provider     provider.Interface
	log          *logrus.Logger
	cacheTTL     time.Duration
	lookbackDays int
	now          func() time.Time

	mu   sync.RWMutex
	snap *snapshot
}

type snapshot struct {
	builtAt     time.Time
	instruments map[models.UnderlyingClass][]models.Instrument
	quoteIDs    map[string]string // trading code -> security id
	mappingDate string            // business date the mapping was built from
}

// New creates a catalog backed by the given provider.
func New(p provider.Interface, log *logrus.Logger, cfg Config) *Catalog {
	c := &Catalog{
		provider:     p,
		log:          log,
		cacheTTL:     cfg.CacheTTL,
		lookbackDays: cfg.LookbackDays,
		now:          cfg.Now,
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = defaultCacheTTL
	}
	if c.lookbackDays <= 0 {
		c.lookbackDays = defaultLookbackDays
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Instruments returns the listed instruments for one underlying class, in
// board order.
func (c *Catalog) Instruments(ctx context.Context, class models.UnderlyingClass) ([]models.Instrument, error) {
	snap, err := c.ensureFresh(ctx)
	if err != nil {
		return nil, err
	}
	return snap.instruments[class], nil
}

// Months returns the distinct contract months listed for a class, sorted.
func (c *Catalog) Months(ctx context.Context, class models.UnderlyingClass) ([]models.ContractMonth, error) {
	instruments, err := c.Instruments(ctx, class)
	if err != nil {
		return nil, err
	}
	seen := make(map[models.ContractMonth]struct{})
	var months []models.ContractMonth
	for _, inst := range instruments {
		if _, ok := seen[inst.Month]; !ok {
			seen[inst.Month] = struct{}{}
			months = append(months, inst.Month)
		}
	}
	sort.Slice(months, func(i, j int) bool { return months[i] < months[j] })
	return months, nil
}

// Strikes returns the distinct strikes listed for a class and month, sorted
// ascending.
func (c *Catalog) Strikes(ctx context.Context, class models.UnderlyingClass, month models.ContractMonth) ([]float64, error) {
	instruments, err := c.Instruments(ctx, class)
	if err != nil {
		return nil, err
	}
	seen := make(map[float64]struct{})
	var strikes []float64
	for _, inst := range instruments {
		if inst.Month != month {
			continue
		}
		if _, ok := seen[inst.Strike]; !ok {
			seen[inst.Strike] = struct{}{}
			strikes = append(strikes, inst.Strike)
		}
	}
	sort.Float64s(strikes)
	return strikes, nil
}

// ContractPair resolves the call and put trading codes for an exact
// (month, strike) selection. Strike comparison is exact on the parsed
// value; a missing side is reported as an empty code, never synthesized.
func (c *Catalog) ContractPair(ctx context.Context, class models.UnderlyingClass, month models.ContractMonth, strike float64) (Pair, error) {
	instruments, err := c.Instruments(ctx, class)
	if err != nil {
		return Pair{}, err
	}

	var pair Pair
	for _, inst := range instruments {
		if inst.Month != month || inst.Strike != strike {
			continue
		}
		switch inst.Type {
		case models.OptionTypeCall:
			if pair.CallCode == "" {
				pair.CallCode = inst.TradingCode
			}
		case models.OptionTypePut:
			if pair.PutCode == "" {
				pair.PutCode = inst.TradingCode
			}
		}
	}
	return pair, nil
}

// ResolveQuoteID maps a trading code to its quote-feed security id. The
// second return is false when the code is unknown or the mapping is in
// degraded (empty) mode; callers must treat that as "instrument unusable
// this session", not as a fatal condition.
func (c *Catalog) ResolveQuoteID(ctx context.Context, tradingCode string) (string, bool, error) {
	snap, err := c.ensureFresh(ctx)
	if err != nil {
		return "", false, err
	}
	id, ok := snap.quoteIDs[tradingCode]
	return id, ok, nil
}

// MappingDate returns the business date the code mapping was built from, or
// empty when the mapping is degraded.
func (c *Catalog) MappingDate(ctx context.Context) (string, error) {
	snap, err := c.ensureFresh(ctx)
	if err != nil {
		return "", err
	}
	return snap.mappingDate, nil
}

// ensureFresh serves the cached snapshot inside the TTL window and rebuilds
// wholesale outside it. A failed rebuild keeps the previous snapshot.
func (c *Catalog) ensureFresh(ctx context.Context) (*snapshot, error) {
	c.mu.RLock()
	snap := c.snap
	c.mu.RUnlock()
	if snap != nil && c.now().Sub(snap.builtAt) < c.cacheTTL {
		return snap, nil
	}

	fresh, err := c.build(ctx)
	if err != nil {
		if snap != nil {
			c.log.WithError(err).Warn("catalog rebuild failed, serving stale snapshot")
			return snap, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.snap = fresh
	c.mu.Unlock()
	return fresh, nil
}

func (c *Catalog) build(ctx context.Context) (*snapshot, error) {
	now := c.now()
	months := calendar.Months(now)

	instruments := make(map[models.UnderlyingClass][]models.Instrument)
	total := 0
	for _, class := range models.AllUnderlyingClasses() {
		for _, month := range months {
			rows, err := c.provider.OptionBoard(ctx, class, month)
			if err != nil {
				c.log.WithError(err).Warnf("board fetch failed for %s %s, skipping", class.DisplayName(), month)
				continue
			}
			if len(rows) == 0 {
				continue
			}
			for _, row := range rows {
				inst, ok := instrumentFromRow(class, month, row)
				if !ok {
					continue
				}
				instruments[class] = append(instruments[class], inst)
				total++
			}
		}
	}
	if total == 0 {
		return nil, ErrNoBoardData
	}

	quoteIDs, mappingDate := c.buildCodeMapping(ctx, now)
	if len(quoteIDs) == 0 {
		c.log.Warnf("code mapping degraded to empty after scanning %d business days", c.lookbackDays)
	}

	// Attach quote ids where known.
	for class, list := range instruments {
		for i := range list {
			list[i].QuoteID = quoteIDs[list[i].TradingCode]
		}
		instruments[class] = list
	}

	c.log.Infof("catalog built: %d instruments, %d code mappings (mapping date %q)",
		total, len(quoteIDs), mappingDate)

	return &snapshot{
		builtAt:     now,
		instruments: instruments,
		quoteIDs:    quoteIDs,
		mappingDate: mappingDate,
	}, nil
}

// instrumentFromRow derives an Instrument from one board row. The contract
// month embedded in the trading code wins over the requested month when both
// are present; malformed codes fall back to the requested month.
func instrumentFromRow(class models.UnderlyingClass, requested models.ContractMonth, row provider.BoardRow) (models.Instrument, bool) {
	if row.TradingCode == "" {
		return models.Instrument{}, false
	}
	typ, ok := models.OptionTypeFromCode(row.TradingCode)
	if !ok {
		return models.Instrument{}, false
	}
	month := requested
	if m, ok := models.MonthFromCode(row.TradingCode); ok {
		month = m
	}
	return models.Instrument{
		Class:       class,
		Month:       month,
		Strike:      row.StrikePrice,
		Type:        typ,
		TradingCode: row.TradingCode,
	}, true
}

// buildCodeMapping scans recent business days backward from today and uses
// the first day whose risk-indicator feed returns complete rows. When every
// attempted day fails the mapping is empty and lookups degrade.
func (c *Catalog) buildCodeMapping(ctx context.Context, now time.Time) (map[string]string, string) {
	for _, date := range previousBusinessDays(now, c.lookbackDays) {
		rows, err := c.provider.RiskIndicators(ctx, date)
		if err != nil {
			c.log.WithError(err).Debugf("risk indicators unavailable for %s", date)
			continue
		}
		if len(rows) == 0 || !rows[0].Complete() {
			continue
		}

		mapping := make(map[string]string, len(rows))
		for _, row := range rows {
			if !row.Complete() {
				continue
			}
			mapping[row.ContractID] = row.SecurityID
		}
		if len(mapping) > 0 {
			return mapping, date
		}
	}
	return map[string]string{}, ""
}

// previousBusinessDays lists the most recent n weekdays strictly before
// today, newest first, formatted YYYYMMDD. Weekends are excluded; exchange
// holidays are not known here and are handled by the per-date fallback.
func previousBusinessDays(today time.Time, n int) []string {
	dates := make([]string, 0, n)
	day := today
	for len(dates) < n {
		day = day.AddDate(0, 0, -1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		dates = append(dates, day.Format("20060102"))
	}
	return dates
}

// String describes the cached snapshot for logging.
func (c *Catalog) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return "catalog<empty>"
	}
	total := 0
	for _, list := range c.snap.instruments {
		total += len(list)
	}
	return fmt.Sprintf("catalog<%d instruments, built %s>", total, c.snap.builtAt.Format(time.RFC3339))
}
