// Package engine drives the refresh cycle: resolve the current selection
// into contract legs, fan the quotes out, value both spread groups, and
// fold the differential into tracking state.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tianyi-liu/premiumdiff/internal/catalog"
	"github.com/tianyi-liu/premiumdiff/internal/market"
	"github.com/tianyi-liu/premiumdiff/internal/models"
	"github.com/tianyi-liu/premiumdiff/internal/storage"
	"github.com/tianyi-liu/premiumdiff/internal/tracking"
	"github.com/tianyi-liu/premiumdiff/internal/valuation"
)

// DefaultInterval is the auto-refresh cadence.
const DefaultInterval = 5 * time.Second

// GroupSelection is one side of the comparison.
type GroupSelection struct {
	Month     models.ContractMonth  `json:"month"`
	Strike    float64               `json:"strike"`
	Direction models.TradeDirection `json:"direction"`
}

func (g GroupSelection) complete() bool {
	return g.Month.Valid() && g.Strike > 0 && g.Direction.Valid()
}

// Selection is the full user selection the engine refreshes against.
type Selection struct {
	Class  models.UnderlyingClass `json:"class"`
	Group1 GroupSelection         `json:"group1"`
	Group2 GroupSelection         `json:"group2"`
}

// Complete reports whether every field needed for a refresh is set.
func (s Selection) Complete() bool {
	return s.Class != "" && s.Group1.complete() && s.Group2.complete()
}

// Result is one assembled refresh cycle.
type Result struct {
	ID               string                   `json:"id"`
	At               time.Time                `json:"at"`
	Class            models.UnderlyingClass   `json:"class"`
	DisplayName      string                   `json:"display_name"`
	UnderlyingSymbol string                   `json:"underlying_symbol"`
	UnderlyingPrice  models.PriceField        `json:"underlying_price"`
	Legs             []models.LegResult       `json:"legs"`
	Group1           *models.SpreadGroup      `json:"group1"`
	Group2           *models.SpreadGroup      `json:"group2"`
	Differential     *float64                 `json:"differential"`
	Today            *models.ExtremumRecord   `json:"today"`
	AllTime          *models.ExtremumRecord   `json:"all_time"`
	History          []models.PremiumSnapshot `json:"history"`
	Stats            *tracking.HistoryStats   `json:"stats"`
}

// Config wires an engine.
type Config struct {
	Logger   *logrus.Logger
	Catalog  *catalog.Catalog
	Fetcher  *market.Fetcher
	Batch    *market.BatchFetcher
	Tracker  *tracking.Tracker
	Store    *storage.Store // optional
	Interval time.Duration
	Now      func() time.Time
}

// Engine owns the tracker and the current selection. All exported methods
// are safe for concurrent use; Refresh itself is serialized by the driver.
type Engine struct {
	log      *logrus.Logger
	catalog  *catalog.Catalog
	fetcher  *market.Fetcher
	batch    *market.BatchFetcher
	tracker  *tracking.Tracker
	store    *storage.Store
	interval time.Duration
	now      func() time.Time

	mu               sync.Mutex
	sel              Selection
	auto             bool
	refreshRequested bool
	lastAuto         time.Time
	last             *Result
}

// New creates an engine. Interval <= 0 selects DefaultInterval.
func New(cfg Config) *Engine {
	e := &Engine{
		log:      cfg.Logger,
		catalog:  cfg.Catalog,
		fetcher:  cfg.Fetcher,
		batch:    cfg.Batch,
		tracker:  cfg.Tracker,
		store:    cfg.Store,
		interval: cfg.Interval,
		now:      cfg.Now,
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// SelectUnderlying switches the underlying class, keeping both group
// selections so a class switch only needs months/strikes re-picked when
// they are no longer listed.
func (e *Engine) SelectUnderlying(class models.UnderlyingClass) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sel.Class = class
}

// SetSelection replaces the whole selection and requests a refresh so the
// next tick reprices immediately.
func (e *Engine) SetSelection(sel Selection) error {
	if sel.Class != "" {
		if _, ok := models.ClassByName(string(sel.Class)); !ok {
			return fmt.Errorf("unknown underlying class %q", sel.Class)
		}
	}
	for i, g := range []GroupSelection{sel.Group1, sel.Group2} {
		if g.Direction != "" && !g.Direction.Valid() {
			return fmt.Errorf("group %d: invalid direction %q", i+1, g.Direction)
		}
		if g.Month != "" && !g.Month.Valid() {
			return fmt.Errorf("group %d: invalid contract month %q", i+1, g.Month)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.sel = sel
	e.refreshRequested = true
	return nil
}

// Selection returns the current selection.
func (e *Engine) Selection() Selection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sel
}

// TriggerRefresh requests one refresh on the next tick regardless of the
// auto-refresh cadence.
func (e *Engine) TriggerRefresh() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshRequested = true
}

// SetAutoRefresh enables or disables the periodic cadence.
func (e *Engine) SetAutoRefresh(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auto = enabled
}

// AutoRefresh reports the current cadence state.
func (e *Engine) AutoRefresh() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.auto
}

// LastResult returns the most recent refresh result, nil before the first.
func (e *Engine) LastResult() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// RefreshDue decides whether the driver should refresh now. An incomplete
// selection never refreshes. Otherwise a refresh is due on an explicit
// trigger, when auto-refresh is on and the cadence elapsed, or when there
// is no prior result yet.
func (e *Engine) RefreshDue(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.sel.Complete() {
		return false
	}
	if e.refreshRequested {
		return true
	}
	if e.last == nil {
		return true
	}
	return e.auto && now.Sub(e.lastAuto) >= e.interval
}

// Refresh runs one full cycle. Per-leg failures degrade the result; only a
// catalog that cannot serve at all fails the cycle, leaving tracking state
// untouched.
func (e *Engine) Refresh(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	sel := e.sel
	e.refreshRequested = false
	e.mu.Unlock()

	if !sel.Complete() {
		return nil, fmt.Errorf("selection incomplete")
	}

	now := e.now()
	e.tracker.Rollover(now)

	symbol := valuation.ResolveUnderlyingSymbol(sel.Class)
	underlying, err := e.fetcher.SpotPrice(ctx, symbol)
	if err != nil {
		e.log.WithError(err).Warnf("spot price unavailable for %s", symbol)
		underlying = models.PriceField{}
	}

	legs, err := e.resolveLegs(ctx, sel)
	if err != nil {
		return nil, err
	}

	results := e.batch.Fetch(ctx, legs)
	byName := make(map[string]models.LegResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	g1 := e.priceGroup(sel.Group1, byName, underlying)
	g2 := e.priceGroup(sel.Group2, byName, underlying)

	res := &Result{
		ID:               uuid.NewString(),
		At:               now.In(models.BeijingZone()),
		Class:            sel.Class,
		DisplayName:      sel.Class.DisplayName(),
		UnderlyingSymbol: symbol,
		UnderlyingPrice:  underlying,
		Legs:             e.orderLegs(sel, byName),
		Group1:           g1,
		Group2:           g2,
	}

	if diff, ok := valuation.Differential(g1, g2); ok {
		res.Differential = &diff
		e.tracker.Observe(now, diff, g1.Premium, g2.Premium)
		e.persist(now)
	} else {
		e.log.Debug("differential undefined this cycle, tracking unchanged")
	}

	res.Today = e.tracker.TodayBest()
	res.AllTime = e.tracker.AllTimeBest()
	res.History = e.tracker.History()
	res.Stats = e.tracker.Stats()

	e.mu.Lock()
	e.last = res
	e.lastAuto = now
	e.mu.Unlock()

	e.logResult(res)
	return res, nil
}

// resolveLegs maps both group selections to four leg requests. A leg whose
// contract is unlisted or unmapped still gets a request; the batch fetcher
// shapes those into errored results.
func (e *Engine) resolveLegs(ctx context.Context, sel Selection) ([]models.LegRequest, error) {
	legs := make([]models.LegRequest, 0, 4)
	for _, g := range []GroupSelection{sel.Group1, sel.Group2} {
		pair, err := e.catalog.ContractPair(ctx, sel.Class, g.Month, g.Strike)
		if err != nil {
			return nil, fmt.Errorf("resolve contracts for %s %s: %w", g.Month, models.FormatStrike(g.Strike), err)
		}
		legs = append(legs,
			e.legRequest(ctx, models.OptionTypeCall, g, pair.CallCode),
			e.legRequest(ctx, models.OptionTypePut, g, pair.PutCode),
		)
	}
	return dedupeLegs(legs), nil
}

func (e *Engine) legRequest(ctx context.Context, typ models.OptionType, g GroupSelection, code string) models.LegRequest {
	leg := models.LegRequest{
		Name:        models.LegName(typ, g.Month, g.Strike),
		Type:        typ,
		Month:       g.Month,
		Strike:      g.Strike,
		TradingCode: code,
	}
	if code != "" {
		if id, ok, err := e.catalog.ResolveQuoteID(ctx, code); err == nil && ok {
			leg.QuoteID = id
		}
	}
	return leg
}

// dedupeLegs drops duplicate names so both groups selecting the same
// (month, strike) fetch each contract once.
func dedupeLegs(legs []models.LegRequest) []models.LegRequest {
	seen := make(map[string]struct{}, len(legs))
	out := legs[:0]
	for _, leg := range legs {
		if _, ok := seen[leg.Name]; ok {
			continue
		}
		seen[leg.Name] = struct{}{}
		out = append(out, leg)
	}
	return out
}

func (e *Engine) priceGroup(g GroupSelection, byName map[string]models.LegResult, underlying models.PriceField) *models.SpreadGroup {
	if !underlying.Valid {
		return nil
	}
	call := byName[models.LegName(models.OptionTypeCall, g.Month, g.Strike)]
	put := byName[models.LegName(models.OptionTypePut, g.Month, g.Strike)]
	return valuation.GroupPremium(g.Direction, call, put, underlying.Value, g.Strike, g.Month)
}

// orderLegs lists the fetched legs in selection order, call before put per
// group, with the used quote side stamped on each.
func (e *Engine) orderLegs(sel Selection, byName map[string]models.LegResult) []models.LegResult {
	seen := make(map[string]struct{}, 4)
	out := make([]models.LegResult, 0, 4)
	for _, g := range []GroupSelection{sel.Group1, sel.Group2} {
		callSide, putSide := valuation.UsedSides(g.Direction)
		for _, pick := range []struct {
			typ  models.OptionType
			side string
		}{
			{models.OptionTypeCall, callSide},
			{models.OptionTypePut, putSide},
		} {
			name := models.LegName(pick.typ, g.Month, g.Strike)
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			leg := byName[name]
			leg.UsedSide = pick.side
			out = append(out, leg)
		}
	}
	return out
}

func (e *Engine) persist(now time.Time) {
	if e.store == nil {
		return
	}
	err := e.store.Save(&storage.Snapshot{
		Tracking:    e.tracker.Snapshot(),
		LastUpdated: now,
	})
	if err != nil {
		e.log.WithError(err).Warn("tracking snapshot save failed")
	}
}

func (e *Engine) logResult(res *Result) {
	fields := logrus.Fields{
		"refresh_id": res.ID,
		"class":      res.DisplayName,
	}
	if res.Differential != nil {
		fields["differential"] = *res.Differential
	}
	e.log.WithFields(fields).Info("refresh complete")
}
