package engine

import (
	"context"
	"errors"
	"io"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianyi-liu/premiumdiff/internal/catalog"
	"github.com/tianyi-liu/premiumdiff/internal/market"
	"github.com/tianyi-liu/premiumdiff/internal/models"
	"github.com/tianyi-liu/premiumdiff/internal/provider"
	"github.com/tianyi-liu/premiumdiff/internal/storage"
	"github.com/tianyi-liu/premiumdiff/internal/tracking"
)

var testNow = time.Date(2025, time.September, 1, 10, 0, 0, 0, models.BeijingZone())

type fakeProvider struct {
	boards   map[string][]provider.BoardRow
	risk     map[string][]provider.RiskIndicatorRow
	quotes   map[string][]provider.FieldValueRow
	spot     map[string][]provider.FieldValueRow
	boardErr error
	quoteErr map[string]error
	spotErr  error
}

func key(class models.UnderlyingClass, month models.ContractMonth) string {
	return string(class) + "|" + string(month)
}

func (f *fakeProvider) OptionBoard(_ context.Context, class models.UnderlyingClass, month models.ContractMonth) ([]provider.BoardRow, error) {
	if f.boardErr != nil {
		return nil, f.boardErr
	}
	return f.boards[key(class, month)], nil
}

func (f *fakeProvider) RiskIndicators(_ context.Context, date string) ([]provider.RiskIndicatorRow, error) {
	return f.risk[date], nil
}

func (f *fakeProvider) QuoteFields(_ context.Context, securityID string) ([]provider.FieldValueRow, error) {
	if err := f.quoteErr[securityID]; err != nil {
		return nil, err
	}
	return f.quotes[securityID], nil
}

func (f *fakeProvider) SpotFields(_ context.Context, symbol string) ([]provider.FieldValueRow, error) {
	if f.spotErr != nil {
		return nil, f.spotErr
	}
	return f.spot[symbol], nil
}

func quoteRows(bid, ask, last string) []provider.FieldValueRow {
	return []provider.FieldValueRow{
		{Field: provider.FieldBid, Value: bid},
		{Field: provider.FieldAsk, Value: ask},
		{Field: provider.FieldLast, Value: last},
	}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		boards: map[string][]provider.BoardRow{
			key(models.ClassCSI300, "2509"): {
				{TradingCode: "510300C2509M03500", StrikePrice: 3.5},
				{TradingCode: "510300P2509M03500", StrikePrice: 3.5},
			},
			key(models.ClassCSI300, "2512"): {
				{TradingCode: "510300C2512M03500", StrikePrice: 3.5},
				{TradingCode: "510300P2512M03500", StrikePrice: 3.5},
			},
		},
		risk: map[string][]provider.RiskIndicatorRow{
			"20250829": {
				{SecurityID: "q-c09", ContractID: "510300C2509M03500", ContractSymbol: "300ETF购9月3500"},
				{SecurityID: "q-p09", ContractID: "510300P2509M03500", ContractSymbol: "300ETF沽9月3500"},
				{SecurityID: "q-c12", ContractID: "510300C2512M03500", ContractSymbol: "300ETF购12月3500"},
				{SecurityID: "q-p12", ContractID: "510300P2512M03500", ContractSymbol: "300ETF沽12月3500"},
			},
		},
		quotes: map[string][]provider.FieldValueRow{
			"q-c09": quoteRows("0.0505", "0.0512", "0.0508"),
			"q-p09": quoteRows("0.0522", "0.0530", "0.0526"),
			"q-c12": quoteRows("0.0705", "0.0712", "0.0708"),
			"q-p12": quoteRows("0.0759", "0.0766", "0.0762"),
		},
		spot: map[string][]provider.FieldValueRow{
			"sh510300": {{Field: provider.FieldSpotLast, Value: "3.5"}},
		},
		quoteErr: map[string]error{},
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEngine(t *testing.T, p provider.Interface, store *storage.Store) *Engine {
	t.Helper()
	log := testLogger()
	cat := catalog.New(p, log, catalog.Config{Now: func() time.Time { return testNow }})
	fetcher := market.NewFetcher(p)
	return New(Config{
		Logger:  log,
		Catalog: cat,
		Fetcher: fetcher,
		Batch:   market.NewBatchFetcher(fetcher, 4),
		Tracker: tracking.New(50),
		Store:   store,
		Now:     func() time.Time { return testNow },
	})
}

func fullSelection() Selection {
	return Selection{
		Class:  models.ClassCSI300,
		Group1: GroupSelection{Month: "2509", Strike: 3.5, Direction: models.DirectionBuy},
		Group2: GroupSelection{Month: "2512", Strike: 3.5, Direction: models.DirectionBuy},
	}
}

func TestEngine_RefreshFullCycle(t *testing.T) {
	e := newTestEngine(t, newFakeProvider(), nil)
	require.NoError(t, e.SetSelection(fullSelection()))

	res, err := e.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "300ETF", res.DisplayName)
	assert.Equal(t, "sh510300", res.UnderlyingSymbol)
	assert.True(t, res.UnderlyingPrice.Valid)
	assert.Equal(t, 3.5, res.UnderlyingPrice.Value)
	assert.Equal(t, "UTC+8", res.At.Location().String())

	require.NotNil(t, res.Group1)
	require.NotNil(t, res.Group2)
	assert.InDelta(t, 0.0010, res.Group1.Premium, 1e-9)
	assert.InDelta(t, 0.0047, res.Group2.Premium, 1e-9)

	require.NotNil(t, res.Differential)
	assert.InDelta(t, 0.0037, *res.Differential, 1e-9)

	require.Len(t, res.Legs, 4)
	assert.Equal(t, "Call 2509-3.5", res.Legs[0].Name)
	assert.Equal(t, "ask", res.Legs[0].UsedSide)
	assert.Equal(t, "Put 2509-3.5", res.Legs[1].Name)
	assert.Equal(t, "bid", res.Legs[1].UsedSide)

	require.NotNil(t, res.Today)
	assert.InDelta(t, 0.0037, res.Today.Value, 1e-9)
	require.NotNil(t, res.AllTime)
	require.Len(t, res.History, 1)
	require.NotNil(t, res.Stats)
	assert.Equal(t, 1, res.Stats.Count)

	assert.Same(t, res, e.LastResult())
}

func TestEngine_SharedLegsFetchedOnce(t *testing.T) {
	sel := fullSelection()
	sel.Group2 = GroupSelection{Month: "2509", Strike: 3.5, Direction: models.DirectionSell}

	e := newTestEngine(t, newFakeProvider(), nil)
	require.NoError(t, e.SetSelection(sel))

	res, err := e.Refresh(context.Background())
	require.NoError(t, err)

	// Both groups share the contracts, so only two legs are fetched.
	assert.Len(t, res.Legs, 2)
	require.NotNil(t, res.Group1)
	require.NotNil(t, res.Group2)
	// Buy: ask 0.0512 vs bid 0.0522; Sell: bid 0.0505 vs ask 0.0530.
	assert.InDelta(t, 0.0010, res.Group1.Premium, 1e-9)
	assert.InDelta(t, 0.0025, res.Group2.Premium, 1e-9)
}

func TestEngine_FailedLegDegradesGroup(t *testing.T) {
	p := newFakeProvider()
	p.quoteErr["q-c12"] = errors.New("gateway timeout")

	e := newTestEngine(t, p, nil)
	require.NoError(t, e.SetSelection(fullSelection()))

	res, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, res.Group1)
	assert.Nil(t, res.Group2)
	assert.Nil(t, res.Differential)
	assert.Empty(t, res.History, "undefined differential must not be tracked")
	assert.Nil(t, res.Today)
}

func TestEngine_UnlistedContractDegrades(t *testing.T) {
	sel := fullSelection()
	sel.Group2.Strike = 3.8 // not on the board

	e := newTestEngine(t, newFakeProvider(), nil)
	require.NoError(t, e.SetSelection(sel))

	res, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.Nil(t, res.Group2)
	assert.Nil(t, res.Differential)

	var g2Legs []models.LegResult
	for _, leg := range res.Legs {
		if leg.Strike == 3.8 {
			g2Legs = append(g2Legs, leg)
		}
	}
	require.Len(t, g2Legs, 2)
	for _, leg := range g2Legs {
		assert.Equal(t, "contract not listed", leg.Quote.Error)
	}
}

func TestEngine_SpotUnavailable(t *testing.T) {
	p := newFakeProvider()
	p.spotErr = errors.New("spot feed down")

	e := newTestEngine(t, p, nil)
	require.NoError(t, e.SetSelection(fullSelection()))

	res, err := e.Refresh(context.Background())
	require.NoError(t, err)

	assert.False(t, res.UnderlyingPrice.Valid)
	assert.Nil(t, res.Group1, "no time value without an underlying price")
	assert.Nil(t, res.Group2)
	assert.Nil(t, res.Differential)
	// Withheld groups never reach tracking; no history entry, no extrema.
	assert.Empty(t, res.History)
	assert.Nil(t, res.Today)
	assert.Nil(t, res.AllTime)
	// The legs themselves were still fetched and surfaced.
	assert.Len(t, res.Legs, 4)
	for _, leg := range res.Legs {
		assert.Empty(t, leg.Quote.Error)
	}
}

func TestEngine_CatalogFailureFailsCycle(t *testing.T) {
	p := newFakeProvider()
	p.boardErr = errors.New("gateway down")

	e := newTestEngine(t, p, nil)
	require.NoError(t, e.SetSelection(fullSelection()))

	_, err := e.Refresh(context.Background())
	require.Error(t, err)
	assert.Nil(t, e.LastResult())
}

func TestEngine_RefreshDue(t *testing.T) {
	e := newTestEngine(t, newFakeProvider(), nil)

	// Incomplete selection never refreshes, even when triggered.
	e.TriggerRefresh()
	assert.False(t, e.RefreshDue(testNow))

	require.NoError(t, e.SetSelection(fullSelection()))
	// No prior result: due immediately.
	assert.True(t, e.RefreshDue(testNow))

	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	// Auto off, no trigger: idle.
	assert.False(t, e.RefreshDue(testNow.Add(time.Minute)))

	e.TriggerRefresh()
	assert.True(t, e.RefreshDue(testNow))
	_, err = e.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, e.RefreshDue(testNow), "refresh consumes the trigger")

	e.SetAutoRefresh(true)
	assert.False(t, e.RefreshDue(testNow.Add(3*time.Second)))
	assert.True(t, e.RefreshDue(testNow.Add(5*time.Second)))
}

func TestEngine_SetSelectionValidation(t *testing.T) {
	e := newTestEngine(t, newFakeProvider(), nil)

	sel := fullSelection()
	sel.Class = "瑞士卷ETF期权"
	assert.Error(t, e.SetSelection(sel))

	sel = fullSelection()
	sel.Group1.Direction = "Hold"
	assert.Error(t, e.SetSelection(sel))

	sel = fullSelection()
	sel.Group2.Month = "25123"
	assert.Error(t, e.SetSelection(sel))
}

func TestEngine_PersistsTracking(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := storage.NewStore(path)

	e := newTestEngine(t, newFakeProvider(), store)
	require.NoError(t, e.SetSelection(fullSelection()))
	_, err := e.Refresh(context.Background())
	require.NoError(t, err)

	snap, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Tracking.History, 1)
	assert.True(t, math.Abs(snap.Tracking.History[0].Differential-0.0037) < 1e-9)
	require.NotNil(t, snap.Tracking.AllTime)
}
