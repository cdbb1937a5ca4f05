// Package models provides the shared data structures for the premium watcher:
// contract months, instruments, quotes, spread groups and tracking records.
package models

import (
	"fmt"
	"strings"
	"time"
)

// UnderlyingClass identifies one of the listed ETF option families by its
// full board name, as returned by the option board feed.
type UnderlyingClass string

const (
	// ClassCSI300 is the HuaTai-PineBridge CSI 300 ETF option family.
	ClassCSI300 UnderlyingClass = "华泰柏瑞沪深300ETF期权"
	// ClassCSI500 is the Southern CSI 500 ETF option family.
	ClassCSI500 UnderlyingClass = "南方中证500ETF期权"
	// ClassSSE50 is the ChinaAMC SSE 50 ETF option family.
	ClassSSE50 UnderlyingClass = "华夏上证50ETF期权"
	// ClassSTAR50 is the ChinaAMC STAR 50 ETF option family.
	ClassSTAR50 UnderlyingClass = "华夏科创50ETF期权"
	// ClassSTAR50E is the E Fund STAR 50 ETF option family.
	ClassSTAR50E UnderlyingClass = "易方达科创50ETF期权"
)

// AllUnderlyingClasses returns the five supported option families in board order.
func AllUnderlyingClasses() []UnderlyingClass {
	return []UnderlyingClass{ClassCSI300, ClassCSI500, ClassSSE50, ClassSTAR50, ClassSTAR50E}
}

var displayNames = map[UnderlyingClass]string{
	ClassCSI300:  "300ETF",
	ClassCSI500:  "500ETF",
	ClassSSE50:   "50ETF",
	ClassSTAR50:  "科创50ETF",
	ClassSTAR50E: "科创板50ETF",
}

// DisplayName returns the short display name for the class, or the raw
// class string when the class is unknown.
func (c UnderlyingClass) DisplayName() string {
	if name, ok := displayNames[c]; ok {
		return name
	}
	return string(c)
}

// ClassByName resolves a class from either its full board name or its short
// display name.
func ClassByName(name string) (UnderlyingClass, bool) {
	for _, c := range AllUnderlyingClasses() {
		if string(c) == name || c.DisplayName() == name {
			return c, true
		}
	}
	return "", false
}

// OptionType is the option side: call or put.
type OptionType string

const (
	// OptionTypeCall represents a call option contract.
	OptionTypeCall OptionType = "call"
	// OptionTypePut represents a put option contract.
	OptionTypePut OptionType = "put"
)

// TradeDirection selects which side of the book each leg is priced from.
type TradeDirection string

const (
	// DirectionBuy prices the call at the ask and the put at the bid.
	DirectionBuy TradeDirection = "Buy"
	// DirectionSell prices the call at the bid and the put at the ask.
	DirectionSell TradeDirection = "Sell"
)

// Valid reports whether d is one of the two supported directions.
func (d TradeDirection) Valid() bool {
	return d == DirectionBuy || d == DirectionSell
}

// ContractMonth is a 4-digit YYMM contract month code, e.g. "2512".
type ContractMonth string

// Valid reports whether m is a well-formed YYMM code.
func (m ContractMonth) Valid() bool {
	if len(m) != 4 {
		return false
	}
	for _, r := range m {
		if r < '0' || r > '9' {
			return false
		}
	}
	mm := (m[2]-'0')*10 + (m[3] - '0')
	return mm >= 1 && mm <= 12
}

// MonthCode formats a year/month pair as a YYMM contract month code.
func MonthCode(year int, month time.Month) ContractMonth {
	return ContractMonth(fmt.Sprintf("%02d%02d", year%100, int(month)))
}

// SSE option trading codes look like 510300C2512M04000: a 6-digit underlying,
// the C/P discriminator, the YYMM month, and the strike block.
const (
	codeTypeIndex  = 6
	codeMonthStart = 7
	codeMonthEnd   = 11
	minCodeLength  = 11
)

// OptionTypeFromCode extracts the call/put discriminator from a trading code.
func OptionTypeFromCode(code string) (OptionType, bool) {
	if len(code) > codeTypeIndex {
		switch code[codeTypeIndex] {
		case 'C':
			return OptionTypeCall, true
		case 'P':
			return OptionTypePut, true
		}
	}
	// Some venues shift the discriminator; fall back to the first match.
	if i := strings.IndexAny(code, "CP"); i >= 0 {
		if code[i] == 'C' {
			return OptionTypeCall, true
		}
		return OptionTypePut, true
	}
	return "", false
}

// MonthFromCode extracts the YYMM contract month embedded in a trading code.
func MonthFromCode(code string) (ContractMonth, bool) {
	if len(code) < minCodeLength {
		return "", false
	}
	m := ContractMonth(code[codeMonthStart:codeMonthEnd])
	if !m.Valid() {
		return "", false
	}
	return m, true
}

// Instrument is one listed option contract. Identity is
// (class, month, strike, type); the quote feed id may be absent when the
// code mapping could not be built for the session.
type Instrument struct {
	Class       UnderlyingClass `json:"class"`
	Month       ContractMonth   `json:"month"`
	Strike      float64         `json:"strike"`
	Type        OptionType      `json:"type"`
	TradingCode string          `json:"trading_code"`
	QuoteID     string          `json:"quote_id,omitempty"`
}

// PriceField is a single price that may be unavailable. A zero value with
// Valid=false means "not priced this refresh", never "priced at zero".
type PriceField struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Price returns an available price field.
func Price(v float64) PriceField { return PriceField{Value: v, Valid: true} }

// Quote carries the three book prices for one contract. Error is set only
// when the quote lookup itself failed; individual missing fields are
// represented by invalid PriceFields.
type Quote struct {
	Bid   PriceField `json:"bid"`
	Ask   PriceField `json:"ask"`
	Last  PriceField `json:"last"`
	Error string     `json:"error,omitempty"`
}

// Failed reports whether the whole quote lookup failed.
func (q Quote) Failed() bool { return q.Error != "" }

// LegRequest describes one contract leg to fetch. TradingCode or QuoteID may
// be empty; the batch fetcher turns either into a failure-shaped result.
type LegRequest struct {
	Name        string
	Type        OptionType
	Month       ContractMonth
	Strike      float64
	TradingCode string
	QuoteID     string
}

// LegName builds the stable key used to match batch results back to requests.
func LegName(typ OptionType, month ContractMonth, strike float64) string {
	side := "Call"
	if typ == OptionTypePut {
		side = "Put"
	}
	return fmt.Sprintf("%s %s-%s", side, month, FormatStrike(strike))
}

// FormatStrike renders a strike without trailing zeros noise ("3.5", "4").
func FormatStrike(strike float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", strike), "0"), ".")
}

// LegResult is the per-contract outcome of a batch fetch.
type LegResult struct {
	Name        string        `json:"name"`
	Type        OptionType    `json:"type"`
	Month       ContractMonth `json:"month"`
	Strike      float64       `json:"strike"`
	TradingCode string        `json:"trading_code,omitempty"`
	Quote       Quote         `json:"quote"`
	// UsedSide records which book side ("bid" or "ask") valuation consumed,
	// given the owning group's direction.
	UsedSide string `json:"used_side,omitempty"`
}

// SpreadGroup is the valued call/put pair for one (month, strike, direction)
// selection. Recomputed every refresh, never persisted.
type SpreadGroup struct {
	Direction     TradeDirection `json:"direction"`
	Month         ContractMonth  `json:"month"`
	Strike        float64        `json:"strike"`
	CallPrice     float64        `json:"call_price"`
	PutPrice      float64        `json:"put_price"`
	CallTimeValue float64        `json:"call_time_value"`
	PutTimeValue  float64        `json:"put_time_value"`
	// Premium is put time value minus call time value.
	Premium float64 `json:"premium"`
}

// PremiumSnapshot is one observed premium differential.
type PremiumSnapshot struct {
	At           time.Time `json:"at"`
	Differential float64   `json:"differential"`
	Group1       float64   `json:"group1_premium"`
	Group2       float64   `json:"group2_premium"`
}

// ExtremumRecord is the differential with the largest absolute value seen so
// far on one tracking dimension, with the time it was recorded.
type ExtremumRecord struct {
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// BeijingZone is the fixed UTC+8 offset used for every timestamp surfaced to
// callers, regardless of the host timezone.
func BeijingZone() *time.Location {
	return time.FixedZone("UTC+8", 8*60*60)
}
