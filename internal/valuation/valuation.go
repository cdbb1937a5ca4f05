// Package valuation computes time values, per-group premiums, and the
// premium differential between two option spread groups.
package valuation

import (
	"strings"

	"github.com/tianyi-liu/premiumdiff/internal/models"
)

// DefaultUnderlyingSymbol is used when no class keyword matches.
const DefaultUnderlyingSymbol = "sh510300"

// underlyingKeywords maps spot symbols to the name fragments that select
// them. Longer fragments are tried first so "科创板50ETF" wins over
// "科创50ETF" and "沪深300" over "300ETF".
var underlyingKeywords = map[string][]string{
	"sh510300": {"沪深300", "300ETF"},
	"sh510500": {"中证500", "500ETF"},
	"sh510050": {"上证50", "50ETF"},
	"sh588000": {"华夏科创50", "科创50ETF"},
	"sh588080": {"易方达科创50", "科创板50ETF", "易方达"},
}

// ResolveUnderlyingSymbol picks the spot quote symbol for an underlying
// class by longest-keyword containment against its full name.
func ResolveUnderlyingSymbol(class models.UnderlyingClass) string {
	name := string(class)
	bestSymbol := ""
	bestLen := 0
	for symbol, keywords := range underlyingKeywords {
		for _, kw := range keywords {
			if len(kw) > bestLen && strings.Contains(name, kw) {
				bestSymbol = symbol
				bestLen = len(kw)
			}
		}
	}
	if bestSymbol == "" {
		return DefaultUnderlyingSymbol
	}
	return bestSymbol
}

// TimeValue strips intrinsic value out of an option price. Intrinsic is
// floored at zero, so out-of-the-money options carry their full price as
// time value. The result may be negative for deep in-the-money quotes.
func TimeValue(price, underlying, strike float64, typ models.OptionType) float64 {
	var intrinsic float64
	switch typ {
	case models.OptionTypeCall:
		intrinsic = underlying - strike
	case models.OptionTypePut:
		intrinsic = strike - underlying
	}
	if intrinsic < 0 {
		intrinsic = 0
	}
	return price - intrinsic
}

// UsedSides reports which quote side each leg is priced from for a trade
// direction: buying the spread lifts the call offer and hits the put bid,
// selling does the reverse.
func UsedSides(dir models.TradeDirection) (callSide, putSide string) {
	if dir == models.DirectionBuy {
		return "ask", "bid"
	}
	return "bid", "ask"
}

// GroupPremium prices one spread group from its two legs. It returns nil
// when either leg failed outright or the required quote side of either leg
// is unavailable; a group is priced whole or not at all.
func GroupPremium(dir models.TradeDirection, call, put models.LegResult, underlying, strike float64, month models.ContractMonth) *models.SpreadGroup {
	if call.Quote.Failed() || put.Quote.Failed() {
		return nil
	}

	var callPrice, putPrice models.PriceField
	if dir == models.DirectionBuy {
		callPrice, putPrice = call.Quote.Ask, put.Quote.Bid
	} else {
		callPrice, putPrice = call.Quote.Bid, put.Quote.Ask
	}
	if !callPrice.Valid || !putPrice.Valid {
		return nil
	}

	callTV := TimeValue(callPrice.Value, underlying, strike, models.OptionTypeCall)
	putTV := TimeValue(putPrice.Value, underlying, strike, models.OptionTypePut)

	return &models.SpreadGroup{
		Direction:     dir,
		Month:         month,
		Strike:        strike,
		CallPrice:     callPrice.Value,
		PutPrice:      putPrice.Value,
		CallTimeValue: callTV,
		PutTimeValue:  putTV,
		Premium:       putTV - callTV,
	}
}

// Differential is group two's premium minus group one's. It is defined only
// when both groups priced.
func Differential(g1, g2 *models.SpreadGroup) (float64, bool) {
	if g1 == nil || g2 == nil {
		return 0, false
	}
	return g2.Premium - g1.Premium, true
}
