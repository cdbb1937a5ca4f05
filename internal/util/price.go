// Package util provides common helpers for price normalization.
package util

import "math"

// QuoteTick is the smallest price increment quotes are normalized to before
// they enter valuation: the feed publishes four decimal places.
const QuoteTick = 0.0001

// RoundToTick rounds x to the nearest tick increment.
// For example, with tick=0.0001, 0.05004999 becomes 0.0500.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

// RoundQuote normalizes a raw feed price to the quote tick.
func RoundQuote(x float64) float64 {
	return RoundToTick(x, QuoteTick)
}
