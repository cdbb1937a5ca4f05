// Package calendar derives the set of live contract months from a calendar
// date using the exchange's fourth-Wednesday expiry rule.
package calendar

import (
	"time"

	"github.com/tianyi-liu/premiumdiff/internal/models"
)

var quarterMonths = []time.Month{time.March, time.June, time.September, time.December}

// FourthWednesday returns the fourth Wednesday of the given month.
func FourthWednesday(year int, month time.Month) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(time.Wednesday) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+21)
}

// Months returns the four live contract month codes for the given date:
// base month, base+1, the nearest quarter-end month at or after the base
// month, and the quarter after that. When the nearest quarter collides with
// the base or base+1 month, both quarter slots advance one quarter.
func Months(today time.Time) [4]models.ContractMonth {
	baseYear, baseMonth := today.Year(), today.Month()
	expiry := FourthWednesday(baseYear, baseMonth)
	// The rollover is a whole-day decision: the base month holds through the
	// end of the fourth Wednesday, whatever the time of day.
	todayDate := time.Date(baseYear, baseMonth, today.Day(), 0, 0, 0, 0, time.UTC)
	if todayDate.After(expiry) {
		baseYear, baseMonth = nextMonth(baseYear, baseMonth)
	}

	current := models.MonthCode(baseYear, baseMonth)

	nextYear, nextMo := nextMonth(baseYear, baseMonth)
	next := models.MonthCode(nextYear, nextMo)

	qYear, qMonth := nearestQuarter(baseYear, baseMonth)
	quarter := models.MonthCode(qYear, qMonth)
	if quarter == current || quarter == next {
		qYear, qMonth = nextQuarter(qYear, qMonth)
		quarter = models.MonthCode(qYear, qMonth)
	}

	nqYear, nqMonth := nextQuarter(qYear, qMonth)
	return [4]models.ContractMonth{current, next, quarter, models.MonthCode(nqYear, nqMonth)}
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

// nearestQuarter returns the first quarter-end month at or after the given month.
func nearestQuarter(year int, month time.Month) (int, time.Month) {
	for _, qm := range quarterMonths {
		if month <= qm {
			return year, qm
		}
	}
	return year + 1, time.March
}

func nextQuarter(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.March
	}
	for i, qm := range quarterMonths {
		if qm == month {
			return year, quarterMonths[i+1]
		}
	}
	// Not a quarter month; snap forward.
	return nearestQuarter(year, month)
}
