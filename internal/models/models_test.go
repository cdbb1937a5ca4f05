package models

import (
	"testing"
	"time"
)

func TestOptionTypeFromCode(t *testing.T) {
	tests := []struct {
		code   string
		want   OptionType
		wantOK bool
	}{
		{"510300C2512M04000", OptionTypeCall, true},
		{"510300P2512M04000", OptionTypePut, true},
		{"588080C2603M00950", OptionTypeCall, true},
		// Discriminator shifted off index 6 still resolves.
		{"XC2512", OptionTypeCall, true},
		{"510300X2512M04000", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := OptionTypeFromCode(tt.code)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("OptionTypeFromCode(%q) = (%q, %v), want (%q, %v)", tt.code, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestMonthFromCode(t *testing.T) {
	tests := []struct {
		code   string
		want   ContractMonth
		wantOK bool
	}{
		{"510300C2512M04000", "2512", true},
		{"510300P2603M03500", "2603", true},
		{"510300C2513M04000", "", false}, // month 13
		{"short", "", false},
	}
	for _, tt := range tests {
		got, ok := MonthFromCode(tt.code)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("MonthFromCode(%q) = (%q, %v), want (%q, %v)", tt.code, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestContractMonthValid(t *testing.T) {
	valid := []ContractMonth{"2501", "2512", "9906"}
	for _, m := range valid {
		if !m.Valid() {
			t.Errorf("%s should be valid", m)
		}
	}
	invalid := []ContractMonth{"", "251", "25121", "2500", "2513", "25ab"}
	for _, m := range invalid {
		if m.Valid() {
			t.Errorf("%s should be invalid", m)
		}
	}
}

func TestMonthCode(t *testing.T) {
	if got := MonthCode(2025, time.December); got != "2512" {
		t.Errorf("MonthCode(2025, December) = %s", got)
	}
	if got := MonthCode(2026, time.March); got != "2603" {
		t.Errorf("MonthCode(2026, March) = %s", got)
	}
}

func TestLegNameAndFormatStrike(t *testing.T) {
	tests := []struct {
		typ    OptionType
		month  ContractMonth
		strike float64
		want   string
	}{
		{OptionTypeCall, "2512", 3.5, "Call 2512-3.5"},
		{OptionTypePut, "2512", 3.5, "Put 2512-3.5"},
		{OptionTypeCall, "2603", 4, "Call 2603-4"},
		{OptionTypePut, "2603", 0.95, "Put 2603-0.95"},
		{OptionTypeCall, "2603", 2.75, "Call 2603-2.75"},
	}
	for _, tt := range tests {
		if got := LegName(tt.typ, tt.month, tt.strike); got != tt.want {
			t.Errorf("LegName(%s, %s, %v) = %q, want %q", tt.typ, tt.month, tt.strike, got, tt.want)
		}
	}
}

func TestClassByName(t *testing.T) {
	if c, ok := ClassByName("300ETF"); !ok || c != ClassCSI300 {
		t.Errorf("display name lookup failed: (%s, %v)", c, ok)
	}
	if c, ok := ClassByName(string(ClassSTAR50E)); !ok || c != ClassSTAR50E {
		t.Errorf("full name lookup failed: (%s, %v)", c, ok)
	}
	if _, ok := ClassByName("豆粕期权"); ok {
		t.Error("unknown name must not resolve")
	}
}

func TestPriceField(t *testing.T) {
	p := Price(3.5)
	if !p.Valid || p.Value != 3.5 {
		t.Errorf("Price(3.5) = %+v", p)
	}
	var zero PriceField
	if zero.Valid {
		t.Error("zero PriceField must be invalid")
	}
}

func TestBeijingZone(t *testing.T) {
	at := time.Date(2025, time.September, 1, 0, 30, 0, 0, time.UTC).In(BeijingZone())
	if at.Hour() != 8 || at.Minute() != 30 {
		t.Errorf("UTC 00:30 in Beijing = %02d:%02d, want 08:30", at.Hour(), at.Minute())
	}
}
