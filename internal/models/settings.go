package models

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

const (
	MinInterestWeeks = 1
	MaxInterestWeeks = 4
)

// DefaultInterestRates is the tiered schedule used when no settings are stored.
var DefaultInterestRates = map[int]decimal.Decimal{
	1: decimal.RequireFromString("0.10"),
	2: decimal.RequireFromString("0.20"),
	3: decimal.RequireFromString("0.25"),
	4: decimal.RequireFromString("0.30"),
}

// MonthlySettings overrides the interest schedule for one calendar month.
type MonthlySettings struct {
	InterestRates map[int]decimal.Decimal `json:"interestRates"`
}

// InterestSettings maps a term length in weeks to a rate, optionally
// overridden per month keyed by YYYY-MM.
type InterestSettings struct {
	Rates   map[int]decimal.Decimal    `json:"interestRates"`
	Monthly map[string]MonthlySettings `json:"monthlySettings,omitempty"`
}

// RateFor resolves the rate for a term starting on the given date. The month
// override wins over the base schedule, which wins over DefaultInterestRates.
func (s *InterestSettings) RateFor(weeks int, on civil.Date) (decimal.Decimal, error) {
	if weeks < MinInterestWeeks || weeks > MaxInterestWeeks {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidInterestDuration, weeks)
	}

	if s != nil {
		key := fmt.Sprintf("%04d-%02d", on.Year, int(on.Month))
		if month, ok := s.Monthly[key]; ok {
			if rate, ok := month.InterestRates[weeks]; ok {
				return rate, nil
			}
		}
		if rate, ok := s.Rates[weeks]; ok {
			return rate, nil
		}
	}

	return DefaultInterestRates[weeks], nil
}
