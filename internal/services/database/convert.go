package database

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Numerics are written as decimal strings and read back with a ::text cast,
// so no value ever passes through float64.

func decimalArg(d decimal.Decimal) string {
	return d.String()
}

func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseDecimal(column, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %w", column, err)
	}
	return d, nil
}

func parseNullDecimal(column string, s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseDecimal(column, *s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

// dateArg maps a missing date to NULL.
func dateArg(d civil.Date) *time.Time {
	if !d.IsValid() {
		return nil
	}
	t := d.In(time.UTC)
	return &t
}

// dateFrom reads a DATE column scanned as a UTC midnight timestamp.
func dateFrom(t *time.Time) civil.Date {
	if t == nil {
		return civil.Date{}
	}
	return civil.DateOf(t.UTC())
}
