package portfolio

import (
	"github.com/shopspring/decimal"
)

// ArrearsBucket holds the overdue loans whose days past due fall in [MinDays, MaxDays].
// MaxDays of zero means unbounded.
type ArrearsBucket struct {
	Label       string          `json:"label"`
	MinDays     int             `json:"minDays"`
	MaxDays     int             `json:"maxDays,omitempty"`
	Count       int             `json:"count"`
	Outstanding decimal.Decimal `json:"outstanding"`
}

// NewArrears returns the empty aging buckets in ascending order.
func NewArrears() []ArrearsBucket {
	return []ArrearsBucket{
		{Label: "1-7", MinDays: 1, MaxDays: 7, Outstanding: decimal.Zero},
		{Label: "8-14", MinDays: 8, MaxDays: 14, Outstanding: decimal.Zero},
		{Label: "15-30", MinDays: 15, MaxDays: 30, Outstanding: decimal.Zero},
		{Label: "30+", MinDays: 31, Outstanding: decimal.Zero},
	}
}

// BucketFor returns the index of the bucket for daysOverdue, or -1 when the
// loan is not past due.
func BucketFor(buckets []ArrearsBucket, daysOverdue int) int {
	for i, b := range buckets {
		if daysOverdue < b.MinDays {
			continue
		}
		if b.MaxDays == 0 || daysOverdue <= b.MaxDays {
			return i
		}
	}
	return -1
}

// placeInArrears adds one loan to its bucket. Loans with nothing left to
// collect are not in arrears.
func placeInArrears(buckets []ArrearsBucket, daysOverdue int, outstanding decimal.Decimal) {
	if !outstanding.IsPositive() {
		return
	}
	i := BucketFor(buckets, daysOverdue)
	if i < 0 {
		return
	}
	buckets[i].Count++
	buckets[i].Outstanding = buckets[i].Outstanding.Add(outstanding)
}
