package portfolio_test

import (
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/portfolio"
)

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func ts(d civil.Date) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 9, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), "want %s, got %s", want, got.String())
}

func newLoan(id string, principal, interest, repaid string, start civil.Date, termDays int) models.Loan {
	p, i := dec(principal), dec(interest)
	return models.Loan{
		ID:             id,
		BorrowerID:     "b-" + id,
		Principal:      p,
		Interest:       i,
		TotalRepayable: p.Add(i),
		RepaidAmount:   dec(repaid),
		StartDate:      start,
		DueDate:        start.AddDays(termDays),
	}
}

var march = portfolio.DateRange{Start: day(2024, time.March, 1), End: day(2024, time.March, 31)}

func TestAggregate_Additivity(t *testing.T) {
	paidOn := ts(day(2024, time.March, 10))
	repaid := newLoan("a", "1000", "150", "1150", day(2024, time.March, 1), 14)
	repaid.LastPaymentAt = &paidOn
	open := newLoan("b", "500", "100", "0", day(2024, time.March, 5), 28)

	m := portfolio.Aggregate([]models.Loan{repaid, open}, nil, nil, march, portfolio.Options{AsOf: day(2024, time.March, 20)})

	assert.Equal(t, 2, m.LoanCount)
	assertDecimal(t, "1500", m.TotalDisbursed)
	assertDecimal(t, "1150", m.TotalCollected)
	assertDecimal(t, "600", m.TotalOutstanding)
	assertDecimal(t, "1750", m.TotalRepayable)
	assertDecimal(t, "250", m.ExpectedProfit)
	assertDecimal(t, "150", m.ActualProfit)
	assert.Equal(t, portfolio.StatusCounts{Active: 1, Paid: 1}, m.Counts)

	require.True(t, m.AverageLoanSize.Valid)
	assertDecimal(t, "750", m.AverageLoanSize.Decimal)
	require.True(t, m.PortfolioYield.Valid)
	assertDecimal(t, "-0.2333", m.PortfolioYield.Decimal)
	require.True(t, m.RepaymentRate.Valid)
	assertDecimal(t, "0.6571", m.RepaymentRate.Decimal)
	assertDecimal(t, "0", m.OverdueRatio.Decimal)
}

func TestAggregate_EmptyCohortHasNoRatios(t *testing.T) {
	outside := newLoan("a", "1000", "200", "0", day(2024, time.February, 10), 14)

	m := portfolio.Aggregate([]models.Loan{outside}, nil, nil, march, portfolio.Options{})

	assert.Equal(t, 0, m.LoanCount)
	assert.False(t, m.AverageLoanSize.Valid)
	assert.False(t, m.PortfolioYield.Valid)
	assert.False(t, m.RepaymentRate.Valid)
	assert.False(t, m.OverdueRatio.Valid)
	assert.False(t, m.DefaultedRatio.Valid)
	assert.True(t, m.TotalOutstanding.IsZero())
	assert.Equal(t, day(2024, time.March, 31), m.AsOf, "defaults to range end")
}

func TestAggregate_RangeIsInclusive(t *testing.T) {
	first := newLoan("a", "100", "10", "0", march.Start, 7)
	last := newLoan("b", "100", "10", "0", march.End, 7)
	after := newLoan("c", "100", "10", "0", day(2024, time.April, 1), 7)

	m := portfolio.Aggregate([]models.Loan{first, last, after}, nil, nil, march, portfolio.Options{})
	assert.Equal(t, 2, m.LoanCount)
}

func TestAggregate_OverdueAndDefaultedRatios(t *testing.T) {
	asOf := day(2024, time.April, 30)
	var loans []models.Loan
	for i := 0; i < 4; i++ {
		loans = append(loans, newLoan(fmt.Sprint(i), "100", "20", "0", day(2024, time.March, 1+i), 14))
	}
	writeOff := ts(day(2024, time.April, 2))
	loans[0].Status = models.LoanStatusDefaulted
	loans[0].DefaultedAt = &writeOff
	loans[1].DueDate = day(2024, time.May, 31)

	m := portfolio.Aggregate(loans, nil, nil, march, portfolio.Options{AsOf: asOf})

	assert.Equal(t, portfolio.StatusCounts{Active: 1, Overdue: 2, Defaulted: 1}, m.Counts)
	assertDecimal(t, "0.5", m.OverdueRatio.Decimal)
	assertDecimal(t, "0.25", m.DefaultedRatio.Decimal)
	// defaulted loans carry no outstanding
	assertDecimal(t, "360", m.TotalOutstanding)
}

func TestAggregate_ArrearsBuckets(t *testing.T) {
	asOf := day(2024, time.March, 31)
	due := func(daysOverdue int) civil.Date { return asOf.AddDays(-daysOverdue) }

	var loans []models.Loan
	for _, d := range []int{1, 7, 8, 14, 15, 30, 31, 90} {
		l := newLoan(fmt.Sprintf("d%d", d), "100", "0", "40", day(2024, time.January, 1), 0)
		l.StartDate = march.Start
		l.DueDate = due(d)
		if l.DueDate.Before(l.StartDate) {
			l.StartDate = l.DueDate
		}
		loans = append(loans, l)
	}

	r := portfolio.DateRange{Start: day(2023, time.December, 1), End: asOf}
	m := portfolio.Aggregate(loans, nil, nil, r, portfolio.Options{AsOf: asOf})

	require.Len(t, m.Arrears, 4)
	wantCounts := map[string]int{"1-7": 2, "8-14": 2, "15-30": 2, "30+": 2}
	for _, b := range m.Arrears {
		assert.Equal(t, wantCounts[b.Label], b.Count, b.Label)
		assert.True(t, b.Outstanding.Equal(decimal.NewFromInt(int64(60*wantCounts[b.Label]))), b.Label)
	}

	total := 0
	for _, b := range m.Arrears {
		total += b.Count
	}
	assert.Equal(t, m.Counts.Overdue, total, "each overdue loan lands in exactly one bucket")
}

func TestBucketFor(t *testing.T) {
	buckets := portfolio.NewArrears()
	tests := []struct {
		days int
		want string
	}{
		{1, "1-7"},
		{7, "1-7"},
		{8, "8-14"},
		{14, "8-14"},
		{15, "15-30"},
		{30, "15-30"},
		{31, "30+"},
		{400, "30+"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.days), func(t *testing.T) {
			i := portfolio.BucketFor(buckets, tt.days)
			require.GreaterOrEqual(t, i, 0)
			assert.Equal(t, tt.want, buckets[i].Label)
		})
	}
	assert.Equal(t, -1, portfolio.BucketFor(buckets, 0))
}

func TestAggregate_OverpaidOverdueLoanNotInArrears(t *testing.T) {
	// repaid in full, but the last payment is dated after asOf: overdue on
	// that day with nothing outstanding
	paidOn := ts(day(2024, time.April, 20))
	l := newLoan("a", "100", "20", "120", day(2024, time.March, 1), 7)
	l.LastPaymentAt = &paidOn

	m := portfolio.Aggregate([]models.Loan{l}, nil, nil, march, portfolio.Options{AsOf: day(2024, time.March, 31)})

	assert.Equal(t, 1, m.Counts.Overdue)
	for _, b := range m.Arrears {
		assert.Zero(t, b.Count, b.Label)
	}
}

func TestAggregate_ExcludeRefinanced(t *testing.T) {
	old := newLoan("old", "1000", "200", "300", day(2024, time.March, 1), 14)
	old.Status = models.LoanStatusRefinanced
	old.RefinancedToID = "new"
	successor := newLoan("new", "900", "180", "0", day(2024, time.March, 15), 14)
	successor.RefinancedFromID = "old"

	loans := []models.Loan{old, successor}
	asOf := day(2024, time.March, 20)

	all := portfolio.Aggregate(loans, nil, nil, march, portfolio.Options{AsOf: asOf})
	assert.Equal(t, 2, all.LoanCount)
	assertDecimal(t, "1900", all.TotalDisbursed)

	filtered := portfolio.Aggregate(loans, nil, nil, march, portfolio.Options{AsOf: asOf, ExcludeRefinanced: true})
	assert.Equal(t, 1, filtered.LoanCount)
	assert.Equal(t, 1, filtered.ExcludedRefinanced)
	assertDecimal(t, "900", filtered.TotalDisbursed)
}

func TestAggregate_SkipsMalformedLoans(t *testing.T) {
	good := newLoan("a", "100", "10", "0", day(2024, time.March, 2), 7)
	noDue := newLoan("b", "100", "10", "0", day(2024, time.March, 2), 7)
	noDue.DueDate = civil.Date{}
	negative := newLoan("c", "100", "10", "-5", day(2024, time.March, 2), 7)
	noStart := newLoan("d", "100", "10", "0", day(2024, time.March, 2), 7)
	noStart.StartDate = civil.Date{}
	// Malformed, but started before the range: not part of this cohort.
	earlier := newLoan("e", "100", "10", "-5", day(2024, time.February, 2), 7)

	m := portfolio.Aggregate([]models.Loan{good, noDue, negative, noStart, earlier}, nil, nil, march, portfolio.Options{})
	assert.Equal(t, 1, m.LoanCount)
	assert.Equal(t, 3, m.ExcludedLoans)
}

func TestAggregate_Cashflow(t *testing.T) {
	payments := []models.Payment{
		{ID: "p1", LoanID: "x", Amount: dec("100"), Date: ts(day(2024, time.March, 1))},
		{ID: "p2", LoanID: "y", Amount: dec("50.50"), Date: ts(day(2024, time.March, 31))},
		{ID: "p3", LoanID: "x", Amount: dec("70"), Date: ts(day(2024, time.April, 1))},
		{ID: "p4", LoanID: "x", Amount: dec("-10"), Date: ts(day(2024, time.March, 5))},
	}
	expenses := []models.Expense{
		{ID: "e1", Amount: dec("30"), Date: ts(day(2024, time.March, 15)), Category: "transport"},
		{ID: "e2", Amount: dec("30"), Date: ts(day(2024, time.February, 28))},
	}

	m := portfolio.Aggregate(nil, payments, expenses, march, portfolio.Options{})
	assertDecimal(t, "150.50", m.Income)
	assertDecimal(t, "30", m.Costs)
	assertDecimal(t, "120.50", m.NetIncome)
}

func TestAggregate_CashflowUsesTimestampZone(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	payments := []models.Payment{
		// 02:00 UTC on April 1, still March 31 in the business zone.
		{ID: "p1", LoanID: "x", Amount: dec("40"), Date: time.Date(2024, time.March, 31, 21, 0, 0, 0, est)},
	}

	m := portfolio.Aggregate(nil, payments, nil, march, portfolio.Options{})
	assertDecimal(t, "40", m.Income)

	series := portfolio.MonthlySeries(nil, payments, nil, march, portfolio.Options{})
	require.Len(t, series, 1)
	assertDecimal(t, "40", series[0].Income)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	loans := []models.Loan{newLoan("a", "100", "10", "0", day(2024, time.March, 2), 7)}
	before := loans[0]

	portfolio.Aggregate(loans, nil, nil, march, portfolio.Options{})
	assert.Equal(t, before, loans[0])
}
