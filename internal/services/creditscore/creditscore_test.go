package creditscore_test

import (
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/creditscore"
)

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func at(d civil.Date) *time.Time {
	t := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC)
	return &t
}

// mockLoan: 1000 at 20% over two weeks starting on start
func mockLoan(id string, start civil.Date) models.Loan {
	return models.Loan{
		ID:               id,
		BorrowerID:       "b-1",
		Principal:        decimal.NewFromInt(1000),
		Interest:         decimal.NewFromInt(200),
		TotalRepayable:   decimal.NewFromInt(1200),
		RepaidAmount:     decimal.Zero,
		StartDate:        start,
		DueDate:          start.AddDays(14),
		InterestDuration: 2,
	}
}

func paid(l models.Loan, on civil.Date) models.Loan {
	l.RepaidAmount = l.TotalRepayable
	l.LastPaymentAt = at(on)
	return l
}

func defaulted(l models.Loan, on civil.Date) models.Loan {
	l.Status = models.LoanStatusDefaulted
	l.DefaultedAt = at(on)
	return l
}

func TestCompute_NoLoans(t *testing.T) {
	result, err := creditscore.Compute(nil, day(2024, time.June, 1))
	require.NoError(t, err)

	assert.Equal(t, 0, result.Score)
	assert.Equal(t, creditscore.RemarksNoHistory, result.Remarks)
	assert.Empty(t, result.PositiveFactors)
	assert.Empty(t, result.NegativeFactors)
	assert.Empty(t, result.History)
}

func TestCompute_LoansStartingLaterAreIgnored(t *testing.T) {
	loan := mockLoan("l1", day(2024, time.June, 10))

	result, err := creditscore.Compute([]models.Loan{loan}, day(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, creditscore.RemarksNoHistory, result.Remarks)
	assert.Empty(t, result.History)
}

func TestCompute_ExampleScenario(t *testing.T) {
	start := day(2024, time.March, 1)
	later := day(2024, time.May, 1)

	repaid := paid(mockLoan("l1", start), day(2024, time.March, 10))
	good, err := creditscore.Compute([]models.Loan{repaid}, later)
	require.NoError(t, err)

	// 40 on-time + 20 completion + 2 depth
	assert.Equal(t, 62, good.Score)
	assert.Equal(t, creditscore.RemarksGood, good.Remarks)
	assert.Equal(t, 1, good.Stats.PaidLoans)
	assert.Equal(t, 1, good.Stats.OnTimePaidLoans)
	assert.Equal(t, 1.0, good.Stats.OnTimeRepaymentRate)
	assert.Contains(t, good.PositiveFactors, "Perfect on-time repayment record")

	overdue, err := creditscore.Compute([]models.Loan{mockLoan("l1", start)}, later)
	require.NoError(t, err)

	// 2 depth - 15 overdue penalty clamps to 0
	assert.Equal(t, 0, overdue.Score)
	assert.Equal(t, creditscore.RemarksVeryPoor, overdue.Remarks)
	assert.Equal(t, []string{"1 overdue loan"}, overdue.NegativeFactors)
	assert.InDelta(t, -13.0, overdue.Breakdown.Raw(), 1e-9)

	assert.Greater(t, good.Score, overdue.Score)
}

func TestCompute_LatePaymentIsPaidButNotOnTime(t *testing.T) {
	start := day(2024, time.March, 1)
	loan := paid(mockLoan("l1", start), day(2024, time.March, 20))

	result, err := creditscore.Compute([]models.Loan{loan}, day(2024, time.April, 1))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.PaidLoans)
	assert.Equal(t, 0, result.Stats.OnTimePaidLoans)
	assert.Equal(t, 0.0, result.Stats.OnTimeRepaymentRate)
	// 20 completion + 2 depth
	assert.Equal(t, 22, result.Score)
	assert.Equal(t, creditscore.RemarksPoor, result.Remarks)
	assert.Empty(t, result.PositiveFactors)
}

func TestCompute_PaidLateEveningOnDueDateIsOnTime(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	loan := mockLoan("l1", day(2024, time.March, 1))
	loan.RepaidAmount = loan.TotalRepayable
	// Already March 16 in UTC.
	paidAt := time.Date(2024, time.March, 15, 21, 0, 0, 0, est)
	loan.LastPaymentAt = &paidAt

	result, err := creditscore.Compute([]models.Loan{loan}, loan.DueDate)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Stats.PaidLoans)
	assert.Equal(t, 1, result.Stats.OnTimePaidLoans)
	assert.Equal(t, 1.0, result.Stats.OnTimeRepaymentRate)
}

func TestCompute_ScoreBounds(t *testing.T) {
	start := day(2023, time.January, 2)
	asOf := day(2024, time.December, 31)

	histories := map[string][]models.Loan{}

	var allDefaulted, allEarly, allOverdue, mixed []models.Loan
	for i := 0; i < 12; i++ {
		s := start.AddDays(i * 20)
		id := fmt.Sprintf("l%d", i)
		allDefaulted = append(allDefaulted, defaulted(mockLoan(id, s), s.AddDays(30)))
		allEarly = append(allEarly, paid(mockLoan(id, s), s.AddDays(1)))
		allOverdue = append(allOverdue, mockLoan(id, s))
		switch i % 3 {
		case 0:
			mixed = append(mixed, paid(mockLoan(id, s), s.AddDays(20)))
		case 1:
			mixed = append(mixed, defaulted(mockLoan(id, s), s.AddDays(40)))
		default:
			mixed = append(mixed, mockLoan(id, s))
		}
	}
	histories["all defaulted"] = allDefaulted
	histories["all paid early"] = allEarly
	histories["all overdue"] = allOverdue
	histories["mixed"] = mixed

	for name, loans := range histories {
		t.Run(name, func(t *testing.T) {
			result, err := creditscore.Compute(loans, asOf)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, result.Score, 0)
			assert.LessOrEqual(t, result.Score, 100)
			for _, point := range result.History {
				assert.GreaterOrEqual(t, point.Score, 0)
				assert.LessOrEqual(t, point.Score, 100)
			}
		})
	}
}

func TestCompute_AllPaidEarlyIsExcellent(t *testing.T) {
	var loans []models.Loan
	start := day(2024, time.January, 1)
	for i := 0; i < 10; i++ {
		s := start.AddDays(i * 15)
		loans = append(loans, paid(mockLoan(fmt.Sprintf("l%d", i), s), s.AddDays(3)))
	}

	result, err := creditscore.Compute(loans, day(2024, time.December, 1))
	require.NoError(t, err)

	assert.Equal(t, 80, result.Score)
	assert.Equal(t, creditscore.RemarksExcellent, result.Remarks)
	assert.Equal(t, []string{
		"Perfect on-time repayment record",
		"Extensive repaid history (10 loans)",
	}, result.PositiveFactors)
}

func TestCompute_DefaultPenalty(t *testing.T) {
	start := day(2024, time.January, 1)
	loans := []models.Loan{
		paid(mockLoan("l1", start), start.AddDays(5)),
		defaulted(mockLoan("l2", start.AddDays(1)), start.AddDays(60)),
	}

	result, err := creditscore.Compute(loans, day(2024, time.June, 1))
	require.NoError(t, err)

	// 40 + min(0.5*2,1)*20 + 0.2*20 - 0.5*5
	assert.InDelta(t, 61.5, result.Breakdown.Raw(), 1e-9)
	assert.Equal(t, 62, result.Score, "half rounds away from zero")
	assert.Equal(t, []string{"1 defaulted loan"}, result.NegativeFactors)
	assert.Equal(t, 1, result.Stats.DefaultedLoans)
}

func TestBand(t *testing.T) {
	tests := []struct {
		score int
		want  creditscore.Remarks
	}{
		{100, creditscore.RemarksExcellent},
		{80, creditscore.RemarksExcellent},
		{79, creditscore.RemarksGood},
		{60, creditscore.RemarksGood},
		{59, creditscore.RemarksFair},
		{40, creditscore.RemarksFair},
		{39, creditscore.RemarksPoor},
		{20, creditscore.RemarksPoor},
		{19, creditscore.RemarksVeryPoor},
		{0, creditscore.RemarksVeryPoor},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, creditscore.Band(tt.score))
		})
	}
}

func TestCompute_ExcludesUnscoreableLoans(t *testing.T) {
	start := day(2024, time.March, 1)

	noDates := mockLoan("bad-1", start)
	noDates.DueDate = civil.Date{}

	legacyPaid := mockLoan("bad-2", start)
	legacyPaid.RepaidAmount = legacyPaid.TotalRepayable

	good := paid(mockLoan("ok", start), day(2024, time.March, 5))

	result, err := creditscore.Compute([]models.Loan{noDates, legacyPaid, good}, day(2024, time.April, 1))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.ExcludedLoans)
	assert.Equal(t, 1, result.Stats.TotalLoans)
	assert.Equal(t, 62, result.Score)
}

func TestCompute_History(t *testing.T) {
	first := mockLoan("l1", day(2024, time.January, 10))
	second := paid(mockLoan("l2", day(2024, time.March, 5)), day(2024, time.March, 12))

	asOf := day(2024, time.April, 15)
	result, err := creditscore.Compute([]models.Loan{second, first}, asOf)
	require.NoError(t, err)

	require.Len(t, result.History, 4)
	assert.Equal(t, day(2024, time.January, 31), result.History[0].Date)
	assert.Equal(t, day(2024, time.February, 29), result.History[1].Date)
	assert.Equal(t, day(2024, time.March, 31), result.History[2].Date)
	assert.Equal(t, asOf, result.History[3].Date)

	for i := 1; i < len(result.History); i++ {
		assert.True(t, result.History[i-1].Date.Before(result.History[i].Date))
	}

	// January: first loan overdue since 25 Jan, score clamps to 0
	assert.Equal(t, 0, result.History[0].Score)
	// the last point equals the headline score
	assert.Equal(t, result.Score, result.History[3].Score)
}

func TestSnapshot_SkipsHistory(t *testing.T) {
	loan := paid(mockLoan("l1", day(2024, time.January, 1)), day(2024, time.January, 5))

	result, err := creditscore.Snapshot([]models.Loan{loan}, day(2024, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, "b-1", result.BorrowerID)
	assert.Equal(t, 62, result.Score)
	assert.Nil(t, result.History)
}

func TestCompute_MixedBorrowers(t *testing.T) {
	a := mockLoan("l1", day(2024, time.January, 1))
	b := mockLoan("l2", day(2024, time.January, 1))
	b.BorrowerID = "b-2"

	_, err := creditscore.Compute([]models.Loan{a, b}, day(2024, time.June, 1))
	assert.ErrorIs(t, err, creditscore.ErrMixedBorrowers)

	_, err = creditscore.Snapshot([]models.Loan{a, b}, day(2024, time.June, 1))
	assert.ErrorIs(t, err, creditscore.ErrMixedBorrowers)
}
