package loanstatus_test

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/loanstatus"
)

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func at(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 14, 30, 0, 0, time.UTC)
	return &t
}

// mockLoan: 1000 + 200 interest, 1 Mar -> 15 Mar 2024, nothing repaid
func mockLoan() models.Loan {
	return models.Loan{
		ID:             "loan-1",
		BorrowerID:     "b-1",
		Principal:      decimal.NewFromInt(1000),
		Interest:       decimal.NewFromInt(200),
		TotalRepayable: decimal.NewFromInt(1200),
		RepaidAmount:   decimal.Zero,
		StartDate:      day(2024, time.March, 1),
		DueDate:        day(2024, time.March, 15),
	}
}

func TestClassify_ReadsTimestampsInTheirOwnZone(t *testing.T) {
	est := time.FixedZone("EST", -5*60*60)
	lateEvening := time.Date(2024, time.March, 15, 21, 0, 0, 0, est)

	loan := mockLoan()
	loan.RepaidAmount = loan.TotalRepayable
	loan.LastPaymentAt = &lateEvening
	assert.Equal(t, models.LoanStatusPaid, loanstatus.Classify(loan, day(2024, time.March, 15)))

	written := mockLoan()
	written.Status = models.LoanStatusDefaulted
	written.DefaultedAt = &lateEvening
	assert.Equal(t, models.LoanStatusDefaulted, loanstatus.Classify(written, day(2024, time.March, 15)))
}

func TestClassify_DayBoundary(t *testing.T) {
	loan := mockLoan()

	assert.Equal(t, models.LoanStatusActive, loanstatus.Classify(loan, day(2024, time.March, 14)))
	assert.Equal(t, models.LoanStatusActive, loanstatus.Classify(loan, day(2024, time.March, 15)), "due today is not overdue")
	assert.Equal(t, models.LoanStatusOverdue, loanstatus.Classify(loan, day(2024, time.March, 16)))
}

func TestClassify_DefaultedWinsRegardlessOfAmounts(t *testing.T) {
	repaidAmounts := []string{"0", "600", "1200", "5000"}
	for _, repaid := range repaidAmounts {
		t.Run(repaid, func(t *testing.T) {
			loan := mockLoan()
			loan.Status = models.LoanStatusDefaulted
			loan.RepaidAmount = decimal.RequireFromString(repaid)
			loan.LastPaymentAt = at(2024, time.March, 5)
			loan.DefaultedAt = at(2024, time.March, 20)

			assert.Equal(t, models.LoanStatusDefaulted, loanstatus.Classify(loan, day(2024, time.April, 1)))
			assert.Equal(t, models.LoanStatusDefaulted, loanstatus.Classify(loan, day(2024, time.March, 20)), "same day counts")
		})
	}
}

func TestClassify_DefaultedBeforeWriteOffDate(t *testing.T) {
	loan := mockLoan()
	loan.Status = models.LoanStatusDefaulted
	loan.DefaultedAt = at(2024, time.April, 10)

	assert.Equal(t, models.LoanStatusOverdue, loanstatus.Classify(loan, day(2024, time.April, 1)))
	assert.Equal(t, models.LoanStatusActive, loanstatus.Classify(loan, day(2024, time.March, 10)))
}

func TestClassify_DefaultedWithoutTimestamp(t *testing.T) {
	loan := mockLoan()
	loan.Status = models.LoanStatusDefaulted

	assert.Equal(t, models.LoanStatusDefaulted, loanstatus.Classify(loan, day(2024, time.March, 1)))
	assert.Equal(t, models.LoanStatusActive, loanstatus.Classify(loan, day(2024, time.February, 28)), "before the loan existed")
}

func TestClassify_PaidDominatesOverdue(t *testing.T) {
	loan := mockLoan()
	loan.RepaidAmount = decimal.NewFromInt(1200)
	loan.LastPaymentAt = at(2024, time.March, 20)

	assert.Equal(t, models.LoanStatusPaid, loanstatus.Classify(loan, day(2024, time.June, 1)))
	assert.Equal(t, models.LoanStatusOverdue, loanstatus.Classify(loan, day(2024, time.March, 19)), "not yet repaid on that day")
}

func TestClassify_OverpaidLegacyRecordIsPaid(t *testing.T) {
	loan := mockLoan()
	loan.RepaidAmount = decimal.NewFromInt(1500)

	assert.Equal(t, models.LoanStatusPaid, loanstatus.Classify(loan, day(2024, time.March, 2)))
}

func TestClassify_ZeroRepayableNeverPaid(t *testing.T) {
	loan := mockLoan()
	loan.Principal = decimal.Zero
	loan.Interest = decimal.Zero
	loan.TotalRepayable = decimal.Zero

	assert.Equal(t, models.LoanStatusActive, loanstatus.Classify(loan, day(2024, time.March, 10)))
	assert.Equal(t, models.LoanStatusOverdue, loanstatus.Classify(loan, day(2024, time.March, 16)))
}

func TestClassify_NeverReturnsRefinanced(t *testing.T) {
	loan := mockLoan()
	loan.Status = models.LoanStatusRefinanced

	assert.Equal(t, models.LoanStatusOverdue, loanstatus.Classify(loan, day(2024, time.April, 1)))
	assert.Equal(t, models.LoanStatusRefinanced, loanstatus.Display(loan, day(2024, time.April, 1)))
}

func TestCurrent_UsesBusinessTimezone(t *testing.T) {
	loan := mockLoan()
	// 23:30 UTC on the due date is already the next day three hours east
	now := time.Date(2024, time.March, 15, 23, 30, 0, 0, time.UTC)

	assert.Equal(t, models.LoanStatusActive, loanstatus.Current(loan, now, nil))
	assert.Equal(t, models.LoanStatusOverdue, loanstatus.Current(loan, now, time.FixedZone("EAT", 3*60*60)))
}

func TestDaysOverdue(t *testing.T) {
	loan := mockLoan()

	tests := []struct {
		asOf civil.Date
		want int
	}{
		{day(2024, time.March, 10), 0},
		{day(2024, time.March, 15), 0},
		{day(2024, time.March, 16), 1},
		{day(2024, time.March, 22), 7},
		{day(2024, time.April, 15), 31},
	}
	for _, tt := range tests {
		t.Run(tt.asOf.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, loanstatus.DaysOverdue(loan, tt.asOf))
		})
	}
}

func TestSummarize(t *testing.T) {
	loan := mockLoan()
	loan.RepaidAmount = decimal.NewFromInt(200)

	summary := loanstatus.Summarize(loan, day(2024, time.March, 25))
	assert.Equal(t, models.LoanStatusOverdue, summary.Status)
	assert.True(t, summary.Outstanding.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 10, summary.DaysOverdue)

	loan.RepaidAmount = decimal.NewFromInt(1300)
	assert.True(t, loanstatus.Outstanding(loan).IsZero())
}
