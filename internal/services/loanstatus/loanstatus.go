// Package loanstatus derives a loan's state at a point in time.
//
// "As of" a date means as of the end of that calendar day: an event dated on
// the as-of day has happened, a due date equal to the as-of day has not passed.
package loanstatus

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/utils"
)

// Classify returns Active, Paid, Overdue or Defaulted. First match wins:
//
//  1. stored Defaulted, written off on or before asOf
//  2. repaid >= repayable > 0, last repayment on or before asOf
//  3. due date strictly before asOf
//  4. Active
//
// A defaulted loan with no DefaultedAt counts as defaulted from its start date;
// a repaid loan with no LastPaymentAt counts as paid regardless of asOf.
// Timestamps are read on the day they fall in their own zone (utils.DayOf).
func Classify(loan models.Loan, asOf civil.Date) models.LoanStatus {
	if loan.IsMarkedDefaulted() && defaultedBy(loan, asOf) {
		return models.LoanStatusDefaulted
	}
	if loan.IsFullyRepaid() && repaidBy(loan, asOf) {
		return models.LoanStatusPaid
	}
	if loan.DueDate.IsValid() && loan.DueDate.Before(asOf) {
		return models.LoanStatusOverdue
	}
	return models.LoanStatusActive
}

// Current classifies at the calendar date of now in loc.
func Current(loan models.Loan, now time.Time, loc *time.Location) models.LoanStatus {
	if loc == nil {
		loc = time.UTC
	}
	return Classify(loan, civil.DateOf(now.In(loc)))
}

// Display is the status shown to people: the stored Refinanced flag wins,
// everything else is derived.
func Display(loan models.Loan, asOf civil.Date) models.LoanStatus {
	if loan.IsRefinanced() {
		return models.LoanStatusRefinanced
	}
	return Classify(loan, asOf)
}

// DaysOverdue returns how many days asOf is past the due date, or 0.
func DaysOverdue(loan models.Loan, asOf civil.Date) int {
	if !loan.DueDate.IsValid() || !loan.DueDate.Before(asOf) {
		return 0
	}
	return asOf.DaysSince(loan.DueDate)
}

// Outstanding returns the unpaid balance, floored at zero.
func Outstanding(loan models.Loan) decimal.Decimal {
	out := loan.Outstanding()
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Summarize builds the API view of a loan at asOf.
func Summarize(loan models.Loan, asOf civil.Date) models.LoanSummary {
	return models.LoanSummary{
		ID:          loan.ID,
		BorrowerID:  loan.BorrowerID,
		Status:      Display(loan, asOf),
		Outstanding: Outstanding(loan),
		DueDate:     loan.DueDate,
		DaysOverdue: DaysOverdue(loan, asOf),
		AsOf:        asOf,
	}
}

func defaultedBy(loan models.Loan, asOf civil.Date) bool {
	on, ok := utils.DateOfPtr(loan.DefaultedAt, nil)
	if !ok {
		return !loan.StartDate.IsValid() || !loan.StartDate.After(asOf)
	}
	return !on.After(asOf)
}

func repaidBy(loan models.Loan, asOf civil.Date) bool {
	on, ok := utils.DateOfPtr(loan.LastPaymentAt, nil)
	if !ok {
		return true
	}
	return !on.After(asOf)
}
