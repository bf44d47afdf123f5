// Package models defines the data structures for the loan portfolio engine.
package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// LoanStatus is either a stored status or one derived by the status classifier.
type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "Active"
	LoanStatusPaid       LoanStatus = "Paid"
	LoanStatusOverdue    LoanStatus = "Overdue"
	LoanStatusDefaulted  LoanStatus = "Defaulted"
	LoanStatusRefinanced LoanStatus = "Refinanced"
)

// StoredStatuses returns the values an operator may write to Loan.Status.
// Paid and Overdue are never stored; they are always derived.
func StoredStatuses() []LoanStatus {
	return []LoanStatus{
		LoanStatusActive,
		LoanStatusRefinanced,
		LoanStatusDefaulted,
	}
}

// IsStorable checks if the status may be persisted on a loan record.
func (s LoanStatus) IsStorable() bool {
	if s == "" {
		return true
	}
	for _, valid := range StoredStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// Loan represents one lending agreement.
type Loan struct {
	ID         string `json:"id" db:"id"`
	BorrowerID string `json:"borrowerId" db:"borrower_id"`

	Principal      decimal.Decimal `json:"principal" db:"principal"`
	Interest       decimal.Decimal `json:"interest" db:"interest"`
	TotalRepayable decimal.Decimal `json:"totalRepayable" db:"total_repayable"`
	RepaidAmount   decimal.Decimal `json:"repaidAmount" db:"repaid_amount"`

	StartDate civil.Date `json:"startDate" db:"start_date"`
	DueDate   civil.Date `json:"dueDate" db:"due_date"`

	// InterestDuration is the term in weeks (1-4). It is zero when
	// ManualInterestRate is set.
	InterestDuration   int                 `json:"interestDuration,omitempty" db:"interest_duration"`
	ManualInterestRate decimal.NullDecimal `json:"manualInterestRate" db:"manual_interest_rate"`

	// Status is the stored override. Empty means derive.
	Status LoanStatus `json:"status,omitempty" db:"status"`

	RefinancedFromID string `json:"refinancedFromId,omitempty" db:"refinanced_from_id"`
	RefinancedToID   string `json:"refinancedToId,omitempty" db:"refinanced_to_id"`

	LastPaymentAt *time.Time `json:"lastPaymentAt,omitempty" db:"last_payment_at"`
	DefaultedAt   *time.Time `json:"defaultedAt,omitempty" db:"defaulted_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Outstanding returns TotalRepayable minus RepaidAmount. It is negative for
// overpaid loans; callers decide whether to floor it.
func (l *Loan) Outstanding() decimal.Decimal {
	return l.TotalRepayable.Sub(l.RepaidAmount)
}

// IsFullyRepaid reports whether the repaid amount covers a non-zero repayable total.
func (l *Loan) IsFullyRepaid() bool {
	return l.TotalRepayable.IsPositive() && l.RepaidAmount.GreaterThanOrEqual(l.TotalRepayable)
}

// IsRefinanced reports whether the loan was closed into a successor.
func (l *Loan) IsRefinanced() bool {
	return l.Status == LoanStatusRefinanced
}

// IsMarkedDefaulted reports whether an operator wrote the loan off.
func (l *Loan) IsMarkedDefaulted() bool {
	return l.Status == LoanStatusDefaulted
}

// InLocation moves the loan's timestamps into loc, which decides the calendar
// day each one falls on.
func (l *Loan) InLocation(loc *time.Location) {
	l.LastPaymentAt = timeIn(l.LastPaymentAt, loc)
	l.DefaultedAt = timeIn(l.DefaultedAt, loc)
	l.CreatedAt = l.CreatedAt.In(loc)
	l.UpdatedAt = l.UpdatedAt.In(loc)
}

func timeIn(t *time.Time, loc *time.Location) *time.Time {
	if t == nil {
		return nil
	}
	moved := t.In(loc)
	return &moved
}

// HasDates reports whether both the start and due dates are present.
func (l *Loan) HasDates() bool {
	return l.StartDate.IsValid() && l.DueDate.IsValid()
}

// IsWellFormed reports whether the record can take part in aggregate computations.
func (l *Loan) IsWellFormed() bool {
	if !l.HasDates() || l.DueDate.Before(l.StartDate) {
		return false
	}
	return !l.Principal.IsNegative() &&
		!l.Interest.IsNegative() &&
		!l.TotalRepayable.IsNegative() &&
		!l.RepaidAmount.IsNegative()
}

// Validate checks a loan before it is persisted.
func (l *Loan) Validate() error {
	if l.BorrowerID == "" {
		return ErrEmptyBorrowerID
	}
	if !l.HasDates() {
		return ErrMissingLoanDates
	}
	if l.DueDate.Before(l.StartDate) {
		return ErrDueBeforeStart
	}
	if !l.Principal.IsPositive() {
		return ErrInvalidPrincipal
	}
	if l.Interest.IsNegative() || l.RepaidAmount.IsNegative() {
		return ErrNegativeAmount
	}
	if !l.TotalRepayable.Equal(l.Principal.Add(l.Interest)) {
		return ErrRepayableMismatch
	}
	if !l.Status.IsStorable() {
		return ErrInvalidLoanStatus
	}
	return nil
}

// LoanSummary is a lightweight view of a loan with its derived status.
type LoanSummary struct {
	ID          string          `json:"id"`
	BorrowerID  string          `json:"borrowerId"`
	Status      LoanStatus      `json:"status"`
	Outstanding decimal.Decimal `json:"outstanding"`
	DueDate     civil.Date      `json:"dueDate"`
	DaysOverdue int             `json:"daysOverdue"`
	AsOf        civil.Date      `json:"asOf"`
}
