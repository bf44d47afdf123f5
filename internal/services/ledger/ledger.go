// Package ledger holds the rules that create and change loan records:
// origination, repayments and their undo, refinance, top-up and write-off.
//
// The functions here take values and return new values. Service wires them to a Store.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/loanstatus"
)

const (
	daysPerWeek = 7
	centPlaces  = 2
)

var (
	ErrConflictingRate    = errors.New("interest duration and manual interest rate are mutually exclusive")
	ErrInvalidManualRate  = errors.New("manual interest rate cannot be negative")
	ErrLoanClosed         = errors.New("loan is refinanced or defaulted")
	ErrLoanNotActive      = errors.New("loan is not active")
	ErrAlreadyRefinanced  = errors.New("loan already has a successor")
	ErrNothingOutstanding = errors.New("loan has no outstanding balance")
	ErrPaymentMismatch    = errors.New("payment does not belong to loan")
)

// LoanRequest describes a new loan. Exactly one of InterestDuration and
// ManualInterestRate is set; a manual rate needs an explicit DueDate.
type LoanRequest struct {
	BorrowerID         string              `json:"borrowerId"`
	Principal          decimal.Decimal     `json:"principal"`
	StartDate          civil.Date          `json:"startDate"`
	InterestDuration   int                 `json:"interestDuration,omitempty"`
	ManualInterestRate decimal.NullDecimal `json:"manualInterestRate"`
	DueDate            civil.Date          `json:"dueDate,omitempty"`
}

// Terms resolves the rate and due date for the request.
func (r LoanRequest) Terms(settings *models.InterestSettings) (rate decimal.Decimal, due civil.Date, err error) {
	if r.ManualInterestRate.Valid {
		if r.InterestDuration != 0 {
			return decimal.Zero, civil.Date{}, ErrConflictingRate
		}
		if r.ManualInterestRate.Decimal.IsNegative() {
			return decimal.Zero, civil.Date{}, ErrInvalidManualRate
		}
		if !r.DueDate.IsValid() {
			return decimal.Zero, civil.Date{}, models.ErrMissingLoanDates
		}
		return r.ManualInterestRate.Decimal, r.DueDate, nil
	}

	rate, err = settings.RateFor(r.InterestDuration, r.StartDate)
	if err != nil {
		return decimal.Zero, civil.Date{}, err
	}
	return rate, r.StartDate.AddDays(daysPerWeek * r.InterestDuration), nil
}

// InterestFor returns principal × rate rounded to cents.
func InterestFor(principal, rate decimal.Decimal) decimal.Decimal {
	return principal.Mul(rate).Round(centPlaces)
}

// Originate builds a new loan from the request.
func Originate(req LoanRequest, settings *models.InterestSettings) (*models.Loan, error) {
	if !req.StartDate.IsValid() {
		return nil, models.ErrMissingLoanDates
	}

	rate, due, err := req.Terms(settings)
	if err != nil {
		return nil, err
	}

	interest := InterestFor(req.Principal, rate)
	loan := &models.Loan{
		ID:                 uuid.New().String(),
		BorrowerID:         req.BorrowerID,
		Principal:          req.Principal,
		Interest:           interest,
		TotalRepayable:     req.Principal.Add(interest),
		RepaidAmount:       decimal.Zero,
		StartDate:          req.StartDate,
		DueDate:            due,
		InterestDuration:   req.InterestDuration,
		ManualInterestRate: req.ManualInterestRate,
		Status:             models.LoanStatusActive,
	}

	if err := loan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid loan: %w", err)
	}
	return loan, nil
}

// RecordPayment adds a repayment to the loan.
func RecordPayment(loan models.Loan, amount decimal.Decimal, at time.Time) (models.Loan, models.Payment, error) {
	if !amount.IsPositive() {
		return loan, models.Payment{}, models.ErrInvalidPaymentAmount
	}
	if loan.IsRefinanced() || loan.IsMarkedDefaulted() {
		return loan, models.Payment{}, ErrLoanClosed
	}

	payment := models.Payment{
		ID:     uuid.New().String(),
		LoanID: loan.ID,
		Amount: amount,
		Date:   at,
	}

	loan.RepaidAmount = loan.RepaidAmount.Add(amount)
	loan.LastPaymentAt = &payment.Date
	return loan, payment, nil
}

// UndoPayment reverses payment. remaining are the loan's other payments;
// the latest of them becomes the new last-payment time.
func UndoPayment(loan models.Loan, payment models.Payment, remaining []models.Payment) (models.Loan, error) {
	if payment.LoanID != loan.ID {
		return loan, ErrPaymentMismatch
	}

	loan.RepaidAmount = loan.RepaidAmount.Sub(payment.Amount)
	if loan.RepaidAmount.IsNegative() {
		loan.RepaidAmount = decimal.Zero
	}

	loan.LastPaymentAt = latestPayment(remaining, payment.ID)
	return loan, nil
}

func latestPayment(payments []models.Payment, skipID string) *time.Time {
	var kept []models.Payment
	for _, p := range payments {
		if p.ID != skipID && !p.Date.IsZero() {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Date.After(kept[j].Date) })
	latest := kept[0].Date
	return &latest
}

// RefinanceRequest describes the successor's terms. Its principal is always
// the predecessor's outstanding balance.
type RefinanceRequest struct {
	StartDate          civil.Date          `json:"startDate"`
	InterestDuration   int                 `json:"interestDuration,omitempty"`
	ManualInterestRate decimal.NullDecimal `json:"manualInterestRate"`
	DueDate            civil.Date          `json:"dueDate,omitempty"`
}

// Refinance closes loan into a new successor loan.
func Refinance(loan models.Loan, req RefinanceRequest, settings *models.InterestSettings) (models.Loan, *models.Loan, error) {
	if loan.IsRefinanced() || loan.RefinancedToID != "" {
		return loan, nil, ErrAlreadyRefinanced
	}
	if loan.IsMarkedDefaulted() {
		return loan, nil, ErrLoanClosed
	}

	outstanding := loanstatus.Outstanding(loan)
	if !outstanding.IsPositive() {
		return loan, nil, ErrNothingOutstanding
	}

	successor, err := Originate(LoanRequest{
		BorrowerID:         loan.BorrowerID,
		Principal:          outstanding,
		StartDate:          req.StartDate,
		InterestDuration:   req.InterestDuration,
		ManualInterestRate: req.ManualInterestRate,
		DueDate:            req.DueDate,
	}, settings)
	if err != nil {
		return loan, nil, fmt.Errorf("successor: %w", err)
	}
	successor.RefinancedFromID = loan.ID

	loan.Status = models.LoanStatusRefinanced
	loan.RefinancedToID = successor.ID
	return loan, successor, nil
}

// TopUp lends amount more on an active loan at the loan's own rate: the
// manual rate when set, otherwise the rate its stored interest was charged at.
// Later edits to the interest schedule do not apply.
func TopUp(loan models.Loan, amount decimal.Decimal, on civil.Date) (models.Loan, error) {
	if !amount.IsPositive() {
		return loan, models.ErrInvalidPrincipal
	}
	if loan.IsRefinanced() || loan.IsMarkedDefaulted() {
		return loan, ErrLoanClosed
	}
	if loanstatus.Classify(loan, on) != models.LoanStatusActive {
		return loan, ErrLoanNotActive
	}

	var added decimal.Decimal
	switch {
	case loan.ManualInterestRate.Valid:
		added = InterestFor(amount, loan.ManualInterestRate.Decimal)
	case loan.Principal.IsPositive():
		added = loan.Interest.Mul(amount).Div(loan.Principal).Round(centPlaces)
	default:
		return loan, models.ErrInvalidPrincipal
	}

	loan.Principal = loan.Principal.Add(amount)
	loan.Interest = loan.Interest.Add(added)
	loan.TotalRepayable = loan.Principal.Add(loan.Interest)
	return loan, nil
}

// MarkDefaulted writes the loan off at the given time.
func MarkDefaulted(loan models.Loan, at time.Time) (models.Loan, error) {
	if loan.IsRefinanced() {
		return loan, ErrLoanClosed
	}
	if loan.IsMarkedDefaulted() && loan.DefaultedAt != nil {
		return loan, nil
	}
	loan.Status = models.LoanStatusDefaulted
	loan.DefaultedAt = &at
	return loan, nil
}
