package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment represents one repayment event. Payments are immutable; an undo
// deletes the payment and subtracts its amount from the loan.
type Payment struct {
	ID     string          `json:"id" db:"id"`
	LoanID string          `json:"loanId" db:"loan_id"`
	Amount decimal.Decimal `json:"amount" db:"amount"`
	Date   time.Time       `json:"date" db:"paid_at"`
}

// InLocation moves the payment time into loc.
func (p *Payment) InLocation(loc *time.Location) {
	p.Date = p.Date.In(loc)
}

// IsValid reports whether the payment can be counted.
func (p *Payment) IsValid() bool {
	return p.LoanID != "" && p.Amount.IsPositive() && !p.Date.IsZero()
}

// Expense represents an operating cost of the lending business.
type Expense struct {
	ID          string          `json:"id" db:"id"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Date        time.Time       `json:"date" db:"spent_at"`
	Category    string          `json:"category,omitempty" db:"category"`
	Description string          `json:"description,omitempty" db:"description"`
}

// InLocation moves the expense time into loc.
func (e *Expense) InLocation(loc *time.Location) {
	e.Date = e.Date.In(loc)
}

// IsValid reports whether the expense can be counted.
func (e *Expense) IsValid() bool {
	return e.Amount.IsPositive() && !e.Date.IsZero()
}

// Borrower is identity and contact information. It owns zero or more loans.
type Borrower struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	Email     string    `json:"email,omitempty" db:"email"`
	Address   string    `json:"address,omitempty" db:"address"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// GroupByLoan indexes valid payments by loan ID, preserving input order.
func GroupByLoan(payments []Payment) map[string][]Payment {
	out := make(map[string][]Payment)
	for _, p := range payments {
		if !p.IsValid() {
			continue
		}
		out[p.LoanID] = append(out[p.LoanID], p)
	}
	return out
}
