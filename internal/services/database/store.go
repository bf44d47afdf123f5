package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/ledger"
)

// Store bundles the repositories behind the interfaces the ledger, reporting
// and handler layers consume. Every timestamp it returns is in the business
// time zone.
type Store struct {
	db        *DB
	loc       *time.Location
	Loans     *LoanRepository
	Payments  *PaymentRepository
	Expenses  *ExpenseRepository
	Borrowers *BorrowerRepository
	Settings  *SettingsRepository
}

// NewStore creates a store over db. A nil loc means UTC.
func NewStore(db *DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{
		db:        db,
		loc:       loc,
		Loans:     NewLoanRepository(db),
		Payments:  NewPaymentRepository(db),
		Expenses:  NewExpenseRepository(db),
		Borrowers: NewBorrowerRepository(db),
		Settings:  NewSettingsRepository(db),
	}
}

// HealthCheck verifies database connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.HealthCheck(ctx)
}

func (s *Store) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	loan, err := s.Loans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	loan.InLocation(s.loc)
	return loan, nil
}

func (s *Store) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return s.Loans.Create(ctx, loan)
}

func (s *Store) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := s.Payments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.InLocation(s.loc)
	return p, nil
}

func (s *Store) ListPaymentsForLoan(ctx context.Context, loanID string) ([]models.Payment, error) {
	payments, err := s.Payments.ListByLoan(ctx, loanID)
	return s.paymentsIn(payments), err
}

func (s *Store) GetInterestSettings(ctx context.Context) (*models.InterestSettings, error) {
	return s.Settings.GetInterestSettings(ctx)
}

// InTx runs fn in one transaction. Loans read through Tx.LockLoan stay locked
// until fn returns, so concurrent changes to the same loan are serialized.
func (s *Store) InTx(ctx context.Context, fn func(ledger.Tx) error) error {
	return s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&storeTx{tx: tx, loc: s.loc})
	})
}

func (s *Store) ListLoans(ctx context.Context) ([]models.Loan, error) {
	loans, err := s.Loans.ListAll(ctx)
	return s.loansIn(loans), err
}

func (s *Store) ListLoansForBorrower(ctx context.Context, borrowerID string) ([]models.Loan, error) {
	loans, err := s.Loans.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("borrower %s: %w", borrowerID, err)
	}
	return s.loansIn(loans), nil
}

func (s *Store) ListPayments(ctx context.Context) ([]models.Payment, error) {
	payments, err := s.Payments.ListAll(ctx)
	return s.paymentsIn(payments), err
}

func (s *Store) ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	expenses, err := s.Expenses.ListBetween(ctx, from, to)
	for i := range expenses {
		expenses[i].InLocation(s.loc)
	}
	return expenses, err
}

func (s *Store) ListBorrowers(ctx context.Context) ([]models.Borrower, error) {
	return s.Borrowers.ListAll(ctx)
}

func (s *Store) loansIn(loans []models.Loan) []models.Loan {
	for i := range loans {
		loans[i].InLocation(s.loc)
	}
	return loans
}

func (s *Store) paymentsIn(payments []models.Payment) []models.Payment {
	for i := range payments {
		payments[i].InLocation(s.loc)
	}
	return payments
}

// storeTx is the ledger's view of one database transaction.
type storeTx struct {
	tx  pgx.Tx
	loc *time.Location
}

func (t *storeTx) LockLoan(ctx context.Context, id string) (*models.Loan, error) {
	loan, err := lockLoan(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	loan.InLocation(t.loc)
	return loan, nil
}

func (t *storeTx) CreateLoan(ctx context.Context, loan *models.Loan) error {
	return insertLoan(ctx, t.tx, loan)
}

func (t *storeTx) UpdateLoan(ctx context.Context, loan *models.Loan) error {
	return updateLoan(ctx, t.tx, loan)
}

func (t *storeTx) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	p, err := getPayment(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	p.InLocation(t.loc)
	return p, nil
}

func (t *storeTx) ListPaymentsForLoan(ctx context.Context, loanID string) ([]models.Payment, error) {
	payments, err := listPayments(ctx, t.tx,
		`SELECT id, loan_id, amount::text, paid_at FROM payments WHERE loan_id = $1 ORDER BY paid_at, id`, loanID)
	for i := range payments {
		payments[i].InLocation(t.loc)
	}
	return payments, err
}

func (t *storeTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	return insertPayment(ctx, t.tx, payment)
}

func (t *storeTx) DeletePayment(ctx context.Context, id string) error {
	return deletePayment(ctx, t.tx, id)
}
