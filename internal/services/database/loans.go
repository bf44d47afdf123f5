package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"loan-portfolio-engine/internal/models"
)

const loanColumns = `
	id, borrower_id,
	principal::text, interest::text, total_repayable::text, repaid_amount::text,
	start_date, due_date, interest_duration, manual_interest_rate::text,
	status, refinanced_from_id, refinanced_to_id,
	last_payment_at, defaulted_at, created_at, updated_at`

// LoanRepository handles loan database operations.
type LoanRepository struct {
	db *DB
}

// NewLoanRepository creates a new loan repository.
func NewLoanRepository(db *DB) *LoanRepository {
	return &LoanRepository{db: db}
}

// Create inserts a new loan.
func (r *LoanRepository) Create(ctx context.Context, loan *models.Loan) error {
	return insertLoan(ctx, r.db.pool, loan)
}

// Update writes every mutable column of the loan.
func (r *LoanRepository) Update(ctx context.Context, loan *models.Loan) error {
	return updateLoan(ctx, r.db.pool, loan)
}

// GetByID retrieves a loan by its ID.
func (r *LoanRepository) GetByID(ctx context.Context, id string) (*models.Loan, error) {
	return getLoan(ctx, r.db.pool, `SELECT `+loanColumns+` FROM loans WHERE id = $1`, id)
}

// lockLoan reads a loan and holds its row lock until tx ends.
func lockLoan(ctx context.Context, tx pgx.Tx, id string) (*models.Loan, error) {
	return getLoan(ctx, tx, `SELECT `+loanColumns+` FROM loans WHERE id = $1 FOR UPDATE`, id)
}

func getLoan(ctx context.Context, q querier, query, id string) (*models.Loan, error) {
	loan, err := scanLoan(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	return loan, nil
}

// ListByBorrower retrieves a borrower's loans ordered by start date.
func (r *LoanRepository) ListByBorrower(ctx context.Context, borrowerID string) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE borrower_id = $1 ORDER BY start_date NULLS LAST, id`
	return r.list(ctx, query, borrowerID)
}

// ListAll retrieves every loan ordered by start date.
func (r *LoanRepository) ListAll(ctx context.Context) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans ORDER BY start_date NULLS LAST, id`
	return r.list(ctx, query)
}

func (r *LoanRepository) list(ctx context.Context, query string, args ...any) ([]models.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, *loan)
	}

	return loans, rows.Err()
}

func insertLoan(ctx context.Context, q querier, loan *models.Loan) error {
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	loan.UpdatedAt = now

	query := `
		INSERT INTO loans (
			id, borrower_id, principal, interest, total_repayable, repaid_amount,
			start_date, due_date, interest_duration, manual_interest_rate,
			status, refinanced_from_id, refinanced_to_id,
			last_payment_at, defaulted_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := q.Exec(ctx, query,
		loan.ID,
		loan.BorrowerID,
		decimalArg(loan.Principal),
		decimalArg(loan.Interest),
		decimalArg(loan.TotalRepayable),
		decimalArg(loan.RepaidAmount),
		dateArg(loan.StartDate),
		dateArg(loan.DueDate),
		loan.InterestDuration,
		nullDecimalArg(loan.ManualInterestRate),
		string(loan.Status),
		loan.RefinancedFromID,
		loan.RefinancedToID,
		loan.LastPaymentAt,
		loan.DefaultedAt,
		loan.CreatedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

func updateLoan(ctx context.Context, q querier, loan *models.Loan) error {
	loan.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE loans SET
			principal = $2, interest = $3, total_repayable = $4, repaid_amount = $5,
			start_date = $6, due_date = $7, interest_duration = $8, manual_interest_rate = $9,
			status = $10, refinanced_from_id = $11, refinanced_to_id = $12,
			last_payment_at = $13, defaulted_at = $14, updated_at = $15
		WHERE id = $1`

	tag, err := q.Exec(ctx, query,
		loan.ID,
		decimalArg(loan.Principal),
		decimalArg(loan.Interest),
		decimalArg(loan.TotalRepayable),
		decimalArg(loan.RepaidAmount),
		dateArg(loan.StartDate),
		dateArg(loan.DueDate),
		loan.InterestDuration,
		nullDecimalArg(loan.ManualInterestRate),
		string(loan.Status),
		loan.RefinancedFromID,
		loan.RefinancedToID,
		loan.LastPaymentAt,
		loan.DefaultedAt,
		loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrLoanNotFound
	}
	return nil
}

// scanLoan scans a single row into a Loan.
func scanLoan(row pgx.Row) (*models.Loan, error) {
	var (
		loan                                   models.Loan
		principal, interest, repayable, repaid string
		manualRate                             *string
		startDate, dueDate                     *time.Time
		status                                 string
	)

	err := row.Scan(
		&loan.ID,
		&loan.BorrowerID,
		&principal,
		&interest,
		&repayable,
		&repaid,
		&startDate,
		&dueDate,
		&loan.InterestDuration,
		&manualRate,
		&status,
		&loan.RefinancedFromID,
		&loan.RefinancedToID,
		&loan.LastPaymentAt,
		&loan.DefaultedAt,
		&loan.CreatedAt,
		&loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if loan.Principal, err = parseDecimal("principal", principal); err != nil {
		return nil, err
	}
	if loan.Interest, err = parseDecimal("interest", interest); err != nil {
		return nil, err
	}
	if loan.TotalRepayable, err = parseDecimal("total_repayable", repayable); err != nil {
		return nil, err
	}
	if loan.RepaidAmount, err = parseDecimal("repaid_amount", repaid); err != nil {
		return nil, err
	}
	if loan.ManualInterestRate, err = parseNullDecimal("manual_interest_rate", manualRate); err != nil {
		return nil, err
	}

	loan.StartDate = dateFrom(startDate)
	loan.DueDate = dateFrom(dueDate)
	loan.Status = models.LoanStatus(status)

	return &loan, nil
}
