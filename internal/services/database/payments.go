package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"loan-portfolio-engine/internal/models"
)

// PaymentRepository handles payment database operations.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository creates a new payment repository.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// GetByID retrieves a payment by its ID.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	return getPayment(ctx, r.db.pool, id)
}

func getPayment(ctx context.Context, q querier, id string) (*models.Payment, error) {
	row := q.QueryRow(ctx,
		`SELECT id, loan_id, amount::text, paid_at FROM payments WHERE id = $1`, id)

	payment, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// ListByLoan retrieves a loan's payments oldest first.
func (r *PaymentRepository) ListByLoan(ctx context.Context, loanID string) ([]models.Payment, error) {
	return listPayments(ctx, r.db.pool,
		`SELECT id, loan_id, amount::text, paid_at FROM payments WHERE loan_id = $1 ORDER BY paid_at, id`, loanID)
}

// ListBetween retrieves payments with from <= paid_at < to.
func (r *PaymentRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Payment, error) {
	return listPayments(ctx, r.db.pool,
		`SELECT id, loan_id, amount::text, paid_at FROM payments WHERE paid_at >= $1 AND paid_at < $2 ORDER BY paid_at, id`,
		from, to)
}

// ListAll retrieves every payment oldest first.
func (r *PaymentRepository) ListAll(ctx context.Context) ([]models.Payment, error) {
	return listPayments(ctx, r.db.pool, `SELECT id, loan_id, amount::text, paid_at FROM payments ORDER BY paid_at, id`)
}

func listPayments(ctx context.Context, q querier, query string, args ...any) ([]models.Payment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func insertPayment(ctx context.Context, q querier, p *models.Payment) error {
	_, err := q.Exec(ctx,
		`INSERT INTO payments (id, loan_id, amount, paid_at) VALUES ($1, $2, $3, $4)`,
		p.ID, p.LoanID, decimalArg(p.Amount), p.Date.UTC())
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func deletePayment(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrPaymentNotFound
	}
	return nil
}

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var (
		p      models.Payment
		amount string
	)
	if err := row.Scan(&p.ID, &p.LoanID, &amount, &p.Date); err != nil {
		return nil, err
	}

	var err error
	if p.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	return &p, nil
}

// ExpenseRepository handles expense database operations.
type ExpenseRepository struct {
	db *DB
}

// NewExpenseRepository creates a new expense repository.
func NewExpenseRepository(db *DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

// Create inserts a new expense.
func (r *ExpenseRepository) Create(ctx context.Context, e *models.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, amount, spent_at, category, description) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, decimalArg(e.Amount), e.Date.UTC(), e.Category, e.Description)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// ListBetween retrieves expenses with from <= spent_at < to.
func (r *ExpenseRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount::text, spent_at, category, description
		FROM expenses
		WHERE spent_at >= $1 AND spent_at < $2
		ORDER BY spent_at, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var (
			e      models.Expense
			amount string
		)
		if err := rows.Scan(&e.ID, &amount, &e.Date, &e.Category, &e.Description); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		if e.Amount, err = parseDecimal("amount", amount); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}
