package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"loan-portfolio-engine/internal/models"
)

// BorrowerRepository handles borrower database operations.
type BorrowerRepository struct {
	db *DB
}

// NewBorrowerRepository creates a new borrower repository.
func NewBorrowerRepository(db *DB) *BorrowerRepository {
	return &BorrowerRepository{db: db}
}

// Upsert inserts a borrower or refreshes its contact details.
func (r *BorrowerRepository) Upsert(ctx context.Context, b *models.Borrower) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO borrowers (id, name, phone, email, address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address`,
		b.ID, b.Name, b.Phone, b.Email, b.Address, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert borrower: %w", err)
	}
	return nil
}

// GetByID retrieves a borrower by its ID.
func (r *BorrowerRepository) GetByID(ctx context.Context, id string) (*models.Borrower, error) {
	var b models.Borrower
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, address, created_at FROM borrowers WHERE id = $1`, id,
	).Scan(&b.ID, &b.Name, &b.Phone, &b.Email, &b.Address, &b.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrBorrowerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get borrower: %w", err)
	}
	return &b, nil
}

// ListAll retrieves every borrower ordered by name.
func (r *BorrowerRepository) ListAll(ctx context.Context) ([]models.Borrower, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, phone, email, address, created_at FROM borrowers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query borrowers: %w", err)
	}
	defer rows.Close()

	var borrowers []models.Borrower
	for rows.Next() {
		var b models.Borrower
		if err := rows.Scan(&b.ID, &b.Name, &b.Phone, &b.Email, &b.Address, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan borrower: %w", err)
		}
		borrowers = append(borrowers, b)
	}
	return borrowers, rows.Err()
}
