package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"loan-portfolio-engine/internal/models"
)

// SettingsRepository stores the single interest settings document.
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository.
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetInterestSettings returns the stored schedule, or nil when none was saved.
// A nil schedule resolves to the built-in default rates.
func (r *SettingsRepository) GetInterestSettings(ctx context.Context) (*models.InterestSettings, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT settings FROM interest_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interest settings: %w", err)
	}

	var settings models.InterestSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode interest settings: %w", err)
	}
	return &settings, nil
}

// SaveInterestSettings replaces the stored schedule.
func (r *SettingsRepository) SaveInterestSettings(ctx context.Context, settings *models.InterestSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode interest settings: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO interest_settings (id, settings, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET settings = EXCLUDED.settings, updated_at = EXCLUDED.updated_at`,
		string(raw), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save interest settings: %w", err)
	}
	return nil
}
