// Package app wires configuration, storage and AWS clients into the services
// shared by the Lambda functions, the local server and loanctl.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"loan-portfolio-engine/internal/config"
	"loan-portfolio-engine/internal/services/database"
	"loan-portfolio-engine/internal/services/ledger"
	"loan-portfolio-engine/internal/services/reporting"
	s3service "loan-portfolio-engine/internal/services/s3"
	"loan-portfolio-engine/internal/services/ses"
	"loan-portfolio-engine/internal/utils"
)

// App holds the wired services.
type App struct {
	Config    *config.Config
	DB        *database.DB
	Store     *database.Store
	Ledger    *ledger.Service
	Archive   *s3service.Service
	Mail      *ses.Service
	Reporting *reporting.Service
}

// New loads configuration, initializes the logger and connects to Postgres.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := utils.InitLogger(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}

	a, err := NewWithDB(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// NewWithDB builds the services over an existing connection.
func NewWithDB(ctx context.Context, cfg *config.Config, db *database.DB) (*App, error) {
	archive, err := s3service.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	mail, err := ses.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	loc := cfg.Location()
	store := database.NewStore(db, loc)

	utils.GetLogger().Debug("Services wired",
		zap.String("stage", cfg.Stage),
		zap.String("bucket", cfg.ReportBucket),
		zap.String("timezone", loc.String()),
	)

	return &App{
		Config:  cfg,
		DB:      db,
		Store:   store,
		Ledger:  ledger.NewService(store, loc),
		Archive: archive,
		Mail:    mail,
		Reporting: reporting.NewService(store, archive,
			reporting.WithLocation(loc),
			reporting.WithDigest(mail, cfg.ReportRecipients, cfg.DashboardURL),
		),
	}, nil
}

// Close releases the database pool and flushes the logger.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	utils.Sync()
}
