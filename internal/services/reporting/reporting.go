// Package reporting builds portfolio reports, archives them and mails the digest.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/creditscore"
	"loan-portfolio-engine/internal/services/portfolio"
	s3service "loan-portfolio-engine/internal/services/s3"
	"loan-portfolio-engine/internal/services/ses"
	"loan-portfolio-engine/internal/utils"
)

// digestLinkMinutes is how long the download link in a digest stays valid.
const digestLinkMinutes = 24 * 60

// ErrInvalidRange is returned when the requested range is missing or reversed.
var ErrInvalidRange = errors.New("invalid report date range")

// Sources loads the records a report is built from.
type Sources interface {
	ListLoans(ctx context.Context) ([]models.Loan, error)
	ListPayments(ctx context.Context) ([]models.Payment, error)
	ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error)
	ListBorrowers(ctx context.Context) ([]models.Borrower, error)
}

// Archiver stores finished reports.
type Archiver interface {
	UploadJSON(ctx context.Context, key string, v any) error
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiryMinutes int) (*s3service.PresignedURLResult, error)
}

// Sender delivers the digest e-mail.
type Sender interface {
	SendPortfolioDigest(ctx context.Context, params ses.DigestParams) (*ses.SendEmailResult, error)
}

// Request selects what goes into a report. A zero AsOf means today in the
// business zone.
type Request struct {
	Range             portfolio.DateRange `json:"range"`
	AsOf              civil.Date          `json:"asOf"`
	ExcludeRefinanced bool                `json:"excludeRefinanced"`
	Email             bool                `json:"email"`
}

// BorrowerScore is one borrower's line in the report.
type BorrowerScore struct {
	Name string `json:"name,omitempty"`
	*creditscore.Result
}

// Report is the archived document.
type Report struct {
	ID          string                 `json:"id"`
	Key         string                 `json:"key"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Request     Request                `json:"request"`
	Metrics     *portfolio.Metrics     `json:"metrics"`
	Series      []portfolio.MonthPoint `json:"series"`
	Scores      []BorrowerScore        `json:"scores"`
	Emailed     bool                   `json:"emailed"`
	DigestError string                 `json:"digestError,omitempty"`
}

// Service generates reports.
type Service struct {
	sources      Sources
	archiver     Archiver
	sender       Sender
	recipients   []string
	dashboardURL string
	loc          *time.Location
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDigest enables e-mailing the digest to recipients.
func WithDigest(sender Sender, recipients []string, dashboardURL string) Option {
	return func(s *Service) {
		s.sender = sender
		s.recipients = recipients
		s.dashboardURL = dashboardURL
	}
}

// WithLocation sets the business time zone. The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a report service.
func NewService(sources Sources, archiver Archiver, opts ...Option) *Service {
	s := &Service{
		sources:  sources,
		archiver: archiver,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dataset struct {
	loans     []models.Loan
	payments  []models.Payment
	expenses  []models.Expense
	borrowers []models.Borrower
}

// Generate builds, archives and optionally mails a report. A failed digest is
// recorded on the returned report rather than returned as an error.
func (s *Service) Generate(ctx context.Context, req Request) (*Report, error) {
	if !req.Range.IsValid() {
		return nil, ErrInvalidRange
	}

	data, err := s.load(ctx, req.Range)
	if err != nil {
		return nil, err
	}

	generatedAt := s.now()
	if !req.AsOf.IsValid() {
		req.AsOf = utils.Today(generatedAt, s.loc)
	}
	opts := portfolio.Options{
		AsOf:              req.AsOf,
		ExcludeRefinanced: req.ExcludeRefinanced,
	}

	report := &Report{
		ID:          uuid.New().String(),
		GeneratedAt: generatedAt.UTC(),
		Request:     req,
		Metrics:     portfolio.Aggregate(data.loans, data.payments, data.expenses, req.Range, opts),
		Series:      portfolio.MonthlySeries(data.loans, data.payments, data.expenses, req.Range, opts),
	}
	report.Request.AsOf = report.Metrics.AsOf
	report.Key = s3service.ReportKey(report.ID, generatedAt.In(s.loc))

	report.Scores, err = scoreBorrowers(data.loans, data.borrowers, report.Metrics.AsOf)
	if err != nil {
		return nil, err
	}

	if err := s.archiver.UploadJSON(ctx, report.Key, report); err != nil {
		return nil, fmt.Errorf("failed to archive report: %w", err)
	}

	utils.Logger.Info("Portfolio report archived",
		zap.String("key", report.Key),
		utils.Date("from", req.Range.Start),
		utils.Date("to", req.Range.End),
		zap.Int("loans", report.Metrics.LoanCount),
		zap.Int("borrowers", len(report.Scores)),
	)

	if req.Email {
		s.sendDigest(ctx, report)
	}

	return report, nil
}

func (s *Service) load(ctx context.Context, r portfolio.DateRange) (*dataset, error) {
	var data dataset
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		loans, err := s.sources.ListLoans(gctx)
		if err != nil {
			return fmt.Errorf("failed to load loans: %w", err)
		}
		data.loans = loans
		return nil
	})
	g.Go(func() error {
		payments, err := s.sources.ListPayments(gctx)
		if err != nil {
			return fmt.Errorf("failed to load payments: %w", err)
		}
		data.payments = payments
		return nil
	})
	g.Go(func() error {
		from := r.Start.In(s.loc)
		to := r.End.AddDays(1).In(s.loc)
		expenses, err := s.sources.ListExpenses(gctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to load expenses: %w", err)
		}
		data.expenses = expenses
		return nil
	})
	g.Go(func() error {
		borrowers, err := s.sources.ListBorrowers(gctx)
		if err != nil {
			return fmt.Errorf("failed to load borrowers: %w", err)
		}
		data.borrowers = borrowers
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &data, nil
}

func (s *Service) sendDigest(ctx context.Context, report *Report) {
	if s.sender == nil || len(s.recipients) == 0 {
		report.DigestError = "digest is not configured"
		utils.Logger.Warn("Skipping report digest", zap.String("key", report.Key))
		return
	}

	var reportURL string
	presigned, err := s.archiver.GeneratePresignedDownloadURL(ctx, report.Key, digestLinkMinutes)
	if err != nil {
		utils.Logger.Warn("Sending digest without download link",
			zap.String("key", report.Key),
			zap.Error(err),
		)
	} else {
		reportURL = presigned.URL
	}

	params := ses.BuildDigestParams(report.Metrics, s.recipients, reportURL, s.dashboardURL)
	if _, err := s.sender.SendPortfolioDigest(ctx, params); err != nil {
		report.DigestError = err.Error()
		utils.Logger.Error("Failed to send report digest",
			zap.String("key", report.Key),
			zap.Error(err),
		)
		return
	}
	report.Emailed = true
}

// scoreBorrowers snapshots every borrower that has at least one loan.
func scoreBorrowers(loans []models.Loan, borrowers []models.Borrower, asOf civil.Date) ([]BorrowerScore, error) {
	names := make(map[string]string, len(borrowers))
	for _, b := range borrowers {
		names[b.ID] = b.Name
	}

	byBorrower := make(map[string][]models.Loan)
	for _, l := range loans {
		if l.BorrowerID == "" {
			continue
		}
		byBorrower[l.BorrowerID] = append(byBorrower[l.BorrowerID], l)
	}

	ids := make([]string, 0, len(byBorrower))
	for id := range byBorrower {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	scores := make([]BorrowerScore, 0, len(ids))
	for _, id := range ids {
		result, err := creditscore.Snapshot(byBorrower[id], asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to score borrower %s: %w", id, err)
		}
		scores = append(scores, BorrowerScore{Name: names[id], Result: result})
	}
	return scores, nil
}
