package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/utils"
)

// Tx is the ledger's view of one store transaction. A loan read through
// LockLoan stays locked until the transaction ends.
type Tx interface {
	LockLoan(ctx context.Context, id string) (*models.Loan, error)
	CreateLoan(ctx context.Context, loan *models.Loan) error
	UpdateLoan(ctx context.Context, loan *models.Loan) error

	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	ListPaymentsForLoan(ctx context.Context, loanID string) ([]models.Payment, error)
	InsertPayment(ctx context.Context, payment *models.Payment) error
	DeletePayment(ctx context.Context, id string) error
}

// Store is the persistence the ledger needs. Changes to an existing loan run
// inside InTx; an error from fn rolls every write back.
type Store interface {
	CreateLoan(ctx context.Context, loan *models.Loan) error
	GetInterestSettings(ctx context.Context) (*models.InterestSettings, error)
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Service applies the ledger rules against a Store.
type Service struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

// NewService creates a ledger service. loc is the business time zone used to
// decide which calendar day "now" is.
func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, now: time.Now}
}

// CreateLoan originates and stores a new loan.
func (s *Service) CreateLoan(ctx context.Context, req LoanRequest) (*models.Loan, error) {
	settings, err := s.store.GetInterestSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load interest settings: %w", err)
	}

	loan, err := Originate(req, settings)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	utils.Logger.Info("Loan originated",
		zap.String("loan_id", loan.ID),
		zap.String("borrower_id", loan.BorrowerID),
		utils.Money("principal", loan.Principal),
		utils.Date("due_date", loan.DueDate),
	)
	return loan, nil
}

// RecordPayment stores a repayment against loanID.
func (s *Service) RecordPayment(ctx context.Context, loanID string, amount decimal.Decimal) (*models.Payment, error) {
	var (
		updated models.Loan
		payment models.Payment
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if updated, payment, err = RecordPayment(*loan, amount, s.now().In(s.loc)); err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, &payment); err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		return tx.UpdateLoan(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("Payment recorded",
		zap.String("loan_id", loanID),
		zap.String("payment_id", payment.ID),
		utils.Money("amount", amount),
		utils.Money("repaid", updated.RepaidAmount),
	)
	return &payment, nil
}

// UndoPayment deletes a payment and takes its amount back off the loan.
func (s *Service) UndoPayment(ctx context.Context, paymentID string) (*models.Loan, error) {
	var (
		updated models.Loan
		payment *models.Payment
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		var err error
		if payment, err = tx.GetPayment(ctx, paymentID); err != nil {
			return err
		}

		loan, err := tx.LockLoan(ctx, payment.LoanID)
		if err != nil {
			return err
		}

		remaining, err := tx.ListPaymentsForLoan(ctx, loan.ID)
		if err != nil {
			return fmt.Errorf("failed to list payments: %w", err)
		}

		if updated, err = UndoPayment(*loan, *payment, remaining); err != nil {
			return err
		}

		// A concurrent undo of the same payment deletes nothing and rolls back here.
		if err := tx.DeletePayment(ctx, payment.ID); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("Payment undone",
		zap.String("loan_id", updated.ID),
		zap.String("payment_id", payment.ID),
		utils.Money("amount", payment.Amount),
	)
	return &updated, nil
}

// Refinance closes loanID into a successor and returns the successor.
func (s *Service) Refinance(ctx context.Context, loanID string, req RefinanceRequest) (*models.Loan, error) {
	settings, err := s.store.GetInterestSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load interest settings: %w", err)
	}

	if !req.StartDate.IsValid() {
		req.StartDate = utils.Today(s.now(), s.loc)
	}

	var successor *models.Loan
	err = s.store.InTx(ctx, func(tx Tx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}

		var predecessor models.Loan
		if predecessor, successor, err = Refinance(*loan, req, settings); err != nil {
			return err
		}

		if err := tx.CreateLoan(ctx, successor); err != nil {
			return fmt.Errorf("failed to refinance loan: %w", err)
		}
		return tx.UpdateLoan(ctx, &predecessor)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("Loan refinanced",
		zap.String("loan_id", loanID),
		zap.String("successor_id", successor.ID),
		utils.Money("principal", successor.Principal),
	)
	return successor, nil
}

// TopUp adds principal to an active loan.
func (s *Service) TopUp(ctx context.Context, loanID string, amount decimal.Decimal) (*models.Loan, error) {
	var updated models.Loan
	err := s.store.InTx(ctx, func(tx Tx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if updated, err = TopUp(*loan, amount, utils.Today(s.now(), s.loc)); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Info("Loan topped up",
		zap.String("loan_id", loanID),
		utils.Money("amount", amount),
		utils.Money("total_repayable", updated.TotalRepayable),
	)
	return &updated, nil
}

// MarkDefaulted writes off loanID now.
func (s *Service) MarkDefaulted(ctx context.Context, loanID string) (*models.Loan, error) {
	var updated models.Loan
	err := s.store.InTx(ctx, func(tx Tx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if updated, err = MarkDefaulted(*loan, s.now().In(s.loc)); err != nil {
			return err
		}
		return tx.UpdateLoan(ctx, &updated)
	})
	if err != nil {
		return nil, err
	}

	utils.Logger.Warn("Loan written off",
		zap.String("loan_id", loanID),
		utils.Money("outstanding", updated.Outstanding()),
	)
	return &updated, nil
}
