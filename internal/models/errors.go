package models

import "errors"

// Common errors
var (
	ErrEmptyBorrowerID         = errors.New("borrower_id cannot be empty")
	ErrMissingLoanDates        = errors.New("loan start and due dates are required")
	ErrDueBeforeStart          = errors.New("loan due date cannot precede its start date")
	ErrInvalidPrincipal        = errors.New("principal must be positive")
	ErrNegativeAmount          = errors.New("amounts cannot be negative")
	ErrRepayableMismatch       = errors.New("total repayable must equal principal plus interest")
	ErrInvalidLoanStatus       = errors.New("invalid stored loan status")
	ErrInvalidInterestDuration = errors.New("interest duration must be between 1 and 4 weeks")
	ErrInvalidPaymentAmount    = errors.New("payment amount must be positive")
	ErrLoanNotFound            = errors.New("loan not found")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrBorrowerNotFound        = errors.New("borrower not found")
)
