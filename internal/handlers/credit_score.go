package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/creditscore"
	"loan-portfolio-engine/internal/utils"
)

// BorrowerLoans lists one borrower's loans.
type BorrowerLoans interface {
	ListLoansForBorrower(ctx context.Context, borrowerID string) ([]models.Loan, error)
}

// CreditScoreHandler serves GET /api/borrowers/{id}/credit-score.
type CreditScoreHandler struct {
	loans BorrowerLoans
	loc   *time.Location
	now   func() time.Time
}

// NewCreditScoreHandler creates a credit score handler.
func NewCreditScoreHandler(loans BorrowerLoans, loc *time.Location) *CreditScoreHandler {
	return &CreditScoreHandler{loans: loans, loc: locOrUTC(loc), now: time.Now}
}

// Score computes the borrower's score with history as of asOf, or today when asOf is empty.
func (h *CreditScoreHandler) Score(ctx context.Context, borrowerID, asOf string) (*creditscore.Result, error) {
	if borrowerID == "" {
		return nil, models.ErrEmptyBorrowerID
	}

	date, err := utils.ParseDateParam(asOf, today(h.now, h.loc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	loans, err := h.loans.ListLoansForBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}

	result, err := creditscore.Compute(loans, date)
	if err != nil {
		return nil, err
	}
	result.BorrowerID = borrowerID
	return result, nil
}

// Handle processes the API Gateway request.
func (h *CreditScoreHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := corsHeaders("GET,OPTIONS")
	if request.HTTPMethod == http.MethodOptions {
		return preflight(headers), nil
	}

	result, err := h.Score(ctx, request.PathParameters["id"], request.QueryStringParameters["as_of"])
	if err != nil {
		return failure(headers, err)
	}

	utils.GetLogger().Info("Computed credit score",
		utils.String("borrowerId", result.BorrowerID),
		utils.Int("score", result.Score),
		utils.Date("asOf", result.AsOf),
	)
	return jsonResponse(headers, http.StatusOK, result)
}
