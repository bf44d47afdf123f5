package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/loanstatus"
	"loan-portfolio-engine/internal/utils"
)

// LoanGetter loads a single loan.
type LoanGetter interface {
	GetLoan(ctx context.Context, id string) (*models.Loan, error)
}

// LoanStatusHandler serves GET /api/loans/{id}/status.
type LoanStatusHandler struct {
	loans LoanGetter
	loc   *time.Location
	now   func() time.Time
}

// NewLoanStatusHandler creates a loan status handler.
func NewLoanStatusHandler(loans LoanGetter, loc *time.Location) *LoanStatusHandler {
	return &LoanStatusHandler{loans: loans, loc: locOrUTC(loc), now: time.Now}
}

// Status summarizes the loan as of asOf, or today when asOf is empty.
func (h *LoanStatusHandler) Status(ctx context.Context, loanID, asOf string) (models.LoanSummary, error) {
	date, err := utils.ParseDateParam(asOf, today(h.now, h.loc))
	if err != nil {
		return models.LoanSummary{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	loan, err := h.loans.GetLoan(ctx, loanID)
	if err != nil {
		return models.LoanSummary{}, err
	}
	return loanstatus.Summarize(*loan, date), nil
}

// Handle processes the API Gateway request.
func (h *LoanStatusHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := corsHeaders("GET,OPTIONS")
	if request.HTTPMethod == http.MethodOptions {
		return preflight(headers), nil
	}

	summary, err := h.Status(ctx, request.PathParameters["id"], request.QueryStringParameters["as_of"])
	if err != nil {
		return failure(headers, err)
	}
	return jsonResponse(headers, http.StatusOK, summary)
}
