package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/shopspring/decimal"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/ledger"
)

// Ledger is the subset of ledger.Service the API exposes.
type Ledger interface {
	CreateLoan(ctx context.Context, req ledger.LoanRequest) (*models.Loan, error)
	RecordPayment(ctx context.Context, loanID string, amount decimal.Decimal) (*models.Payment, error)
	UndoPayment(ctx context.Context, paymentID string) (*models.Loan, error)
	Refinance(ctx context.Context, loanID string, req ledger.RefinanceRequest) (*models.Loan, error)
	TopUp(ctx context.Context, loanID string, amount decimal.Decimal) (*models.Loan, error)
	MarkDefaulted(ctx context.Context, loanID string) (*models.Loan, error)
}

// AmountRequest is the body of payment and top-up requests.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// LedgerHandler serves the loan and payment write endpoints.
type LedgerHandler struct {
	ledger Ledger
}

// NewLedgerHandler creates a ledger handler.
func NewLedgerHandler(l Ledger) *LedgerHandler {
	return &LedgerHandler{ledger: l}
}

// DecodeBody unmarshals a JSON request body into v.
func DecodeBody(body string, v any) error {
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("%w: invalid JSON in request body", errBadRequest)
	}
	return nil
}

// Handle routes on the API Gateway resource template.
func (h *LedgerHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := corsHeaders("POST,DELETE,OPTIONS")
	if request.HTTPMethod == http.MethodOptions {
		return preflight(headers), nil
	}

	id := request.PathParameters["id"]
	route := request.HTTPMethod + " " + request.Resource

	var (
		result any
		status = http.StatusOK
		err    error
	)

	switch route {
	case "POST /api/loans":
		var req ledger.LoanRequest
		if err = DecodeBody(request.Body, &req); err == nil {
			result, err = h.ledger.CreateLoan(ctx, req)
			status = http.StatusCreated
		}

	case "POST /api/loans/{id}/payments":
		var req AmountRequest
		if err = DecodeBody(request.Body, &req); err == nil {
			result, err = h.ledger.RecordPayment(ctx, id, req.Amount)
			status = http.StatusCreated
		}

	case "DELETE /api/payments/{id}":
		result, err = h.ledger.UndoPayment(ctx, id)

	case "POST /api/loans/{id}/refinance":
		var req ledger.RefinanceRequest
		if err = DecodeBody(request.Body, &req); err == nil {
			result, err = h.ledger.Refinance(ctx, id, req)
			status = http.StatusCreated
		}

	case "POST /api/loans/{id}/top-up":
		var req AmountRequest
		if err = DecodeBody(request.Body, &req); err == nil {
			result, err = h.ledger.TopUp(ctx, id, req.Amount)
		}

	case "POST /api/loans/{id}/default":
		result, err = h.ledger.MarkDefaulted(ctx, id)

	default:
		return errorResponse(headers, http.StatusNotFound, fmt.Sprintf("Unknown route: %s", route))
	}

	if err != nil {
		return failure(headers, err)
	}
	return jsonResponse(headers, status, result)
}
