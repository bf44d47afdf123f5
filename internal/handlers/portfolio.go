package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/portfolio"
	"loan-portfolio-engine/internal/utils"
)

// PortfolioSources loads the records the dashboard aggregates.
type PortfolioSources interface {
	ListLoans(ctx context.Context) ([]models.Loan, error)
	ListPayments(ctx context.Context) ([]models.Payment, error)
	ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error)
}

// PortfolioQuery is the parsed query string of a portfolio request.
type PortfolioQuery struct {
	Range   portfolio.DateRange
	Options portfolio.Options
}

// PortfolioHandler serves GET /api/portfolio and GET /api/portfolio/series.
type PortfolioHandler struct {
	sources PortfolioSources
	loc     *time.Location
	now     func() time.Time
}

// NewPortfolioHandler creates a portfolio handler.
func NewPortfolioHandler(sources PortfolioSources, loc *time.Location) *PortfolioHandler {
	return &PortfolioHandler{sources: sources, loc: locOrUTC(loc), now: time.Now}
}

// ParseQuery reads from, to, as_of and exclude_refinanced. The range defaults
// to the current month through today and loans are classified as of today
// unless as_of asks for a snapshot.
func (h *PortfolioHandler) ParseQuery(params map[string]string) (PortfolioQuery, error) {
	todayDate := today(h.now, h.loc)

	from, err := utils.ParseDateParam(params["from"], utils.MonthStart(todayDate))
	if err != nil {
		return PortfolioQuery{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	to, err := utils.ParseDateParam(params["to"], todayDate)
	if err != nil {
		return PortfolioQuery{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	asOf, err := utils.ParseDateParam(params["as_of"], todayDate)
	if err != nil {
		return PortfolioQuery{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}

	var excludeRefinanced bool
	if v := params["exclude_refinanced"]; v != "" {
		if excludeRefinanced, err = strconv.ParseBool(v); err != nil {
			return PortfolioQuery{}, fmt.Errorf("%w: invalid exclude_refinanced %q", errBadRequest, v)
		}
	}

	q := PortfolioQuery{
		Range: portfolio.DateRange{Start: from, End: to},
		Options: portfolio.Options{
			AsOf:              asOf,
			ExcludeRefinanced: excludeRefinanced,
		},
	}
	if !q.Range.IsValid() {
		return PortfolioQuery{}, fmt.Errorf("%w: from %s is after to %s", errBadRequest, from, to)
	}
	return q, nil
}

// Metrics aggregates the portfolio for q.
func (h *PortfolioHandler) Metrics(ctx context.Context, q PortfolioQuery) (*portfolio.Metrics, error) {
	loans, payments, expenses, err := h.load(ctx, q.Range)
	if err != nil {
		return nil, err
	}
	return portfolio.Aggregate(loans, payments, expenses, q.Range, q.Options), nil
}

// Series builds the month-by-month series for q.
func (h *PortfolioHandler) Series(ctx context.Context, q PortfolioQuery) ([]portfolio.MonthPoint, error) {
	loans, payments, expenses, err := h.load(ctx, q.Range)
	if err != nil {
		return nil, err
	}
	return portfolio.MonthlySeries(loans, payments, expenses, q.Range, q.Options), nil
}

func (h *PortfolioHandler) load(ctx context.Context, r portfolio.DateRange) ([]models.Loan, []models.Payment, []models.Expense, error) {
	var (
		loans    []models.Loan
		payments []models.Payment
		expenses []models.Expense
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		loans, err = h.sources.ListLoans(gctx)
		return err
	})
	g.Go(func() (err error) {
		payments, err = h.sources.ListPayments(gctx)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = h.sources.ListExpenses(gctx, r.Start.In(h.loc), r.End.AddDays(1).In(h.loc))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return loans, payments, expenses, nil
}

// Handle processes the API Gateway request.
func (h *PortfolioHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := corsHeaders("GET,OPTIONS")
	if request.HTTPMethod == http.MethodOptions {
		return preflight(headers), nil
	}

	q, err := h.ParseQuery(request.QueryStringParameters)
	if err != nil {
		return failure(headers, err)
	}

	if strings.HasSuffix(strings.TrimSuffix(request.Path, "/"), "/series") {
		series, err := h.Series(ctx, q)
		if err != nil {
			return failure(headers, err)
		}
		return jsonResponse(headers, http.StatusOK, series)
	}

	metrics, err := h.Metrics(ctx, q)
	if err != nil {
		return failure(headers, err)
	}
	return jsonResponse(headers, http.StatusOK, metrics)
}
