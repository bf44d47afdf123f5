package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loan-portfolio-engine/internal/handlers"
	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/ledger"
	"loan-portfolio-engine/internal/services/reporting"
	s3service "loan-portfolio-engine/internal/services/s3"
	"loan-portfolio-engine/internal/utils"
)

func TestMain(m *testing.M) {
	utils.Logger = zap.NewNop()
	os.Exit(m.Run())
}

type memStore struct {
	loans []models.Loan
}

func (m *memStore) HealthCheck(ctx context.Context) error { return nil }

func (m *memStore) GetLoan(ctx context.Context, id string) (*models.Loan, error) {
	for _, l := range m.loans {
		if l.ID == id {
			loan := l
			return &loan, nil
		}
	}
	return nil, models.ErrLoanNotFound
}

func (m *memStore) ListLoansForBorrower(ctx context.Context, borrowerID string) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range m.loans {
		if l.BorrowerID == borrowerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memStore) ListLoans(ctx context.Context) ([]models.Loan, error) { return m.loans, nil }

func (m *memStore) ListPayments(ctx context.Context) ([]models.Payment, error) { return nil, nil }

func (m *memStore) ListExpenses(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	return nil, nil
}

type stubLedger struct{}

func (stubLedger) CreateLoan(ctx context.Context, req ledger.LoanRequest) (*models.Loan, error) {
	return &models.Loan{ID: "new", BorrowerID: req.BorrowerID, Principal: req.Principal}, nil
}

func (stubLedger) RecordPayment(ctx context.Context, loanID string, amount decimal.Decimal) (*models.Payment, error) {
	if loanID == "closed" {
		return nil, ledger.ErrLoanClosed
	}
	return &models.Payment{ID: "p1", LoanID: loanID, Amount: amount}, nil
}

func (stubLedger) UndoPayment(ctx context.Context, paymentID string) (*models.Loan, error) {
	return nil, models.ErrPaymentNotFound
}

func (stubLedger) Refinance(ctx context.Context, loanID string, req ledger.RefinanceRequest) (*models.Loan, error) {
	return &models.Loan{ID: "succ", RefinancedFromID: loanID}, nil
}

func (stubLedger) TopUp(ctx context.Context, loanID string, amount decimal.Decimal) (*models.Loan, error) {
	return &models.Loan{ID: loanID}, nil
}

func (stubLedger) MarkDefaulted(ctx context.Context, loanID string) (*models.Loan, error) {
	return &models.Loan{ID: loanID, Status: models.LoanStatusDefaulted}, nil
}

type stubReports struct{}

func (stubReports) Generate(ctx context.Context, req reporting.Request) (*reporting.Report, error) {
	if !req.Range.IsValid() {
		return nil, reporting.ErrInvalidRange
	}
	return &reporting.Report{ID: "r1", Key: "reports/2024/04/r1.json"}, nil
}

func (stubReports) GeneratePresignedDownloadURL(ctx context.Context, key string, expiryMinutes int) (*s3service.PresignedURLResult, error) {
	if err := s3service.ValidateReportKey(key); err != nil {
		return nil, err
	}
	return &s3service.PresignedURLResult{URL: "https://signed/" + key, Key: key}, nil
}

func (stubReports) ListReports(ctx context.Context, month string, maxKeys int32) ([]s3service.ReportObject, error) {
	return []s3service.ReportObject{{Key: "reports/2024/04/r1.json"}}, nil
}

func newTestServer() *httptest.Server {
	store := &memStore{loans: []models.Loan{{
		ID: "l1", BorrowerID: "b1",
		Principal: decimal.NewFromInt(1000), Interest: decimal.NewFromInt(200),
		TotalRepayable: decimal.NewFromInt(1200), RepaidAmount: decimal.Zero,
		StartDate: civil.Date{Year: 2024, Month: time.March, Day: 1},
		DueDate:   civil.Date{Year: 2024, Month: time.March, Day: 15},
	}}}

	s := &Server{
		health:    handlers.NewHealthHandler(store),
		scores:    handlers.NewCreditScoreHandler(store, time.UTC),
		statuses:  handlers.NewLoanStatusHandler(store, time.UTC),
		portfolio: handlers.NewPortfolioHandler(store, time.UTC),
		ledger:    stubLedger{},
		reports:   handlers.NewReportHandler(stubReports{}, stubReports{}),
	}
	return httptest.NewServer(s.Routes())
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, method, url, body string) (int, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestServer_Routes(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"health", "GET", "/health", "", http.StatusOK},
		{"credit score", "GET", "/api/borrowers/b1/credit-score?as_of=2024-03-31", "", http.StatusOK},
		{"credit score bad date", "GET", "/api/borrowers/b1/credit-score?as_of=yesterday", "", http.StatusBadRequest},
		{"loan status", "GET", "/api/loans/l1/status?as_of=2024-03-20", "", http.StatusOK},
		{"loan status missing", "GET", "/api/loans/zz/status", "", http.StatusNotFound},
		{"portfolio", "GET", "/api/portfolio?from=2024-03-01&to=2024-03-31", "", http.StatusOK},
		{"portfolio reversed", "GET", "/api/portfolio?from=2024-03-31&to=2024-03-01", "", http.StatusBadRequest},
		{"series", "GET", "/api/portfolio/series?from=2024-01-01&to=2024-03-31", "", http.StatusOK},
		{"create loan", "POST", "/api/loans", `{"borrowerId":"b2","principal":"100","startDate":"2024-04-01","interestDuration":1}`, http.StatusCreated},
		{"record payment", "POST", "/api/loans/l1/payments", `{"amount":"50"}`, http.StatusCreated},
		{"payment on closed loan", "POST", "/api/loans/closed/payments", `{"amount":"50"}`, http.StatusConflict},
		{"payment bad body", "POST", "/api/loans/l1/payments", `{`, http.StatusBadRequest},
		{"undo payment", "DELETE", "/api/payments/p9", "", http.StatusNotFound},
		{"refinance", "POST", "/api/loans/l1/refinance", `{"interestDuration":2}`, http.StatusCreated},
		{"top up", "POST", "/api/loans/l1/top-up", `{"amount":"25"}`, http.StatusOK},
		{"default", "POST", "/api/loans/l1/default", "", http.StatusOK},
		{"trigger report", "POST", "/api/reports", `{"from":"2024-03-01","to":"2024-03-31"}`, http.StatusCreated},
		{"trigger report no range", "POST", "/api/reports", `{}`, http.StatusBadRequest},
		{"list reports", "GET", "/api/reports?month=2024/04", "", http.StatusOK},
		{"download report", "GET", "/api/reports/reports/2024/04/r1.json", "", http.StatusOK},
		{"download outside prefix", "GET", "/api/reports/uploads/x.json", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, tt.method, ts.URL+tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status, env.Error)
			assert.Equal(t, status < 300, env.Success)
		})
	}
}

func TestServer_LoanStatusBody(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	status, env := do(t, "GET", ts.URL+"/api/loans/l1/status?as_of=2024-03-20", "")
	require.Equal(t, http.StatusOK, status)

	var summary models.LoanSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, models.LoanStatusOverdue, summary.Status)
	assert.Equal(t, 5, summary.DaysOverdue)
}

func TestServer_CORSPreflight(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/loans/l1/payments", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
