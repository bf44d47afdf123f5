// Package main provides a local HTTP server for development and testing.
// It serves the same endpoints as the Lambda functions behind one router.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"loan-portfolio-engine/internal/app"
	"loan-portfolio-engine/internal/handlers"
	"loan-portfolio-engine/internal/services/ledger"
	"loan-portfolio-engine/internal/utils"
)

// Server holds all dependencies
type Server struct {
	health    *handlers.HealthHandler
	scores    *handlers.CreditScoreHandler
	statuses  *handlers.LoanStatusHandler
	portfolio *handlers.PortfolioHandler
	ledger    handlers.Ledger
	reports   *handlers.ReportHandler
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if err := a.DB.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	loc := a.Config.Location()
	server := &Server{
		health:    handlers.NewHealthHandler(a.DB),
		scores:    handlers.NewCreditScoreHandler(a.Store, loc),
		statuses:  handlers.NewLoanStatusHandler(a.Store, loc),
		portfolio: handlers.NewPortfolioHandler(a.Store, loc),
		ledger:    a.Ledger,
		reports:   handlers.NewReportHandler(a.Reporting, a.Archive),
	}

	addr := fmt.Sprintf("0.0.0.0:%s", a.Config.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	utils.Logger.Info("Loan Portfolio Engine API Server",
		zap.String("addr", addr),
		zap.String("health", fmt.Sprintf("http://localhost:%s/health", a.Config.Port)),
	)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
}

// Routes builds the router with CORS and request logging.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/health", s.healthHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/borrowers/{id}/credit-score", s.creditScoreHandler).Methods(http.MethodGet)
	api.HandleFunc("/loans/{id}/status", s.loanStatusHandler).Methods(http.MethodGet)
	api.HandleFunc("/portfolio", s.portfolioHandler).Methods(http.MethodGet)
	api.HandleFunc("/portfolio/series", s.seriesHandler).Methods(http.MethodGet)

	api.HandleFunc("/loans", s.createLoanHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/payments", s.recordPaymentHandler).Methods(http.MethodPost)
	api.HandleFunc("/payments/{id}", s.undoPaymentHandler).Methods(http.MethodDelete)
	api.HandleFunc("/loans/{id}/refinance", s.refinanceHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/top-up", s.topUpHandler).Methods(http.MethodPost)
	api.HandleFunc("/loans/{id}/default", s.defaultHandler).Methods(http.MethodPost)

	api.HandleFunc("/reports", s.triggerReportHandler).Methods(http.MethodPost)
	api.HandleFunc("/reports", s.listReportsHandler).Methods(http.MethodGet)
	api.HandleFunc("/reports/{key:.+}", s.downloadReportHandler).Methods(http.MethodGet)

	// Setup CORS
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		utils.GetLogger().Debug("Request served",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health, status := s.health.Check(r.Context())
	writeJSON(w, status, Response{
		Success: status == http.StatusOK,
		Message: "Loan Portfolio Engine API is running",
		Data:    health,
	})
}

func (s *Server) creditScoreHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.scores.Score(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("as_of"))
	respond(w, http.StatusOK, result, err)
}

func (s *Server) loanStatusHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.statuses.Status(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("as_of"))
	respond(w, http.StatusOK, summary, err)
}

func (s *Server) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	q, err := s.portfolio.ParseQuery(queryParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	metrics, err := s.portfolio.Metrics(r.Context(), q)
	respond(w, http.StatusOK, metrics, err)
}

func (s *Server) seriesHandler(w http.ResponseWriter, r *http.Request) {
	q, err := s.portfolio.ParseQuery(queryParams(r))
	if err != nil {
		writeError(w, err)
		return
	}
	series, err := s.portfolio.Series(r.Context(), q)
	respond(w, http.StatusOK, series, err)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.LoanRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	loan, err := s.ledger.CreateLoan(r.Context(), req)
	respond(w, http.StatusCreated, loan, err)
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var req handlers.AmountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payment, err := s.ledger.RecordPayment(r.Context(), mux.Vars(r)["id"], req.Amount)
	respond(w, http.StatusCreated, payment, err)
}

func (s *Server) undoPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ledger.UndoPayment(r.Context(), mux.Vars(r)["id"])
	respond(w, http.StatusOK, loan, err)
}

func (s *Server) refinanceHandler(w http.ResponseWriter, r *http.Request) {
	var req ledger.RefinanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	successor, err := s.ledger.Refinance(r.Context(), mux.Vars(r)["id"], req)
	respond(w, http.StatusCreated, successor, err)
}

func (s *Server) topUpHandler(w http.ResponseWriter, r *http.Request) {
	var req handlers.AmountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	loan, err := s.ledger.TopUp(r.Context(), mux.Vars(r)["id"], req.Amount)
	respond(w, http.StatusOK, loan, err)
}

func (s *Server) defaultHandler(w http.ResponseWriter, r *http.Request) {
	loan, err := s.ledger.MarkDefaulted(r.Context(), mux.Vars(r)["id"])
	respond(w, http.StatusOK, loan, err)
}

func (s *Server) triggerReportHandler(w http.ResponseWriter, r *http.Request) {
	var req handlers.ReportTriggerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.reports.Trigger(r.Context(), req)
	respond(w, http.StatusCreated, resp, err)
}

func (s *Server) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reports, err := s.reports.List(r.Context(), q.Get("month"), q.Get("limit"))
	respond(w, http.StatusOK, reports, err)
}

func (s *Server) downloadReportHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.reports.Download(r.Context(), mux.Vars(r)["key"])
	respond(w, http.StatusOK, result, err)
}

func queryParams(r *http.Request) map[string]string {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	return params
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	return handlers.DecodeBody(string(body), v)
}

func respond(w http.ResponseWriter, status int, data interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, Response{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	status := handlers.StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		utils.GetLogger().Error("Request failed", zap.Error(err))
		message = "Internal error"
	}
	writeJSON(w, status, Response{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
