// Package handlers provides API Gateway handlers for the loan portfolio engine.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/aws/aws-lambda-go/events"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/creditscore"
	"loan-portfolio-engine/internal/services/ledger"
	"loan-portfolio-engine/internal/services/reporting"
	s3service "loan-portfolio-engine/internal/services/s3"
	"loan-portfolio-engine/internal/utils"
)

// corsHeaders returns the response headers for an endpoint serving methods.
func corsHeaders(methods string) map[string]string {
	return map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,Authorization",
		"Access-Control-Allow-Methods": methods,
		"Content-Type":                 "application/json",
	}
}

func preflight(headers map[string]string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    headers,
	}
}

// jsonResponse marshals v into a response body.
func jsonResponse(headers map[string]string, statusCode int, v any) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(headers, http.StatusInternalServerError, "Failed to encode response")
	}

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(body),
	}, nil
}

// errorResponse creates an error response.
func errorResponse(headers map[string]string, statusCode int, message string) (events.APIGatewayProxyResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"error":   http.StatusText(statusCode),
		"message": message,
	})

	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(body),
	}, nil
}

// failure logs err when it is unexpected and maps it to a response.
func failure(headers map[string]string, err error) (events.APIGatewayProxyResponse, error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		utils.GetLogger().Error("Request failed", utils.Error(err))
		return errorResponse(headers, status, "Internal error")
	}
	return errorResponse(headers, status, err.Error())
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrLoanNotFound),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrBorrowerNotFound),
		errors.Is(err, s3service.ErrReportNotFound):
		return http.StatusNotFound

	case errors.Is(err, ledger.ErrLoanClosed),
		errors.Is(err, ledger.ErrLoanNotActive),
		errors.Is(err, ledger.ErrAlreadyRefinanced),
		errors.Is(err, ledger.ErrNothingOutstanding),
		errors.Is(err, ledger.ErrPaymentMismatch):
		return http.StatusConflict

	case errors.Is(err, ledger.ErrConflictingRate),
		errors.Is(err, ledger.ErrInvalidManualRate),
		errors.Is(err, models.ErrInvalidPaymentAmount),
		errors.Is(err, models.ErrInvalidInterestDuration),
		errors.Is(err, models.ErrInvalidPrincipal),
		errors.Is(err, models.ErrEmptyBorrowerID),
		errors.Is(err, models.ErrMissingLoanDates),
		errors.Is(err, models.ErrDueBeforeStart),
		errors.Is(err, models.ErrNegativeAmount),
		errors.Is(err, models.ErrRepayableMismatch),
		errors.Is(err, models.ErrInvalidLoanStatus),
		errors.Is(err, creditscore.ErrMixedBorrowers),
		errors.Is(err, reporting.ErrInvalidRange),
		errors.Is(err, s3service.ErrInvalidReportKey),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// today returns the current business day in loc.
func today(now func() time.Time, loc *time.Location) civil.Date {
	return utils.Today(now(), loc)
}

// getEnvOrDefault returns environment variable or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
