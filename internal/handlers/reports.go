package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/aws/aws-lambda-go/events"

	"loan-portfolio-engine/internal/services/portfolio"
	"loan-portfolio-engine/internal/services/reporting"
	s3service "loan-portfolio-engine/internal/services/s3"
	"loan-portfolio-engine/internal/utils"
)

const presignExpiryMinutes = 15

// ReportGenerator builds and archives reports.
type ReportGenerator interface {
	Generate(ctx context.Context, req reporting.Request) (*reporting.Report, error)
}

// ReportArchive reads archived reports.
type ReportArchive interface {
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiryMinutes int) (*s3service.PresignedURLResult, error)
	ListReports(ctx context.Context, month string, maxKeys int32) ([]s3service.ReportObject, error)
}

// ReportTriggerRequest is the body of POST /api/reports.
type ReportTriggerRequest struct {
	From              civil.Date `json:"from"`
	To                civil.Date `json:"to"`
	AsOf              civil.Date `json:"asOf"`
	ExcludeRefinanced bool       `json:"excludeRefinanced"`
	Email             bool       `json:"email"`
}

// ReportTriggerResponse is returned after a report is archived.
type ReportTriggerResponse struct {
	Message     string `json:"message"`
	ReportID    string `json:"reportId"`
	Key         string `json:"key"`
	Emailed     bool   `json:"emailed"`
	DigestError string `json:"digestError,omitempty"`
}

// ReportHandler serves POST /api/reports, GET /api/reports and
// GET /api/reports?key=.
type ReportHandler struct {
	generator ReportGenerator
	archive   ReportArchive
}

// NewReportHandler creates a report handler.
func NewReportHandler(generator ReportGenerator, archive ReportArchive) *ReportHandler {
	return &ReportHandler{generator: generator, archive: archive}
}

// Trigger generates a report for req.
func (h *ReportHandler) Trigger(ctx context.Context, req ReportTriggerRequest) (*ReportTriggerResponse, error) {
	report, err := h.generator.Generate(ctx, reporting.Request{
		Range:             portfolio.DateRange{Start: req.From, End: req.To},
		AsOf:              req.AsOf,
		ExcludeRefinanced: req.ExcludeRefinanced,
		Email:             req.Email,
	})
	if err != nil {
		return nil, err
	}

	return &ReportTriggerResponse{
		Message:     "Report generated",
		ReportID:    report.ID,
		Key:         report.Key,
		Emailed:     report.Emailed,
		DigestError: report.DigestError,
	}, nil
}

// Download presigns a short-lived URL for an archived report.
func (h *ReportHandler) Download(ctx context.Context, key string) (*s3service.PresignedURLResult, error) {
	result, err := h.archive.GeneratePresignedDownloadURL(ctx, key, presignExpiryMinutes)
	if err != nil {
		return nil, err
	}
	utils.GetLogger().Info("Generated report download URL", utils.String("key", key))
	return result, nil
}

// List returns archived reports, optionally for one YYYY/MM month.
func (h *ReportHandler) List(ctx context.Context, month, limit string) ([]s3service.ReportObject, error) {
	var maxKeys int32
	if limit != "" {
		n, err := strconv.ParseInt(limit, 10, 32)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: limit must be a positive integer", errBadRequest)
		}
		maxKeys = int32(n)
	}
	return h.archive.ListReports(ctx, month, maxKeys)
}

// Handle processes the API Gateway request.
func (h *ReportHandler) Handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	headers := corsHeaders("GET,POST,OPTIONS")

	switch request.HTTPMethod {
	case http.MethodOptions:
		return preflight(headers), nil

	case http.MethodPost:
		var req ReportTriggerRequest
		if err := DecodeBody(request.Body, &req); err != nil {
			return failure(headers, err)
		}
		resp, err := h.Trigger(ctx, req)
		if err != nil {
			return failure(headers, err)
		}
		return jsonResponse(headers, http.StatusCreated, resp)

	case http.MethodGet:
		params := request.QueryStringParameters
		if key := params["key"]; key != "" {
			result, err := h.Download(ctx, key)
			if err != nil {
				return failure(headers, err)
			}
			return jsonResponse(headers, http.StatusOK, result)
		}

		reports, err := h.List(ctx, params["month"], params["limit"])
		if err != nil {
			return failure(headers, err)
		}
		return jsonResponse(headers, http.StatusOK, reports)
	}

	return errorResponse(headers, http.StatusMethodNotAllowed, "Method not allowed")
}

// PreviousMonth returns the full calendar month before the one containing d.
func PreviousMonth(d civil.Date) portfolio.DateRange {
	start := utils.AddMonths(utils.MonthStart(d), -1)
	return portfolio.DateRange{Start: start, End: utils.MonthEnd(start)}
}

// HandleScheduled generates and mails last month's report. It is the target
// of the monthly EventBridge schedule.
func (h *ReportHandler) HandleScheduled(ctx context.Context, event events.CloudWatchEvent) error {
	r := PreviousMonth(civil.DateOf(event.Time.UTC()))
	resp, err := h.Trigger(ctx, ReportTriggerRequest{From: r.Start, To: r.End, Email: true})
	if err != nil {
		utils.GetLogger().Error("Scheduled report failed",
			utils.String("eventId", event.ID),
			utils.Error(err))
		return err
	}

	utils.GetLogger().Info("Scheduled report generated",
		utils.String("key", resp.Key),
		utils.Bool("emailed", resp.Emailed))
	return nil
}
