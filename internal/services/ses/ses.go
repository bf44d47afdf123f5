// Package ses sends portfolio report digests via AWS SES
package ses

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appConfig "loan-portfolio-engine/internal/config"
	"loan-portfolio-engine/internal/services/portfolio"
	"loan-portfolio-engine/internal/utils"
)

// Service handles SES email operations
type Service struct {
	client    *ses.Client
	fromEmail string
}

// EmailParams represents parameters for sending an email
type EmailParams struct {
	To       []string
	Subject  string
	HTMLBody string
	TextBody string
	ReplyTo  string
}

// DigestParams contains the data rendered into a portfolio digest
type DigestParams struct {
	Recipients   []string
	Period       string
	AsOf         string
	LoanCount    int
	Disbursed    string
	Collected    string
	Outstanding  string
	NetIncome    string
	Yield        string
	OverdueRatio string
	Arrears      []ArrearsLine
	ReportURL    string
	DashboardURL string
}

// ArrearsLine is one aging bucket in the digest
type ArrearsLine struct {
	Label       string
	Count       int
	Outstanding string
}

// SendEmailResult contains the result of sending an email
type SendEmailResult struct {
	MessageID string
	SentAt    time.Time
}

// NewService creates a new SES service
func NewService(ctx context.Context, appCfg *appConfig.Config) (*Service, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(appCfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Service{
		client:    ses.NewFromConfig(cfg),
		fromEmail: appCfg.SESSenderEmail,
	}, nil
}

// SendEmail sends a basic email
func (s *Service) SendEmail(ctx context.Context, params EmailParams) (*SendEmailResult, error) {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: params.To,
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(params.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}

	if params.HTMLBody != "" {
		input.Message.Body.Html = &types.Content{
			Data:    aws.String(params.HTMLBody),
			Charset: aws.String("UTF-8"),
		}
	}

	if params.TextBody != "" {
		input.Message.Body.Text = &types.Content{
			Data:    aws.String(params.TextBody),
			Charset: aws.String("UTF-8"),
		}
	}

	if params.ReplyTo != "" {
		input.ReplyToAddresses = []string{params.ReplyTo}
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		utils.Logger.Error("Failed to send email",
			zap.Strings("to", params.To),
			zap.String("subject", params.Subject),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	utils.Logger.Info("Email sent successfully",
		zap.Strings("to", params.To),
		zap.String("subject", params.Subject),
		zap.String("messageId", messageID),
	)

	return &SendEmailResult{
		MessageID: messageID,
		SentAt:    time.Now(),
	}, nil
}

// SendPortfolioDigest e-mails the digest to its recipients
func (s *Service) SendPortfolioDigest(ctx context.Context, params DigestParams) (*SendEmailResult, error) {
	if len(params.Recipients) == 0 {
		return nil, fmt.Errorf("no digest recipients configured")
	}

	htmlBody, err := renderDigestHTML(params)
	if err != nil {
		return nil, fmt.Errorf("failed to render email template: %w", err)
	}

	return s.SendEmail(ctx, EmailParams{
		To:       params.Recipients,
		Subject:  fmt.Sprintf("Portfolio report %s", params.Period),
		HTMLBody: htmlBody,
		TextBody: renderDigestText(params),
	})
}

// BuildDigestParams formats portfolio metrics for the digest
func BuildDigestParams(m *portfolio.Metrics, recipients []string, reportURL, dashboardURL string) DigestParams {
	params := DigestParams{
		Recipients:   recipients,
		Period:       fmt.Sprintf("%s to %s", m.Range.Start, m.Range.End),
		AsOf:         m.AsOf.String(),
		LoanCount:    m.LoanCount,
		Disbursed:    m.TotalDisbursed.StringFixed(2),
		Collected:    m.TotalCollected.StringFixed(2),
		Outstanding:  m.TotalOutstanding.StringFixed(2),
		NetIncome:    m.NetIncome.StringFixed(2),
		Yield:        percent(m.PortfolioYield),
		OverdueRatio: percent(m.OverdueRatio),
		ReportURL:    reportURL,
		DashboardURL: dashboardURL,
	}

	for _, b := range m.Arrears {
		params.Arrears = append(params.Arrears, ArrearsLine{
			Label:       b.Label,
			Count:       b.Count,
			Outstanding: b.Outstanding.StringFixed(2),
		})
	}
	return params
}

func percent(r decimal.NullDecimal) string {
	if !r.Valid {
		return "n/a"
	}
	return r.Decimal.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

var digestTemplate = template.Must(template.New("portfolio_digest").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1f3a5f; color: white; padding: 24px; border-radius: 10px 10px 0 0; }
        .header h1 { margin: 0; font-size: 22px; }
        .content { background: #f9f9f9; padding: 24px; border-radius: 0 0 10px 10px; }
        table { width: 100%; border-collapse: collapse; margin: 12px 0; }
        td, th { padding: 6px 8px; border-bottom: 1px solid #e3e3e3; text-align: left; }
        .cta-button { display: inline-block; background: #1f3a5f; color: white; padding: 12px 24px; text-decoration: none; border-radius: 8px; font-weight: bold; margin-top: 16px; }
        .footer { text-align: center; margin-top: 24px; color: #999; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Portfolio report</h1>
        <p>{{.Period}}, as of {{.AsOf}}</p>
    </div>
    <div class="content">
        <table>
            <tr><th>Loans</th><td>{{.LoanCount}}</td></tr>
            <tr><th>Disbursed</th><td>{{.Disbursed}}</td></tr>
            <tr><th>Collected</th><td>{{.Collected}}</td></tr>
            <tr><th>Outstanding</th><td>{{.Outstanding}}</td></tr>
            <tr><th>Net income</th><td>{{.NetIncome}}</td></tr>
            <tr><th>Yield</th><td>{{.Yield}}</td></tr>
            <tr><th>Overdue ratio</th><td>{{.OverdueRatio}}</td></tr>
        </table>
        {{if .Arrears}}
        <h3>Arrears</h3>
        <table>
            <tr><th>Days past due</th><th>Loans</th><th>Outstanding</th></tr>
            {{range .Arrears}}<tr><td>{{.Label}}</td><td>{{.Count}}</td><td>{{.Outstanding}}</td></tr>
            {{end}}
        </table>
        {{end}}
        {{if .ReportURL}}<a href="{{.ReportURL}}" class="cta-button">Download full report</a>{{end}}
        {{if .DashboardURL}}<p><a href="{{.DashboardURL}}">Open dashboard</a></p>{{end}}
    </div>
    <div class="footer">
        <p>This email was sent by the loan portfolio engine</p>
    </div>
</body>
</html>`))

func renderDigestHTML(params DigestParams) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderDigestText(params DigestParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Portfolio report %s (as of %s)\n\n", params.Period, params.AsOf)
	fmt.Fprintf(&b, "Loans:         %d\n", params.LoanCount)
	fmt.Fprintf(&b, "Disbursed:     %s\n", params.Disbursed)
	fmt.Fprintf(&b, "Collected:     %s\n", params.Collected)
	fmt.Fprintf(&b, "Outstanding:   %s\n", params.Outstanding)
	fmt.Fprintf(&b, "Net income:    %s\n", params.NetIncome)
	fmt.Fprintf(&b, "Yield:         %s\n", params.Yield)
	fmt.Fprintf(&b, "Overdue ratio: %s\n", params.OverdueRatio)

	if len(params.Arrears) > 0 {
		b.WriteString("\nArrears:\n")
		for _, a := range params.Arrears {
			fmt.Fprintf(&b, "  %-6s %3d loans  %s\n", a.Label, a.Count, a.Outstanding)
		}
	}

	if params.ReportURL != "" {
		fmt.Fprintf(&b, "\nFull report: %s\n", params.ReportURL)
	}
	if params.DashboardURL != "" {
		fmt.Fprintf(&b, "Dashboard: %s\n", params.DashboardURL)
	}

	return b.String()
}
