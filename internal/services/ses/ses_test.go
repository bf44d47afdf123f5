package ses

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loan-portfolio-engine/internal/services/portfolio"
)

func mockMetrics() *portfolio.Metrics {
	arrears := portfolio.NewArrears()
	arrears[1].Count = 2
	arrears[1].Outstanding = decimal.RequireFromString("450")

	return &portfolio.Metrics{
		Range: portfolio.DateRange{
			Start: civil.Date{Year: 2024, Month: time.March, Day: 1},
			End:   civil.Date{Year: 2024, Month: time.March, Day: 31},
		},
		AsOf:             civil.Date{Year: 2024, Month: time.April, Day: 2},
		LoanCount:        4,
		TotalDisbursed:   decimal.RequireFromString("4000"),
		TotalCollected:   decimal.RequireFromString("3100.5"),
		TotalOutstanding: decimal.RequireFromString("1200"),
		NetIncome:        decimal.RequireFromString("2900"),
		PortfolioYield:   decimal.NewNullDecimal(decimal.RequireFromString("-0.2249")),
		Arrears:          arrears,
	}
}

func TestBuildDigestParams(t *testing.T) {
	params := BuildDigestParams(mockMetrics(), []string{"ops@example.com"}, "https://s3/report", "")

	assert.Equal(t, "2024-03-01 to 2024-03-31", params.Period)
	assert.Equal(t, "2024-04-02", params.AsOf)
	assert.Equal(t, "3100.50", params.Collected)
	assert.Equal(t, "-22.5%", params.Yield)
	assert.Equal(t, "n/a", params.OverdueRatio, "no ratio without a cohort count")
	require.Len(t, params.Arrears, 4)
	assert.Equal(t, "8-14", params.Arrears[1].Label)
	assert.Equal(t, "450.00", params.Arrears[1].Outstanding)
}

func TestRenderDigest(t *testing.T) {
	params := BuildDigestParams(mockMetrics(), []string{"ops@example.com"}, "https://s3/report?sig=a&b", "https://dash")

	html, err := renderDigestHTML(params)
	require.NoError(t, err)
	assert.Contains(t, html, "2024-03-01 to 2024-03-31")
	assert.Contains(t, html, "<td>8-14</td><td>2</td><td>450.00</td>")
	assert.Contains(t, html, "sig=a&amp;b", "URLs are escaped")

	text := renderDigestText(params)
	assert.Contains(t, text, "Loans:         4")
	assert.Contains(t, text, "Full report: https://s3/report?sig=a&b")
	assert.Contains(t, text, "Dashboard: https://dash")
}

func TestSendPortfolioDigest_RequiresRecipients(t *testing.T) {
	s := &Service{fromEmail: "noreply@example.com"}
	_, err := s.SendPortfolioDigest(context.Background(), DigestParams{})
	assert.Error(t, err)
}
