// Package portfolio aggregates loans, payments and expenses into dashboard metrics.
package portfolio

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/loanstatus"
	"loan-portfolio-engine/internal/utils"
)

const (
	// RatioPlaces is the precision of the derived ratios.
	RatioPlaces = 4
	// MoneyPlaces is the precision of derived money values such as the average loan size.
	MoneyPlaces = 2
)

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start civil.Date `json:"start"`
	End   civil.Date `json:"end"`
}

// Contains reports whether d falls inside the range, bounds included.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// IsValid reports whether both bounds are set and ordered.
func (r DateRange) IsValid() bool {
	return r.Start.IsValid() && r.End.IsValid() && !r.End.Before(r.Start)
}

// Options controls how the cohort is classified.
type Options struct {
	// AsOf is the classification and aging date. Live views pass today; zero
	// takes a snapshot at the range end.
	AsOf civil.Date
	// ExcludeRefinanced drops loans whose stored status is Refinanced.
	ExcludeRefinanced bool
}

func (o Options) asOf(r DateRange) civil.Date {
	if o.AsOf.IsValid() {
		return o.AsOf
	}
	return r.End
}

// StatusCounts counts the cohort per derived status.
type StatusCounts struct {
	Active    int `json:"active"`
	Paid      int `json:"paid"`
	Overdue   int `json:"overdue"`
	Defaulted int `json:"defaulted"`
}

// Metrics is the portfolio summary for one cohort.
type Metrics struct {
	Range DateRange  `json:"range"`
	AsOf  civil.Date `json:"asOf"`

	LoanCount          int          `json:"loanCount"`
	ExcludedLoans      int          `json:"excludedLoans"`
	ExcludedRefinanced int          `json:"excludedRefinanced"`
	Counts             StatusCounts `json:"counts"`

	TotalDisbursed   decimal.Decimal `json:"totalDisbursed"`
	TotalCollected   decimal.Decimal `json:"totalCollected"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	TotalRepayable   decimal.Decimal `json:"totalRepayable"`
	ExpectedProfit   decimal.Decimal `json:"expectedProfit"`
	ActualProfit     decimal.Decimal `json:"actualProfit"`

	// Income and Costs are payments and expenses dated inside the range,
	// regardless of which cohort the paid loan belongs to.
	Income    decimal.Decimal `json:"income"`
	Costs     decimal.Decimal `json:"costs"`
	NetIncome decimal.Decimal `json:"netIncome"`

	AverageLoanSize decimal.NullDecimal `json:"averageLoanSize"`
	PortfolioYield  decimal.NullDecimal `json:"portfolioYield"`
	RepaymentRate   decimal.NullDecimal `json:"repaymentRate"`
	// OverdueRatio is overdue loans over the cohort. Dashboards have
	// historically labelled it "default rate".
	OverdueRatio   decimal.NullDecimal `json:"overdueRatio"`
	DefaultedRatio decimal.NullDecimal `json:"defaultedRatio"`

	Arrears []ArrearsBucket `json:"arrears"`
}

// Aggregate summarizes the loans that started inside r, classified at opts.AsOf.
func Aggregate(loans []models.Loan, payments []models.Payment, expenses []models.Expense, r DateRange, opts Options) *Metrics {
	asOf := opts.asOf(r)
	m := &Metrics{
		Range:            r,
		AsOf:             asOf,
		TotalDisbursed:   decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		TotalRepayable:   decimal.Zero,
		ExpectedProfit:   decimal.Zero,
		ActualProfit:     decimal.Zero,
		Arrears:          NewArrears(),
	}

	for _, loan := range loans {
		if loan.StartDate.IsValid() && !r.Contains(loan.StartDate) {
			continue
		}
		if !loan.IsWellFormed() {
			m.ExcludedLoans++
			continue
		}
		if opts.ExcludeRefinanced && loan.IsRefinanced() {
			m.ExcludedRefinanced++
			continue
		}
		m.add(loan, loanstatus.Classify(loan, asOf))
	}

	m.Income, m.Costs = cashflow(payments, expenses, r, opts)
	m.NetIncome = m.Income.Sub(m.Costs)
	m.deriveRatios()
	return m
}

func (m *Metrics) add(loan models.Loan, status models.LoanStatus) {
	m.LoanCount++
	m.TotalDisbursed = m.TotalDisbursed.Add(loan.Principal)
	m.TotalCollected = m.TotalCollected.Add(loan.RepaidAmount)
	m.TotalRepayable = m.TotalRepayable.Add(loan.TotalRepayable)
	m.ExpectedProfit = m.ExpectedProfit.Add(loan.Interest)

	outstanding := loanstatus.Outstanding(loan)

	switch status {
	case models.LoanStatusPaid:
		m.Counts.Paid++
		m.ActualProfit = m.ActualProfit.Add(loan.Interest)
		return
	case models.LoanStatusDefaulted:
		m.Counts.Defaulted++
		return
	case models.LoanStatusOverdue:
		m.Counts.Overdue++
		placeInArrears(m.Arrears, loanstatus.DaysOverdue(loan, m.AsOf), outstanding)
	default:
		m.Counts.Active++
	}
	m.TotalOutstanding = m.TotalOutstanding.Add(outstanding)
}

func (m *Metrics) deriveRatios() {
	count := decimal.NewFromInt(int64(m.LoanCount))

	m.AverageLoanSize = ratio(m.TotalDisbursed, count, MoneyPlaces)
	m.RepaymentRate = ratio(m.TotalCollected, m.TotalRepayable, RatioPlaces)
	m.OverdueRatio = ratio(decimal.NewFromInt(int64(m.Counts.Overdue)), count, RatioPlaces)
	m.DefaultedRatio = ratio(decimal.NewFromInt(int64(m.Counts.Defaulted)), count, RatioPlaces)

	if m.TotalDisbursed.IsZero() {
		m.PortfolioYield = decimal.NullDecimal{}
	} else {
		yield := m.TotalCollected.DivRound(m.TotalDisbursed, RatioPlaces+2).Sub(decimal.NewFromInt(1))
		m.PortfolioYield = decimal.NewNullDecimal(yield.Round(RatioPlaces))
	}
}

// ratio divides num by den, or returns an invalid NullDecimal when den is zero.
func ratio(num, den decimal.Decimal, places int32) decimal.NullDecimal {
	if den.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(num.DivRound(den, places))
}

func cashflow(payments []models.Payment, expenses []models.Expense, r DateRange, opts Options) (income, costs decimal.Decimal) {
	income, costs = decimal.Zero, decimal.Zero
	for _, p := range payments {
		if p.IsValid() && r.Contains(utils.DayOf(p.Date)) {
			income = income.Add(p.Amount)
		}
	}
	for _, e := range expenses {
		if e.IsValid() && r.Contains(utils.DayOf(e.Date)) {
			costs = costs.Add(e.Amount)
		}
	}
	return income, costs
}
