package portfolio

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/loanstatus"
	"loan-portfolio-engine/internal/utils"
)

// MonthPoint is one month of cash flow plus the loan book at the month end.
type MonthPoint struct {
	Month string     `json:"month"`
	End   civil.Date `json:"end"`

	Disbursed decimal.Decimal `json:"disbursed"`
	Income    decimal.Decimal `json:"income"`
	Costs     decimal.Decimal `json:"costs"`
	Net       decimal.Decimal `json:"net"`

	PerformingOutstanding decimal.Decimal `json:"performingOutstanding"`
	OverdueOutstanding    decimal.Decimal `json:"overdueOutstanding"`
	DefaultedOutstanding  decimal.Decimal `json:"defaultedOutstanding"`
}

// MonthlySeries buckets cash flow by month across r and snapshots the
// outstanding book at each month end. A month end past r.End is clamped to it.
//
// When payments are supplied for a loan, its repaid amount at each month end is
// rebuilt from the payments dated on or before that day; otherwise the stored
// repaid amount is used as is.
func MonthlySeries(loans []models.Loan, payments []models.Payment, expenses []models.Expense, r DateRange, opts Options) []MonthPoint {
	if !r.IsValid() {
		return nil
	}

	ends := utils.MonthEnds(r.Start, r.End)
	points := make([]MonthPoint, len(ends))
	index := make(map[string]int, len(ends))
	for i, end := range ends {
		key := utils.MonthKey(end)
		index[key] = i
		points[i] = MonthPoint{
			Month:                 key,
			End:                   end,
			Disbursed:             decimal.Zero,
			Income:                decimal.Zero,
			Costs:                 decimal.Zero,
			PerformingOutstanding: decimal.Zero,
			OverdueOutstanding:    decimal.Zero,
			DefaultedOutstanding:  decimal.Zero,
		}
	}

	for _, p := range payments {
		d := utils.DayOf(p.Date)
		if !p.IsValid() || !r.Contains(d) {
			continue
		}
		i := index[utils.MonthKey(d)]
		points[i].Income = points[i].Income.Add(p.Amount)
	}
	for _, e := range expenses {
		d := utils.DayOf(e.Date)
		if !e.IsValid() || !r.Contains(d) {
			continue
		}
		i := index[utils.MonthKey(d)]
		points[i].Costs = points[i].Costs.Add(e.Amount)
	}

	book := make([]models.Loan, 0, len(loans))
	for _, loan := range loans {
		if !loan.IsWellFormed() || (opts.ExcludeRefinanced && loan.IsRefinanced()) {
			continue
		}
		book = append(book, loan)
		if r.Contains(loan.StartDate) {
			i := index[utils.MonthKey(loan.StartDate)]
			points[i].Disbursed = points[i].Disbursed.Add(loan.Principal)
		}
	}

	history := sortedPayments(models.GroupByLoan(payments))

	for i := range points {
		p := &points[i]
		p.Net = p.Income.Sub(p.Costs)

		for _, loan := range book {
			if loan.StartDate.After(p.End) {
				continue
			}
			snapshot := replayPayments(loan, history[loan.ID], p.End)
			outstanding := loanstatus.Outstanding(snapshot)

			switch loanstatus.Classify(snapshot, p.End) {
			case models.LoanStatusActive:
				p.PerformingOutstanding = p.PerformingOutstanding.Add(outstanding)
			case models.LoanStatusOverdue:
				p.OverdueOutstanding = p.OverdueOutstanding.Add(outstanding)
			case models.LoanStatusDefaulted:
				p.DefaultedOutstanding = p.DefaultedOutstanding.Add(outstanding)
			}
		}
	}

	return points
}

func sortedPayments(byLoan map[string][]models.Payment) map[string][]models.Payment {
	for _, ps := range byLoan {
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].Date.Before(ps[j].Date) })
	}
	return byLoan
}

// replayPayments returns a copy of loan as it stood at the end of day end.
func replayPayments(loan models.Loan, payments []models.Payment, end civil.Date) models.Loan {
	if len(payments) == 0 {
		return loan
	}

	repaid := decimal.Zero
	loan.LastPaymentAt = nil
	for i := range payments {
		if utils.DayOf(payments[i].Date).After(end) {
			break
		}
		repaid = repaid.Add(payments[i].Amount)
		at := payments[i].Date
		loan.LastPaymentAt = &at
	}
	loan.RepaidAmount = repaid
	return loan
}
