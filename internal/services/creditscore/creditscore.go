// Package creditscore derives a 0-100 credit score from a borrower's loan history.
package creditscore

import (
	"errors"
	"fmt"
	"math"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/services/loanstatus"
	"loan-portfolio-engine/internal/utils"
)

// ErrMixedBorrowers is returned when the history spans more than one borrower.
var ErrMixedBorrowers = errors.New("loans belong to more than one borrower")

// Component weights in points. The positive components top out at 80.
const (
	RepaymentPoints      = 40
	CompletionPoints     = 20
	DepthPoints          = 20
	OverduePenaltyPoints = 15
	DefaultPenaltyPoints = 5

	// DepthSaturation is the loan count at which history depth stops adding points.
	DepthSaturation = 10
	// ExtensiveHistory is the paid-loan count above which history counts as extensive.
	ExtensiveHistory = 5
)

// Remarks is the qualitative band of a score.
type Remarks string

const (
	RemarksExcellent Remarks = "Excellent"
	RemarksGood      Remarks = "Good"
	RemarksFair      Remarks = "Fair"
	RemarksPoor      Remarks = "Poor"
	RemarksVeryPoor  Remarks = "Very Poor"
	RemarksNoHistory Remarks = "No loan history"
)

// Band maps a score to its remarks.
func Band(score int) Remarks {
	switch {
	case score >= 80:
		return RemarksExcellent
	case score >= 60:
		return RemarksGood
	case score >= 40:
		return RemarksFair
	case score >= 20:
		return RemarksPoor
	default:
		return RemarksVeryPoor
	}
}

// Stats are the counts behind a score.
type Stats struct {
	TotalLoans          int             `json:"totalLoans"`
	PaidLoans           int             `json:"paidLoans"`
	OnTimePaidLoans     int             `json:"onTimePaidLoans"`
	OverdueLoans        int             `json:"overdueLoans"`
	DefaultedLoans      int             `json:"defaultedLoans"`
	ActiveLoans         int             `json:"activeLoans"`
	ExcludedLoans       int             `json:"excludedLoans"`
	OnTimeRepaymentRate float64         `json:"onTimeRepaymentRate"`
	TotalBorrowed       decimal.Decimal `json:"totalBorrowed"`
	TotalRepaid         decimal.Decimal `json:"totalRepaid"`
}

// Breakdown holds each weighted component in points, before clamping.
type Breakdown struct {
	Repayment      float64 `json:"repayment"`
	Completion     float64 `json:"completion"`
	Depth          float64 `json:"depth"`
	OverduePenalty float64 `json:"overduePenalty"`
	DefaultPenalty float64 `json:"defaultPenalty"`
}

// Raw returns the unclamped total.
func (b Breakdown) Raw() float64 {
	return b.Repayment + b.Completion + b.Depth - b.OverduePenalty - b.DefaultPenalty
}

// HistoryPoint is the score at one month end.
type HistoryPoint struct {
	Date  civil.Date `json:"date"`
	Score int        `json:"score"`
}

// Result is a borrower's score as of one date.
type Result struct {
	BorrowerID      string         `json:"borrowerId,omitempty"`
	AsOf            civil.Date     `json:"asOf"`
	Score           int            `json:"score"`
	Remarks         Remarks        `json:"remarks"`
	PositiveFactors []string       `json:"positiveFactors"`
	NegativeFactors []string       `json:"negativeFactors"`
	Stats           Stats          `json:"stats"`
	Breakdown       Breakdown      `json:"breakdown"`
	History         []HistoryPoint `json:"history,omitempty"`
}

// Compute scores the borrower as of asOf and replays the score at every month
// end from the earliest loan's start through asOf.
func Compute(loans []models.Loan, asOf civil.Date) (*Result, error) {
	borrowerID, err := borrowerOf(loans)
	if err != nil {
		return nil, err
	}

	scoreable, excluded := partition(loans)
	result := evaluate(scoreable, asOf)
	result.BorrowerID = borrowerID
	result.Stats.ExcludedLoans = excluded
	result.History = replay(scoreable, asOf)
	return result, nil
}

// Snapshot scores the borrower as of asOf without the history replay.
func Snapshot(loans []models.Loan, asOf civil.Date) (*Result, error) {
	borrowerID, err := borrowerOf(loans)
	if err != nil {
		return nil, err
	}

	scoreable, excluded := partition(loans)
	result := evaluate(scoreable, asOf)
	result.BorrowerID = borrowerID
	result.Stats.ExcludedLoans = excluded
	return result, nil
}

func borrowerOf(loans []models.Loan) (string, error) {
	if len(loans) == 0 {
		return "", nil
	}
	id := loans[0].BorrowerID
	for _, l := range loans[1:] {
		if l.BorrowerID != id {
			return "", fmt.Errorf("%w: %q and %q", ErrMixedBorrowers, id, l.BorrowerID)
		}
	}
	return id, nil
}

// partition drops loans the score cannot be computed for: missing dates, or
// repaid without a timestamp to judge punctuality by.
func partition(loans []models.Loan) (scoreable []models.Loan, excluded int) {
	scoreable = make([]models.Loan, 0, len(loans))
	for _, l := range loans {
		if !l.IsWellFormed() {
			excluded++
			continue
		}
		if l.IsFullyRepaid() && (l.LastPaymentAt == nil || l.LastPaymentAt.IsZero()) {
			excluded++
			continue
		}
		scoreable = append(scoreable, l)
	}
	return scoreable, excluded
}

func evaluate(loans []models.Loan, asOf civil.Date) *Result {
	result := &Result{
		AsOf:            asOf,
		PositiveFactors: []string{},
		NegativeFactors: []string{},
		Stats: Stats{
			TotalBorrowed: decimal.Zero,
			TotalRepaid:   decimal.Zero,
		},
	}

	stats := &result.Stats
	for _, l := range loans {
		if l.StartDate.After(asOf) {
			continue
		}
		stats.TotalLoans++
		stats.TotalBorrowed = stats.TotalBorrowed.Add(l.Principal)
		stats.TotalRepaid = stats.TotalRepaid.Add(l.RepaidAmount)

		switch loanstatus.Classify(l, asOf) {
		case models.LoanStatusPaid:
			stats.PaidLoans++
			if paidOnTime(l) {
				stats.OnTimePaidLoans++
			}
		case models.LoanStatusOverdue:
			stats.OverdueLoans++
		case models.LoanStatusDefaulted:
			stats.DefaultedLoans++
		default:
			stats.ActiveLoans++
		}
	}

	if stats.TotalLoans == 0 {
		result.Remarks = RemarksNoHistory
		return result
	}

	if stats.PaidLoans > 0 {
		stats.OnTimeRepaymentRate = float64(stats.OnTimePaidLoans) / float64(stats.PaidLoans)
	}

	total := float64(stats.TotalLoans)
	result.Breakdown = Breakdown{
		Repayment:      stats.OnTimeRepaymentRate * RepaymentPoints,
		Completion:     math.Min(float64(stats.PaidLoans)/total*2, 1) * CompletionPoints,
		Depth:          math.Min(total/DepthSaturation, 1) * DepthPoints,
		OverduePenalty: float64(stats.OverdueLoans) / total * OverduePenaltyPoints,
		DefaultPenalty: float64(stats.DefaultedLoans) / total * DefaultPenaltyPoints,
	}

	result.Score = clampScore(result.Breakdown.Raw())
	result.Remarks = Band(result.Score)
	result.PositiveFactors, result.NegativeFactors = factors(stats)
	return result
}

func paidOnTime(l models.Loan) bool {
	paidOn, ok := utils.DateOfPtr(l.LastPaymentAt, nil)
	if !ok {
		return false
	}
	return !paidOn.After(l.DueDate)
}

func clampScore(raw float64) int {
	if math.IsNaN(raw) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, raw))))
}

func factors(stats *Stats) (positive, negative []string) {
	positive = []string{}
	negative = []string{}

	if stats.PaidLoans > 0 && stats.OnTimeRepaymentRate == 1 {
		positive = append(positive, "Perfect on-time repayment record")
	}
	if stats.PaidLoans > ExtensiveHistory {
		positive = append(positive, fmt.Sprintf("Extensive repaid history (%d loans)", stats.PaidLoans))
	}
	if stats.OverdueLoans > 0 {
		negative = append(negative, fmt.Sprintf("%d overdue %s", stats.OverdueLoans, plural(stats.OverdueLoans)))
	}
	if stats.DefaultedLoans > 0 {
		negative = append(negative, fmt.Sprintf("%d defaulted %s", stats.DefaultedLoans, plural(stats.DefaultedLoans)))
	}
	return positive, negative
}

func plural(n int) string {
	if n == 1 {
		return "loan"
	}
	return "loans"
}

// replay evaluates the score at each month end from the earliest start date.
func replay(loans []models.Loan, asOf civil.Date) []HistoryPoint {
	if len(loans) == 0 {
		return nil
	}

	earliest := loans[0].StartDate
	for _, l := range loans[1:] {
		if l.StartDate.Before(earliest) {
			earliest = l.StartDate
		}
	}

	dates := utils.MonthEnds(earliest, asOf)
	history := make([]HistoryPoint, 0, len(dates))
	for _, d := range dates {
		history = append(history, HistoryPoint{Date: d, Score: evaluate(loans, d).Score})
	}
	return history
}
