// loanctl is the operator CLI: schema migration, connectivity checks, credit
// scores, portfolio metrics and report generation against the configured database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"loan-portfolio-engine/internal/app"
	"loan-portfolio-engine/internal/handlers"
	"loan-portfolio-engine/internal/models"
	"loan-portfolio-engine/internal/utils"
)

// Build-time variables (set via -ldflags).
var version = "dev"

// Wired services, built before every command that needs them.
var services *app.App

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "loanctl",
	Short:         "Operate the loan portfolio engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		services, err = app.New(cmd.Context())
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if services != nil {
			services.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().Duration("timeout", 2*time.Minute, "overall command timeout")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(portfolioCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(borrowerCmd)
	rootCmd.AddCommand(expenseCmd)

	reportCmd.AddCommand(reportShowCmd)
	borrowerCmd.AddCommand(borrowerAddCmd)
	expenseCmd.AddCommand(expenseAddCmd)
}

func withTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "loanctl %s\n", version)
	},
}

// --- Database Commands ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		if err := services.DB.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		health, status := handlers.NewHealthHandler(services.DB).Check(ctx)
		if err := printJSON(cmd.OutOrStdout(), health); err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("database is %s", health.Database)
		}
		return nil
	},
}

// --- Scoring Commands ---

var scoreCmd = &cobra.Command{
	Use:   "score [borrower-id]",
	Short: "Compute a borrower's credit score and history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		asOf, _ := cmd.Flags().GetString("as-of")
		h := handlers.NewCreditScoreHandler(services.Store, services.Config.Location())
		result, err := h.Score(ctx, args[0], asOf)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [loan-id]",
	Short: "Show a loan's derived status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		asOf, _ := cmd.Flags().GetString("as-of")
		h := handlers.NewLoanStatusHandler(services.Store, services.Config.Location())
		summary, err := h.Status(ctx, args[0], asOf)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func init() {
	scoreCmd.Flags().String("as-of", "", "score as of YYYY-MM-DD (default: today)")
	statusCmd.Flags().String("as-of", "", "classify as of YYYY-MM-DD (default: today)")
}

// --- Portfolio Commands ---

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Aggregate portfolio metrics for a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		h := handlers.NewPortfolioHandler(services.Store, services.Config.Location())
		q, err := h.ParseQuery(rangeParams(cmd))
		if err != nil {
			return err
		}

		if series, _ := cmd.Flags().GetBool("series"); series {
			points, err := h.Series(ctx, q)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), points)
		}

		metrics, err := h.Metrics(ctx, q)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), metrics)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate, archive and optionally e-mail a portfolio report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		// Validate the range up front with the same rules the API applies
		q, err := handlers.NewPortfolioHandler(services.Store, services.Config.Location()).ParseQuery(rangeParams(cmd))
		if err != nil {
			return err
		}

		email, _ := cmd.Flags().GetBool("email")
		resp, err := handlers.NewReportHandler(services.Reporting, services.Archive).Trigger(ctx, handlers.ReportTriggerRequest{
			From:              q.Range.Start,
			To:                q.Range.End,
			AsOf:              q.Options.AsOf,
			ExcludeRefinanced: q.Options.ExcludeRefinanced,
			Email:             email,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var reportShowCmd = &cobra.Command{
	Use:   "show [key]",
	Short: "Print an archived report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		data, err := services.Archive.DownloadFile(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func rangeParams(cmd *cobra.Command) map[string]string {
	params := make(map[string]string)
	for flag, key := range map[string]string{"from": "from", "to": "to", "as-of": "as_of"} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			params[key] = v
		}
	}
	if exclude, _ := cmd.Flags().GetBool("exclude-refinanced"); exclude {
		params["exclude_refinanced"] = "true"
	}
	return params
}

func init() {
	for _, c := range []*cobra.Command{portfolioCmd, reportCmd} {
		c.Flags().String("from", "", "range start YYYY-MM-DD (default: first of this month)")
		c.Flags().String("to", "", "range end YYYY-MM-DD (default: today)")
		c.Flags().String("as-of", "", "classification date YYYY-MM-DD (default: today)")
		c.Flags().Bool("exclude-refinanced", false, "drop refinanced loans from the cohort")
	}
	portfolioCmd.Flags().Bool("series", false, "print the month-by-month series instead of totals")
	reportCmd.Flags().Bool("email", false, "e-mail the digest to REPORT_RECIPIENTS")
}

// --- Record Commands ---

var borrowerCmd = &cobra.Command{
	Use:   "borrower",
	Short: "Manage borrowers",
}

var borrowerAddCmd = &cobra.Command{
	Use:   "add [borrower-id]",
	Short: "Create a borrower or update their contact details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		b, err := borrowerFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		if err := services.Store.Borrowers.Upsert(ctx, b); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), b)
	},
}

var expenseCmd = &cobra.Command{
	Use:   "expense",
	Short: "Manage operating expenses",
}

var expenseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an operating expense",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd)
		defer cancel()

		loc := services.Config.Location()
		e, err := expenseFromFlags(cmd, utils.Today(time.Now(), loc), loc)
		if err != nil {
			return err
		}
		if err := services.Store.Expenses.Create(ctx, e); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), e)
	},
}

func borrowerFromFlags(cmd *cobra.Command, id string) (*models.Borrower, error) {
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		return nil, fmt.Errorf("--name is required")
	}
	phone, _ := cmd.Flags().GetString("phone")
	email, _ := cmd.Flags().GetString("email")
	address, _ := cmd.Flags().GetString("address")
	return &models.Borrower{ID: id, Name: name, Phone: phone, Email: email, Address: address}, nil
}

func expenseFromFlags(cmd *cobra.Command, today civil.Date, loc *time.Location) (*models.Expense, error) {
	raw, _ := cmd.Flags().GetString("amount")
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("--amount must be a positive number, got %q", raw)
	}

	dateFlag, _ := cmd.Flags().GetString("date")
	on, err := utils.ParseDateParam(dateFlag, today)
	if err != nil {
		return nil, err
	}

	category, _ := cmd.Flags().GetString("category")
	description, _ := cmd.Flags().GetString("description")
	return &models.Expense{
		ID:          uuid.NewString(),
		Amount:      amount,
		Date:        on.In(loc),
		Category:    category,
		Description: description,
	}, nil
}

func init() {
	borrowerAddCmd.Flags().String("name", "", "borrower name")
	borrowerAddCmd.Flags().String("phone", "", "phone number")
	borrowerAddCmd.Flags().String("email", "", "e-mail address")
	borrowerAddCmd.Flags().String("address", "", "postal address")

	expenseAddCmd.Flags().String("amount", "", "amount spent")
	expenseAddCmd.Flags().String("date", "", "date spent YYYY-MM-DD (default: today)")
	expenseAddCmd.Flags().String("category", "", "expense category")
	expenseAddCmd.Flags().String("description", "", "free-form note")
}
