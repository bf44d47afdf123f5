// Loan Status Lambda entry point
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"

	"loan-portfolio-engine/internal/app"
	"loan-portfolio-engine/internal/handlers"
)

func main() {
	a, err := app.New(context.Background())
	if err != nil {
		panic("Failed to initialize: " + err.Error())
	}
	defer a.Close()

	// Create handler
	handler := handlers.NewLoanStatusHandler(a.Store, a.Config.Location())

	// Start Lambda
	lambda.Start(handler.Handle)
}
