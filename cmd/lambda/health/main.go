// Health Check Lambda entry point
package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"loan-portfolio-engine/internal/config"
	"loan-portfolio-engine/internal/handlers"
	"loan-portfolio-engine/internal/services/database"
	"loan-portfolio-engine/internal/utils"
)

func main() {
	// Initialize logger
	_ = utils.InitLogger("info")
	defer utils.Sync()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Report "not configured" rather than failing when the database is unreachable
	handler := handlers.NewHealthHandler(nil)
	if db, err := database.New(cfg); err == nil {
		defer db.Close()
		handler = handlers.NewHealthHandler(db)
	} else {
		utils.Logger.Warn("Database unavailable", utils.Error(err))
	}

	// Start Lambda
	lambda.Start(handler.Handle)
}
