package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"immunetrial/adapters/excel"
	"immunetrial/adapters/ingest"
	statsengine "immunetrial/adapters/stats/engine"
	"immunetrial/adapters/store"
	"immunetrial/app"
	"immunetrial/internal"
	"immunetrial/internal/config"
	"immunetrial/ui"

	"github.com/joho/godotenv"
)

// main runs the full pipeline and serves the dashboard: load the input table
// when one is found, analyze the stored trial, write the artifacts, then
// serve the results over HTTP.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	logger := internal.DefaultLogger
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}
	defer st.Close()

	if input, err := cfg.ResolveInput(); err == nil {
		ds, warnings, err := ingest.NewDataReader(input).Load()
		if err != nil {
			log.Fatalf("Failed to read %s: %v", input, err)
		}
		if _, err := app.NewLoadService(st, logger).Load(ctx, ds, warnings); err != nil {
			log.Fatalf("Failed to load trial: %v", err)
		}
	} else {
		logger.Info("no input file configured, serving the stored trial: %v", err)
	}

	eng := statsengine.New(cfg.Cohort, logger)
	analysis := app.NewAnalysisService(st, eng, cfg.Output.Dir, logger)

	report, err := analysis.Run(ctx)
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	workbook := excel.NewWorkbookWriter(filepath.Join(cfg.Output.Dir, "analysis_results.xlsx"))
	if err := workbook.Write(report); err != nil {
		log.Fatalf("Failed to write workbook: %v", err)
	}
	md := app.BuildMarkdownReport(report)
	if err := os.WriteFile(filepath.Join(cfg.Output.Dir, "report.md"), []byte(md), 0o644); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	dashboard := ui.NewApp(analysis, report, logger)
	if err := dashboard.Start(ui.Config{Port: cfg.Server.Port}); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
