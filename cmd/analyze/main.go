package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"path/filepath"

	"immunetrial/adapters/excel"
	statsengine "immunetrial/adapters/stats/engine"
	"immunetrial/adapters/store"
	"immunetrial/app"
	"immunetrial/internal"
	"immunetrial/internal/config"

	"github.com/joho/godotenv"
)

// analyze runs the statistical engine over the stored trial and writes every
// artifact: per-stratum CSVs, the frequency table, the baseline summary, an
// Excel workbook, a markdown report and the JSON report.
func main() {
	jsonFlag := flag.Bool("json", false, "also write the full report as report.json")
	flag.Parse()

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

	if *jsonFlag {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		if err := os.WriteFile(filepath.Join(cfg.Output.Dir, "report.json"), data, 0o644); err != nil {
			log.Fatalf("Failed to write report.json: %v", err)
		}
	}

	log.Printf("Analysis run %s complete: %d tests performed, %d skipped",
		report.Manifest.RunID, report.Manifest.TestsPerformed, report.Manifest.TestsSkipped)
}
