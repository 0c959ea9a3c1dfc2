package main

import (
	"context"
	"flag"
	"log"

	"immunetrial/adapters/ingest"
	"immunetrial/adapters/store"
	"immunetrial/app"
	"immunetrial/internal"
	"immunetrial/internal/config"

	"github.com/joho/godotenv"
)

// loader ingests a cell-count table into the relational store and verifies
// the stored row counts, without running any analysis.
func main() {
	inputFlag := flag.String("input", "", "input file (.csv or .xlsx); overrides INPUT_FILE")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if *inputFlag != "" {
		cfg.Input.File = *inputFlag
	}
	input, err := cfg.ResolveInput()
	if err != nil {
		log.Fatalf("Input error: %v", err)
	}

	logger := internal.DefaultLogger
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		log.Fatalf("Store error: %v", err)
	}
	defer st.Close()

	ds, warnings, err := ingest.NewDataReader(input).Load()
	if err != nil {
		log.Fatalf("Failed to read %s: %v", input, err)
	}

	result, err := app.NewLoadService(st, logger).Load(ctx, ds, warnings)
	if err != nil {
		log.Fatalf("Failed to load trial: %v", err)
	}
	log.Printf("Loaded %s: %d subjects, %d samples, %d rows excluded",
		input, result.SubjectCount, result.SampleCount, len(result.RowWarnings))
}
