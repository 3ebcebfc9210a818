package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"seller-ops/internal/core"
	"seller-ops/internal/db"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Runs the COGS allocation batch over a shipped-date range and prints the
// summary as JSON. Intended for cron and for backfills after stock imports.
func main() {
	_ = godotenv.Load()

	fromFlag := flag.String("from", "", "start of shipped-date range, YYYY-MM-DD (inclusive)")
	toFlag := flag.String("to", "", "end of shipped-date range, YYYY-MM-DD (inclusive)")
	flag.Parse()

	if *fromFlag == "" || *toFlag == "" {
		log.Fatal("Usage: applycogs -from YYYY-MM-DD -to YYYY-MM-DD")
	}
	from, err := time.Parse("2006-01-02", *fromFlag)
	if err != nil {
		log.Fatalf("invalid -from date: %v", err)
	}
	to, err := time.Parse("2006-01-02", *toFlag)
	if err != nil {
		log.Fatalf("invalid -to date: %v", err)
	}
	to = to.AddDate(0, 0, 1)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	logger := logrus.New()
	resolver := core.NewBundleResolver(pool)
	cogsService := core.NewCogsService(pool, resolver, logger)

	result, err := cogsService.ApplyCOGSBatch(ctx, from, to)
	if err != nil {
		log.Fatalf("batch failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	if len(result.Failed) > 0 {
		os.Exit(1)
	}
}
