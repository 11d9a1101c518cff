package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"residence-dining/internal/app"
	"residence-dining/internal/config"
	"residence-dining/internal/database"
	"residence-dining/internal/dining"
	"residence-dining/internal/metrics"
	"residence-dining/internal/session"
	"residence-dining/internal/storage"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	reportStore, err := storage.NewReportStore(cfg.ReportStoragePath)
	if err != nil {
		log.Fatalf("Failed to initialize report store: %v", err)
	}
	metricsStore := metrics.NewStore(db.SQL)

	sess := session.NewManager(session.NewSQLStore(db.SQL, "admin"))
	client := dining.NewClient(cfg, sess)
	application := app.NewApp(client, sess, reportStore, metricsStore, cfg)

	switch os.Args[1] {
	case "report":
		reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
		date := reportCmd.String("date", time.Now().In(cfg.Location).AddDate(0, 0, 1).Format("2006-01-02"), "Service date (YYYY-MM-DD)")
		cached := reportCmd.Bool("cached", false, "Print the archived report when one exists instead of fetching")
		reportCmd.Parse(os.Args[2:])

		d, err := application.DailyReport(ctx, *date, *cached)
		if err != nil {
			log.Fatalf("Report failed: %s", dining.Notice(err))
		}
		fmt.Print(d.Text())
	case "submissions":
		statsCmd := flag.NewFlagSet("submissions", flag.ExitOnError)
		days := statsCmd.Int("days", 7, "Show the last N days")
		statsCmd.Parse(os.Args[2:])

		counts, err := metricsStore.GetDailyCounts(ctx, *days)
		if err != nil {
			log.Fatalf("Failed to read submission log: %v", err)
		}
		for _, c := range counts {
			fmt.Printf("%s  %4d submitted  %3d failed  %5d items  avg %dms\n", c.Date, c.Total, c.Failed, c.Items, c.AvgLatencyMS)
		}
	case "submissions-cleanup":
		cleanupCmd := flag.NewFlagSet("submissions-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(os.Args[2:])

		affected, err := application.CleanupSubmissions(ctx, *days)
		if err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
		fmt.Printf("Successfully removed %d old submission records.\n", affected)
	case "logout":
		if err := sess.Teardown(ctx); err != nil {
			log.Fatalf("Logout failed: %v", err)
		}
		fmt.Println("Saved admin session cleared.")
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: dining-admin <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  report [-date YYYY-MM-DD] [-cached]")
	fmt.Println("                                Build and archive the daily consumption report (default: tomorrow)")
	fmt.Println("  submissions [-days N]         Show daily submission counts")
	fmt.Println("  submissions-cleanup [-days N] Remove submission log entries older than N days")
	fmt.Println("  logout                        Clear the saved admin session")
}
