package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/ytfetchd/internal/audit"
	"github.com/smukkama/ytfetchd/internal/digest"
	"github.com/smukkama/ytfetchd/internal/timer"
	"github.com/smukkama/ytfetchd/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Digest Service...")

	db, err := audit.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	hourlyAgg := digest.NewHourlyAggregator(db)
	if err := hourlyAgg.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure hourly digest schema: %v", err)
	}
	dailyAgg := digest.NewDailyAggregator(db)
	if err := dailyAgg.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure daily digest schema: %v", err)
	}

	timerManager := timer.NewTimerManager(2)
	timerManager.Start()
	defer timerManager.Stop()
	fmt.Println("Timer manager started")

	scheduleHourlyDigest(timerManager, hourlyAgg, cfg.Digest.HourlyDelay)
	scheduleDailyDigest(timerManager, dailyAgg, cfg.Digest.DailyTime)

	fmt.Println("\n✓ Digest Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

func scheduleHourlyDigest(tm *timer.TimerManager, agg *digest.HourlyAggregator, delay time.Duration) {
	const taskID = "hourly-digest"

	var scheduleNext func()
	scheduleNext = func() {
		nextRun := agg.CalculateNextRunTime(delay)
		fmt.Printf("Next hourly digest scheduled for: %s\n", nextRun.Format("2006-01-02 15:04:05"))

		callback := func() {
			fmt.Println("\n--- Running Hourly Digest ---")
			if err := agg.AggregatePreviousHour(); err != nil {
				log.Printf("Hourly digest failed: %v\n", err)
			}
			fmt.Println("--- Hourly Digest Complete ---")
			scheduleNext()
		}

		if err := tm.Schedule(taskID, nextRun, callback); err != nil {
			log.Printf("Failed to schedule hourly digest: %v\n", err)
		}
	}

	scheduleNext()
}

func scheduleDailyDigest(tm *timer.TimerManager, agg *digest.DailyAggregator, timeOfDay string) {
	const taskID = "daily-digest"

	var scheduleNext func()
	scheduleNext = func() {
		nextRun, err := agg.CalculateNextRunTime(timeOfDay)
		if err != nil {
			log.Fatalf("Failed to calculate daily digest run time: %v", err)
		}
		fmt.Printf("Next daily digest scheduled for: %s\n", nextRun.Format("2006-01-02 15:04:05"))

		callback := func() {
			fmt.Println("\n--- Running Daily Digest ---")
			if err := agg.AggregatePreviousDay(); err != nil {
				log.Printf("Daily digest failed: %v\n", err)
			}
			fmt.Println("--- Daily Digest Complete ---")
			scheduleNext()
		}

		if err := tm.Schedule(taskID, nextRun, callback); err != nil {
			log.Printf("Failed to schedule daily digest: %v\n", err)
		}
	}

	scheduleNext()
}
