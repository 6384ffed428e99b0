package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/ytfetchd/internal/audit"
	"github.com/smukkama/ytfetchd/internal/eventbus"
	"github.com/smukkama/ytfetchd/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Audit Writer Service...")
	db, err := audit.Connect(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	fmt.Println("Connected to database")

	if err := db.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	consumer := eventbus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicJobs, "auditwriter-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer created (registering with broker...)")

	batchWriter := audit.NewBatchWriter(consumer, db, 100, 5*time.Second)
	batchWriter.Start(context.Background())
	fmt.Println("Batch writer started")

	fmt.Println("\n✓ Audit Writer Service is running")
	fmt.Println("✓ Consuming from Kafka and writing to PostgreSQL")
	fmt.Println("✓ Batch size: 100 events | Flush interval: 5 seconds")
	fmt.Println("✓ Press Ctrl+C to stop")
	fmt.Println("\nWaiting for events...")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
	batchWriter.Stop()
	fmt.Println("Audit Writer Service stopped")
}
