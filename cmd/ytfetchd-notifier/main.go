package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/smukkama/ytfetchd/internal/eventbus"
	"github.com/smukkama/ytfetchd/internal/notify"
	"github.com/smukkama/ytfetchd/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Notification Service...")

	notifier := notify.NewNotifier(notify.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		To:       cfg.Watchdog.NotifyTo,
	})

	consumer := eventbus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicAlarms, "notifier-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	ctx := context.Background()

	fmt.Println("\n✓ Notification Service is running")
	fmt.Println("✓ Press Ctrl+C to stop")

	go func() {
		for {
			ev, err := consumer.NextAlarm(ctx)
			if err != nil {
				log.Printf("Failed to consume alarm: %v\n", err)
				continue
			}

			var sendErr error
			switch ev.Kind {
			case "triggered":
				sendErr = notifier.NotifyBacklogAlarm(ev.Client, ev.Depth, ev.Threshold)
			case "cleared":
				sendErr = notifier.NotifyBacklogCleared(ev.Client)
			default:
				log.Printf("Unknown alarm kind %q for client %d\n", ev.Kind, ev.Client)
				continue
			}

			if sendErr != nil {
				log.Printf("Failed to send notification: %v\n", sendErr)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
