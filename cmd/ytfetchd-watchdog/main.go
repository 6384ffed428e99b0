// Command ytfetchd-watchdog tracks every client's backlog depth purely by
// replaying the job-lifecycle event bus (no dependency on the audit
// database) and raises or clears a per-client alarm once that depth has
// stayed past threshold long enough, grounded on the teacher's
// cmd/alarming/main.go.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/ytfetchd/internal/eventbus"
	"github.com/smukkama/ytfetchd/internal/watchdog"
	"github.com/smukkama/ytfetchd/pkg/config"
)

// backlog tracks, per client, the last known state of every item it has
// submitted. depth() counts items currently queued or failed: the same
// "queued + failed" measure spec.md defines for backlog depth, computed
// from nothing but the event stream every other consumer also reads.
type backlog struct {
	items map[uint64]map[string]string
}

func newBacklog() *backlog {
	return &backlog{items: make(map[uint64]map[string]string)}
}

func (b *backlog) apply(ev eventbus.Event) int {
	client, ok := b.items[ev.Client]
	if !ok {
		client = make(map[string]string)
		b.items[ev.Client] = client
	}
	client[ev.Item] = ev.State
	return b.depth(ev.Client)
}

func (b *backlog) depth(client uint64) int {
	n := 0
	for _, state := range b.items[client] {
		if state == "queued" || state == "failed" {
			n++
		}
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting Backlog Watchdog Service...")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	fmt.Println("Connected to Redis")

	states := watchdog.NewStateManager(redisClient)

	alarms := eventbus.NewProducer(eventbus.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.TopicAlarms,
	})
	defer alarms.Close()
	fmt.Println("Alarm notification producer initialized")

	evaluator := watchdog.NewEvaluator(states, alarms, cfg.Watchdog.BacklogThreshold, cfg.Watchdog.SustainDuration())

	consumer := eventbus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicJobs, "watchdog-group")
	defer consumer.Close()
	fmt.Println("Kafka consumer initialized")

	fmt.Println("\n✓ Backlog Watchdog Service is running")
	fmt.Printf("✓ Threshold: %d items, sustained %s\n", cfg.Watchdog.BacklogThreshold, cfg.Watchdog.SustainDuration())
	fmt.Println("✓ Press Ctrl+C to stop")

	bl := newBacklog()
	go func() {
		for {
			ev, err := consumer.Next(ctx)
			if err != nil {
				log.Printf("Failed to consume event: %v\n", err)
				continue
			}

			depth := bl.apply(ev)
			if err := evaluator.Evaluate(ctx, ev.Client, depth); err != nil {
				log.Printf("Failed to evaluate backlog for client %d: %v\n", ev.Client, err)
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}
