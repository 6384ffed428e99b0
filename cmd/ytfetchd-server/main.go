package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smukkama/ytfetchd/internal/downloader"
	"github.com/smukkama/ytfetchd/internal/eventbus"
	"github.com/smukkama/ytfetchd/internal/protocol"
	"github.com/smukkama/ytfetchd/internal/server"
	"github.com/smukkama/ytfetchd/internal/store"
	"github.com/smukkama/ytfetchd/internal/transport"
	"github.com/smukkama/ytfetchd/internal/worker"
	"github.com/smukkama/ytfetchd/pkg/config"
)

func main() {
	loadSession := flag.String("load-session", "", "prior session directory name to fold into this run (default: none)")
	loadSelection := flag.String("load-selection", "pending", "one of all, pending, finished")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	fmt.Println("Starting ytfetchd Server...")

	sess, err := store.Open(cfg.Server.DataDir, time.Now())
	if err != nil {
		log.Fatalf("Failed to open session: %v", err)
	}
	defer sess.Close()
	fmt.Printf("Session directory: %s\n", sess.Dir())

	var producer *eventbus.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer = eventbus.NewProducer(eventbus.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.TopicJobs,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			RequiredAcks: cfg.Kafka.RequiredAcks,
		})
		defer producer.Close()
		fmt.Printf("Kafka producer initialized for topic %s\n", cfg.Kafka.TopicJobs)
	} else {
		fmt.Println("No Kafka brokers configured: job-lifecycle events will not be published")
	}

	tr := transport.New()
	if err := tr.Listen(cfg.Comm.Addr()); err != nil {
		log.Fatalf("Failed to listen on %s: %v", cfg.Comm.Addr(), err)
	}
	defer tr.Close()
	fmt.Printf("Listening on %s\n", cfg.Comm.Addr())

	proto := protocol.New(tr)

	expander := &downloader.YTDLP{WithDescriptions: cfg.Server.Descriptions, CookiePath: cfg.Server.Cookies}
	newDL := func(cookiePath string) downloader.Downloader {
		return &downloader.YTDLP{WithDescriptions: cfg.Server.Descriptions, CookiePath: cookiePath}
	}

	srv, err := server.New(proto, sess, producer, expander, cfg.Server.WorkerCount, newDL, cfg.Server.Cookies, sess.Dir())
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	fmt.Printf("Worker pool started: %d workers\n", cfg.Server.WorkerCount)

	if *loadSession != "" {
		selection, err := parseSelection(*loadSelection)
		if err != nil {
			log.Fatalf("Failed to parse load selection: %v", err)
		}
		toQueue, toFail, toFinished, err := store.LoadSession(*loadSession, selection)
		if err != nil {
			log.Fatalf("Failed to load session %s: %v", *loadSession, err)
		}
		srv.LoadSets(toQueue, toFail, toFinished)
		fmt.Printf("Loaded prior session %s (%s): %d queued, %d failed, %d finished\n", *loadSession, *loadSelection, len(toQueue), len(toFail), len(toFinished))
	}

	go srv.Run()
	defer srv.Stop()

	fmt.Println("\n✓ ytfetchd Server is running")
	fmt.Printf("✓ Data directory: %s\n", cfg.Server.DataDir)
	fmt.Println("✓ Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down gracefully...")
}

func parseSelection(s string) (store.Selection, error) {
	switch s {
	case "all":
		return store.All, nil
	case "pending":
		return store.PendingOnly, nil
	case "finished":
		return store.FinishedOnly, nil
	default:
		return 0, fmt.Errorf("unknown selection %q (want all, pending, or finished)", s)
	}
}
