package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smukkama/ytfetchd/internal/eventbus"
)

// BatchWriter consumes job-lifecycle events off the bus and writes them to
// the audit log. Mirrors the teacher's queue.BatchWriter: periodic flush
// ticker plus a size-triggered flush, whichever comes first.
type BatchWriter struct {
	consumer      *eventbus.Consumer
	db            *DB
	batchSize     int
	flushInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup
}

// NewBatchWriter builds a batch writer over consumer, writing to db.
func NewBatchWriter(consumer *eventbus.Consumer, db *DB, batchSize int, flushInterval time.Duration) *BatchWriter {
	return &BatchWriter{
		consumer:      consumer,
		db:            db,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start begins consuming and writing in a new goroutine.
func (bw *BatchWriter) Start(ctx context.Context) {
	bw.wg.Add(1)
	go bw.run(ctx)
}

// Stop flushes whatever is buffered and waits for the run loop to exit.
func (bw *BatchWriter) Stop() {
	close(bw.stopCh)
	bw.wg.Wait()
}

func (bw *BatchWriter) run(ctx context.Context) {
	defer bw.wg.Done()

	var batch []eventbus.Event
	ticker := time.NewTicker(bw.flushInterval)
	defer ticker.Stop()

	evChan := make(chan eventbus.Event, 10)
	go func() {
		for {
			ev, err := bw.consumer.Next(ctx)
			if err != nil {
				select {
				case <-bw.stopCh:
					return
				default:
				}
				fmt.Printf("audit: consume error: %v\n", err)
				continue
			}
			evChan <- ev
		}
	}()

	for {
		select {
		case <-bw.stopCh:
			if len(batch) > 0 {
				bw.flush(batch)
			}
			return

		case <-ticker.C:
			if len(batch) > 0 {
				bw.flush(batch)
				batch = nil
			}

		case ev := <-evChan:
			batch = append(batch, ev)
			if len(batch) >= bw.batchSize {
				bw.flush(batch)
				batch = nil
			}
		}
	}
}

func (bw *BatchWriter) flush(batch []eventbus.Event) {
	success := 0
	for _, ev := range batch {
		rec := Record{
			EventID: ev.EventID,
			Client:  ev.Client,
			Item:    ev.Item,
			State:   ev.State,
			Error:   ev.Error,
		}
		if err := bw.db.InsertEvent(rec, ev.At); err != nil {
			fmt.Printf("audit: insert failed: %v\n", err)
			continue
		}
		success++
	}
	fmt.Printf("audit: flushed %d/%d events\n", success, len(batch))
}
