// Package worker runs one job at a time against the external downloader,
// on behalf of the scheduler in internal/server.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/smukkama/ytfetchd/internal/downloader"
	"github.com/smukkama/ytfetchd/internal/job"
)

// Task assigns a job to a worker.
type Task struct {
	Job job.Job
}

// Ack reports a finished task back to the server's mailbox.
type Ack struct {
	WorkerID int
	Job      job.Job
	OK       bool
	ErrText  string
}

// Worker processes at most one job at a time. Free/busy state is an
// atomic.Bool rather than mutex-guarded so the scheduler can poll it from
// its own goroutine without a lock round trip.
type Worker struct {
	id         int
	tasks      chan Task
	acks       chan<- Ack
	downloader downloader.Downloader
	busy       atomic.Bool
	cookiePath string
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewDownloader builds the Downloader a worker should use, given that
// worker's private cookie file path.
type NewDownloader func(cookiePath string) downloader.Downloader

// New creates a worker that copies the canonical cookie file into its own
// private cookie file (mirrors the source's per-worker YTConfig.cookies),
// builds its downloader via newDL, and starts its processing loop. acks is
// the server's mailbox for Ack messages.
func New(id int, acks chan<- Ack, newDL NewDownloader, canonicalCookieFile, cookieDir string) (*Worker, error) {
	cookiePath := filepath.Join(cookieDir, fmt.Sprintf("cookies-worker-%d.txt", id))
	if err := copyCookieFile(canonicalCookieFile, cookiePath); err != nil {
		return nil, fmt.Errorf("worker %d: prepare cookie file: %w", id, err)
	}

	w := &Worker{
		id:         id,
		tasks:      make(chan Task, 1),
		acks:       acks,
		downloader: newDL(cookiePath),
		cookiePath: cookiePath,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// ID returns the worker's id.
func (w *Worker) ID() int { return w.id }

// CookiePath returns this worker's private cookie file, for the server to
// merge back once the worker has stopped.
func (w *Worker) CookiePath() string { return w.cookiePath }

// Free reports whether the worker is currently idle and can accept a Task.
func (w *Worker) Free() bool {
	return !w.busy.Load()
}

// Assign hands the worker a job. The caller must have checked Free() first;
// Assign does not block on a busy worker beyond the single-slot mailbox.
func (w *Worker) Assign(t Task) {
	w.busy.Store(true)
	w.tasks <- t
}

// Stop lets the in-flight download finish (no cancellation) and waits for
// the worker goroutine to exit.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run() {
	defer close(w.doneCh)

	for {
		select {
		case t := <-w.tasks:
			w.process(t)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Worker) process(t Task) {
	ok, errText := w.downloader.Download(context.Background(), t.Job.Item)

	result := t.Job
	if ok {
		result.State = job.Finished
	} else {
		result.State = job.Failed
		result.Error = errText
	}

	w.acks <- Ack{WorkerID: w.id, Job: result, OK: ok, ErrText: errText}
	w.busy.Store(false)
}

func copyCookieFile(src, dst string) error {
	if src == "" {
		// No canonical cookie file configured yet: start the worker with
		// an empty one.
		return os.WriteFile(dst, []byte("# Netscape HTTP Cookie File\n"), 0o644)
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return os.WriteFile(dst, []byte("# Netscape HTTP Cookie File\n"), 0o644)
		}
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
