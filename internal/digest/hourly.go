// Package digest aggregates job_events into per-hour and per-day
// throughput summaries, the same scheduled-aggregation shape the teacher
// runs for hourly/daily weather metrics, retargeted at job counts.
package digest

import (
	"fmt"
	"time"

	"github.com/smukkama/ytfetchd/internal/audit"
)

// HourlyAggregator summarizes job_events into hourly_job_digest.
type HourlyAggregator struct {
	db *audit.DB
}

// NewHourlyAggregator wraps db.
func NewHourlyAggregator(db *audit.DB) *HourlyAggregator {
	return &HourlyAggregator{db: db}
}

// EnsureSchema creates the hourly_job_digest table if missing.
func (h *HourlyAggregator) EnsureSchema() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS hourly_job_digest (
			hour_timestamp TIMESTAMPTZ NOT NULL,
			state          TEXT NOT NULL,
			job_count      BIGINT NOT NULL,
			PRIMARY KEY (hour_timestamp, state)
		)
	`
	_, err := h.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("digest: ensure hourly schema: %w", err)
	}
	return nil
}

// Aggregate rolls up job_events for the hour containing targetHour.
func (h *HourlyAggregator) Aggregate(targetHour time.Time) error {
	start := targetHour.Truncate(time.Hour)
	end := start.Add(time.Hour)

	fmt.Printf("digest: running hourly job aggregation for %s\n", start.Format("2006-01-02 15:04:05"))

	const query = `
		INSERT INTO hourly_job_digest (hour_timestamp, state, job_count)
		SELECT $1 AS hour_timestamp, state, COUNT(*) AS job_count
		FROM job_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		GROUP BY state
		ON CONFLICT (hour_timestamp, state) DO UPDATE
		SET job_count = EXCLUDED.job_count
	`

	result, err := h.db.Exec(query, start, end)
	if err != nil {
		return fmt.Errorf("digest: aggregate hourly: %w", err)
	}

	rows, _ := result.RowsAffected()
	fmt.Printf("digest: hourly aggregation completed: %d state rows\n", rows)
	return nil
}

// AggregatePreviousHour rolls up the previous full hour.
func (h *HourlyAggregator) AggregatePreviousHour() error {
	return h.Aggregate(time.Now().Add(-time.Hour).Truncate(time.Hour))
}

// CalculateNextRunTime returns when the hourly job should next run, delay
// past the top of the next hour.
func (h *HourlyAggregator) CalculateNextRunTime(delay time.Duration) time.Time {
	now := time.Now()
	nextHour := now.Truncate(time.Hour).Add(time.Hour)
	nextRun := nextHour.Add(delay)
	if now.After(nextRun) {
		nextRun = nextRun.Add(time.Hour)
	}
	return nextRun
}
