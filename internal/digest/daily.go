package digest

import (
	"fmt"
	"time"

	"github.com/smukkama/ytfetchd/internal/audit"
)

// DailyAggregator rolls hourly_job_digest rows up into daily_job_digest.
type DailyAggregator struct {
	db *audit.DB
}

// NewDailyAggregator wraps db.
func NewDailyAggregator(db *audit.DB) *DailyAggregator {
	return &DailyAggregator{db: db}
}

// EnsureSchema creates the daily_job_digest table if missing.
func (d *DailyAggregator) EnsureSchema() error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS daily_job_digest (
			date      DATE NOT NULL,
			state     TEXT NOT NULL,
			job_count BIGINT NOT NULL,
			PRIMARY KEY (date, state)
		)
	`
	_, err := d.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("digest: ensure daily schema: %w", err)
	}
	return nil
}

// Aggregate rolls hourly_job_digest up into daily_job_digest for the day
// containing targetDate.
func (d *DailyAggregator) Aggregate(targetDate time.Time) error {
	date := targetDate.Truncate(24 * time.Hour)

	fmt.Printf("digest: running daily job aggregation for %s\n", date.Format("2006-01-02"))

	const query = `
		INSERT INTO daily_job_digest (date, state, job_count)
		SELECT $1::date AS date, state, SUM(job_count) AS job_count
		FROM hourly_job_digest
		WHERE DATE(hour_timestamp) = $1::date
		GROUP BY state
		ON CONFLICT (date, state) DO UPDATE
		SET job_count = EXCLUDED.job_count
	`

	result, err := d.db.Exec(query, date)
	if err != nil {
		return fmt.Errorf("digest: aggregate daily: %w", err)
	}

	rows, _ := result.RowsAffected()
	fmt.Printf("digest: daily aggregation completed: %d state rows\n", rows)
	return nil
}

// AggregatePreviousDay rolls up yesterday.
func (d *DailyAggregator) AggregatePreviousDay() error {
	return d.Aggregate(time.Now().AddDate(0, 0, -1).Truncate(24 * time.Hour))
}

// CalculateNextRunTime returns the next run time for timeOfDay ("HH:MM").
func (d *DailyAggregator) CalculateNextRunTime(timeOfDay string) (time.Time, error) {
	now := time.Now()

	var hour, minute int
	if _, err := fmt.Sscanf(timeOfDay, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("digest: invalid time format %q (expected HH:MM)", timeOfDay)
	}

	todayRun := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.After(todayRun) {
		return todayRun.AddDate(0, 0, 1), nil
	}
	return todayRun, nil
}
