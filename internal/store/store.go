// Package store persists the server's four job sets to disk so a restarted
// server — or a later session explicitly asked to resume — can recover
// queued, running, finished, and failed jobs. Each set is backed by its own
// embedded tidwall/buntdb file inside a per-run session directory.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/job"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// sessionTimeLayout names session directories <YYYYMMDD-HHMMSS>.
const sessionTimeLayout = "20060102-150405"

// fileNames are the four buntdb files every session directory holds, one
// per job state.
var fileNames = map[job.State]string{
	job.Queued:   "queued",
	job.Running:  "running",
	job.Finished: "finished",
	job.Failed:   "failed",
}

var autoShrinkSize int64 = 1 << 20 // 1MB, matching aistore's default

// Session is the on-disk state of one server run.
type Session struct {
	dir string
	dbs map[job.State]*buntdb.DB
}

// Open creates (or reopens) a session directory under dataDir named for
// when, and opens its four buntdb files.
func Open(dataDir string, when time.Time) (*Session, error) {
	dir := filepath.Join(dataDir, when.Format(sessionTimeLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create session dir %s: %w", dir, err)
	}

	s := &Session{dir: dir, dbs: make(map[job.State]*buntdb.DB)}
	for state, name := range fileNames {
		db, err := buntdb.Open(filepath.Join(dir, name))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("store: open %s: %w", name, err)
		}
		db.SetConfig(buntdb.Config{
			SyncPolicy:           buntdb.EverySecond,
			AutoShrinkMinSize:    int(autoShrinkSize),
			AutoShrinkPercentage: 50,
		})
		s.dbs[state] = db
	}
	return s, nil
}

// Dir returns the session directory path.
func (s *Session) Dir() string { return s.dir }

// Close closes every open buntdb file.
func (s *Session) Close() error {
	var firstErr error
	for _, db := range s.dbs {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Replace rewrites state's file so it holds exactly jobs, discarding
// whatever was there before. Called after every state-changing handler so
// the persisted set always matches the in-memory one.
func (s *Session) Replace(state job.State, jobs []job.Job) error {
	db, ok := s.dbs[state]
	if !ok {
		return fmt.Errorf("store: unknown state %v", state)
	}

	return db.Update(func(tx *buntdb.Tx) error {
		var staleKeys []string
		tx.Ascend("", func(key, _ string) bool {
			staleKeys = append(staleKeys, key)
			return true
		})
		for _, k := range staleKeys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}

		for _, j := range jobs {
			data, err := jsoniter.Marshal(j)
			if err != nil {
				return fmt.Errorf("store: marshal job %s: %w", j.Key(), err)
			}
			if _, _, err := tx.Set(recordKey(j.Client, j.Item), string(data), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func recordKey(client transport.ClientID, item codec.ItemID) string {
	return fmt.Sprintf("%d/%s", client, item)
}

// loadAll reads every job out of state's file.
func loadAll(dir string, state job.State) ([]job.Job, error) {
	path := filepath.Join(dir, fileNames[state])
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer db.Close()

	var jobs []job.Job
	err = db.View(func(tx *buntdb.Tx) error {
		var outerErr error
		tx.Ascend("", func(_, value string) bool {
			var j job.Job
			if err := jsoniter.Unmarshal([]byte(value), &j); err != nil {
				outerErr = err
				return false
			}
			jobs = append(jobs, j)
			return true
		})
		return outerErr
	})
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	return jobs, nil
}

// Selection controls which of a prior session's job sets LoadSession folds
// into the current Queued, Failed, and Finished sets.
type Selection int

const (
	// All merges every prior job: queued and running into current Queued
	// (Running demoted to Queued), failed into current Failed, and finished
	// into current Finished.
	All Selection = iota
	// PendingOnly merges prior Running and Queued into current Queued, and
	// prior Failed into current Failed; Finished jobs are dropped.
	PendingOnly
	// FinishedOnly merges only prior Finished jobs, into current Finished
	// (they are not requeued).
	FinishedOnly
)

// LoadSession reads sessionDir (as returned by ListSessions) and returns the
// jobs to fold into the current Queued, Failed, and Finished sets per
// selection. Prior Finished jobs are restored into Finished, never requeued
// for re-download.
func LoadSession(sessionDir string, selection Selection) (toQueue, toFail, toFinished []job.Job, err error) {
	queued, err := loadAll(sessionDir, job.Queued)
	if err != nil {
		return nil, nil, nil, err
	}
	running, err := loadAll(sessionDir, job.Running)
	if err != nil {
		return nil, nil, nil, err
	}
	finished, err := loadAll(sessionDir, job.Finished)
	if err != nil {
		return nil, nil, nil, err
	}
	failed, err := loadAll(sessionDir, job.Failed)
	if err != nil {
		return nil, nil, nil, err
	}

	requeue := func(js []job.Job) []job.Job {
		out := make([]job.Job, len(js))
		for i, j := range js {
			j.State = job.Queued
			out[i] = j
		}
		return out
	}

	switch selection {
	case All:
		toQueue = append(toQueue, requeue(queued)...)
		toQueue = append(toQueue, requeue(running)...)
		toFail = append(toFail, failed...)
		toFinished = append(toFinished, finished...)
	case PendingOnly:
		toQueue = append(toQueue, requeue(queued)...)
		toQueue = append(toQueue, requeue(running)...)
		toFail = append(toFail, failed...)
	case FinishedOnly:
		toFinished = append(toFinished, finished...)
	default:
		return nil, nil, nil, fmt.Errorf("store: unknown selection %d", selection)
	}
	return toQueue, toFail, toFinished, nil
}

// ListSessions returns every subdirectory of dataDir that holds at least
// one of the four job-set files, most recent first.
func ListSessions(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", dataDir, err)
	}

	var sessions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(dataDir, e.Name())
		if hasAnySessionFile(dir) {
			sessions = append(sessions, dir)
		}
	}

	sort.Sort(sort.Reverse(sort.StringSlice(sessions)))
	return sessions, nil
}

func hasAnySessionFile(dir string) bool {
	for _, name := range fileNames {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// SessionName returns the base name (the <YYYYMMDD-HHMMSS> component) of a
// session directory path.
func SessionName(sessionDir string) string {
	return filepath.Base(strings.TrimRight(sessionDir, string(os.PathSeparator)))
}
