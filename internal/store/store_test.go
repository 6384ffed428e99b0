package store

import (
	"testing"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/job"
	"github.com/smukkama/ytfetchd/internal/transport"
)

func TestReplaceAndReload(t *testing.T) {
	dir := t.TempDir()
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sess, err := Open(dir, when)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	jobs := []job.Job{
		{Client: transport.ClientID(1), Item: codec.ItemID("abcdefghijk"), State: job.Queued, At: when},
		{Client: transport.ClientID(2), Item: codec.ItemID("zzzzzzzzzzz"), State: job.Queued, At: when},
	}
	if err := sess.Replace(job.Queued, jobs); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	toQueue, toFail, _, err := LoadSession(sess.Dir(), All)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if len(toQueue) != 2 {
		t.Fatalf("LoadSession All: got %d queued jobs, want 2", len(toQueue))
	}
	if len(toFail) != 0 {
		t.Fatalf("LoadSession All: got %d failed jobs, want 0", len(toFail))
	}
}

func TestReplaceOverwritesPriorContent(t *testing.T) {
	dir := t.TempDir()
	sess, err := Open(dir, time.Now().UTC())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	first := []job.Job{{Client: 1, Item: codec.ItemID("aaaaaaaaaaa"), State: job.Failed}}
	if err := sess.Replace(job.Failed, first); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	second := []job.Job{{Client: 2, Item: codec.ItemID("bbbbbbbbbbb"), State: job.Failed}}
	if err := sess.Replace(job.Failed, second); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	toQueue, toFail, _, err := LoadSession(sess.Dir(), PendingOnly)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if len(toQueue) != 0 {
		t.Errorf("got %d queued jobs, want 0", len(toQueue))
	}
	if len(toFail) != 1 || toFail[0].Client != 2 {
		t.Errorf("got %#v, want exactly client 2's job", toFail)
	}
}

func TestListSessions(t *testing.T) {
	dir := t.TempDir()

	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	s1, err := Open(dir, t1)
	if err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(dir, t2)
	if err != nil {
		t.Fatal(err)
	}
	s2.Close()

	sessions, err := ListSessions(dir)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if SessionName(sessions[0]) != t2.Format(sessionTimeLayout) {
		t.Errorf("most recent session = %s, want %s", SessionName(sessions[0]), t2.Format(sessionTimeLayout))
	}
}

func TestFinishedOnlyRestoresFinishedJobs(t *testing.T) {
	dir := t.TempDir()
	sess, err := Open(dir, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	finished := []job.Job{{Client: 3, Item: codec.ItemID("ccccccccccc"), State: job.Finished}}
	if err := sess.Replace(job.Finished, finished); err != nil {
		t.Fatal(err)
	}

	toQueue, toFail, toFinished, err := LoadSession(sess.Dir(), FinishedOnly)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if len(toQueue) != 0 {
		t.Errorf("got %d queued jobs, want 0", len(toQueue))
	}
	if len(toFail) != 0 {
		t.Errorf("got %d failed jobs, want 0", len(toFail))
	}
	if len(toFinished) != 1 || toFinished[0].State != job.Finished {
		t.Fatalf("got %#v, want one restored finished job", toFinished)
	}
}
