package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/downloader"
	"github.com/smukkama/ytfetchd/internal/protocol"
	"github.com/smukkama/ytfetchd/internal/store"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// fakeDownloader fails an item whose id is in fail the first time it's
// downloaded, then succeeds on any subsequent attempt (so a Retry can be
// observed moving it all the way to Finished). ExpandPlaylist returns
// items verbatim.
type fakeDownloader struct {
	fail      map[codec.ItemID]bool
	attempted map[codec.ItemID]bool
	items     []codec.ItemID
}

func (f *fakeDownloader) Download(ctx context.Context, item codec.ItemID) (bool, string) {
	if f.fail[item] && !f.attempted[item] {
		if f.attempted == nil {
			f.attempted = map[codec.ItemID]bool{}
		}
		f.attempted[item] = true
		return false, "boom"
	}
	return true, ""
}

func (f *fakeDownloader) ExpandPlaylist(ctx context.Context, playlist codec.PlaylistID, cookiePath string) ([]codec.ItemID, error) {
	return f.items, nil
}

func newTestServer(t *testing.T, fail map[codec.ItemID]bool, numWorkers int) (*Server, *protocol.Protocol) {
	t.Helper()

	serverTr := transport.New()
	if err := serverTr.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(serverTr.Close)

	proto := protocol.New(serverTr)

	sess, err := store.Open(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	newDL := func(cookiePath string) downloader.Downloader {
		return &fakeDownloader{fail: fail}
	}

	srv, err := New(proto, sess, nil, &fakeDownloader{fail: fail}, numWorkers, newDL, "", t.TempDir())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	go srv.Run()
	t.Cleanup(func() { srv.Stop() })

	clientTr := transport.New()
	if err := clientTr.Dial(serverTr.Addr().String(), time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(clientTr.Close)
	clientProto := protocol.New(clientTr)

	waitForProtoEvent(t, clientProto, protocol.EventConnected)

	return srv, clientProto
}

func waitForProtoEvent(t *testing.T, p *protocol.Protocol, kind protocol.EventKind) protocol.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for protocol event kind %d", kind)
		}
	}
}

func waitForResponse(t *testing.T, p *protocol.Protocol) codec.Response {
	t.Helper()
	ev := waitForProtoEvent(t, p, protocol.EventMessage)
	resp, ok := ev.Body.(codec.Response)
	if !ok {
		t.Fatalf("expected a Response, got %T", ev.Body)
	}
	return resp
}

func TestAddCodeRepliesQueued(t *testing.T) {
	_, client := newTestServer(t, nil, 1)

	client.Send(0, codec.AddCode{QueryID: 1, Item: codec.ItemID("abcdefghijk")})

	queuedResp := waitForResponse(t, client)
	if queuedResp.QueryID != 1 || !strings.Contains(queuedResp.Text, "queued") {
		t.Fatalf("unexpected queued response: %+v", queuedResp)
	}
}

func TestAddCodeRejectsDuplicateAfterFinished(t *testing.T) {
	// The fake downloader never blocks, so the first job finishes almost at
	// once; re-submitting the same item afterwards must be rejected by the
	// duplicate check against Finished. The check against Running is a
	// separate branch and is not exercised here.
	_, client := newTestServer(t, nil, 1)

	client.Send(0, codec.AddCode{QueryID: 1, Item: codec.ItemID("abcdefghijk")})
	waitForResponse(t, client) // queued

	// Give the worker a moment to finish and the Ack to land.
	time.Sleep(100 * time.Millisecond)

	client.Send(0, codec.AddCode{QueryID: 2, Item: codec.ItemID("abcdefghijk")})
	resp := waitForResponse(t, client)
	if !strings.Contains(resp.Text, "already finished") {
		t.Fatalf("want already-finished response, got %+v", resp)
	}
}

func TestFailedJobRetryRequeues(t *testing.T) {
	fail := map[codec.ItemID]bool{codec.ItemID("zzzzzzzzzzz"): true}
	_, client := newTestServer(t, fail, 1)

	client.Send(0, codec.AddCode{QueryID: 1, Item: codec.ItemID("zzzzzzzzzzz")})
	waitForResponse(t, client) // queued

	time.Sleep(100 * time.Millisecond)

	client.Send(0, codec.List{QueryID: 2})
	listResp := waitForResponse(t, client)
	if !strings.Contains(listResp.Text, "failed") {
		t.Fatalf("expected failed section in listing, got %q", listResp.Text)
	}

	client.Send(0, codec.Retry{})
	time.Sleep(100 * time.Millisecond)

	client.Send(0, codec.List{QueryID: 3})
	afterRetry := waitForResponse(t, client)
	if strings.Contains(afterRetry.Text, "failed") {
		t.Fatalf("expected no failed section after retry, got %q", afterRetry.Text)
	}
}

func TestDiscardDropsFailedJobs(t *testing.T) {
	fail := map[codec.ItemID]bool{codec.ItemID("zzzzzzzzzzz"): true}
	_, client := newTestServer(t, fail, 1)

	client.Send(0, codec.AddCode{QueryID: 1, Item: codec.ItemID("zzzzzzzzzzz")})
	waitForResponse(t, client)
	time.Sleep(100 * time.Millisecond)

	client.Send(0, codec.Discard{})
	time.Sleep(100 * time.Millisecond)

	client.Send(0, codec.List{QueryID: 2})
	resp := waitForResponse(t, client)
	if resp.Text != "no jobs" {
		t.Fatalf("expected empty listing after discard, got %q", resp.Text)
	}
}

func TestAddListExpandsPlaylist(t *testing.T) {
	fail := map[codec.ItemID]bool{}
	serverTr := transport.New()
	if err := serverTr.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(serverTr.Close)

	proto := protocol.New(serverTr)
	sess, err := store.Open(t.TempDir(), time.Now())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { sess.Close() })

	items := []codec.ItemID{"aaaaaaaaaaa", "bbbbbbbbbbb"}
	newDL := func(cookiePath string) downloader.Downloader {
		return &fakeDownloader{fail: fail}
	}
	srv, err := New(proto, sess, nil, &fakeDownloader{fail: fail, items: items}, 2, newDL, "", t.TempDir())
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	go srv.Run()
	t.Cleanup(func() { srv.Stop() })

	clientTr := transport.New()
	if err := clientTr.Dial(serverTr.Addr().String(), time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(clientTr.Close)
	client := protocol.New(clientTr)
	waitForProtoEvent(t, client, protocol.EventConnected)

	playlist := codec.PlaylistID(strings.Repeat("p", 34))
	client.Send(0, codec.AddList{QueryID: 5, Playlist: playlist})

	seen := map[string]bool{}
	for i := 0; i < len(items); i++ {
		resp := waitForResponse(t, client)
		if resp.QueryID != 5 {
			t.Errorf("response QueryID = %d, want 5", resp.QueryID)
		}
		seen[resp.Text] = true
	}
	for _, item := range items {
		found := false
		for text := range seen {
			if strings.Contains(text, string(item)) {
				found = true
			}
		}
		if !found {
			t.Errorf("no response mentioned expanded item %s", item)
		}
	}
}
