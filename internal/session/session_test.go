package session

import (
	"context"
	"testing"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/protocol"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// serverSide is a minimal stand-in for internal/server in these tests: it
// answers every AddCode/List with one Response carrying the same QueryID,
// and every AddList with two.
func serverSide(t *testing.T, serverProto *protocol.Protocol) {
	t.Helper()
	go func() {
		for ev := range serverProto.Events() {
			if ev.Kind != protocol.EventMessage {
				continue
			}
			switch m := ev.Body.(type) {
			case codec.AddCode:
				serverProto.Send(ev.Sender, codec.Response{QueryID: m.QueryID, Text: "queued"})
			case codec.List:
				serverProto.Send(ev.Sender, codec.Response{QueryID: m.QueryID, Text: "no jobs"})
			case codec.AddList:
				serverProto.Send(ev.Sender, codec.Response{QueryID: m.QueryID, Text: "item one"})
				serverProto.Send(ev.Sender, codec.Response{QueryID: m.QueryID, Text: "item two"})
			}
		}
	}()
}

func newTestSession(t *testing.T) (*Session, *transport.Transport) {
	t.Helper()
	serverTr := transport.New()
	if err := serverTr.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(serverTr.Close)
	serverProto := protocol.New(serverTr)
	serverSide(t, serverProto)

	clientTr := transport.New()
	if err := clientTr.Dial(serverTr.Addr().String(), time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(clientTr.Close)
	clientProto := protocol.New(clientTr)

	sess := New(clientProto, 0)
	return sess, serverTr
}

func TestRequestReturnsMatchingResponse(t *testing.T) {
	sess, _ := newTestSession(t)

	resp, err := sess.Request(context.Background(), func(id codec.QueryID) codec.Message {
		return codec.AddCode{QueryID: id, Item: codec.ItemID("abcdefghijk")}
	}, time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if resp.Text != "queued" {
		t.Errorf("resp.Text = %q, want %q", resp.Text, "queued")
	}
}

func TestRequestAllCollectsEveryReply(t *testing.T) {
	sess, _ := newTestSession(t)

	resps, err := sess.RequestAll(context.Background(), func(id codec.QueryID) codec.Message {
		return codec.AddList{QueryID: id, Playlist: codec.PlaylistID("0123456789012345678901234567890123")}
	}, 300*time.Millisecond)
	if err != nil {
		t.Fatalf("RequestAll: %v", err)
	}
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
}

func TestRequestTimesOutWithNoReply(t *testing.T) {
	serverTr := transport.New()
	if err := serverTr.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer serverTr.Close()
	// No server-side reply loop: every request times out.

	clientTr := transport.New()
	if err := clientTr.Dial(serverTr.Addr().String(), time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientTr.Close()
	sess := New(protocol.New(clientTr), 0)

	_, err := sess.Request(context.Background(), func(id codec.QueryID) codec.Message {
		return codec.List{QueryID: id}
	}, 50*time.Millisecond)
	if err == nil {
		t.Fatal("want a timeout error, got nil")
	}
}

func TestDisconnectClosesDoneAndFailsLaterRequest(t *testing.T) {
	sess, serverTr := newTestSession(t)

	serverTr.Close()

	select {
	case <-sess.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("Done was never closed after server disconnect")
	}

	_, err := sess.Request(context.Background(), func(id codec.QueryID) codec.Message {
		return codec.List{QueryID: id}
	}, time.Second)
	if err != ErrDisconnected {
		t.Errorf("err = %v, want ErrDisconnected", err)
	}
}
