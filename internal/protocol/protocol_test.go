package protocol

import (
	"testing"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/transport"
)

func waitForEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestProtocolRoundTripsMessages(t *testing.T) {
	serverTr := transport.New()
	if err := serverTr.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer serverTr.Close()

	clientTr := transport.New()
	if err := clientTr.Dial(serverTr.Addr().String(), time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientTr.Close()

	serverProto := New(serverTr)
	clientProto := New(clientTr)

	serverEv := waitForEvent(t, serverProto.Events(), EventConnected)
	waitForEvent(t, clientProto.Events(), EventConnected)

	want := codec.AddCode{QueryID: 42, Item: codec.ItemID("abcdefghijk")}
	clientProto.Send(0, want)

	got := waitForEvent(t, serverProto.Events(), EventMessage)
	if got.Sender != serverEv.Sender {
		t.Errorf("sender = %d, want %d", got.Sender, serverEv.Sender)
	}
	if got.Body != codec.Message(want) {
		t.Errorf("body = %#v, want %#v", got.Body, want)
	}
}

func TestProtocolDropsMalformedFrameAndKeepsConnectionOpen(t *testing.T) {
	serverTr := transport.New()
	if err := serverTr.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer serverTr.Close()

	clientTr := transport.New()
	if err := clientTr.Dial(serverTr.Addr().String(), time.Second); err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer clientTr.Close()

	serverProto := New(serverTr)
	clientProto := New(clientTr)

	waitForEvent(t, serverProto.Events(), EventConnected)
	waitForEvent(t, clientProto.Events(), EventConnected)

	// A correctly wrapped frame whose body carries an unknown tag must be
	// dropped, not kill the connection. Send a good message right after it
	// and confirm only the good one surfaces.
	bad, err := codec.Encode(codec.Retry{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	bad[10] = 0xff // first body byte (after 6-byte start sentinel and 4-byte length): the tag
	clientTr.Send(0, bad)

	good := codec.Retry{}
	clientProto.Send(0, good)

	got := waitForEvent(t, serverProto.Events(), EventMessage)
	if got.Body != codec.Message(good) {
		t.Errorf("body = %#v, want %#v", got.Body, good)
	}
}
