// Package protocol turns a transport's raw byte events into decoded
// ytfetchd messages, and re-encodes outgoing messages back onto the wire.
package protocol

import (
	"fmt"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// EventKind distinguishes the three things Protocol reports.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventMessage
)

// Event is one occurrence delivered to a Protocol's subscriber.
type Event struct {
	Kind   EventKind
	Sender transport.ClientID
	Body   codec.Message
}

// Protocol owns a transport and the per-sender decode buffers that sit on
// top of it, translating transport.Event into protocol.Event.
type Protocol struct {
	tr     *transport.Transport
	dec    *codec.Decoder
	events chan Event
	done   chan struct{}
}

// New wraps tr and starts pumping its events through the codec. The pump
// runs until tr's event channel is closed (tr.Close), then closes Events.
func New(tr *transport.Transport) *Protocol {
	p := &Protocol{
		tr:     tr,
		dec:    codec.NewDecoder(),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	go p.pump()
	return p
}

// Events returns the channel of Connected/Disconnected/Message occurrences.
func (p *Protocol) Events() <-chan Event {
	return p.events
}

func (p *Protocol) pump() {
	defer close(p.events)

	for ev := range p.tr.Events() {
		switch ev.Kind {
		case transport.EventConnected:
			p.events <- Event{Kind: EventConnected, Sender: ev.Client}

		case transport.EventDisconnected:
			p.dec.Drop(senderKey(ev.Client))
			p.events <- Event{Kind: EventDisconnected, Sender: ev.Client}

		case transport.EventData:
			for _, d := range p.dec.Feed(senderKey(ev.Client), ev.Data) {
				if d.Err != nil {
					fmt.Printf("protocol: dropping malformed frame from client %d: %v\n", ev.Client, d.Err)
					continue
				}
				p.events <- Event{Kind: EventMessage, Sender: ev.Client, Body: d.Msg}
			}
		}
	}
}

// Send encodes msg and writes it to target. A codec encode failure (a
// programming error — an invalid id slipped past validation) is logged and
// the send is dropped.
func (p *Protocol) Send(target transport.ClientID, msg codec.Message) {
	frame, err := codec.Encode(msg)
	if err != nil {
		fmt.Printf("protocol: encode %s for client %d failed: %v\n", msg.Tag(), target, err)
		return
	}
	p.tr.Send(target, frame)
}

func senderKey(id transport.ClientID) string {
	return fmt.Sprintf("%d", id)
}
