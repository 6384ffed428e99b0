// Package session bridges a caller (a shell, a script) to the protocol
// layer in client mode: it turns a request/response exchange keyed by
// QueryID into a blocking call with a timeout, and fire-and-forget sends
// into a plain one-way call.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/protocol"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// ErrDisconnected is returned by any in-flight or future Request once the
// server connection is lost.
var ErrDisconnected = fmt.Errorf("session: disconnected")

// sink is a pending request's reply channel. AddList may deliver several
// Responses sharing one QueryID; sink buffers more than one so none are
// lost while the caller drains them.
type sink chan codec.Response

// Session wraps a Protocol dialed to a server, registering response sinks
// keyed by QueryID the way the source's blocking queue.Queue per request
// did, replaced here with Go channels.
type Session struct {
	proto    *protocol.Protocol
	target   transport.ClientID
	nextID   uint64
	mu       sync.Mutex
	sinks    map[codec.QueryID]sink
	Done     chan struct{}
	doneOnce sync.Once
}

// New wraps an already-dialed client-mode Protocol and starts the receive
// loop that fans incoming Responses out to their sinks.
func New(proto *protocol.Protocol, target transport.ClientID) *Session {
	s := &Session{
		proto:  proto,
		target: target,
		sinks:  make(map[codec.QueryID]sink),
		Done:   make(chan struct{}),
	}
	go s.pump()
	return s
}

func (s *Session) pump() {
	for ev := range s.proto.Events() {
		switch ev.Kind {
		case protocol.EventDisconnected:
			s.doneOnce.Do(func() { close(s.Done) })
			return

		case protocol.EventMessage:
			resp, ok := ev.Body.(codec.Response)
			if !ok {
				continue
			}
			s.deliver(resp)
		}
	}
	s.doneOnce.Do(func() { close(s.Done) })
}

func (s *Session) deliver(resp codec.Response) {
	s.mu.Lock()
	ch, ok := s.sinks[resp.QueryID]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
		// Sink full: a slow or abandoned caller. Drop rather than block the
		// receive loop for every other in-flight request.
		fmt.Printf("session: reply sink for query %d full, dropping response\n", resp.QueryID)
	}
}

// nextQueryID returns a fresh, session-local QueryID.
func (s *Session) nextQueryID() codec.QueryID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return codec.QueryID(s.nextID)
}

// newRequest builds msg given a freshly allocated QueryID, for the two
// request message types that carry one.
type newRequest func(codec.QueryID) codec.Message

// Request sends a request built by build, waits up to timeout for its
// reply, and returns it. Closes out its sink whether it succeeds, times
// out, or the session disconnects first.
func (s *Session) Request(ctx context.Context, build newRequest, timeout time.Duration) (codec.Response, error) {
	queryID := s.nextQueryID()
	ch := make(sink, 1)

	s.mu.Lock()
	s.sinks[queryID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sinks, queryID)
		s.mu.Unlock()
	}()

	s.proto.Send(s.target, build(queryID))

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case resp := <-ch:
		return resp, nil
	case <-s.Done:
		return codec.Response{}, ErrDisconnected
	case <-ctx.Done():
		return codec.Response{}, ctx.Err()
	case <-deadline.C:
		return codec.Response{}, fmt.Errorf("session: query %d: %w", queryID, context.DeadlineExceeded)
	}
}

// RequestAll is like Request but collects every reply sharing queryID
// until timeout elapses with no new one arriving, for AddList's
// one-reply-per-expanded-item behavior.
func (s *Session) RequestAll(ctx context.Context, build newRequest, timeout time.Duration) ([]codec.Response, error) {
	queryID := s.nextQueryID()
	ch := make(sink, 64)

	s.mu.Lock()
	s.sinks[queryID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sinks, queryID)
		s.mu.Unlock()
	}()

	s.proto.Send(s.target, build(queryID))

	var out []codec.Response
	for {
		timer := time.NewTimer(timeout)
		select {
		case resp := <-ch:
			timer.Stop()
			out = append(out, resp)
		case <-s.Done:
			timer.Stop()
			return out, ErrDisconnected
		case <-ctx.Done():
			timer.Stop()
			return out, ctx.Err()
		case <-timer.C:
			if len(out) == 0 {
				return nil, fmt.Errorf("session: query %d: %w", queryID, context.DeadlineExceeded)
			}
			return out, nil
		}
	}
}

// Notify sends a fire-and-forget message (Retry, Discard): no sink is
// registered, no reply is awaited.
func (s *Session) Notify(msg codec.Message) {
	s.proto.Send(s.target, msg)
}
