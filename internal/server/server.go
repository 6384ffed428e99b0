// Package server is the scheduler and registry at the center of ytfetchd:
// it owns the client table, the worker pool, and the four job sets, and
// drives all of it from a single goroutine so none of that state needs a
// lock.
package server

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/downloader"
	"github.com/smukkama/ytfetchd/internal/eventbus"
	"github.com/smukkama/ytfetchd/internal/job"
	"github.com/smukkama/ytfetchd/internal/protocol"
	"github.com/smukkama/ytfetchd/internal/store"
	"github.com/smukkama/ytfetchd/internal/transport"
	"github.com/smukkama/ytfetchd/internal/worker"
)

// ClientRecord tracks one client connection. Entries are never purged: a
// disconnected client's jobs stay addressable for List/Retry/Discard on
// reconnect under the same ClientID... though in practice a reconnect gets
// a fresh ClientID, so a disconnected record just stays disconnected.
type ClientRecord struct {
	ID             transport.ClientID
	ConnectedAt    time.Time
	Disconnected   bool
	DisconnectedAt time.Time
}

// publishTimeout bounds how long a single eventbus publish may block the
// scheduler loop; publishing is fire-and-forget beyond that.
const publishTimeout = 2 * time.Second

type expandResult struct {
	client  transport.ClientID
	queryID codec.QueryID
	items   []codec.ItemID
	err     error
}

// Server is the reactive scheduler: one mailbox per input source, one
// goroutine (Run) draining all of them, so the registry and job sets below
// never need a mutex.
type Server struct {
	proto    *protocol.Protocol
	sess     *store.Session
	producer *eventbus.Producer // nil disables publishing
	expander downloader.Downloader

	canonicalCookieFile string

	workers []*worker.Worker
	acks    chan worker.Ack
	expand  chan expandResult
	stopCh  chan struct{}

	clients  map[transport.ClientID]*ClientRecord
	queued   map[job.Key]job.Job
	running  map[job.Key]job.Job
	finished map[job.Key]job.Job
	failed   map[job.Key]job.Job
}

// New builds a Server with numWorkers pool workers, each given its own
// cookie file copied from canonicalCookieFile (mirrors the source's
// per-worker YTConfig.cookies). expander is used for playlist expansion,
// which runs against the canonical cookie file rather than a worker's
// private copy, since it is a server-side lookup, not a download.
func New(proto *protocol.Protocol, sess *store.Session, producer *eventbus.Producer, expander downloader.Downloader, numWorkers int, newDL worker.NewDownloader, canonicalCookieFile, cookieDir string) (*Server, error) {
	s := &Server{
		proto:               proto,
		sess:                sess,
		producer:            producer,
		expander:            expander,
		canonicalCookieFile: canonicalCookieFile,
		acks:                make(chan worker.Ack, numWorkers),
		expand:              make(chan expandResult, 16),
		stopCh:              make(chan struct{}),
		clients:             make(map[transport.ClientID]*ClientRecord),
		queued:              make(map[job.Key]job.Job),
		running:             make(map[job.Key]job.Job),
		finished:            make(map[job.Key]job.Job),
		failed:              make(map[job.Key]job.Job),
	}

	for i := 0; i < numWorkers; i++ {
		w, err := worker.New(i, s.acks, newDL, canonicalCookieFile, cookieDir)
		if err != nil {
			for _, started := range s.workers {
				started.Stop()
			}
			return nil, fmt.Errorf("server: start worker %d: %w", i, err)
		}
		s.workers = append(s.workers, w)
	}

	return s, nil
}

// LoadSets seeds the in-memory job sets from a prior persisted session
// (e.g. at startup, or in response to an operator-triggered load), then
// persists the merged result and runs an allocation pass.
func (s *Server) LoadSets(toQueue, toFail, toFinished []job.Job) {
	for _, j := range toQueue {
		s.queued[j.Key()] = j
	}
	for _, j := range toFail {
		s.failed[j.Key()] = j
	}
	for _, j := range toFinished {
		s.finished[j.Key()] = j
	}
	s.persist(job.Queued, job.Failed, job.Finished)
	s.allocate()
}

// Run drains every input source until Stop is called. It is the only
// goroutine that ever touches the registry or job sets.
func (s *Server) Run() {
	for {
		select {
		case ev, ok := <-s.proto.Events():
			if !ok {
				return
			}
			s.handleProtocolEvent(ev)

		case ack := <-s.acks:
			s.handleAck(ack)

		case res := <-s.expand:
			s.handleExpandResult(res)

		case <-s.stopCh:
			return
		}
	}
}

// Stop stops every worker (letting in-flight downloads finish), merges
// their cookie files back into the canonical file, deletes the per-worker
// files, and stops Run. If the merge fails, the per-worker files are kept.
func (s *Server) Stop() {
	close(s.stopCh)

	var cookieFiles []string
	for _, w := range s.workers {
		w.Stop()
		cookieFiles = append(cookieFiles, w.CookiePath())
	}

	if s.canonicalCookieFile != "" {
		if err := downloader.MergeCookieFiles(s.canonicalCookieFile, cookieFiles...); err != nil {
			fmt.Printf("server: merge worker cookie files: %v\n", err)
			return
		}
	}
	for _, f := range cookieFiles {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			fmt.Printf("server: remove worker cookie file %s: %v\n", f, err)
		}
	}
}

func (s *Server) handleProtocolEvent(ev protocol.Event) {
	switch ev.Kind {
	case protocol.EventConnected:
		s.handleConnected(ev.Sender)
	case protocol.EventDisconnected:
		s.handleDisconnected(ev.Sender)
	case protocol.EventMessage:
		s.handleMessage(ev.Sender, ev.Body)
	}
}

func (s *Server) handleConnected(client transport.ClientID) {
	s.clients[client] = &ClientRecord{ID: client, ConnectedAt: time.Now()}
	fmt.Printf("server: client %d connected\n", client)
}

func (s *Server) handleDisconnected(client transport.ClientID) {
	if rec, ok := s.clients[client]; ok {
		rec.Disconnected = true
		rec.DisconnectedAt = time.Now()
	}
	fmt.Printf("server: client %d disconnected\n", client)
}

func (s *Server) handleMessage(client transport.ClientID, body codec.Message) {
	switch m := body.(type) {
	case codec.AddCode:
		s.handleAddCode(client, m)
	case codec.AddList:
		s.handleAddList(client, m)
	case codec.Retry:
		s.handleRetry(client)
	case codec.Discard:
		s.handleDiscard(client)
	case codec.List:
		s.handleList(client, m)
	default:
		fmt.Printf("server: client %d sent unhandled message %T\n", client, body)
	}
}

// handleAddCode queues a single item, unless it is already running or
// already finished for this client.
func (s *Server) handleAddCode(client transport.ClientID, m codec.AddCode) {
	key := job.Key{Client: client, Item: m.Item}

	if _, ok := s.running[key]; ok {
		s.reply(client, m.QueryID, fmt.Sprintf("YT code '%s' is already running", m.Item))
		return
	}
	if _, ok := s.finished[key]; ok {
		s.reply(client, m.QueryID, fmt.Sprintf("YT code '%s' is already finished", m.Item))
		return
	}

	s.queueItem(client, m.Item, m.QueryID)
	s.reply(client, m.QueryID, fmt.Sprintf("YT code '%s' queued", m.Item))
	s.persist(job.Queued)
	s.allocate()
}

// queueItem inserts a fresh Queued job and publishes its event, without
// replying or persisting — callers batch those around possibly many calls
// (AddList expands to one queueItem per member).
func (s *Server) queueItem(client transport.ClientID, item codec.ItemID, queryID codec.QueryID) {
	j := job.Job{Client: client, Item: item, State: job.Queued, QueryID: queryID, At: time.Now()}
	s.queued[j.Key()] = j
	s.publish(j)
}

// handleAddList kicks off playlist expansion asynchronously so a slow
// yt-dlp lookup never blocks the scheduler loop; the result comes back on
// s.expand.
func (s *Server) handleAddList(client transport.ClientID, m codec.AddList) {
	if s.expander == nil {
		s.reply(client, m.QueryID, "playlist expansion is not configured")
		return
	}

	cookiePath := s.canonicalCookieFile
	go func() {
		items, err := s.expander.ExpandPlaylist(context.Background(), m.Playlist, cookiePath)
		s.expand <- expandResult{client: client, queryID: m.QueryID, items: items, err: err}
	}()
}

func (s *Server) handleExpandResult(res expandResult) {
	if res.err != nil {
		s.reply(res.client, res.queryID, fmt.Sprintf("playlist expansion failed: %v", res.err))
		return
	}

	for _, item := range res.items {
		key := job.Key{Client: res.client, Item: item}
		if _, ok := s.running[key]; ok {
			s.reply(res.client, res.queryID, fmt.Sprintf("YT code '%s' is already running", item))
			continue
		}
		if _, ok := s.finished[key]; ok {
			s.reply(res.client, res.queryID, fmt.Sprintf("YT code '%s' is already finished", item))
			continue
		}
		s.queueItem(res.client, item, res.queryID)
		s.reply(res.client, res.queryID, fmt.Sprintf("YT code '%s' queued", item))
	}

	s.persist(job.Queued)
	s.allocate()
}

// handleRetry moves this client's failed jobs back into Queued. Scoped per
// client: spec.md resolved the ambiguity between the pack's sources this
// way, see DESIGN.md.
func (s *Server) handleRetry(client transport.ClientID) {
	var moved int
	for key, j := range s.failed {
		if key.Client != client {
			continue
		}
		j.State = job.Queued
		j.At = time.Now()
		s.queued[key] = j
		delete(s.failed, key)
		s.publish(j)
		moved++
	}
	if moved == 0 {
		return
	}
	s.persist(job.Queued, job.Failed)
	s.allocate()
}

// handleDiscard drops this client's failed jobs without requeueing them.
func (s *Server) handleDiscard(client transport.ClientID) {
	var dropped bool
	for key := range s.failed {
		if key.Client == client {
			delete(s.failed, key)
			dropped = true
		}
	}
	if dropped {
		s.persist(job.Failed)
	}
}

// handleList replies with a single colour-tagged listing of this client's
// jobs across all four states.
func (s *Server) handleList(client transport.ClientID, m codec.List) {
	s.reply(client, m.QueryID, s.listText(client))
}

// handleAck reconciles a worker's completed task: out of Running, into
// Finished or Failed, then lets another allocation pass use the now-free
// worker.
func (s *Server) handleAck(ack worker.Ack) {
	key := ack.Job.Key()
	delete(s.running, key)

	if ack.OK {
		s.finished[key] = ack.Job
	} else {
		s.failed[key] = ack.Job
	}
	s.publish(ack.Job)
	s.persist(job.Running, job.Finished, job.Failed)
	s.allocate()
}

// allocate assigns queued jobs to free workers until one side runs out.
// Map iteration order picks which queued job goes next; spec.md guarantees
// no per-client fairness for the global Queued set, so this is sound.
func (s *Server) allocate() {
	var assigned bool
	for _, w := range s.workers {
		if !w.Free() {
			continue
		}
		key, j, ok := s.popQueued()
		if !ok {
			break
		}

		j.State = job.Running
		j.At = time.Now()
		s.running[key] = j
		w.Assign(worker.Task{Job: j})
		s.publish(j)
		assigned = true
	}
	if assigned {
		s.persist(job.Queued, job.Running)
	}
}

func (s *Server) popQueued() (job.Key, job.Job, bool) {
	for key, j := range s.queued {
		delete(s.queued, key)
		return key, j, true
	}
	return job.Key{}, job.Job{}, false
}

func (s *Server) reply(client transport.ClientID, queryID codec.QueryID, text string) {
	s.proto.Send(client, codec.Response{QueryID: queryID, Text: text})
}

// publish emits a job-lifecycle event for j. Fire-and-forget: a broker
// outage degrades observability, not scheduling.
func (s *Server) publish(j job.Job) {
	if s.producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := s.producer.Publish(ctx, eventbus.FromJob(j)); err != nil {
		fmt.Printf("server: publish event for %s failed: %v\n", j.Key(), err)
	}
}

// persist rewrites the on-disk file for each given state so it matches the
// in-memory set.
func (s *Server) persist(states ...job.State) {
	for _, state := range states {
		var jobs []job.Job
		switch state {
		case job.Queued:
			jobs = values(s.queued)
		case job.Running:
			jobs = values(s.running)
		case job.Finished:
			jobs = values(s.finished)
		case job.Failed:
			jobs = values(s.failed)
		}
		if err := s.sess.Replace(state, jobs); err != nil {
			fmt.Printf("server: persist %s: %v\n", state, err)
		}
	}
}

func values(m map[job.Key]job.Job) []job.Job {
	out := make([]job.Job, 0, len(m))
	for _, j := range m {
		out = append(out, j)
	}
	return out
}
