// Package job defines the Job record and its lifecycle states, shared by
// every package that schedules, persists, or reports on downloads.
package job

import (
	"fmt"
	"time"

	"github.com/smukkama/ytfetchd/internal/codec"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// State is a job's position in its lifecycle. The zero value is never a
// valid state; every Job is constructed with an explicit one.
type State int

const (
	Queued State = iota + 1
	Running
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Key identifies a job uniquely: one client can only have one outstanding
// job per item id at a time.
type Key struct {
	Client transport.ClientID
	Item   codec.ItemID
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.Client, k.Item)
}

// Job is one item a client has asked the server to fetch.
type Job struct {
	Client  transport.ClientID
	Item    codec.ItemID
	State   State
	QueryID codec.QueryID // the AddCode/AddList request this job was born from
	Error   string        // populated only when State == Failed
	At      time.Time     // time of last state transition
}

// Key returns this job's identifying key.
func (j Job) Key() Key {
	return Key{Client: j.Client, Item: j.Item}
}
