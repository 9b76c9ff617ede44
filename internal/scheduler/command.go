package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Transition is a deferred play or stop request. Generation is the value
// captured when the slot was acquired.
type Transition struct {
	Generation uint32
	Channel    uint8
	Note       uint8
	Velocity   uint8
}

// MutexReply answers a Query.
type MutexReply struct {
	Generation uint32
	Sync       time.Time
}

// Query asks the owner to read or bump a slot's generation. The reply
// channel is single use and buffered so the owner never blocks on it.
type Query struct {
	Channel uint8
	Note    uint8

	ctx   context.Context
	reply chan MutexReply
}

func newQuery(ctx context.Context, channel, note uint8) *Query {
	return &Query{
		Channel: channel,
		Note:    note,
		ctx:     ctx,
		reply:   make(chan MutexReply, 1),
	}
}

// Kind tags a Command.
type Kind int

const (
	KindPlay Kind = iota
	KindStop
	KindMutexRequest
	KindMutexUpdate
	KindSyncReset
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindPlay:
		return "Play"
	case KindStop:
		return "Stop"
	case KindMutexRequest:
		return "MutexRequest"
	case KindMutexUpdate:
		return "MutexUpdate"
	case KindSyncReset:
		return "SyncReset"
	case KindClose:
		return "Close"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Command is the closed set of requests the owner accepts. Transition is
// set for Play and Stop, Query for the mutex kinds.
type Command struct {
	Kind       Kind
	Transition Transition
	Query      *Query
}
