// Package chat implements the resilient connection pipeline: a
// supervisor that opens a TCP session, runs the stream reader, stream
// writer, liveness watcher and transcript logger as one structured
// group, and reconnects whenever that group fails.
//
// Components never talk to each other directly.  They exchange data
// through the queues bundled in [Channels], which is created once per
// process and outlives every connection attempt.
package chat

import (
	"fmt"

	"minechat/internal/queue"
)

// Liveness notices.  Their content is only logged, never parsed.
const (
	NoticeMessage    = "new message in chat"
	NoticeSent       = "message sent"
	NoticeAuthorized = "authorization done"
)

// Channels is the process-wide wiring between the pipeline and the
// display surface.  All queues are unbounded FIFOs.
type Channels struct {
	// Inbound carries decoded chat lines to the display.
	Inbound *queue.Queue[string]
	// Outbound carries user-composed text to the writer.
	Outbound *queue.Queue[string]
	// Status carries connection-state and nickname events to the display.
	Status *queue.Queue[Status]
	// Transcript carries decoded chat lines to the transcript logger.
	Transcript *queue.Queue[string]
	// Liveness carries activity notices to the watcher.
	Liveness *queue.Queue[string]
}

// NewChannels allocates the five queues.
func NewChannels() *Channels {
	return &Channels{
		Inbound:    queue.New[string](),
		Outbound:   queue.New[string](),
		Status:     queue.New[Status](),
		Transcript: queue.New[string](),
		Liveness:   queue.New[string](),
	}
}

// ── Status events ────────────────────────────────────────────────────

// ConnState is the lifecycle of one side of the connection.
type ConnState int

const (
	StateInitiated ConnState = iota
	StateEstablished
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StatusKind tags a Status event.
type StatusKind int

const (
	// ReadConnection reports the inbound side's ConnState.
	ReadConnection StatusKind = iota
	// WriteConnection reports the outbound side's ConnState.
	WriteConnection
	// NicknameReceived carries the name the server authenticated us as.
	NicknameReceived
)

// Status is one event for the display surface.
type Status struct {
	Kind     StatusKind
	State    ConnState // ReadConnection / WriteConnection only
	Nickname string    // NicknameReceived only
}

// ReadStatus reports a read-side transition.
func ReadStatus(s ConnState) Status { return Status{Kind: ReadConnection, State: s} }

// WriteStatus reports a write-side transition.
func WriteStatus(s ConnState) Status { return Status{Kind: WriteConnection, State: s} }

// Nickname reports a successful authorization.
func Nickname(name string) Status { return Status{Kind: NicknameReceived, Nickname: name} }

func (s Status) String() string {
	switch s.Kind {
	case ReadConnection:
		return fmt.Sprintf("read connection %s", s.State)
	case WriteConnection:
		return fmt.Sprintf("write connection %s", s.State)
	case NicknameReceived:
		return fmt.Sprintf("nickname %s", s.Nickname)
	default:
		return "unknown status"
	}
}
