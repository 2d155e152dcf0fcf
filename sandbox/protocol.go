// Package sandbox implements the isolated script-execution channel.
//
// A Worker is an actor: a goroutine that owns its own interpreter state and
// communicates with its host only through messages. The host posts a Request
// carrying the script source and a snapshot of the node transform; the
// worker answers with zero or more transform/log Replies followed by exactly
// one success or error Reply, all tagged with the request's correlation id.
//
// Two modes exist. Command-list mode accepts a JSON array of whitelisted
// verbs and never executes code. Raw mode runs JavaScript in a goja VM whose
// global scope exposes only the same five verbs; hosts must only select it
// for trusted scripts.
package sandbox

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

// Mode selects how a request's source is interpreted.
type Mode uint8

const (
	ModeCommandList Mode = iota // JSON array of whitelisted commands
	ModeRaw                     // JavaScript restricted to the capability object
)

func (m Mode) String() string {
	if m == ModeRaw {
		return "raw"
	}
	return "commands"
}

// Action is a transform mutation verb.
type Action string

const (
	ActionSetPosition Action = "setPosition"
	ActionTranslate   Action = "translate"
	ActionRotate      Action = "rotate"
	ActionScale       Action = "scale"
)

// Valid reports whether a is one of the four transform verbs.
func (a Action) Valid() bool {
	switch a {
	case ActionSetPosition, ActionTranslate, ActionRotate, ActionScale:
		return true
	}
	return false
}

// Snapshot is the read-only transform state handed to a script.
type Snapshot struct {
	Position mgl64.Vec3 `json:"position"`
	Rotation mgl64.Vec3 `json:"rotation"`
	Scale    mgl64.Vec3 `json:"scale"`
}

// Request is a host → sandbox message.
type Request struct {
	CorrelationID uint64   `json:"correlationId"`
	Mode          Mode     `json:"mode"`
	Source        string   `json:"sourceCode"`
	Snapshot      Snapshot `json:"nodeSnapshot"`
	DeltaTime     float64  `json:"deltaTime"`
}

// ReplyType discriminates sandbox → host messages.
type ReplyType string

const (
	ReplyTransform ReplyType = "transform"
	ReplyLog       ReplyType = "log"
	ReplySuccess   ReplyType = "success"
	ReplyError     ReplyType = "error"
)

// Reply is a sandbox → host message. Which fields are set depends on Type:
// Action and Vector for transform, Values for log, Error for error.
type Reply struct {
	Type   ReplyType
	ID     uint64
	Action Action
	Vector mgl64.Vec3
	Values []any
	Error  string
}

// Terminal reports whether r resolves its request.
func (r Reply) Terminal() bool {
	return r.Type == ReplySuccess || r.Type == ReplyError
}

// Channel is the host's view of an isolated execution context.
type Channel interface {
	// Post enqueues a request without blocking.
	Post(req Request) error
	// Replies delivers every reply for every posted request.
	Replies() <-chan Reply
	// Close tears the context down. Outstanding requests get no further replies.
	Close() error
}

// Factory creates a fresh Channel. Hosts call it lazily on first use.
type Factory func() (Channel, error)

// Errors reported by channels and the command parser.
var (
	ErrClosed         = errors.New("sandbox: channel closed")
	ErrQueueFull      = errors.New("sandbox: request queue full")
	ErrNotCommandList = errors.New("sandbox: source is not a JSON array")
	ErrUnknownCommand = errors.New("sandbox: unknown command")
	ErrBadArgs        = errors.New("sandbox: transform commands need three numeric args")
	ErrTimeout        = errors.New("sandbox: script timed out")
)
