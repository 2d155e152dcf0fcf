package sandbox

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Command is one element of a command-list script.
type Command struct {
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
	Msg  any             `json:"msg,omitempty"`
}

// Instruction is a validated Command.
type Instruction struct {
	Log    bool
	Action Action
	Vector mgl64.Vec3
	Msg    any
}

// IsCommandList reports whether src is a JSON array literal. It is the
// host-side guard deciding whether an untrusted script may be dispatched.
func IsCommandList(src string) bool {
	trimmed := bytes.TrimSpace([]byte(src))
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	var elems []json.RawMessage
	return json.Unmarshal(trimmed, &elems) == nil
}

// ParseCommandList decodes and validates a whole command list. Nothing is
// returned unless every command is well formed.
func ParseCommandList(src string) ([]Instruction, error) {
	if !IsCommandList(src) {
		return nil, ErrNotCommandList
	}
	var cmds []Command
	if err := json.Unmarshal([]byte(src), &cmds); err != nil {
		return nil, fmt.Errorf("parse command list: %w", err)
	}
	out := make([]Instruction, 0, len(cmds))
	for i, c := range cmds {
		in, err := c.instruction()
		if err != nil {
			return nil, fmt.Errorf("command %d (%q): %w", i, c.Cmd, err)
		}
		out = append(out, in)
	}
	return out, nil
}

func (c Command) instruction() (Instruction, error) {
	if c.Cmd == "log" {
		return Instruction{Log: true, Msg: c.Msg}, nil
	}
	action := Action(c.Cmd)
	if !action.Valid() {
		return Instruction{}, ErrUnknownCommand
	}
	// Pointers tell a JSON null apart from 0.
	var args []*float64
	if len(c.Args) == 0 || json.Unmarshal(c.Args, &args) != nil || len(args) != 3 {
		return Instruction{}, ErrBadArgs
	}
	var v mgl64.Vec3
	for i, a := range args {
		if a == nil {
			return Instruction{}, ErrBadArgs
		}
		v[i] = *a
	}
	return Instruction{Action: action, Vector: v}, nil
}
