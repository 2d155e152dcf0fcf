package arbor

import (
	"encoding/json"
	"fmt"
)

// replayStep represents a single editor action in a replay script.
type replayStep struct {
	Action   string `json:"action"`
	NodeType string `json:"nodeType,omitempty"`
	Name     string `json:"name,omitempty"`
	// Ref names the node for later steps; Parent refers to an earlier Ref.
	Ref     string `json:"ref,omitempty"`
	Parent  string `json:"parent,omitempty"`
	Source  string `json:"source,omitempty"`
	Trusted bool   `json:"trusted,omitempty"`
	Frames  int    `json:"frames,omitempty"`
}

// replayScript is the top-level JSON structure for a replay script.
type replayScript struct {
	Steps []replayStep `json:"steps"`
}

// Replay sequences editor commands (create, remove, select, script, wait)
// across frames so UI flows can be reproduced without a UI. Attach to a
// Scene via SetReplay; one step runs at the start of each Scene.Update.
type Replay struct {
	steps     []replayStep
	cursor    int
	waitCount int
	done      bool
	refs      map[string]*Node
	errs      []error
}

// LoadReplay parses a JSON replay script.
func LoadReplay(jsonData []byte) (*Replay, error) {
	var script replayScript
	if err := json.Unmarshal(jsonData, &script); err != nil {
		return nil, fmt.Errorf("parse replay: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("parse replay: no steps")
	}
	return &Replay{steps: script.Steps, refs: make(map[string]*Node)}, nil
}

// SetReplay attaches a replay to the scene. Pass nil to detach.
func (s *Scene) SetReplay(r *Replay) {
	s.replay = r
}

// Done reports whether all steps have been executed.
func (r *Replay) Done() bool {
	return r.done
}

// Node returns the node created under ref, or nil.
func (r *Replay) Node(ref string) *Node {
	return r.refs[ref]
}

// Errors returns the failures of steps that could not be applied.
func (r *Replay) Errors() []error {
	return r.errs
}

// step advances the replay by one frame. Called from Scene.Update.
func (r *Replay) step(s *Scene) {
	if r.done {
		return
	}
	if r.waitCount > 0 {
		r.waitCount--
		return
	}
	if r.cursor >= len(r.steps) {
		r.done = true
		return
	}

	st := r.steps[r.cursor]
	r.cursor++

	if err := r.apply(s, st); err != nil {
		r.errs = append(r.errs, fmt.Errorf("step %d (%s): %w", r.cursor-1, st.Action, err))
	}

	if r.cursor >= len(r.steps) && r.waitCount == 0 {
		r.done = true
	}
}

func (r *Replay) apply(s *Scene, st replayStep) error {
	switch st.Action {
	case "create":
		n := s.CreateNode(st.NodeType, st.Name)
		var parent *Node
		if st.Parent != "" {
			if parent = r.refs[st.Parent]; parent == nil {
				return fmt.Errorf("parent ref %q: %w", st.Parent, ErrNodeNotFound)
			}
		}
		if err := s.AddNode(n, parent); err != nil {
			return err
		}
		if st.Ref != "" {
			r.refs[st.Ref] = n
		}
	case "remove":
		n, err := r.lookup(st.Ref)
		if err != nil {
			return err
		}
		s.RemoveNode(n.ID)
	case "select":
		if st.Ref == "" {
			s.SelectNode("")
			return nil
		}
		n, err := r.lookup(st.Ref)
		if err != nil {
			return err
		}
		s.SelectNode(n.ID)
	case "script":
		n, err := r.lookup(st.Ref)
		if err != nil {
			return err
		}
		if sc := n.Script(); sc != nil {
			sc.SetSource(st.Source)
			sc.Trusted = st.Trusted
			return nil
		}
		var opts []ScriptOption
		if st.Trusted {
			opts = append(opts, WithTrusted())
		}
		return n.AddComponent(NewScriptComponent(st.Source, opts...))
	case "wait":
		if st.Frames > 0 {
			r.waitCount = st.Frames - 1 // this frame counts as one
		}
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
	return nil
}

func (r *Replay) lookup(ref string) (*Node, error) {
	n := r.refs[ref]
	if n == nil {
		return nil, fmt.Errorf("ref %q: %w", ref, ErrNodeNotFound)
	}
	return n, nil
}
