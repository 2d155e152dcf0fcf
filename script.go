package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phanxgames/arbor/sandbox"
)

// Script errors. A failed ScriptResult carries one of these, or the
// sandbox's error message wrapped in ErrScriptFailed.
var (
	ErrUntrustedCode  = errors.New("arbor: untrusted script is not a command list")
	ErrScriptCanceled = errors.New("arbor: script canceled")
	ErrScriptFailed   = errors.New("arbor: script failed")
)

// ScriptResult is the pending outcome of one dispatched script run. It
// resolves exactly once.
type ScriptResult struct {
	id   uint64
	done chan struct{}
	ok   bool
	err  error
}

func newScriptResult(id uint64) *ScriptResult {
	return &ScriptResult{id: id, done: make(chan struct{})}
}

func (r *ScriptResult) resolve(ok bool, err error) {
	select {
	case <-r.done:
		return
	default:
	}
	r.ok, r.err = ok, err
	close(r.done)
}

// ID returns the correlation id, or 0 for runs rejected before dispatch.
func (r *ScriptResult) ID() uint64 { return r.id }

// Done is closed once the result has resolved.
func (r *ScriptResult) Done() <-chan struct{} { return r.done }

// Resolved reports whether the result has resolved.
func (r *ScriptResult) Resolved() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// OK reports whether the run succeeded. False until resolved.
func (r *ScriptResult) OK() bool {
	return r.Resolved() && r.ok
}

// Err returns the failure cause, or nil on success or while pending.
func (r *ScriptResult) Err() error {
	if !r.Resolved() {
		return nil
	}
	return r.err
}

// ScriptComponent runs user-authored logic in its own sandbox channel.
// Dispatch is fire-and-forget from the tick's perspective: replies are
// applied to the owner when the host processes them (at the start of the
// next Update, or inside Wait / Scene.Settle), so script effects are
// eventually consistent.
//
// Untrusted scripts may only be command lists; raw code requires Trusted.
type ScriptComponent struct {
	BaseComponent

	source string
	// Trusted permits raw-code mode.
	Trusted bool
	// MaxInFlight caps dispatches from Update while earlier runs are pending.
	MaxInFlight int
	// OnLog, if set, receives the values of every sandbox log message.
	OnLog func(values []any)

	factory sandbox.Factory
	channel sandbox.Channel
	pending map[uint64]*ScriptResult
	nextID  uint64
	logger  *slog.Logger
}

// ScriptOption configures a ScriptComponent.
type ScriptOption func(*ScriptComponent)

// WithTrusted marks the script as trusted, allowing raw code.
func WithTrusted() ScriptOption {
	return func(s *ScriptComponent) { s.Trusted = true }
}

// WithChannelFactory replaces the default sandbox worker factory.
func WithChannelFactory(f sandbox.Factory) ScriptOption {
	return func(s *ScriptComponent) { s.factory = f }
}

// WithScriptLogger sets the logger for warnings, errors and script log lines.
func WithScriptLogger(l *slog.Logger) ScriptOption {
	return func(s *ScriptComponent) { s.logger = l }
}

const defaultMaxInFlight = 8

// NewScriptComponent creates an untrusted script component.
func NewScriptComponent(source string, opts ...ScriptOption) *ScriptComponent {
	s := &ScriptComponent{
		source:      source,
		MaxInFlight: defaultMaxInFlight,
		pending:     make(map[uint64]*ScriptResult),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.factory == nil {
		s.factory = sandbox.NewFactory(sandbox.Config{Logger: s.logger})
	}
	return s
}

func (s *ScriptComponent) Kind() ComponentKind { return KindScript }

// Source returns the current script source.
func (s *ScriptComponent) Source() string { return s.source }

// SetSource replaces the script. The current sandbox is torn down and every
// outstanding run resolves with ErrScriptCanceled.
func (s *ScriptComponent) SetSource(src string) {
	s.teardown()
	s.source = src
}

// Pending returns the number of unresolved runs.
func (s *ScriptComponent) Pending() int { return len(s.pending) }

// OnDetach tears down the sandbox.
func (s *ScriptComponent) OnDetach() { s.teardown() }

// Close tears down the sandbox, resolving outstanding runs as canceled.
// The component stays usable; the next Execute creates a fresh sandbox.
func (s *ScriptComponent) Close() error { return s.teardown() }

// Update applies replies that have arrived, then dispatches one run unless
// MaxInFlight runs are already pending.
func (s *ScriptComponent) Update(dt float64) {
	s.ProcessReplies()
	if s.MaxInFlight > 0 && len(s.pending) >= s.MaxInFlight {
		return
	}
	s.Execute(dt)
}

// Execute dispatches the script with a snapshot of the owner's transform.
// It never blocks. An untrusted script that is not a command list is
// rejected locally: nothing is sent and the result resolves immediately
// with ErrUntrustedCode.
func (s *ScriptComponent) Execute(dt float64) *ScriptResult {
	mode := sandbox.ModeCommandList
	if !sandbox.IsCommandList(s.source) {
		if !s.Trusted {
			s.logger.Warn("rejected untrusted script: not a command list", "node", s.ownerName())
			r := newScriptResult(0)
			r.resolve(false, ErrUntrustedCode)
			return r
		}
		mode = sandbox.ModeRaw
	}

	if s.channel == nil {
		ch, err := s.factory()
		if err != nil {
			s.logger.Error("create sandbox", "node", s.ownerName(), "err", err)
			r := newScriptResult(0)
			r.resolve(false, fmt.Errorf("create sandbox: %w", err))
			return r
		}
		s.channel = ch
	}

	s.nextID++
	r := newScriptResult(s.nextID)
	req := sandbox.Request{
		CorrelationID: r.id,
		Mode:          mode,
		Source:        s.source,
		DeltaTime:     dt,
	}
	if n := s.owner; n != nil {
		req.Snapshot = sandbox.Snapshot{
			Position: n.Transform.Position,
			Rotation: n.Transform.Rotation,
			Scale:    n.Transform.Scale,
		}
	}
	if err := s.channel.Post(req); err != nil {
		s.logger.Warn("script dispatch failed", "node", s.ownerName(), "id", r.id, "err", err)
		r.resolve(false, fmt.Errorf("dispatch: %w", err))
		return r
	}
	s.pending[r.id] = r
	return r
}

// ProcessReplies applies every reply already delivered, without blocking,
// and returns how many were handled.
func (s *ScriptComponent) ProcessReplies() int {
	if s.channel == nil {
		return 0
	}
	n := 0
	for {
		select {
		case reply, ok := <-s.channel.Replies():
			if !ok {
				s.channelLost()
				return n
			}
			s.handleReply(reply)
			n++
		default:
			return n
		}
	}
}

// Wait blocks until r resolves or ctx is done, applying replies as they
// arrive. It must be called from the goroutine that owns the scene.
func (s *ScriptComponent) Wait(ctx context.Context, r *ScriptResult) (bool, error) {
	for !r.Resolved() {
		if s.channel == nil {
			// Torn down without r being tracked; it cannot resolve.
			return false, ErrScriptCanceled
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case reply, ok := <-s.channel.Replies():
			if !ok {
				s.channelLost()
				continue
			}
			s.handleReply(reply)
		}
	}
	return r.ok, r.err
}

// Settle waits until every pending run has resolved.
func (s *ScriptComponent) Settle(ctx context.Context) error {
	for len(s.pending) > 0 {
		var r *ScriptResult
		for _, p := range s.pending {
			r = p
			break
		}
		if _, err := s.Wait(ctx, r); err != nil && !r.Resolved() {
			return err
		}
	}
	return nil
}

func (s *ScriptComponent) handleReply(reply sandbox.Reply) {
	r, ok := s.pending[reply.ID]
	if !ok {
		// Already resolved or never issued by this component.
		return
	}
	switch reply.Type {
	case sandbox.ReplyTransform:
		if s.owner != nil {
			applyTransformAction(s.owner, reply.Action, reply.Vector)
		}
	case sandbox.ReplyLog:
		s.logger.Info("script log", "node", s.ownerName(), "id", reply.ID, "values", reply.Values)
		if s.OnLog != nil {
			s.OnLog(reply.Values)
		}
	case sandbox.ReplySuccess:
		delete(s.pending, reply.ID)
		r.resolve(true, nil)
	case sandbox.ReplyError:
		s.logger.Error("script error", "node", s.ownerName(), "id", reply.ID, "err", reply.Error)
		delete(s.pending, reply.ID)
		r.resolve(false, fmt.Errorf("%w: %s", ErrScriptFailed, reply.Error))
	}
}

// applyTransformAction mutates n according to a sandbox transform verb.
func applyTransformAction(n *Node, action sandbox.Action, v Vec3) {
	switch action {
	case sandbox.ActionSetPosition:
		n.SetPosition(v)
	case sandbox.ActionTranslate:
		n.Translate(v)
	case sandbox.ActionRotate:
		n.Rotate(v)
	case sandbox.ActionScale:
		n.ScaleBy(v)
	}
}

// channelLost handles a reply stream that closed underneath us.
func (s *ScriptComponent) channelLost() {
	s.channel = nil
	s.cancelPending()
}

func (s *ScriptComponent) teardown() error {
	var err error
	if s.channel != nil {
		err = s.channel.Close()
		s.channel = nil
	}
	s.cancelPending()
	return err
}

func (s *ScriptComponent) cancelPending() {
	for id, r := range s.pending {
		r.resolve(false, ErrScriptCanceled)
		delete(s.pending, id)
	}
}

func (s *ScriptComponent) ownerName() string {
	if s.owner == nil {
		return ""
	}
	return s.owner.Name
}
