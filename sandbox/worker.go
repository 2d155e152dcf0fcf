package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Config tunes a Worker. Zero fields take the DefaultConfig values.
type Config struct {
	// QueueSize bounds the number of requests waiting to run.
	QueueSize int
	// ReplyBuffer is the capacity of the reply channel. The worker blocks
	// when the host stops draining it.
	ReplyBuffer int
	// Timeout interrupts a raw-mode script that runs longer than this.
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the settings used for zero Config fields.
func DefaultConfig() Config {
	return Config{
		QueueSize:   16,
		ReplyBuffer: 64,
		Timeout:     250 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.ReplyBuffer <= 0 {
		c.ReplyBuffer = d.ReplyBuffer
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// Worker runs requests one at a time on its own goroutine. Its interpreter
// state is never shared with another Worker.
type Worker struct {
	cfg      Config
	requests chan Request
	replies  chan Reply

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool

	// owned by the worker goroutine
	vm *scriptVM
}

// NewWorker starts a worker goroutine. Call Close to stop it.
func NewWorker(cfg Config) *Worker {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		cfg:      cfg,
		requests: make(chan Request, cfg.QueueSize),
		replies:  make(chan Reply, cfg.ReplyBuffer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

// NewFactory returns a Factory producing Workers with cfg.
func NewFactory(cfg Config) Factory {
	return func() (Channel, error) {
		return NewWorker(cfg), nil
	}
}

// Post enqueues req. It never blocks: a full queue yields ErrQueueFull.
func (w *Worker) Post(req Request) error {
	if w.closed.Load() {
		return ErrClosed
	}
	select {
	case w.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Replies returns the reply stream. It is closed once the worker has stopped.
func (w *Worker) Replies() <-chan Reply {
	return w.replies
}

// Close stops the worker, interrupting a running script, and waits for the
// goroutine to exit. Requests still queued are dropped without replies.
func (w *Worker) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.cancel()
	<-w.done
	return nil
}

func (w *Worker) run() {
	defer close(w.done)
	defer close(w.replies)
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.requests:
			w.handle(req)
		}
	}
}

// handle executes one request. Every failure, including a panic, is turned
// into an error reply; nothing crosses back to the host as a panic.
func (w *Worker) handle(req Request) {
	defer func() {
		if p := recover(); p != nil {
			w.cfg.Logger.Debug("sandbox recovered panic", "id", req.CorrelationID, "panic", p)
			w.emit(Reply{Type: ReplyError, ID: req.CorrelationID, Error: fmt.Sprintf("panic: %v", p)})
		}
	}()

	var err error
	switch req.Mode {
	case ModeRaw:
		err = w.runRaw(req)
	default:
		err = w.runCommands(req)
	}
	if err != nil {
		w.emit(Reply{Type: ReplyError, ID: req.CorrelationID, Error: err.Error()})
		return
	}
	w.emit(Reply{Type: ReplySuccess, ID: req.CorrelationID})
}

func (w *Worker) runCommands(req Request) error {
	instrs, err := ParseCommandList(req.Source)
	if err != nil {
		return err
	}
	for _, in := range instrs {
		if in.Log {
			w.emit(Reply{Type: ReplyLog, ID: req.CorrelationID, Values: []any{in.Msg}})
			continue
		}
		w.emit(Reply{Type: ReplyTransform, ID: req.CorrelationID, Action: in.Action, Vector: in.Vector})
	}
	return nil
}

// emit delivers r unless the worker is shutting down.
func (w *Worker) emit(r Reply) bool {
	select {
	case w.replies <- r:
		return true
	case <-w.ctx.Done():
		return false
	}
}
