package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/go-gl/mathgl/mgl64"
)

// scriptVM is the raw-mode interpreter of one Worker. It is created on the
// first raw request and reused, so script globals persist between runs.
type scriptVM struct {
	rt *goja.Runtime
}

func newScriptVM() *scriptVM {
	return &scriptVM{rt: goja.New()}
}

// capabilities are the only host functions visible to raw scripts.
var capabilities = []Action{ActionSetPosition, ActionTranslate, ActionRotate, ActionScale}

// runRaw executes req.Source with the capability object bound to req's
// correlation id. Transform and log replies are emitted as the script calls
// the verbs, before the terminal reply.
func (w *Worker) runRaw(req Request) error {
	if w.vm == nil {
		w.vm = newScriptVM()
	}
	rt := w.vm.rt

	for _, action := range capabilities {
		if err := rt.Set(string(action), w.transformVerb(rt, req.CorrelationID, action)); err != nil {
			return err
		}
	}
	if err := rt.Set("log", w.logVerb(req.CorrelationID)); err != nil {
		return err
	}
	if err := rt.Set("transform", snapshotObject(req.Snapshot)); err != nil {
		return err
	}
	if err := rt.Set("deltaTime", req.DeltaTime); err != nil {
		return err
	}

	rt.ClearInterrupt()
	fired := make(chan struct{})
	timer := time.AfterFunc(w.cfg.Timeout, func() {
		rt.Interrupt(ErrTimeout)
		close(fired)
	})
	stop := context.AfterFunc(w.ctx, func() { rt.Interrupt(ErrClosed) })

	_, err := rt.RunString(req.Source)

	if !timer.Stop() {
		<-fired
	}
	stop()
	rt.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return cause
		}
	}
	if err != nil {
		return fmt.Errorf("script: %w", err)
	}
	return nil
}

func (w *Worker) transformVerb(rt *goja.Runtime, id uint64, action Action) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		v, err := vectorArgs(call.Arguments)
		if err != nil {
			panic(rt.NewTypeError("%s: %v", action, err))
		}
		w.emit(Reply{Type: ReplyTransform, ID: id, Action: action, Vector: v})
		return goja.Undefined()
	}
}

func (w *Worker) logVerb(id uint64) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		values := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			values[i] = a.Export()
		}
		w.emit(Reply{Type: ReplyLog, ID: id, Values: values})
		return goja.Undefined()
	}
}

// vectorArgs accepts either three numbers or a single 3-element array.
func vectorArgs(args []goja.Value) (mgl64.Vec3, error) {
	var raw []any
	switch len(args) {
	case 1:
		arr, ok := args[0].Export().([]any)
		if !ok {
			return mgl64.Vec3{}, ErrBadArgs
		}
		raw = arr
	case 3:
		raw = []any{args[0].Export(), args[1].Export(), args[2].Export()}
	}
	if len(raw) != 3 {
		return mgl64.Vec3{}, ErrBadArgs
	}
	var v mgl64.Vec3
	for i, x := range raw {
		f, ok := toFloat(x)
		if !ok {
			return mgl64.Vec3{}, ErrBadArgs
		}
		v[i] = f
	}
	return v, nil
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func snapshotObject(s Snapshot) map[string]any {
	vec := func(v mgl64.Vec3) []any { return []any{v[0], v[1], v[2]} }
	return map[string]any{
		"position": vec(s.Position),
		"rotation": vec(s.Rotation),
		"scale":    vec(s.Scale),
	}
}
