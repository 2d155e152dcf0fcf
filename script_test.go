package arbor

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phanxgames/arbor/sandbox"
)

var discardLogger = slog.New(slog.DiscardHandler)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// fakeChannel records posted requests and delivers whatever replies the
// test pushes. It never executes anything.
type fakeChannel struct {
	posts   []sandbox.Request
	replies chan sandbox.Reply
	postErr error
	closed  bool
	created int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{replies: make(chan sandbox.Reply, 512)}
}

func (c *fakeChannel) Post(req sandbox.Request) error {
	if c.postErr != nil {
		return c.postErr
	}
	c.posts = append(c.posts, req)
	return nil
}

func (c *fakeChannel) Replies() <-chan sandbox.Reply { return c.replies }

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func (c *fakeChannel) factory() (sandbox.Channel, error) {
	c.created++
	return c, nil
}

func newScriptedNode(t *testing.T, source string, opts ...ScriptOption) (*Node, *ScriptComponent) {
	t.Helper()
	n := NewNode("scripted")
	sc := NewScriptComponent(source, append([]ScriptOption{WithScriptLogger(discardLogger)}, opts...)...)
	mustAddComponent(t, n, sc)
	t.Cleanup(func() { _ = sc.Close() })
	return n, sc
}

func mustResolveOK(t *testing.T, sc *ScriptComponent, r *ScriptResult) {
	t.Helper()
	ok, err := sc.Wait(testContext(t), r)
	if err != nil || !ok {
		t.Fatalf("Wait = %v, %v; want success", ok, err)
	}
}

// --- Command-list mode ---

func TestCommandListSetsPosition(t *testing.T) {
	n, sc := newScriptedNode(t, `[{"cmd":"setPosition","args":[1,2,3]}]`)

	r := sc.Execute(0)
	mustResolveOK(t, sc, r)

	if n.Transform.Position != (Vec3{1, 2, 3}) {
		t.Errorf("Position = %v, want (1, 2, 3)", n.Transform.Position)
	}
	if !r.OK() || r.Err() != nil || r.ID() == 0 {
		t.Errorf("result = ok %v, err %v, id %d", r.OK(), r.Err(), r.ID())
	}
	if sc.Pending() != 0 {
		t.Errorf("Pending = %d", sc.Pending())
	}
}

func TestCommandListVerbs(t *testing.T) {
	n, sc := newScriptedNode(t, `[
		{"cmd":"translate","args":[1,0,0]},
		{"cmd":"translate","args":[1,0,0]},
		{"cmd":"rotate","args":[0,0.5,0]},
		{"cmd":"scale","args":[2,3,4]},
		{"cmd":"scale","args":[0.5,1,1]}
	]`)
	mustResolveOK(t, sc, sc.Execute(0))

	want := Transform{Position: Vec3{2, 0, 0}, Rotation: Vec3{0, 0.5, 0}, Scale: Vec3{1, 3, 4}}
	if n.Transform != want {
		t.Errorf("Transform = %+v, want %+v", n.Transform, want)
	}
}

func TestCommandListLog(t *testing.T) {
	_, sc := newScriptedNode(t, `[{"cmd":"log","msg":"hello"}]`)
	var got []any
	sc.OnLog = func(values []any) { got = values }

	mustResolveOK(t, sc, sc.Execute(0))

	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("log values = %v", got)
	}
}

func TestCommandListErrorResolvesFalse(t *testing.T) {
	n, sc := newScriptedNode(t, `[{"cmd":"translate","args":[1,0,0]},{"cmd":"explode","args":[1,2,3]}]`)

	ok, err := sc.Wait(testContext(t), sc.Execute(0))

	if ok || !errors.Is(err, ErrScriptFailed) {
		t.Fatalf("Wait = %v, %v; want ErrScriptFailed", ok, err)
	}
	if !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("err = %v", err)
	}
	if n.Transform.Position != (Vec3{}) {
		t.Error("a rejected list must not apply any command")
	}
}

// --- Untrusted guard ---

func TestUntrustedRawCodeIsNeverDispatched(t *testing.T) {
	spy := newFakeChannel()
	_, sc := newScriptedNode(t, `alert(1)`, WithChannelFactory(spy.factory))

	r := sc.Execute(0)

	if !r.Resolved() || r.OK() || !errors.Is(r.Err(), ErrUntrustedCode) {
		t.Errorf("result = resolved %v, ok %v, err %v", r.Resolved(), r.OK(), r.Err())
	}
	for range 3 {
		sc.Update(0.1)
	}
	if spy.created != 0 || len(spy.posts) != 0 {
		t.Errorf("sandbox saw %d channels and %d posts, want none", spy.created, len(spy.posts))
	}
	if sc.Pending() != 0 {
		t.Error("rejected runs are not pending")
	}
}

func TestUntrustedGuardTable(t *testing.T) {
	tests := []struct {
		source string
		posted bool
	}{
		{`[]`, true},
		{`  [{"cmd":"rotate","args":[0,1,0]}]  `, true},
		{`{"cmd":"rotate"}`, false},
		{`[1, 2`, false},
		{`setPosition(1,2,3)`, false},
		{``, false},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			spy := newFakeChannel()
			_, sc := newScriptedNode(t, tt.source, WithChannelFactory(spy.factory))
			sc.Execute(0)
			if got := len(spy.posts) == 1; got != tt.posted {
				t.Errorf("posted = %v, want %v", got, tt.posted)
			}
		})
	}
}

// --- Raw mode ---

func TestTrustedRawScript(t *testing.T) {
	n, sc := newScriptedNode(t, `setPosition(1, 2, 3); translate([1, 0, 0]); log("hi", 2);`, WithTrusted())
	var logged []any
	sc.OnLog = func(values []any) { logged = values }

	mustResolveOK(t, sc, sc.Execute(0))

	if n.Transform.Position != (Vec3{2, 2, 3}) {
		t.Errorf("Position = %v, want (2, 2, 3)", n.Transform.Position)
	}
	if len(logged) != 2 || logged[0] != "hi" {
		t.Errorf("logged = %v", logged)
	}
}

func TestRawScriptReadsSnapshotAndDeltaTime(t *testing.T) {
	n, sc := newScriptedNode(t, `translate(transform.position[0], 0, deltaTime);`, WithTrusted())
	n.SetPosition(Vec3{3, 0, 0})

	mustResolveOK(t, sc, sc.Execute(0.5))

	assertVecNear(t, "Position", n.Transform.Position, Vec3{6, 0, 0.5})
}

func TestRawScriptHasNoHostAccess(t *testing.T) {
	_, sc := newScriptedNode(t, `require("fs")`, WithTrusted())
	ok, err := sc.Wait(testContext(t), sc.Execute(0))
	if ok || !errors.Is(err, ErrScriptFailed) {
		t.Errorf("Wait = %v, %v; want ErrScriptFailed", ok, err)
	}
}

func TestRawScriptTimeout(t *testing.T) {
	n, sc := newScriptedNode(t, `if (typeof spun === "undefined") { spun = true; while (true) {} } translate(1, 0, 0);`,
		WithTrusted(),
		WithChannelFactory(sandbox.NewFactory(sandbox.Config{Timeout: 20 * time.Millisecond, Logger: discardLogger})),
	)

	ok, err := sc.Wait(testContext(t), sc.Execute(0))

	if ok || err == nil || !strings.Contains(err.Error(), sandbox.ErrTimeout.Error()) {
		t.Errorf("Wait = %v, %v; want timeout", ok, err)
	}

	// The same worker keeps running, globals included.
	mustResolveOK(t, sc, sc.Execute(0))
	if n.Transform.Position != (Vec3{1, 0, 0}) {
		t.Errorf("Position = %v", n.Transform.Position)
	}
}

// --- Reply handling ---

func TestDuplicateAndForeignRepliesAreIgnored(t *testing.T) {
	ch := newFakeChannel()
	n, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	r := sc.Execute(0)

	ch.replies <- sandbox.Reply{Type: sandbox.ReplyTransform, ID: 99, Action: sandbox.ActionTranslate, Vector: Vec3{5, 0, 0}}
	ch.replies <- sandbox.Reply{Type: sandbox.ReplySuccess, ID: r.ID()}
	ch.replies <- sandbox.Reply{Type: sandbox.ReplyTransform, ID: r.ID(), Action: sandbox.ActionTranslate, Vector: Vec3{1, 0, 0}}
	ch.replies <- sandbox.Reply{Type: sandbox.ReplyError, ID: r.ID(), Error: "late"}

	if got := sc.ProcessReplies(); got != 4 {
		t.Errorf("ProcessReplies = %d, want 4", got)
	}
	if !r.OK() {
		t.Error("the first terminal reply wins")
	}
	if n.Transform.Position != (Vec3{}) {
		t.Errorf("ignored replies moved the node to %v", n.Transform.Position)
	}
}

func TestErrorReplyResolvesFalse(t *testing.T) {
	ch := newFakeChannel()
	_, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	r := sc.Execute(0)
	ch.replies <- sandbox.Reply{Type: sandbox.ReplyError, ID: r.ID(), Error: "nope"}

	ok, err := sc.Wait(testContext(t), r)
	if ok || !errors.Is(err, ErrScriptFailed) || !strings.Contains(err.Error(), "nope") {
		t.Errorf("Wait = %v, %v", ok, err)
	}
}

func TestRequestCarriesSnapshot(t *testing.T) {
	ch := newFakeChannel()
	n, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	n.SetPosition(Vec3{1, 2, 3})
	n.SetScale(Vec3{2, 2, 2})

	sc.Execute(0.25)
	sc.Execute(0.25)

	if len(ch.posts) != 2 {
		t.Fatalf("posts = %d", len(ch.posts))
	}
	req := ch.posts[0]
	if req.Snapshot.Position != (Vec3{1, 2, 3}) || req.Snapshot.Scale != (Vec3{2, 2, 2}) || req.DeltaTime != 0.25 {
		t.Errorf("request = %+v", req)
	}
	if req.Mode != sandbox.ModeCommandList {
		t.Errorf("Mode = %v", req.Mode)
	}
	if ch.posts[0].CorrelationID == ch.posts[1].CorrelationID {
		t.Error("correlation ids must be unique per dispatch")
	}
	if ch.created != 1 {
		t.Errorf("channel created %d times, want 1", ch.created)
	}
}

func TestDispatchFailureResolvesFalse(t *testing.T) {
	ch := newFakeChannel()
	ch.postErr = sandbox.ErrQueueFull
	_, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))

	r := sc.Execute(0)

	if !r.Resolved() || !errors.Is(r.Err(), sandbox.ErrQueueFull) {
		t.Errorf("err = %v", r.Err())
	}
	if sc.Pending() != 0 {
		t.Error("failed dispatch is not pending")
	}
}

func TestUpdateRespectsMaxInFlight(t *testing.T) {
	ch := newFakeChannel()
	_, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	sc.MaxInFlight = 3

	for range 5 {
		sc.Update(0.1)
	}
	if len(ch.posts) != 3 {
		t.Errorf("posts = %d, want 3", len(ch.posts))
	}

	ch.replies <- sandbox.Reply{Type: sandbox.ReplySuccess, ID: ch.posts[0].CorrelationID}
	sc.Update(0.1)
	if len(ch.posts) != 4 {
		t.Errorf("posts = %d after a run resolved, want 4", len(ch.posts))
	}
}

// --- Teardown ---

func TestSetSourceCancelsPending(t *testing.T) {
	ch := newFakeChannel()
	_, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	r1 := sc.Execute(0)
	r2 := sc.Execute(0)

	sc.SetSource(`[{"cmd":"translate","args":[1,1,1]}]`)

	for _, r := range []*ScriptResult{r1, r2} {
		ok, err := sc.Wait(testContext(t), r)
		if ok || !errors.Is(err, ErrScriptCanceled) {
			t.Errorf("Wait = %v, %v; want ErrScriptCanceled", ok, err)
		}
	}
	if !ch.closed {
		t.Error("sandbox should be torn down")
	}
	if sc.Source() != `[{"cmd":"translate","args":[1,1,1]}]` {
		t.Error("source should be replaced")
	}

	sc.Execute(0)
	if ch.created != 2 {
		t.Errorf("channel created %d times, want a fresh one after teardown", ch.created)
	}
}

func TestDetachCancelsPending(t *testing.T) {
	ch := newFakeChannel()
	n, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	r := sc.Execute(0)

	n.RemoveComponent(KindScript)

	if !errors.Is(r.Err(), ErrScriptCanceled) || !ch.closed {
		t.Errorf("err = %v, closed = %v", r.Err(), ch.closed)
	}
}

func TestClosedReplyStreamCancelsPending(t *testing.T) {
	ch := newFakeChannel()
	_, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	r := sc.Execute(0)

	close(ch.replies)
	sc.ProcessReplies()

	if !errors.Is(r.Err(), ErrScriptCanceled) {
		t.Errorf("err = %v", r.Err())
	}
}

func TestCloseThenExecuteUsesFreshSandbox(t *testing.T) {
	n, sc := newScriptedNode(t, `[{"cmd":"translate","args":[1,0,0]}]`)
	mustResolveOK(t, sc, sc.Execute(0))
	if err := sc.Close(); err != nil {
		t.Fatal(err)
	}
	mustResolveOK(t, sc, sc.Execute(0))
	if n.Transform.Position != (Vec3{2, 0, 0}) {
		t.Errorf("Position = %v", n.Transform.Position)
	}
}

// --- Concurrency ---

// feed delivers a translate and a success reply for every id, in random id
// order, mixed with replies for ids that were never issued.
func feed(ch *fakeChannel, ids []uint64, step Vec3, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed))
	order := append([]uint64(nil), ids...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	for _, id := range order {
		ch.replies <- sandbox.Reply{Type: sandbox.ReplyTransform, ID: id, Action: sandbox.ActionTranslate, Vector: step}
		if rng.IntN(4) == 0 {
			ch.replies <- sandbox.Reply{Type: sandbox.ReplySuccess, ID: id + 10_000}
		}
		ch.replies <- sandbox.Reply{Type: sandbox.ReplySuccess, ID: id}
	}
}

func TestConcurrentScriptsNeverCrossResolve(t *testing.T) {
	const runs = 50
	chA, chB := newFakeChannel(), newFakeChannel()
	a, scA := newScriptedNode(t, `[]`, WithChannelFactory(chA.factory))
	b, scB := newScriptedNode(t, `[]`, WithChannelFactory(chB.factory))

	var resultsA, resultsB []*ScriptResult
	for range runs {
		resultsA = append(resultsA, scA.Execute(0))
		resultsB = append(resultsB, scB.Execute(0))
	}
	ids := func(ch *fakeChannel) []uint64 {
		var out []uint64
		for _, p := range ch.posts {
			out = append(out, p.CorrelationID)
		}
		return out
	}
	idsA, idsB := ids(chA), ids(chB)

	ctx := testContext(t)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { feed(chA, idsA, Vec3{1, 0, 0}, 1); return nil })
	g.Go(func() error { feed(chB, idsB, Vec3{0, 1, 0}, 2); return nil })
	g.Go(func() error { return scA.Settle(ctx) })
	g.Go(func() error { return scB.Settle(ctx) })
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for i := range runs {
		if !resultsA[i].OK() || !resultsB[i].OK() {
			t.Fatalf("run %d did not succeed", i)
		}
	}
	if a.Transform.Position != (Vec3{runs, 0, 0}) {
		t.Errorf("a moved to %v, want only its own %d translates", a.Transform.Position, runs)
	}
	if b.Transform.Position != (Vec3{0, runs, 0}) {
		t.Errorf("b moved to %v, want only its own %d translates", b.Transform.Position, runs)
	}
}

func TestConcurrentWorkersIsolated(t *testing.T) {
	a, scA := newScriptedNode(t, `x = (typeof x === "undefined") ? 1 : x + 1; setPosition(x, 0, 0);`, WithTrusted())
	b, scB := newScriptedNode(t, `[{"cmd":"translate","args":[0,0,1]}]`)

	ctx := testContext(t)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for range 20 {
			if _, err := scA.Wait(ctx, scA.Execute(0)); err != nil {
				return err
			}
		}
		return nil
	})
	g.Go(func() error {
		for range 20 {
			if _, err := scB.Wait(ctx, scB.Execute(0)); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	// Globals persist inside one worker and never leak into another.
	if a.Transform.Position != (Vec3{20, 0, 0}) {
		t.Errorf("a = %v", a.Transform.Position)
	}
	if b.Transform.Position != (Vec3{0, 0, 20}) {
		t.Errorf("b = %v", b.Transform.Position)
	}
}

// --- Scene integration ---

func TestSceneUpdateDispatchesAndSettleApplies(t *testing.T) {
	s := newTestScene(t)
	var nodes []*Node
	for range 3 {
		n := s.CreateNode("MeshNode", "mover")
		mustAddComponent(t, n, NewScriptComponent(`[{"cmd":"translate","args":[1,0,0]}]`, WithScriptLogger(discardLogger)))
		if err := s.AddNode(n, nil); err != nil {
			t.Fatal(err)
		}
		nodes = append(nodes, n)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.Update(1.0 / 60)
	if err := s.Settle(testContext(t)); err != nil {
		t.Fatal(err)
	}

	for _, n := range nodes {
		if n.Transform.Position != (Vec3{1, 0, 0}) {
			t.Errorf("%s at %v, want (1, 0, 0)", n.Name, n.Transform.Position)
		}
		if n.Script().Pending() != 0 {
			t.Error("settle should leave nothing pending")
		}
	}
}

func TestSceneCloseCancelsScripts(t *testing.T) {
	s := newTestScene(t)
	ch := newFakeChannel()
	n := NewNode("n")
	sc := NewScriptComponent(`[]`, WithChannelFactory(ch.factory), WithScriptLogger(discardLogger))
	mustAddComponent(t, n, sc)
	_ = s.AddNode(n, nil)

	r := sc.Execute(0)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(r.Err(), ErrScriptCanceled) || !ch.closed {
		t.Errorf("err = %v, closed = %v", r.Err(), ch.closed)
	}
}

func TestSettleHonorsContext(t *testing.T) {
	ch := newFakeChannel()
	_, sc := newScriptedNode(t, `[]`, WithChannelFactory(ch.factory))
	sc.Execute(0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := sc.Settle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}
