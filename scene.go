package arbor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Listener receives scene change notifications.
type Listener func(Event)

type listenerEntry struct {
	id int
	fn Listener
}

// Scene is the registry that owns the node tree, a flat id index over every
// node reachable from the root, the selection and the change listeners.
//
// A Scene and its nodes belong to one goroutine. Settle is the only method
// that fans work out to other goroutines, and it waits for them.
type Scene struct {
	Name string

	root     *Node
	nodes    map[string]*Node
	selected *Node

	listeners      []listenerEntry
	nextListenerID int
	dispatching    bool
	eventQueue     []Event

	logger *slog.Logger
	debug  bool

	// FixedStep is the physics step in seconds. When 0, FixedUpdate runs
	// exactly once per Update with the tick's dt.
	FixedStep   float64
	accumulator float64

	tick      uint64
	updateBuf []*Node
	replay    *Replay
}

// NewScene creates a scene with a pre-created root node.
func NewScene(name string) *Scene {
	root := newNodeWithID(newNodeID(), "root", NodeTypeGeneric)
	s := &Scene{
		Name:   name,
		root:   root,
		nodes:  map[string]*Node{root.ID: root},
		logger: slog.Default(),
	}
	root.scene = s
	return s
}

// Root returns the scene's root node.
func (s *Scene) Root() *Node {
	return s.root
}

// Len returns the number of indexed nodes, root included.
func (s *Scene) Len() int {
	return len(s.nodes)
}

// Tick returns the number of completed Update calls.
func (s *Scene) Tick() uint64 {
	return s.tick
}

// SetLogger sets the logger used for listener failures and debug output.
func (s *Scene) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	s.logger = l
	if s.debug {
		debugLogger = l
	}
}

// Logger returns the scene's logger.
func (s *Scene) Logger() *slog.Logger {
	return s.logger
}

// SetDebugMode enables or disables debug mode. When enabled, disposed-node
// access panics, tree depth and child count warnings are logged, and the
// index is verified after every structural change.
func (s *Scene) SetDebugMode(enabled bool) {
	s.debug = enabled
	globalDebug = enabled
	if enabled {
		debugLogger = s.logger
	}
}

// --- Structure ---

// CreateNode builds a detached node of the given factory type. Unknown
// types produce a generic node. The node is not added to the scene.
func (s *Scene) CreateNode(nodeType, name string) *Node {
	typ := ParseNodeType(nodeType)
	n := newNodeWithID(newNodeID(), name, typ)
	switch typ {
	case NodeTypeMesh:
		n.SetProperty("geometry", "box")
		_ = n.AddComponent(NewRendererComponent("box"))
	case NodeTypeCamera:
		n.SetProperty("fov", 60.0)
		n.SetProperty("near", 0.1)
		n.SetProperty("far", 1000.0)
	case NodeTypeLight:
		n.SetProperty("lightType", "point")
		n.SetProperty("intensity", 1.0)
		n.SetProperty("color", "#ffffff")
	}
	return n
}

// AddNode links node under parent (the root when nil) and indexes it with
// its whole subtree. Adding a node that is already in the scene moves it.
// It is Node.AddChild with the parent resolved and checked against the index.
func (s *Scene) AddNode(node, parent *Node) error {
	if node == nil {
		return ErrNilNode
	}
	if node.IsDisposed() {
		return fmt.Errorf("add %q: %w", node.Name, ErrDisposed)
	}
	if parent == nil {
		parent = s.root
	}
	if parent.scene != s || s.nodes[parent.ID] != parent {
		return fmt.Errorf("add %q: parent %q: %w", node.Name, parent.ID, ErrNodeNotFound)
	}
	if err := parent.AddChild(node); err != nil {
		return fmt.Errorf("add %q under %q: %w", node.Name, parent.Name, err)
	}
	return nil
}

// checkIDs rejects a subtree whose ids collide with the index or with each
// other.
func (s *Scene) checkIDs(node *Node) error {
	seen := make(map[string]bool)
	var err error
	node.Walk(func(n *Node) bool {
		if err != nil {
			return false
		}
		if _, taken := s.nodes[n.ID]; taken || seen[n.ID] || n.ID == "" {
			err = fmt.Errorf("id %q: %w", n.ID, ErrDuplicateID)
			return false
		}
		seen[n.ID] = true
		return true
	})
	return err
}

// index adds the subtree rooted at n to the index.
func (s *Scene) index(n *Node) {
	n.Walk(func(d *Node) bool {
		s.nodes[d.ID] = d
		d.scene = s
		return true
	})
}

// nodeLeft drops a subtree that has just been unlinked from parent out of
// the index. A selection inside the subtree is cleared before listeners see
// EventNodeRemoved, and EventNodeSelected with a nil node follows it.
func (s *Scene) nodeLeft(n, parent *Node, op string) {
	clearSel := false
	n.Walk(func(d *Node) bool {
		if s.nodes[d.ID] == d {
			delete(s.nodes, d.ID)
		}
		d.scene = nil
		if d == s.selected {
			clearSel = true
		}
		return true
	})
	if clearSel {
		s.selected = nil
	}
	s.verify(op)
	s.emit(Event{Type: EventNodeRemoved, Node: n, Parent: parent})
	if clearSel {
		s.emit(Event{Type: EventNodeSelected})
	}
}

// RemoveNode unlinks the node from its parent and removes it and every
// descendant from the index. The removed subtree stays intact: descendants
// keep their parent links and can be re-added as a unit. If the selection
// was inside the subtree it is cleared. The root cannot be removed.
func (s *Scene) RemoveNode(id string) (*Node, bool) {
	node, ok := s.nodes[id]
	if !ok || node == s.root {
		return nil, false
	}
	node.RemoveFromParent()
	return node, true
}

// DestroyNode removes the node from the scene and disposes its subtree,
// tearing down any script sandboxes.
func (s *Scene) DestroyNode(id string) bool {
	node, ok := s.RemoveNode(id)
	if !ok {
		return false
	}
	node.Dispose()
	return true
}

// NodeByID returns the indexed node with the given id, or nil.
func (s *Scene) NodeByID(id string) *Node {
	return s.nodes[id]
}

// SelectNode selects the node with the given id and notifies listeners.
// An unknown id clears the selection and notifies with a nil node.
func (s *Scene) SelectNode(id string) *Node {
	s.selected = s.nodes[id]
	s.emit(Event{Type: EventNodeSelected, Node: s.selected})
	return s.selected
}

// Selected returns the selected node, or nil.
func (s *Scene) Selected() *Node {
	return s.selected
}

// --- Hierarchy ---

// HierarchyEntry is a read-only projection of a node for UI consumption.
type HierarchyEntry struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	NodeType NodeType         `json:"nodeType"`
	Children []HierarchyEntry `json:"children"`
}

// Hierarchy builds the projection of the whole tree. It is rebuilt on every
// call.
func (s *Scene) Hierarchy() HierarchyEntry {
	return hierarchyOf(s.root)
}

func hierarchyOf(n *Node) HierarchyEntry {
	e := HierarchyEntry{
		ID:       n.ID,
		Name:     n.Name,
		NodeType: n.Type,
		Children: make([]HierarchyEntry, 0, len(n.children)),
	}
	for _, c := range n.children {
		e.Children = append(e.Children, hierarchyOf(c))
	}
	return e
}

// Contains reports whether id appears anywhere in the projection.
func (e HierarchyEntry) Contains(id string) bool {
	if e.ID == id {
		return true
	}
	for _, c := range e.Children {
		if c.Contains(id) {
			return true
		}
	}
	return false
}

// String renders an indented outline, one node per line.
func (e HierarchyEntry) String() string {
	var b strings.Builder
	e.write(&b, 0)
	return b.String()
}

func (e HierarchyEntry) write(b *strings.Builder, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	fmt.Fprintf(b, "%s [%s]\n", e.Name, e.NodeType)
	for _, c := range e.Children {
		c.write(b, depth+1)
	}
}

// --- Listeners ---

// Subscribe registers fn and returns a function that unregisters it.
// Listeners run synchronously in registration order.
func (s *Scene) Subscribe(fn Listener) (unsubscribe func()) {
	s.nextListenerID++
	id := s.nextListenerID
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// emit delivers ev to every listener. Events raised by a listener are queued
// and delivered after the current event has reached all listeners.
func (s *Scene) emit(ev Event) {
	s.eventQueue = append(s.eventQueue, ev)
	if s.dispatching {
		return
	}
	s.dispatching = true
	defer func() { s.dispatching = false }()
	for len(s.eventQueue) > 0 {
		next := s.eventQueue[0]
		s.eventQueue = s.eventQueue[1:]
		listeners := append([]listenerEntry(nil), s.listeners...)
		for _, l := range listeners {
			s.notify(l.fn, next)
		}
	}
	s.eventQueue = nil
}

// notify runs one listener, containing any panic it raises.
func (s *Scene) notify(fn Listener, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("scene listener panicked", "event", ev.Type.String(), "panic", p)
		}
	}()
	fn(ev)
}

// --- Tick ---

// Update runs one host tick: fixed steps first, then Update on every enabled
// component of every enabled node reachable from root. A disabled node skips
// its whole subtree. Nodes are collected before any component runs.
func (s *Scene) Update(dt float64) {
	if s.replay != nil {
		s.replay.step(s)
	}

	s.updateBuf = s.collectActive(s.updateBuf[:0])

	if s.FixedStep > 0 {
		s.accumulator += dt
		for s.accumulator >= s.FixedStep {
			for _, n := range s.updateBuf {
				n.fixedUpdate(s.FixedStep)
			}
			s.accumulator -= s.FixedStep
		}
	} else {
		for _, n := range s.updateBuf {
			n.fixedUpdate(dt)
		}
	}

	for _, n := range s.updateBuf {
		n.update(dt)
	}
	clear(s.updateBuf)
	s.tick++
}

func (s *Scene) collectActive(buf []*Node) []*Node {
	s.root.Walk(func(n *Node) bool {
		if !n.Enabled {
			return false
		}
		buf = append(buf, n)
		return true
	})
	return buf
}

// scripts returns every script component on an indexed node.
func (s *Scene) scripts() []*ScriptComponent {
	var out []*ScriptComponent
	s.root.Walk(func(n *Node) bool {
		if sc := n.Script(); sc != nil {
			out = append(out, sc)
		}
		return true
	})
	return out
}

// Settle blocks until every in-flight script run in the scene has resolved,
// applying replies as they arrive. Each script is drained on its own
// goroutine; scripts never share a node, so their mutations do not overlap.
func (s *Scene) Settle(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, sc := range s.scripts() {
		if sc.Pending() == 0 {
			continue
		}
		g.Go(func() error { return sc.Settle(ctx) })
	}
	return g.Wait()
}

// Close tears down every script sandbox in the scene.
func (s *Scene) Close() error {
	var errs []error
	for _, sc := range s.scripts() {
		if err := sc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scene) verify(op string) {
	if !s.debug {
		return
	}
	if problem := s.debugCheckIndex(); problem != "" {
		panic(fmt.Sprintf("arbor debug: %s: %s", op, problem))
	}
}
