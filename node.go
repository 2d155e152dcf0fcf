package arbor

import (
	"sort"

	"github.com/google/uuid"
)

// newNodeID returns a random, globally unique node id.
func newNodeID() string {
	return uuid.NewString()
}

// Node is an addressable element of the ownership tree. A node owns its
// children; Parent is a navigational back-reference only.
//
// Nodes are not safe for concurrent use. The tick loop, the UI collaborator
// and script reply processing all run on the goroutine that owns the Scene.
type Node struct {
	// Identity
	ID   string
	Name string
	Type NodeType

	// Hierarchy
	Parent   *Node
	children []*Node

	Transform Transform

	Enabled bool
	Visible bool

	properties map[string]any
	components [numComponentKinds]Component

	// scene is the Scene whose index holds this node, or nil when detached.
	scene *Scene

	disposed bool
}

// NewNode creates a detached generic node with a fresh id and identity transform.
func NewNode(name string) *Node {
	return newNodeWithID(newNodeID(), name, NodeTypeGeneric)
}

// NewNodeOfType creates a detached node of the given type. Unlike
// Scene.CreateNode it attaches no default components or properties.
func NewNodeOfType(name string, typ NodeType) *Node {
	return newNodeWithID(newNodeID(), name, typ)
}

func newNodeWithID(id, name string, typ NodeType) *Node {
	if typ == "" {
		typ = NodeTypeGeneric
	}
	return &Node{
		ID:         id,
		Name:       name,
		Type:       typ,
		Transform:  IdentityTransform,
		Enabled:    true,
		Visible:    true,
		properties: make(map[string]any),
	}
}

// --- Tree manipulation ---

// AddChild appends child to this node's children.
// If child already has a parent, it is removed from that parent first.
func (n *Node) AddChild(child *Node) error {
	return n.AddChildAt(child, len(n.children))
}

// AddChildAt inserts child at the given index.
// Same reparenting and cycle-check behavior as AddChild. When child is
// already a child of n, index refers to the list after its removal.
//
// When n belongs to a Scene, child and its subtree join that scene's index
// and listeners receive EventNodeAdded; ids already in use are rejected with
// ErrDuplicateID. A child leaving another scene is removed from it first.
func (n *Node) AddChildAt(child *Node, index int) error {
	if child == nil {
		return ErrNilNode
	}
	// The parent's scene decides the debug mode; a detached parent defers to
	// the child's.
	mode := n
	if n.scene == nil && child.scene != nil {
		mode = child
	}
	dbg, dbgLogger := debugFor(mode)
	if dbg {
		debugCheckDisposed(n, "AddChild (parent)")
		debugCheckDisposed(child, "AddChild (child)")
	}
	if n.disposed || child.disposed {
		return ErrDisposed
	}
	if isAncestor(child, n) {
		return ErrCycle
	}
	if old := child.scene; old != nil && old.root == child {
		return ErrRootReparent
	}
	size := len(n.children)
	if child.Parent == n {
		size--
	}
	if index < 0 || index > size {
		return ErrIndexOutOfRange
	}
	s := n.scene
	joining := s != nil && child.scene != s
	if joining {
		if err := s.checkIDs(child); err != nil {
			return err
		}
	}

	if oldParent := child.Parent; oldParent != nil {
		oldParent.removeChildByPtr(child)
		child.Parent = nil
		if old := child.scene; old != nil && old != s {
			old.nodeLeft(child, oldParent, "AddChild")
		}
	}
	child.Parent = n
	n.children = append(n.children, nil)
	copy(n.children[index+1:], n.children[index:])
	n.children[index] = child

	if s != nil {
		if joining {
			s.index(child)
		}
		s.verify("AddChild")
	}
	if dbg {
		debugCheckTreeDepth(child, dbgLogger)
		debugCheckChildCount(n, dbgLogger)
	}
	if s != nil {
		s.emit(Event{Type: EventNodeAdded, Node: child, Parent: n})
	}
	return nil
}

// RemoveChild detaches child from this node and reports whether it was a
// child. Removing a node that is not a child is a no-op. A child removed from
// a Scene's tree leaves its index together with its subtree.
func (n *Node) RemoveChild(child *Node) bool {
	if child == nil || child.Parent != n {
		return false
	}
	if !n.removeChildByPtr(child) {
		return false
	}
	child.Parent = nil
	if s := child.scene; s != nil {
		s.nodeLeft(child, n, "RemoveChild")
	}
	return true
}

// RemoveChildAt removes and returns the child at the given index, or nil
// when the index is out of range.
func (n *Node) RemoveChildAt(index int) *Node {
	if index < 0 || index >= len(n.children) {
		return nil
	}
	child := n.children[index]
	n.RemoveChild(child)
	return child
}

// RemoveFromParent detaches this node from its parent.
// No-op if this node has no parent.
func (n *Node) RemoveFromParent() {
	if n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
}

// Children returns the child list. The returned slice MUST NOT be mutated by the caller.
func (n *Node) Children() []*Node {
	return n.children
}

// NumChildren returns the number of children.
func (n *Node) NumChildren() int {
	return len(n.children)
}

// ChildAt returns the child at the given index, or nil when out of range.
func (n *Node) ChildAt(index int) *Node {
	if index < 0 || index >= len(n.children) {
		return nil
	}
	return n.children[index]
}

// ChildByName returns the first direct child with the given name.
func (n *Node) ChildByName(name string) *Node {
	for _, c := range n.children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Walk visits n and its descendants depth-first, parents before children.
// Returning false from fn skips that node's subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// --- Properties ---

// SetProperty stores value under key in the property bag. Values should be
// JSON encodable; a saved scene reloads every number as float64.
func (n *Node) SetProperty(key string, value any) {
	if n.properties == nil {
		n.properties = make(map[string]any)
	}
	n.properties[key] = value
}

// Property returns the value stored under key.
func (n *Node) Property(key string) (any, bool) {
	v, ok := n.properties[key]
	return v, ok
}

// DeleteProperty removes key from the property bag. No-op if absent.
func (n *Node) DeleteProperty(key string) {
	delete(n.properties, key)
}

// PropertyKeys returns the property keys in sorted order.
func (n *Node) PropertyKeys() []string {
	keys := make([]string, 0, len(n.properties))
	for k := range n.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Components ---

// AddComponent attaches c under its kind. A component of the same kind
// already on n is detached first, as is c from any other node it is on.
func (n *Node) AddComponent(c Component) error {
	if c == nil {
		return ErrNilComponent
	}
	if debugEnabled(n) {
		debugCheckDisposed(n, "AddComponent")
	}
	kind := c.Kind()
	if n.components[kind] == c {
		return nil
	}
	if owner := c.Node(); owner != nil {
		owner.RemoveComponent(kind)
	}
	n.RemoveComponent(kind)
	n.components[kind] = c
	c.base().owner = n
	c.OnAttach()
	return nil
}

// Component returns the component of the given kind, or nil.
func (n *Node) Component(kind ComponentKind) Component {
	if kind >= numComponentKinds {
		return nil
	}
	return n.components[kind]
}

// RemoveComponent detaches the component of the given kind and reports
// whether one was attached.
func (n *Node) RemoveComponent(kind ComponentKind) bool {
	if kind >= numComponentKinds {
		return false
	}
	c := n.components[kind]
	if c == nil {
		return false
	}
	c.OnDetach()
	c.base().owner = nil
	n.components[kind] = nil
	return true
}

// Components returns the attached components in update order.
func (n *Node) Components() []Component {
	out := make([]Component, 0, numComponentKinds)
	for _, c := range n.components {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// SetComponentEnabled toggles the component of the given kind, firing
// OnEnable or OnDisable when the state actually changes.
func (n *Node) SetComponentEnabled(kind ComponentKind, enabled bool) bool {
	c := n.Component(kind)
	if c == nil {
		return false
	}
	b := c.base()
	if b.disabled == !enabled {
		return true
	}
	b.disabled = !enabled
	if enabled {
		c.OnEnable()
	} else {
		c.OnDisable()
	}
	return true
}

// Script returns the attached ScriptComponent, or nil.
func (n *Node) Script() *ScriptComponent {
	c, _ := n.components[KindScript].(*ScriptComponent)
	return c
}

// Physics returns the attached PhysicsComponent, or nil.
func (n *Node) Physics() *PhysicsComponent {
	c, _ := n.components[KindPhysics].(*PhysicsComponent)
	return c
}

// Animator returns the attached AnimatorComponent, or nil.
func (n *Node) Animator() *AnimatorComponent {
	c, _ := n.components[KindAnimator].(*AnimatorComponent)
	return c
}

// TransformComponent returns the attached TransformComponent, or nil.
func (n *Node) TransformComponent() *TransformComponent {
	c, _ := n.components[KindTransform].(*TransformComponent)
	return c
}

// Renderer returns the attached RendererComponent, or nil.
func (n *Node) Renderer() *RendererComponent {
	c, _ := n.components[KindRenderer].(*RendererComponent)
	return c
}

// update runs one tick of every enabled component in stage order.
func (n *Node) update(dt float64) {
	for _, c := range n.components {
		if c != nil && c.Enabled() {
			c.Update(dt)
		}
	}
}

func (n *Node) fixedUpdate(dt float64) {
	for _, c := range n.components {
		if c != nil && c.Enabled() {
			c.FixedUpdate(dt)
		}
	}
}

// --- Disposal ---

// Dispose removes this node from its parent, detaches every component
// (tearing down script sandboxes) and recursively disposes all descendants.
// A scene root is never disposed; use Scene.Close to tear a scene down.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	if s := n.scene; s != nil && s.root == n {
		return
	}
	n.RemoveFromParent()
	n.dispose()
}

func (n *Node) dispose() {
	n.disposed = true
	for kind := range n.components {
		n.RemoveComponent(ComponentKind(kind))
	}
	for _, child := range n.children {
		child.Parent = nil
		child.dispose()
	}
	n.children = nil
	n.Parent = nil
	n.scene = nil
	n.properties = nil
}

// IsDisposed returns true if this node has been disposed.
func (n *Node) IsDisposed() bool {
	return n.disposed
}

// --- Helpers ---

// isAncestor reports whether candidate is node or one of its ancestors.
func isAncestor(candidate, node *Node) bool {
	for p := node; p != nil; p = p.Parent {
		if p == candidate {
			return true
		}
	}
	return false
}

// removeChildByPtr removes child from n.children without clearing child.Parent.
// Uses copy+nil to avoid retaining a dangling pointer in the backing array.
func (n *Node) removeChildByPtr(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			copy(n.children[i:], n.children[i+1:])
			n.children[len(n.children)-1] = nil
			n.children = n.children[:len(n.children)-1]
			return true
		}
	}
	return false
}
