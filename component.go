package arbor

import "errors"

// ErrNilComponent is returned when attaching a nil component.
var ErrNilComponent = errors.New("arbor: nil component")

// Component is a behavior unit attached to at most one Node. The set of
// implementations is closed: every component embeds BaseComponent and is one
// of the five kinds declared by ComponentKind.
//
// Lifecycle: OnAttach fires after the owner reference is set, OnDetach fires
// before it is cleared. Update and FixedUpdate run once per tick while the
// component is attached and enabled.
type Component interface {
	Kind() ComponentKind
	Node() *Node
	Enabled() bool

	OnAttach()
	OnDetach()
	OnEnable()
	OnDisable()
	Update(dt float64)
	FixedUpdate(dt float64)

	base() *BaseComponent
}

// BaseComponent holds the state shared by all components and supplies no-op
// lifecycle hooks.
type BaseComponent struct {
	owner    *Node
	disabled bool
}

// Node returns the owning node, or nil when detached.
func (b *BaseComponent) Node() *Node { return b.owner }

// Enabled reports whether the component takes part in the tick.
func (b *BaseComponent) Enabled() bool { return !b.disabled }

func (b *BaseComponent) OnAttach()              {}
func (b *BaseComponent) OnDetach()              {}
func (b *BaseComponent) OnEnable()              {}
func (b *BaseComponent) OnDisable()             {}
func (b *BaseComponent) Update(dt float64)      {}
func (b *BaseComponent) FixedUpdate(dt float64) {}

func (b *BaseComponent) base() *BaseComponent { return b }
