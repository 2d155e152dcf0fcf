package arbor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is the 3-vector used for positions, rotations (Euler angles, radians)
// and scales. It is a plain [3]float64, so it encodes to JSON as [x, y, z].
type Vec3 = mgl64.Vec3

// Transform holds a node's local position, rotation and scale.
type Transform struct {
	Position Vec3 `json:"position" jsonschema:"description=Local position as an x y z triple"`
	Rotation Vec3 `json:"rotation" jsonschema:"description=Euler rotation in radians as an x y z triple"`
	Scale    Vec3 `json:"scale" jsonschema:"description=Per-axis scale as an x y z triple"`
}

// IdentityTransform is the transform every new node starts with.
var IdentityTransform = Transform{Scale: Vec3{1, 1, 1}}

// Color represents an RGBA color with components in [0, 1]. Not premultiplied.
type Color struct {
	R, G, B, A float64
}

// ColorWhite is the default material color.
var ColorWhite = Color{1, 1, 1, 1}

// ParseHexColor parses "#rrggbb" or "#rrggbbaa" (the leading '#' is optional).
func ParseHexColor(s string) (Color, error) {
	s = strings.TrimPrefix(s, "#")
	var r, g, b, a uint8 = 0, 0, 0, 255
	switch len(s) {
	case 6:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
			return Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &r, &g, &b, &a); err != nil {
			return Color{}, fmt.Errorf("parse color %q: %w", s, err)
		}
	default:
		return Color{}, fmt.Errorf("parse color %q: want 6 or 8 hex digits", s)
	}
	return Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
		A: float64(a) / 255,
	}, nil
}

// NodeType tags a node with its role. The set is open: unknown values are
// preserved through serialization and treated as generic nodes.
type NodeType string

const (
	NodeTypeGeneric NodeType = "generic" // plain transform group
	NodeTypeMesh    NodeType = "mesh"    // carries a RendererComponent
	NodeTypeCamera  NodeType = "camera"  // viewpoint with fov/near/far properties
	NodeTypeLight   NodeType = "light"   // light source with type/intensity/color properties
)

// ParseNodeType maps factory names ("MeshNode", "mesh", ...) to a NodeType.
// Unknown names fall back to NodeTypeGeneric.
func ParseNodeType(name string) NodeType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "meshnode", "mesh":
		return NodeTypeMesh
	case "cameranode", "camera":
		return NodeTypeCamera
	case "lightnode", "light":
		return NodeTypeLight
	default:
		return NodeTypeGeneric
	}
}

// ComponentKind identifies one of the closed set of component variants.
// The declaration order is the per-tick update order.
type ComponentKind uint8

const (
	KindScript    ComponentKind = iota // user logic, dispatched first so its effects are visible to physics
	KindPhysics                        // integrates velocity and position
	KindAnimator                       // keyframes, layers and tweens
	KindTransform                      // mirrors the final transform
	KindRenderer                       // presentation state only
	numComponentKinds
)

var componentKindNames = [numComponentKinds]string{"script", "physics", "animator", "transform", "renderer"}

func (k ComponentKind) String() string {
	if k < numComponentKinds {
		return componentKindNames[k]
	}
	return fmt.Sprintf("ComponentKind(%d)", uint8(k))
}

// EventType identifies a structural or selection change on a Scene.
type EventType uint8

const (
	EventNodeAdded    EventType = iota // a node (and its subtree) entered the scene
	EventNodeRemoved                   // a node (and its subtree) left the scene
	EventNodeSelected                  // the selection changed; Node is nil when cleared
)

func (e EventType) String() string {
	switch e {
	case EventNodeAdded:
		return "nodeAdded"
	case EventNodeRemoved:
		return "nodeRemoved"
	case EventNodeSelected:
		return "nodeSelected"
	default:
		return fmt.Sprintf("EventType(%d)", uint8(e))
	}
}

// Event is delivered to scene listeners.
type Event struct {
	Type   EventType
	Node   *Node
	Parent *Node // parent at the time of the change; nil for selection events
}

// Errors returned at the structural API boundary.
var (
	ErrNilNode         = errors.New("arbor: nil node")
	ErrCycle           = errors.New("arbor: operation would create a cycle")
	ErrDuplicateID     = errors.New("arbor: duplicate node id")
	ErrNodeNotFound    = errors.New("arbor: node not found")
	ErrIndexOutOfRange = errors.New("arbor: child index out of range")
	ErrDisposed        = errors.New("arbor: node is disposed")
	ErrRootReparent    = errors.New("arbor: scene root cannot be reparented")
)
