package arbor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedDocument wraps every failure to decode scene or node JSON.
var ErrMalformedDocument = errors.New("arbor: malformed document")

// NodeDocument is the persisted shape of a node and its subtree. It is
// shared with the schema generator in cmd/sceneschema.
//
// Properties go through encoding/json, so after a round trip every number
// is a float64, nested objects are map[string]any and arrays are []any.
type NodeDocument struct {
	ID         string         `json:"id" jsonschema:"title=Node id,description=Unique within a scene"`
	Name       string         `json:"name" jsonschema:"description=Human readable name"`
	NodeType   NodeType       `json:"nodeType" jsonschema:"description=Node role (generic/mesh/camera/light or a custom tag)"`
	Transform  Transform      `json:"transform"`
	Properties map[string]any `json:"properties" jsonschema:"description=Arbitrary user properties"`
	Enabled    bool           `json:"enabled"`
	Visible    bool           `json:"visible"`
	Children   []NodeDocument `json:"children"`
}

// SceneDocument is the persisted shape of a scene.
type SceneDocument struct {
	Name string       `json:"name" jsonschema:"description=Scene name"`
	Root NodeDocument `json:"root" jsonschema:"description=The root node; it owns every other node"`
}

// Document converts the subtree rooted at n to its persisted shape.
func (n *Node) Document() NodeDocument {
	props := make(map[string]any, len(n.properties))
	for k, v := range n.properties {
		props[k] = v
	}
	doc := NodeDocument{
		ID:         n.ID,
		Name:       n.Name,
		NodeType:   n.Type,
		Transform:  n.Transform,
		Properties: props,
		Enabled:    n.Enabled,
		Visible:    n.Visible,
		Children:   make([]NodeDocument, 0, len(n.children)),
	}
	for _, c := range n.children {
		doc.Children = append(doc.Children, c.Document())
	}
	return doc
}

// MarshalJSON encodes the node and its subtree.
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Document())
}

// NewNodeFromDocument rebuilds a detached tree from doc, preserving ids and
// re-linking children with AddChild. A missing id gets a fresh one.
func NewNodeFromDocument(doc NodeDocument) *Node {
	id := doc.ID
	if id == "" {
		id = newNodeID()
	}
	n := newNodeWithID(id, doc.Name, doc.NodeType)
	n.Transform = doc.Transform
	n.Enabled = doc.Enabled
	n.Visible = doc.Visible
	for k, v := range doc.Properties {
		n.properties[k] = v
	}
	for _, cd := range doc.Children {
		// A freshly built child cannot be an ancestor of n.
		_ = n.AddChild(NewNodeFromDocument(cd))
	}
	return n
}

// NodeFromJSON decodes a node tree.
func NodeFromJSON(data []byte) (*Node, error) {
	var doc NodeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: node: %w", ErrMalformedDocument, err)
	}
	return NewNodeFromDocument(doc), nil
}

// Document converts the scene to its persisted shape.
func (s *Scene) Document() SceneDocument {
	return SceneDocument{Name: s.Name, Root: s.root.Document()}
}

// MarshalJSON encodes the scene as {name, root}.
func (s *Scene) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Document())
}

// NewSceneFromDocument rebuilds a scene, indexing every node by a full
// traversal. Duplicate ids are rejected.
func NewSceneFromDocument(doc SceneDocument) (*Scene, error) {
	root := NewNodeFromDocument(doc.Root)
	s := NewScene(doc.Name)
	s.root = root
	s.nodes = make(map[string]*Node)
	var dup string
	root.Walk(func(n *Node) bool {
		if _, taken := s.nodes[n.ID]; taken {
			dup = n.ID
		}
		s.nodes[n.ID] = n
		n.scene = s
		return dup == ""
	})
	if dup != "" {
		return nil, fmt.Errorf("%w: scene %q: id %q: %w", ErrMalformedDocument, doc.Name, dup, ErrDuplicateID)
	}
	return s, nil
}

// LoadScene decodes scene JSON produced by Scene.MarshalJSON.
func LoadScene(data []byte) (*Scene, error) {
	var doc SceneDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: scene: %w", ErrMalformedDocument, err)
	}
	return NewSceneFromDocument(doc)
}
