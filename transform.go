package arbor

import "github.com/go-gl/mathgl/mgl64"

// Matrix computes the local transform matrix.
//
// Composition order:
//
//	Scale -> RotateX -> RotateY -> RotateZ -> Translate(Position)
func (t Transform) Matrix() mgl64.Mat4 {
	p, r, s := t.Position, t.Rotation, t.Scale
	m := mgl64.Translate3D(p[0], p[1], p[2])
	m = m.Mul4(mgl64.HomogRotate3DZ(r[2]))
	m = m.Mul4(mgl64.HomogRotate3DY(r[1]))
	m = m.Mul4(mgl64.HomogRotate3DX(r[0]))
	return m.Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
}

// WorldMatrix composes the local matrices from the root down to n.
// It is computed on demand; nothing is cached.
func (n *Node) WorldMatrix() mgl64.Mat4 {
	m := n.Transform.Matrix()
	for p := n.Parent; p != nil; p = p.Parent {
		m = p.Transform.Matrix().Mul4(m)
	}
	return m
}

// WorldPosition returns the node's origin in world space.
func (n *Node) WorldPosition() Vec3 {
	return n.WorldMatrix().Col(3).Vec3()
}

// LocalToWorld converts a point in this node's space to world space.
func (n *Node) LocalToWorld(p Vec3) Vec3 {
	return mgl64.TransformCoordinate(p, n.WorldMatrix())
}

// WorldToLocal converts a world-space point into this node's space.
// Returns p unchanged if the world matrix is singular.
func (n *Node) WorldToLocal(p Vec3) Vec3 {
	m := n.WorldMatrix()
	if det := m.Det(); det > -1e-12 && det < 1e-12 {
		return p
	}
	return mgl64.TransformCoordinate(p, m.Inv())
}

// --- Transform property setters ---

// SetPosition sets the node's local position.
func (n *Node) SetPosition(p Vec3) {
	n.Transform.Position = p
}

// SetRotation sets the node's local Euler rotation in radians.
func (n *Node) SetRotation(r Vec3) {
	n.Transform.Rotation = r
}

// SetScale sets the node's local scale.
func (n *Node) SetScale(s Vec3) {
	n.Transform.Scale = s
}

// Translate adds d to the node's position.
func (n *Node) Translate(d Vec3) {
	n.Transform.Position = n.Transform.Position.Add(d)
}

// Rotate adds d to the node's rotation.
func (n *Node) Rotate(d Vec3) {
	n.Transform.Rotation = n.Transform.Rotation.Add(d)
}

// ScaleBy multiplies the node's scale component-wise by f.
func (n *Node) ScaleBy(f Vec3) {
	s := n.Transform.Scale
	n.Transform.Scale = Vec3{s[0] * f[0], s[1] * f[1], s[2] * f[2]}
}
