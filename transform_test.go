package arbor

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func assertNear(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func assertVecNear(t *testing.T, name string, got, want Vec3) {
	t.Helper()
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Errorf("%s = %v, want %v", name, got, want)
			return
		}
	}
}

// --- Local matrix ---

func TestIdentityMatrix(t *testing.T) {
	m := IdentityTransform.Matrix()
	for i := range 4 {
		for j := range 4 {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(m.At(i, j)-want) > epsilon {
				t.Fatalf("m[%d][%d] = %v, want %v", i, j, m.At(i, j), want)
			}
		}
	}
}

func TestMatrixScaleThenTranslate(t *testing.T) {
	n := NewNode("n")
	n.SetScale(Vec3{2, 3, 4})
	n.SetPosition(Vec3{10, 0, -1})
	assertVecNear(t, "LocalToWorld", n.LocalToWorld(Vec3{1, 1, 1}), Vec3{12, 3, 3})
}

func TestMatrixRotationZ(t *testing.T) {
	n := NewNode("n")
	n.SetRotation(Vec3{0, 0, math.Pi / 2})
	// +X rotates onto +Y.
	assertVecNear(t, "LocalToWorld", n.LocalToWorld(Vec3{1, 0, 0}), Vec3{0, 1, 0})
}

// --- World transforms ---

func TestWorldPositionComposesParents(t *testing.T) {
	parent := NewNode("parent")
	child := NewNode("child")
	mustAdd(t, parent, child)

	parent.SetPosition(Vec3{5, 0, 0})
	parent.SetScale(Vec3{2, 2, 2})
	child.SetPosition(Vec3{1, 1, 0})

	assertVecNear(t, "WorldPosition", child.WorldPosition(), Vec3{7, 2, 0})
}

func TestWorldToLocalInvertsLocalToWorld(t *testing.T) {
	parent := NewNode("parent")
	child := NewNode("child")
	mustAdd(t, parent, child)
	parent.SetPosition(Vec3{3, -2, 1})
	parent.SetRotation(Vec3{0.3, 0.5, -0.2})
	child.SetScale(Vec3{1, 2, 0.5})
	child.SetPosition(Vec3{1, 0, 4})

	p := Vec3{0.25, -1, 7}
	assertVecNear(t, "round trip", child.WorldToLocal(child.LocalToWorld(p)), p)
}

func TestWorldToLocalSingular(t *testing.T) {
	n := NewNode("flat")
	n.SetScale(Vec3{0, 1, 1})
	p := Vec3{1, 2, 3}
	if got := n.WorldToLocal(p); got != p {
		t.Errorf("singular WorldToLocal = %v, want %v unchanged", got, p)
	}
}

// --- Setters ---

func TestTranslateRotateScaleBy(t *testing.T) {
	n := NewNode("n")
	n.Translate(Vec3{1, 2, 3})
	n.Translate(Vec3{1, 0, 0})
	n.Rotate(Vec3{0, 0.5, 0})
	n.ScaleBy(Vec3{2, 3, 0.5})

	if n.Transform.Position != (Vec3{2, 2, 3}) {
		t.Errorf("Position = %v", n.Transform.Position)
	}
	if n.Transform.Rotation != (Vec3{0, 0.5, 0}) {
		t.Errorf("Rotation = %v", n.Transform.Rotation)
	}
	if n.Transform.Scale != (Vec3{2, 3, 0.5}) {
		t.Errorf("Scale = %v", n.Transform.Scale)
	}
}
